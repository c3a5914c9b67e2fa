// Package googleai holds the pieces shared by every provider that talks to the
// Gemini REST API through the google.golang.org/genai SDK: client
// construction, error mapping and safety-block detection.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/provider"
)

// ClientOption configures [NewClient].
type ClientOption func(*genai.ClientConfig)

// WithBaseURL points the client at a different endpoint. Used by tests.
func WithBaseURL(url string) ClientOption {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *genai.ClientConfig) {
		if d > 0 {
			c.HTTPOptions.Timeout = &d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *genai.ClientConfig) { c.HTTPClient = hc }
}

// NewClient returns a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("googleai: apiKey must not be empty")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("googleai: new client: %w", err)
	}
	return client, nil
}

// MapError converts SDK API errors into [provider.StatusError]. Other errors
// are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return &provider.StatusError{
		Provider: "gemini",
		Code:     apiErr.Code,
		Status:   apiErr.Status,
		Message:  apiErr.Message,
		Err:      err,
	}
}

// CheckBlocked returns an error wrapping [provider.ErrContentBlocked] when the
// prompt or the first candidate was stopped by a safety filter.
func CheckBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return nil
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
		return fmt.Errorf("%w: prompt %s", provider.ErrContentBlocked, strings.ToLower(string(pf.BlockReason)))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	switch reason := resp.Candidates[0].FinishReason; reason {
	case genai.FinishReasonSafety,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII,
		genai.FinishReasonImageSafety:
		return fmt.Errorf("%w: %s", provider.ErrContentBlocked, strings.ToLower(string(reason)))
	}
	return nil
}

// Parts returns the non-thought parts of the first candidate.
func Parts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	parts := make([]*genai.Part, 0, len(resp.Candidates[0].Content.Parts))
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}
