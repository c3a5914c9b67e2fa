// Package gemini provides an image provider backed by the Gemini image models.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
	"github.com/MrWong99/fortuna/pkg/provider/image"
)

const (
	// DefaultModel is used when New is called with an empty model name.
	DefaultModel = "gemini-2.5-flash-image"

	// DefaultAspectRatio suits a portrait poster.
	DefaultAspectRatio = "3:4"
)

var _ image.Provider = (*Provider)(nil)

// Provider implements image.Provider.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini image Provider.
func New(ctx context.Context, apiKey, model string, opts ...googleai.ClientOption) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := googleai.NewClient(ctx, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini image: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Generate implements image.Provider. It returns the first inline image part.
func (p *Provider) Generate(ctx context.Context, req image.Request) (*image.Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("gemini image: prompt must not be empty")
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = DefaultAspectRatio
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: aspect},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini image: generate content: %w", googleai.MapError(err))
	}
	if err := googleai.CheckBlocked(resp); err != nil {
		return nil, fmt.Errorf("gemini image: %w", err)
	}
	for _, part := range googleai.Parts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &image.Image{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, nil
		}
	}
	return nil, fmt.Errorf("gemini image: %w", provider.ErrEmptyResponse)
}
