// Package gemini provides an LLM provider backed by the Gemini API via the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

// DefaultModel is used when New is called with an empty model name.
const DefaultModel = "gemini-3-pro-preview"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the Gemini generateContent endpoint.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini LLM Provider.
func New(ctx context.Context, apiKey, model string, opts ...googleai.ClientOption) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := googleai.NewClient(ctx, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, system, err := convertMessages(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, buildConfig(req, system))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", googleai.MapError(err))
	}
	if err := googleai.CheckBlocked(resp); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	var sb strings.Builder
	for _, part := range googleai.Parts(resp) {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("gemini: %w", provider.ErrEmptyResponse)
	}

	out := &llm.CompletionResponse{
		Content:      sb.String(),
		FinishReason: strings.ToLower(string(resp.Candidates[0].FinishReason)),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// convertMessages splits req into Gemini contents and the combined system
// instruction. System-role messages are folded into the instruction.
func convertMessages(req llm.CompletionRequest) ([]*genai.Content, string, error) {
	if len(req.Messages) == 0 {
		return nil, "", fmt.Errorf("no messages")
	}
	system := []string{}
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "user":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			return nil, "", fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("no user or assistant messages")
	}
	return contents, strings.Join(system, "\n\n"), nil
}

func buildConfig(req llm.CompletionRequest, system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convertSchema(req.ResponseSchema)
	}
	if req.DisableThinking {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)}
	}
	return cfg
}

// convertSchema maps an llm.Schema onto the Gemini OpenAPI subset. Required
// properties keep their declared order; the rest follow alphabetically.
func convertSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(s.Type))),
		Description: s.Description,
		Required:    s.Required,
		Items:       convertSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		rest := make([]string, 0, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = convertSchema(p)
			if !slices.Contains(s.Required, name) {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		out.PropertyOrdering = append(slices.Clone(s.Required), rest...)
	}
	return out
}
