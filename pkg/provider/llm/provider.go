// Package llm defines the Provider interface for text generation backends.
//
// An LLM provider wraps a remote model API (Gemini, OpenAI, ...) and exposes a
// uniform way to request a single completion, optionally constrained to a JSON
// response schema. Readings are generated as structured JSON so the caller can
// validate the required fields before presenting them.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero selects the provider
	// default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int

	// ResponseSchema, when set, asks the model to answer with JSON that
	// conforms to the schema.
	ResponseSchema *Schema

	// SchemaName names the schema for providers that require one.
	SchemaName string

	// DisableThinking turns off extended reasoning on models that support it.
	// Used for cheap probes.
	DisableThinking bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the reply. For schema requests this is the
	// raw JSON document.
	Content string

	// FinishReason is the provider's stop reason, normalised to lower case.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text generation backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must return promptly when ctx is cancelled. A refusal for safety reasons must
// be reported as an error wrapping [provider.ErrContentBlocked].
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
