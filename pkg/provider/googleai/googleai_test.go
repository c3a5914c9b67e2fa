package googleai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/provider"
)

func TestNewClient_EmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("call: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"})
	err := MapError(wrapped)

	var se *provider.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("MapError = %T, want *provider.StatusError", err)
	}
	if se.Code != 429 || se.Status != "RESOURCE_EXHAUSTED" {
		t.Errorf("got %d %s", se.Code, se.Status)
	}

	plain := errors.New("dial tcp: refused")
	if got := MapError(plain); got != plain {
		t.Errorf("non-API error was rewritten: %v", got)
	}
	if MapError(nil) != nil {
		t.Error("MapError(nil) should be nil")
	}
}

func TestCheckBlocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want bool
	}{
		{name: "nil", resp: nil},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			want: true,
		},
		{
			name: "candidate safety",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			want: true,
		},
		{
			name: "normal stop",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckBlocked(tt.resp)
			if got := errors.Is(err, provider.ErrContentBlocked); got != tt.want {
				t.Errorf("blocked = %v, want %v (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestParts_SkipsThoughts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "answer"},
			}},
		}},
	}
	parts := Parts(resp)
	if len(parts) != 1 || parts[0].Text != "answer" {
		t.Fatalf("Parts = %+v", parts)
	}
}
