package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

type recorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func (r *recorder) last() (string, map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return "", nil
	}
	return r.paths[len(r.paths)-1], r.bodies[len(r.bodies)-1]
}

func startServer(t *testing.T, status int, body any) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(raw, &req)
		rec.mu.Lock()
		rec.paths = append(rec.paths, r.URL.Path)
		rec.bodies = append(rec.bodies, req)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(context.Background(), "test-key-123456", "gemini-test", googleai.WithBaseURL(url))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func textResponse(text, finish string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
			"finishReason": finish,
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     5,
			"candidatesTokenCount": 6,
			"totalTokenCount":      11,
		},
	}
}

func userReq(text string) llm.CompletionRequest {
	return llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: text}}}
}

// ─── tests ────────────────────────────────────────────────────────────────────

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), "test-key-123456", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), DefaultModel)
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	srv, rec := startServer(t, http.StatusOK, textResponse(`{"score":9}`, "STOP"))
	p := newProvider(t, srv.URL)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a fortune teller.",
		Messages:     []llm.Message{{Role: "user", Content: "read my fortune"}},
		ResponseSchema: &llm.Schema{
			Type:       llm.TypeObject,
			Properties: map[string]*llm.Schema{"score": llm.Integer("0-100")},
			Required:   []string{"score"},
		},
		MaxTokens:       50,
		DisableThinking: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"score":9}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 11 {
		t.Errorf("TotalTokens = %d, want 11", resp.Usage.TotalTokens)
	}

	path, body := rec.last()
	if !strings.HasSuffix(path, "models/gemini-test:generateContent") {
		t.Errorf("path = %q", path)
	}
	gc, _ := body["generationConfig"].(map[string]any)
	if gc == nil {
		t.Fatalf("missing generationConfig in %v", body)
	}
	if gc["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", gc["responseMimeType"])
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("systemInstruction missing")
	}
}

func TestComplete_SkipsThoughtParts(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusOK, map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"text": "hmm", "thought": true},
				map[string]any{"text": "hello"},
			}},
			"finishReason": "STOP",
		}},
	})
	resp, err := newProvider(t, srv.URL).Complete(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
}

func TestComplete_Blocked(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusOK, map[string]any{
		"promptFeedback": map[string]any{"blockReason": "SAFETY"},
	})
	_, err := newProvider(t, srv.URL).Complete(context.Background(), userReq("bad"))
	if !errors.Is(err, provider.ErrContentBlocked) {
		t.Fatalf("err = %v, want ErrContentBlocked", err)
	}
}

func TestComplete_Empty(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusOK, map[string]any{"candidates": []any{}})
	_, err := newProvider(t, srv.URL).Complete(context.Background(), userReq("hi"))
	if !errors.Is(err, provider.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_QuotaError(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{
			"code":    429,
			"message": "Resource has been exhausted (e.g. check quota).",
			"status":  "RESOURCE_EXHAUSTED",
		},
	})
	_, err := newProvider(t, srv.URL).Complete(context.Background(), userReq("hi"))

	var se *provider.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *provider.StatusError", err)
	}
	if se.Code != 429 || se.Status != "RESOURCE_EXHAUSTED" {
		t.Errorf("got %d %s", se.Code, se.Status)
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		t.Error("underlying genai.APIError not reachable")
	}
}

func TestConvertMessages(t *testing.T) {
	t.Parallel()

	contents, system, err := convertMessages(llm.CompletionRequest{
		SystemPrompt: "a",
		Messages: []llm.Message{
			{Role: "system", Content: "b"},
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "r"},
		},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 2 || contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Errorf("unexpected contents: %+v", contents)
	}

	if _, _, err := convertMessages(llm.CompletionRequest{Messages: []llm.Message{{Role: "tool"}}}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, _, err := convertMessages(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for no messages")
	}
}

func TestConvertSchema_Ordering(t *testing.T) {
	t.Parallel()

	s := convertSchema(&llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"zeta":  llm.String(""),
			"score": llm.Integer(""),
			"alpha": llm.String(""),
			"todo":  llm.StringArray(""),
		},
		Required: []string{"score", "todo"},
	})
	want := []string{"score", "todo", "alpha", "zeta"}
	if strings.Join(s.PropertyOrdering, ",") != strings.Join(want, ",") {
		t.Errorf("PropertyOrdering = %v, want %v", s.PropertyOrdering, want)
	}
	if s.Type != genai.TypeObject {
		t.Errorf("Type = %q", s.Type)
	}
	if s.Properties["todo"].Items == nil || s.Properties["todo"].Items.Type != genai.TypeString {
		t.Error("array items not converted")
	}
}
