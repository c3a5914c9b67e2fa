package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
)

func startServer(t *testing.T, status int, body any, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotBody != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func audioResponse(pcm []byte, mime string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{
				"inlineData": map[string]any{
					"mimeType": mime,
					"data":     base64.StdEncoding.EncodeToString(pcm),
				},
			}}},
			"finishReason": "STOP",
		}},
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	var body map[string]any
	srv := startServer(t, http.StatusOK, audioResponse(pcm, "audio/L16;codec=pcm;rate=24000"), &body)

	p, err := New(context.Background(), "test-key-123456", "", googleai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	speech, err := p.Synthesize(context.Background(), "Ahoy!", "Kore")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech.PCM) != string(pcm) {
		t.Errorf("PCM = %v, want %v", speech.PCM, pcm)
	}
	if speech.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", speech.SampleRate)
	}

	gc, _ := body["generationConfig"].(map[string]any)
	sc, _ := gc["speechConfig"].(map[string]any)
	vc, _ := sc["voiceConfig"].(map[string]any)
	pv, _ := vc["prebuiltVoiceConfig"].(map[string]any)
	if pv["voiceName"] != "Kore" {
		t.Errorf("voiceName = %v, want Kore (body=%v)", pv["voiceName"], body)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, _ := New(context.Background(), "test-key-123456", "")
	if _, err := p.Synthesize(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	srv := startServer(t, http.StatusOK, map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": "no audio"}}},
			"finishReason": "STOP",
		}},
	}, nil)
	p, _ := New(context.Background(), "test-key-123456", "", googleai.WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", "")
	if !errors.Is(err, provider.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestVoices_IncludesDefault(t *testing.T) {
	t.Parallel()

	p, _ := New(context.Background(), "test-key-123456", "")
	found := false
	for _, v := range p.Voices() {
		if v == DefaultVoice {
			found = true
		}
	}
	if !found {
		t.Errorf("Voices() missing default %q", DefaultVoice)
	}
}
