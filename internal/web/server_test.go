package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/health"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

// fakeOracle records calls and returns canned results.
type fakeOracle struct {
	mu sync.Mutex

	status  oracle.Status
	fortune *oracle.FortuneResult
	compat  *oracle.CompatibilityResult
	speech  *tts.Speech
	poster  string
	err     error

	lastUser oracle.UserInfo
	lastDate string
	lastPair [2]oracle.UserInfo
	lastText string
}

func (f *fakeOracle) Status(context.Context) oracle.Status { return f.status }

func (f *fakeOracle) DailyFortune(_ context.Context, u oracle.UserInfo, date string) (*oracle.FortuneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser, f.lastDate = u, date
	return f.fortune, f.err
}

func (f *fakeOracle) Compatibility(_ context.Context, a, b oracle.UserInfo) (*oracle.CompatibilityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPair = [2]oracle.UserInfo{a, b}
	return f.compat, f.err
}

func (f *fakeOracle) Speak(_ context.Context, text string) (*tts.Speech, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	return f.speech, f.err
}

func (f *fakeOracle) WantedPoster(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = prompt
	return f.poster, f.err
}

var noLimit = config.RateLimitConfig{Disabled: true}

func newServer(t *testing.T, o Oracle, rl config.RateLimitConfig) *Server {
	t.Helper()
	s, err := New(Config{Oracle: o, RateLimit: rl})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// ─── Construction ────────────────────────────────────────────────────────────

func TestNew_RequiresOracle(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil oracle")
	}
}

// ─── Endpoints ───────────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	t.Parallel()
	o := &fakeOracle{status: oracle.Status{OK: false, Message: "no key", NeedsCredential: true}}
	rec := do(t, newServer(t, o, noLimit), http.MethodGet, "/api/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got oracle.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OK || !got.NeedsCredential || got.Message != "no key" {
		t.Errorf("status body = %+v", got)
	}
}

func TestFortune(t *testing.T) {
	t.Parallel()
	o := &fakeOracle{fortune: &oracle.FortuneResult{Summary: "Fair winds", Score: 88, ImageURL: "data:image/png;base64,AA=="}}
	s := newServer(t, o, noLimit)

	body := `{"user":{"name":"Nami","birthDate":"1998-07-03","birthPlace":"Cocoyasi"},"date":"2026-10-19"}`
	rec := do(t, s, http.MethodPost, "/api/fortune", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got oracle.FortuneResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Score != 88 || got.ImageURL == "" {
		t.Errorf("result = %+v", got)
	}
	if o.lastUser.Name != "Nami" || o.lastUser.BirthPlace != "Cocoyasi" || o.lastDate != "2026-10-19" {
		t.Errorf("oracle saw user %+v date %q", o.lastUser, o.lastDate)
	}
}

func TestCompatibility(t *testing.T) {
	t.Parallel()
	o := &fakeOracle{compat: &oracle.CompatibilityResult{Score: 72, Dynamic: "Captain and navigator"}}
	s := newServer(t, o, noLimit)

	body := `{"first":{"name":"Luffy","birthDate":"1999-05-05","birthPlace":"Foosha"},` +
		`"second":{"name":"Zoro","birthDate":"1999-11-11","birthPlace":"Shimotsuki"}}`
	rec := do(t, s, http.MethodPost, "/api/compatibility", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if o.lastPair[0].Name != "Luffy" || o.lastPair[1].Name != "Zoro" {
		t.Errorf("oracle saw %+v", o.lastPair)
	}
}

func TestSpeech(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 0, 2, 0}
	o := &fakeOracle{speech: &tts.Speech{PCM: pcm, SampleRate: 24000, MIMEType: "audio/L16;rate=24000"}}
	rec := do(t, newServer(t, o, noLimit), http.MethodPost, "/api/speech", `{"text":"Ahoy"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got SpeechResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Audio != base64.StdEncoding.EncodeToString(pcm) || got.SampleRate != 24000 {
		t.Errorf("speech = %+v", got)
	}
	if o.lastText != "Ahoy" {
		t.Errorf("text = %q", o.lastText)
	}
}

func TestPoster(t *testing.T) {
	t.Parallel()
	o := &fakeOracle{poster: "data:image/png;base64,AAAA"}
	rec := do(t, newServer(t, o, noLimit), http.MethodPost, "/api/poster", `{"prompt":"a straw hat"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got PosterResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ImageURL != o.poster {
		t.Errorf("imageUrl = %q", got.ImageURL)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	rec := do(t, newServer(t, &fakeOracle{}, noLimit), http.MethodGet, "/api/fortune", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// ─── Error mapping ───────────────────────────────────────────────────────────

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"not ready", fmt.Errorf("oracle: %w", resilience.ErrNotReady), http.StatusServiceUnavailable, "not_ready"},
		{"quota", fmt.Errorf("%w: boom", resilience.ErrQuotaExceeded), http.StatusTooManyRequests, "rate_limited"},
		{"blocked", fmt.Errorf("gemini: %w", provider.ErrContentBlocked), http.StatusUnprocessableEntity, "content_blocked"},
		{"credential", fmt.Errorf("oracle: %w", resilience.ErrReconnectRequired), http.StatusUnauthorized, "credential_invalid"},
		{"malformed", fmt.Errorf("oracle: %w", resilience.ErrMalformedResponse), http.StatusBadGateway, "malformed_response"},
		{"transient", &provider.StatusError{Provider: "gemini", Code: 503, Message: "overloaded"}, http.StatusBadGateway, "transient"},
		{"invalid", fmt.Errorf("oracle: %w: name is required", resilience.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"not configured", fmt.Errorf("%w: image generation", oracle.ErrNotConfigured), http.StatusNotImplemented, "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := &fakeOracle{err: tt.err}
			rec := do(t, newServer(t, o, noLimit), http.MethodPost, "/api/poster", `{"prompt":"x"}`)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decodeError(t, rec)
			if body.Error != tt.kind {
				t.Errorf("error = %q, want %q", body.Error, tt.kind)
			}
			if body.Message == "" || strings.Contains(body.Message, "overloaded") {
				t.Errorf("message = %q, want actionable text without raw transport detail", body.Message)
			}
		})
	}
}

func TestBadBody(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unknown field", `{"prompt":"x","colour":"red"}`},
		{"too large", `{"prompt":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := &fakeOracle{}
			rec := do(t, newServer(t, o, noLimit), http.MethodPost, "/api/poster", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if body := decodeError(t, rec); body.Error != "invalid_input" {
				t.Errorf("error = %q", body.Error)
			}
			if o.lastText != "" {
				t.Error("oracle called for rejected body")
			}
		})
	}
}

// ─── Rate limiting ───────────────────────────────────────────────────────────

func TestRateLimit_PerClient(t *testing.T) {
	t.Parallel()
	s := newServer(t, &fakeOracle{}, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	for i := range 2 {
		if rec := do(t, s, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := do(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "rate_limited" {
		t.Errorf("error = %q", body.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "198.51.100.1:4000"
	other := httptest.NewRecorder()
	s.Handler().ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", other.Code)
	}
}

func TestRateLimit_ProbesUnlimited(t *testing.T) {
	t.Parallel()
	s, err := New(Config{
		Oracle:    &fakeOracle{},
		Health:    health.New(nil),
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 5 {
		if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("healthz status = %d", rec.Code)
		}
	}
}

func TestRateLimit_Update(t *testing.T) {
	t.Parallel()
	s := newServer(t, &fakeOracle{}, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	do(t, s, http.MethodGet, "/api/status", "")
	if rec := do(t, s, http.MethodGet, "/api/status", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	s.SetRateLimit(config.RateLimitConfig{Disabled: true})
	if rec := do(t, s, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Errorf("status after disabling = %d, want 200", rec.Code)
	}
}

func TestClientLimiter_Sweep(t *testing.T) {
	t.Parallel()
	l := newClientLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("a")
	now = now.Add(time.Hour)
	l.allow("b")
	l.sweep(10 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.clients["a"]; ok {
		t.Error("idle client a not swept")
	}
	if _, ok := l.clients["b"]; !ok {
		t.Error("active client b swept")
	}
}

// ─── Probes and metrics ──────────────────────────────────────────────────────

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	readyErr := fmt.Errorf("oracle: %w", resilience.ErrNotReady)
	s, err := New(Config{
		Oracle: &fakeOracle{},
		Health: health.New([]health.Checker{{Name: "oracle", Check: func(context.Context) error { return readyErr }}}),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# HELP fortuna\n"))
		}),
		RateLimit: noLimit,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fortuna") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s := newServer(t, &fakeOracle{}, noLimit)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0", nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
