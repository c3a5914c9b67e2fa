// Package web exposes the oracle over a JSON HTTP API.
//
// Routes:
//
//	GET  /api/status         readiness report
//	POST /api/fortune        daily fortune for one person
//	POST /api/compatibility  alliance reading for two people
//	POST /api/speech         narrated text as base64 PCM
//	POST /api/poster         wanted poster as a data URL
//	GET  /healthz, /readyz   probes
//	GET  /metrics            Prometheus scrape
//
// Failures are answered with {"error": kind, "message": text} where kind is a
// [resilience.Kind] name and the status code follows [resilience.Kind.HTTPStatus].
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/health"
	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
	clientIdleAfter = 10 * time.Minute
)

// Oracle is the subset of [oracle.Oracle] served over HTTP.
type Oracle interface {
	Status(ctx context.Context) oracle.Status
	DailyFortune(ctx context.Context, u oracle.UserInfo, date string) (*oracle.FortuneResult, error)
	Compatibility(ctx context.Context, a, b oracle.UserInfo) (*oracle.CompatibilityResult, error)
	Speak(ctx context.Context, text string) (*tts.Speech, error)
	WantedPoster(ctx context.Context, prompt string) (string, error)
}

// Config holds the dependencies of a [Server].
type Config struct {
	Oracle Oracle

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// Observe records request latency. Defaults to [observe.DefaultMetrics].
	Observe *observe.Metrics

	// RateLimit throttles /api/ routes per client address.
	RateLimit config.RateLimitConfig
}

// Server is the HTTP front end.
type Server struct {
	oracle  Oracle
	limiter *clientLimiter
	handler http.Handler
}

// New builds a server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("web: Oracle must not be nil")
	}
	if cfg.Observe == nil {
		cfg.Observe = observe.DefaultMetrics()
	}

	s := &Server{
		oracle:  cfg.Oracle,
		limiter: newClientLimiter(cfg.RateLimit),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("POST /api/fortune", s.handleFortune)
	api.HandleFunc("POST /api/compatibility", s.handleCompatibility)
	api.HandleFunc("POST /api/speech", s.handleSpeech)
	api.HandleFunc("POST /api/poster", s.handlePoster)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.limiter.middleware(api))
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	s.handler = observe.Middleware(cfg.Observe)(mux)
	return s, nil
}

// Handler returns the root handler with observability middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// SetRateLimit applies rl to current and future clients.
func (s *Server) SetRateLimit(rl config.RateLimitConfig) {
	s.limiter.update(rl)
	slog.Info("web: rate limit updated",
		"disabled", rl.Disabled,
		"requests_per_second", rl.RequestsPerSecond,
		"burst", rl.Burst,
	)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
// When tls is non-nil the server speaks HTTPS.
func (s *Server) Run(ctx context.Context, addr string, tls *config.TLSConfig) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("web: listening", "addr", addr, "tls", tls != nil)
		var err error
		if tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.limiter.sweepLoop(ctx, sweepInterval, clientIdleAfter)
		return nil
	})
	return g.Wait()
}
