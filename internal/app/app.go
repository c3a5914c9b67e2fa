// Package app wires fortuna's subsystems into a running application.
//
// [New] builds the oracle, the health checks and the HTTP server from a
// [config.Config] and a set of [Providers]; [App.Run] serves until the context
// is cancelled; [App.Shutdown] flushes telemetry. Live voice sessions are
// managed by the [SessionManager] returned from [App.Sessions].
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/health"
	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/internal/web"
)

// App owns the lifetime of every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers

	oracle   *oracle.Oracle
	health   *health.Handler
	server   *web.Server
	sessions *SessionManager

	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	level     *slog.LevelVar
	watcher   *config.Watcher

	stopOnce sync.Once
}

// Option configures [New].
type Option func(*App)

// WithTelemetry serves metrics from t and records into t.Metrics.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithLogLevel lets configuration reloads change the level of the default
// logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// Policy converts the retry section of cfg into a [resilience.Policy].
func Policy(cfg config.RetryConfig, m *observe.Metrics) resilience.Policy {
	p := resilience.DefaultPolicy()
	if cfg.MaxRetries != nil {
		p.MaxRetries = *cfg.MaxRetries
	}
	if cfg.Delay > 0 {
		p.Delay = cfg.Delay
	}
	p.Metrics = m
	return p
}

// New builds an App. providers.Text must be set.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	a.metrics = observe.DefaultMetrics()
	if a.telemetry != nil {
		a.metrics = a.telemetry.Metrics
	}

	var err error
	a.oracle, err = oracle.New(oracle.Config{
		APIKey: cfg.Providers.Text.APIKey,
		Text:   providers.Text,
		Probe:  providers.Probe,
		Image:  providers.Image,
		Speech: providers.Speech,
		Voice:  cfg.Providers.Speech.Option("voice", ""),
		Policy: Policy(cfg.Retry, a.metrics),
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.health = health.New([]health.Checker{health.ReadyChecker("oracle", a.oracle)})

	webCfg := web.Config{
		Oracle:    a.oracle,
		Health:    a.health,
		Observe:   a.metrics,
		RateLimit: cfg.RateLimit,
	}
	if a.telemetry != nil {
		webCfg.Metrics = a.telemetry.Handler()
	}
	if a.server, err = web.New(webCfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if providers.Live != nil {
		a.sessions = NewSessionManager(SessionManagerConfig{
			Provider: providers.Live,
			Ready:    a.oracle.Ready,
			Live:     cfg.Live,
			Voice:    cfg.Providers.Live.Option("voice", ""),
			Metrics:  a.metrics,
		})
	}
	return a, nil
}

// Oracle returns the reading service.
func (a *App) Oracle() *oracle.Oracle { return a.oracle }

// Server returns the HTTP front end.
func (a *App) Server() *web.Server { return a.server }

// Sessions returns the live session manager, or nil when no live provider is
// configured.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Watch reloads path on change and applies hot-reloadable settings.
// Call before [App.Run].
func (a *App) Watch(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, a.ApplyConfig, opts...)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// ApplyConfig applies the hot-reloadable differences between old and new.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RateLimitChanged {
		a.server.SetRateLimit(d.NewRateLimit)
	}
	if d.RestartRequired {
		slog.Warn("configuration changed in fields that are only read at startup; restart to apply them")
	}
}

// Run serves HTTP and, when [App.Watch] was called, polls the config file.
// It blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx, a.cfg.Server.ListenAddr, a.cfg.Server.TLS)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	return g.Wait()
}

// Shutdown stops any live session and flushes telemetry. It is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.sessions != nil {
			a.sessions.Stop()
		}
		if a.telemetry != nil {
			err = a.telemetry.Shutdown(ctx)
		}
	})
	return err
}
