package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fortuna/internal/app"
	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, health probes and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    c.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Application ───────────────────────────────────────────────────────────
	a, err := c.build(tel.Metrics, app.WithTelemetry(tel))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return err
	}
	if c.configPath != "" {
		if err := a.Watch(c.configPath); err != nil {
			_ = a.Shutdown(context.Background())
			return err
		}
	}

	printStartupSummary(c.out, c.cfg, c.configPath)

	// ── Serve until signalled ─────────────────────────────────────────────────
	runErr := a.Run(ctx)

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "err", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// printStartupSummary writes a short overview of the active configuration.
func printStartupSummary(w io.Writer, cfg *config.Config, path string) {
	source := path
	if source == "" {
		source = "(defaults + environment)"
	}
	p := cfg.Providers
	rl := "disabled"
	if !cfg.RateLimit.Disabled && cfg.RateLimit.RequestsPerSecond > 0 {
		rl = fmt.Sprintf("%g req/s, burst %d", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	rows := [][2]string{
		{"Config", source},
		{"Listen", cfg.Server.ListenAddr + tlsSuffix(cfg.Server.TLS)},
		{"Text", describeEntry(p.Text)},
		{"Fallback", describeEntry(p.Fallback)},
		{"Image", describeEntry(p.Image)},
		{"Speech", describeEntry(p.Speech)},
		{"Live", describeEntry(p.Live)},
		{"Rate limit", rl},
	}
	fmt.Fprintln(w, "╔══ fortuna "+version+" "+strings.Repeat("═", max(0, 36-len(version)))+"╗")
	for _, r := range rows {
		fmt.Fprintf(w, "║ %-11s %s\n", r[0], r[1])
	}
	fmt.Fprintln(w, "╚"+strings.Repeat("═", 48)+"╝")
}

func tlsSuffix(t *config.TLSConfig) string {
	if t == nil {
		return ""
	}
	return " (TLS)"
}

// describeEntry renders a provider entry without its credential.
func describeEntry(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	s := e.Name
	if e.Model != "" {
		s += "/" + e.Model
	}
	if e.APIKey == "" {
		s += " [no key]"
	}
	return s
}
