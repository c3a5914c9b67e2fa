// Package health serves the liveness and readiness probes of the HTTP API.
//
//   - /healthz reports that the process is serving requests.
//   - /readyz runs every registered [Checker] and answers 200 only when all
//     of them pass.
//
// Readiness results carry the failure kind from [resilience.Classify] so that
// an operator can tell a missing credential apart from an upstream outage.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fortuna/internal/resilience"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Readier is satisfied by the oracle service.
type Readier interface {
	Ready(ctx context.Context) error
}

// ReadyChecker adapts a [Readier] to a [Checker].
func ReadyChecker(name string, r Readier) Checker {
	return Checker{Name: name, Check: r.Ready}
}

// CheckResult is the outcome of one checker.
type CheckResult struct {
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultCheckTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under its own timeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Evaluate runs every checker and aggregates the results.
func (h *Handler) Evaluate(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(h.checkers))
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			res := CheckResult{Status: "ok"}
			if err := c.Check(cctx); err != nil {
				res = CheckResult{
					Status:  "fail",
					Kind:    resilience.Classify(err).String(),
					Message: resilience.UserMessage(err),
				}
			}
			mu.Lock()
			checks[c.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: "ok", Checks: checks}
	for _, res := range checks {
		if res.Status != "ok" {
			report.Status = "fail"
			break
		}
	}
	return report
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
