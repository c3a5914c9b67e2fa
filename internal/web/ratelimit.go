package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/resilience"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per remote address.
type clientLimiter struct {
	mu      sync.Mutex
	cfg     config.RateLimitConfig
	clients map[string]*client
	now     func() time.Time
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		cfg:     cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

func (l *clientLimiter) enabled() bool {
	return !l.cfg.Disabled && l.cfg.RequestsPerSecond > 0
}

// allow reports whether key may make a request now.
func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled() {
		return true
	}
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[key] = c
	}
	now := l.now()
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *clientLimiter) update(cfg config.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	now := l.now()
	for _, c := range l.clients {
		c.limiter.SetLimitAt(now, rate.Limit(cfg.RequestsPerSecond))
		c.limiter.SetBurstAt(now, cfg.Burst)
	}
}

// sweep forgets clients idle for longer than idle.
func (l *clientLimiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *clientLimiter) sweepLoop(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(idle)
		}
	}
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   resilience.KindRateLimited.String(),
				Message: "Too many requests from this address. Slow down and try again in a moment.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
