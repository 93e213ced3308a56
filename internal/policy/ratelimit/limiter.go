// Package ratelimit implements a per-host token bucket for endpoint fetches.
// Hosts that answer 429 or 503 are slowed down and recover on success.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/govdata-ingest/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// MinRPS is the floor a throttled host is slowed to. Zero means DefaultRPS/8.
	MinRPS float64
}

// Limiter manages one token bucket per host so sources never share counters.
type Limiter struct {
	mu      sync.Mutex
	hosts   map[string]*rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
	burst   int
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	ceiling := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		ceiling = rate.Inf
	}
	floor := rate.Limit(cfg.MinRPS)
	if cfg.MinRPS <= 0 || cfg.MinRPS > cfg.DefaultRPS {
		floor = ceiling / 8
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		hosts:   make(map[string]*rate.Limiter),
		ceiling: ceiling,
		floor:   floor,
		burst:   burst,
	}
}

// Wait blocks until a token is available for the URL's host, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.bucket(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Observe adjusts the host's rate from an attempt's status code: 429 and 503
// halve it down to the floor, 2xx raises it by a quarter up to the ceiling.
// Unlimited configurations ignore feedback.
func (l *Limiter) Observe(rawURL string, status int) {
	if l.ceiling == rate.Inf {
		return
	}
	limiter := l.bucket(hostOf(rawURL))
	current := limiter.Limit()
	next := current
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		next = max(current/2, l.floor)
	case status >= 200 && status < 300:
		next = min(current*1.25, l.ceiling)
	}
	if next != current {
		limiter.SetLimit(next)
	}
}

// Rate reports the current limit for the URL's host.
func (l *Limiter) Rate(rawURL string) rate.Limit {
	return l.bucket(hostOf(rawURL)).Limit()
}

// Hosts reports how many host buckets exist.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.hosts[host]
	if !ok {
		limiter = rate.NewLimiter(l.ceiling, l.burst)
		l.hosts[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
