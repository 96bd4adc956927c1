package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/scan-redactor/internal/config"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	enabled bool
	limit   rate.Limit
	burst   int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter refilling RequestsPerMin tokens per
// minute. Burst defaults to RequestsPerMin.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMin
	}
	return &RateLimiter{
		enabled: cfg.Enabled && cfg.RequestsPerMin > 0,
		limit:   rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.enabled {
		return true
	}
	return r.get(clientIP).Allow()
}

func (r *RateLimiter) get(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Cleanup removes clients not seen since cutoff.
func (r *RateLimiter) Cleanup(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup drops idle clients every interval until ctx is done.
func (r *RateLimiter) RunCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Cleanup(now.Add(-idle))
		}
	}
}
