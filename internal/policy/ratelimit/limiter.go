// Package ratelimit paces outgoing API requests per resource class with token
// buckets, keeping bursts under the API's secondary rate limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per resource class.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	rates        map[string]rate.Limit
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// ResourceRPS overrides DefaultRPS for named resource classes.
	ResourceRPS map[string]float64
}

// New creates a new Limiter. A non-positive rate means unlimited.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	rates := make(map[string]rate.Limit, len(cfg.ResourceRPS))
	for resource, rps := range cfg.ResourceRPS {
		rates[resource] = toLimit(rps)
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		rates:        rates,
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the resource, respecting the context.
func (l *Limiter) Wait(ctx context.Context, resource string) error {
	l.mu.Lock()
	limiter, exists := l.limiters[resource]
	if !exists {
		r, ok := l.rates[resource]
		if !ok {
			r = l.defaultRate
		}
		limiter = rate.NewLimiter(r, l.defaultBurst)
		l.limiters[resource] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
