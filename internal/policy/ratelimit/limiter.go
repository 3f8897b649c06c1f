// Package ratelimit implements a per-host gate combining a concurrency cap and a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/newsgraph/internal/metrics"
)

// Limiter manages per-host slots and rate limits.
type Limiter struct {
	mu           sync.Mutex
	hosts        map[string]*hostSlot
	defaultRate  rate.Limit
	defaultBurst int
	maxPerHost   int64
}

type hostSlot struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Config holds rate limiter configuration.
type Config struct {
	// DefaultRPS <= 0 disables rate limiting.
	DefaultRPS   float64
	DefaultBurst int
	// MaxPerHost <= 0 disables the concurrency cap.
	MaxPerHost int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		hosts:        make(map[string]*hostSlot),
		defaultRate:  r,
		defaultBurst: burst,
		maxPerHost:   int64(cfg.MaxPerHost),
	}
}

// Acquire blocks until the host of rawURL has a free slot and a token, respecting the context.
// The returned release func must be called once the request is finished; it is idempotent.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	host := hostOf(rawURL)
	slot := l.slot(host)

	start := time.Now()
	if slot.sem != nil {
		if err := slot.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("host slot wait: %w", err)
		}
	}
	if err := slot.limiter.Wait(ctx); err != nil {
		if slot.sem != nil {
			slot.sem.Release(1)
		}
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveHostGateWait(host, waited)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if slot.sem != nil {
				slot.sem.Release(1)
			}
		})
	}, nil
}

func (l *Limiter) slot(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.hosts[host]
	if !ok {
		slot = &hostSlot{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		if l.maxPerHost > 0 {
			slot.sem = semaphore.NewWeighted(l.maxPerHost)
		}
		l.hosts[host] = slot
	}
	return slot
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
