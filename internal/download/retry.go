package download

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// LinearRetryPolicy bounds attempts and waits base*n after the n-th failed attempt.
type LinearRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewLinearRetryPolicy builds a policy. maxAttempts < 1 is treated as 1.
func NewLinearRetryPolicy(maxAttempts int, baseDelay time.Duration) *LinearRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// ShouldRetry decides whether another attempt follows the failed attempt number `attempt` (1-based).
func (p *LinearRetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, content.ErrInvalidURL)
}

// Backoff returns the wait before the attempt following `attempt`.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	return p.baseDelay * time.Duration(attempt)
}

// MaxAttempts reports the total attempt bound.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
