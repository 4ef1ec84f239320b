package provider

import (
	"context"
	"time"

	"pawbot/pkg/logger"
)

// RetryPolicy bounds how often a failed model call is repeated.
type RetryPolicy struct {
	// MaxAttempts counts the first call; values below 1 mean 1.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Retrying wraps a Provider with bounded, context-aware retries.
// Exhausted retries surface as an error matching ErrModelUnavailable.
type Retrying struct {
	inner  Provider
	policy RetryPolicy
}

var _ Provider = (*Retrying)(nil)

// NewRetrying wraps p.
func NewRetrying(p Provider, policy RetryPolicy) *Retrying {
	return &Retrying{inner: p, policy: policy}
}

// Name implements Provider.
func (r *Retrying) Name() string { return r.inner.Name() }

// Chat implements Provider.
func (r *Retrying) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxAttempts := r.policy.attempts()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) || attempt == maxAttempts {
			break
		}

		logger.Warn().
			Err(err).
			Str("provider", r.inner.Name()).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", r.policy.Delay).
			Msg("model call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.policy.Delay):
		}
	}

	return nil, &UnavailableError{Attempts: attempt, Err: lastErr}
}
