package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingProvider(calls *int32, fn func(n int32) (*ChatResponse, error)) Provider {
	return ProviderFunc(func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		n := atomic.AddInt32(calls, 1)
		return fn(n)
	})
}

func TestRetrying_SucceedsAfterTransientErrors(t *testing.T) {
	var calls int32
	p := countingProvider(&calls, func(n int32) (*ChatResponse, error) {
		if n < 3 {
			return nil, errors.New("connection reset")
		}
		return &ChatResponse{Content: "ok"}, nil
	})

	r := NewRetrying(p, RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})
	resp, err := r.Chat(context.Background(), ChatRequest{})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetrying_ExhaustedIsModelUnavailable(t *testing.T) {
	var calls int32
	p := countingProvider(&calls, func(int32) (*ChatResponse, error) {
		return nil, NewProviderError(ErrCodeServiceUnavailable, "503", "test", true)
	})

	r := NewRetrying(p, RetryPolicy{MaxAttempts: 4, Delay: time.Millisecond})
	_, err := r.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 4, ue.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestRetrying_NonRetryableStopsImmediately(t *testing.T) {
	var calls int32
	p := countingProvider(&calls, func(int32) (*ChatResponse, error) {
		return nil, NewProviderError(ErrCodeAuthFailed, "bad key", "test", false)
	})

	r := NewRetrying(p, RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond})
	_, err := r.Chat(context.Background(), ChatRequest{})

	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetrying_ContextCancelDuringBackoff(t *testing.T) {
	var calls int32
	p := countingProvider(&calls, func(int32) (*ChatResponse, error) {
		return nil, errors.New("flaky")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewRetrying(p, RetryPolicy{MaxAttempts: 10, Delay: time.Hour})
	start := time.Now()
	_, err := r.Chat(ctx, ChatRequest{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryPolicy_ZeroAttemptsMeansOne(t *testing.T) {
	var calls int32
	p := countingProvider(&calls, func(int32) (*ChatResponse, error) {
		return nil, errors.New("down")
	})

	_, err := NewRetrying(p, RetryPolicy{}).Chat(context.Background(), ChatRequest{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
