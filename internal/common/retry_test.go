package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	transient := NewProviderError("cohere", "embed", 503, errors.New("unavailable"))
	fatal := NewProviderError("cohere", "embed", 401, errors.New("bad key"))

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first time", errs: []error{nil}, wantCalls: 1},
		{name: "recovers after transient failures", errs: []error{transient, transient, nil}, wantCalls: 3},
		{name: "stops on fatal error", errs: []error{fatal, nil}, wantCalls: 1, wantErr: ErrProviderAuth},
		{name: "exhausts attempts", errs: []error{transient, transient, transient}, wantCalls: 3, wantErr: ErrMaxRetries},
		{name: "input errors are not retried", errs: []error{NewInputError("description", "empty", nil)}, wantCalls: 1, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
				e := tt.errs[calls]
				calls++
				return e
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryPolicy_ExhaustedKeepsProviderError(t *testing.T) {
	err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		return NewProviderError("openai", "embed", 429, errors.New("slow down"))
	})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 429, providerErr.StatusCode)
	assert.False(t, IsFatalProvider(err))
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			calls++
			return &RetryableError{Err: errors.New("flaky"), Retryable: true}
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "rate limit sentinel", err: ErrRateLimit, want: true},
		{name: "rate limit message", err: errors.New("Rate limit reached for model"), want: true},
		{name: "502", err: NewProviderError("cohere", "rerank", 502, nil), want: true},
		{name: "400", err: NewProviderError("cohere", "rerank", 400, nil), want: false},
		{name: "403", err: NewProviderError("cohere", "rerank", 403, nil), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestInputError(t *testing.T) {
	err := NewInputError("method", "unknown match method FOO", ErrUnknownMethod)

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, "invalid input method: unknown match method FOO", err.Error())
}
