package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.Close()

	require.NoError(t, rl.wait(context.Background()))
	require.NoError(t, rl.wait(context.Background()))
	assert.Equal(t, 0, rl.available())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := newRateLimiter(1)
	rl.Close()
	rl.Close()

	require.NoError(t, rl.wait(context.Background()))
	assert.Error(t, rl.wait(context.Background()))
}
