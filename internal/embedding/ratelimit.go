package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket shared by every call to one provider.
type rateLimiter struct {
	stopCh   chan struct{}
	tokens   int
	capacity int
	interval time.Duration
	mu       sync.Mutex
	stopOnce sync.Once
}

// newRateLimiter creates a limiter allowing requestsPerMinute calls, with a
// burst of the same size.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	rl := &rateLimiter{
		tokens:   requestsPerMinute,
		capacity: requestsPerMinute,
		interval: time.Minute / time.Duration(requestsPerMinute),
		stopCh:   make(chan struct{}),
	}
	go rl.refill()
	return rl
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	if rl.tryAcquire() {
		return nil
	}

	ticker := time.NewTicker(rl.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-rl.stopCh:
			return fmt.Errorf("rate limiter closed")
		case <-ticker.C:
			if rl.tryAcquire() {
				return nil
			}
		}
	}
}

func (rl *rateLimiter) pollInterval() time.Duration {
	if rl.interval < 100*time.Millisecond {
		return rl.interval
	}
	return 100 * time.Millisecond
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *rateLimiter) available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

func (rl *rateLimiter) refill() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			if rl.tokens < rl.capacity {
				rl.tokens++
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the refill goroutine. It is safe to call more than once.
func (rl *rateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}
