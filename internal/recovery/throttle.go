package recovery

import (
	"sync"
	"time"
)

// tokenBucket paces recovery task enqueues to at most rps per second (the
// recovery config's max_recoveries_per_second). Grounded directly on the
// teacher's internal/api/middleware RateLimiter — same refill-on-demand
// token bucket, reused here to pace a different kind of submission.
// A nil *tokenBucket (rps <= 0) never throttles.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(rps int) *tokenBucket {
	if rps <= 0 {
		return nil
	}
	return &tokenBucket{
		tokens:     float64(rps),
		maxTokens:  float64(rps),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
