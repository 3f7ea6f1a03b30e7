package recovery

import (
	"math"
	"time"
)

// BackoffConfig is the capped-exponential retry schedule for recovery
// attempts, grounded on the teacher's task.RetryPolicy.CalculateBackoff —
// same initial/factor/cap shape, minus the jitter term the recovery
// config group has no field for.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Minute,
	}
}

func (c BackoffConfig) isZero() bool {
	return c.InitialDelay == 0 && c.Multiplier == 0 && c.MaxDelay == 0
}

// delayForAttempt returns retry_backoff * backoff_multiplier^(attempts-1)
// capped at max_retry_delay, where attempts is the 1-based count of the
// attempt that just failed.
func (c BackoffConfig) delayForAttempt(attempts uint32) time.Duration {
	if attempts == 0 {
		attempts = 1
	}
	mult := c.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(attempts-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}
