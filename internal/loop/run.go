package loop

import (
	"context"
	"time"
)

// Run drives iterations of the main-loop algorithm until ctx is done or
// Stop is called, delegating the I/O-poll step to poll. It is shared by
// every backend variant so each one only needs to supply its own poll.
func (c *Core) Run(ctx context.Context, poll PollFunc) error {
	if !c.tryStart() {
		return ErrAlreadyRunning
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.stopping.Store(false)
	defer func() {
		c.markStopped()
		close(c.doneCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		busy, budget := c.runIteration(poll)
		if busy {
			continue
		}

		// Step 5: no work this iteration, park bounded by idle_timeout
		// or wake-on-stop/wake-on-new-work.
		select {
		case <-c.wake:
		case <-time.After(budget):
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		}
	}
}

// Stop requests the loop to exit, granting it up to timeout (falling back
// to the configured grace period when timeout is zero) before returning
// regardless of whether the loop goroutine has actually exited.
func (c *Core) Stop(timeout time.Duration) error {
	if !c.running.Load() {
		return nil
	}
	if !c.stopping.CompareAndSwap(false, true) {
		return nil // idempotent
	}
	if timeout <= 0 {
		timeout = c.cfg.StopGrace
	}
	close(c.stopCh)
	c.signalWake()

	select {
	case <-c.doneCh:
	case <-time.After(timeout):
		c.markStopped()
	}
	return nil
}
