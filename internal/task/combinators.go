package task

import (
	"context"
	"sync"
	"time"
)

// SleepFor returns a one-shot timer-driven task that completes with a nil
// result after d, or is cancelled if its context is cancelled first.
func SleepFor(d time.Duration) *Task {
	return New("sleep", func(ctx context.Context) (any, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// WhenAll returns a task that resolves after every input has reached a
// terminal state. If any input fails, the aggregate fails with the first
// observed error only after every input has settled (not fail-fast) —
// grounded on golang.org/x/sync/errgroup's wait-for-every-goroutine shape,
// adapted to polling task terminal state via Await instead of collecting
// goroutine return values.
func WhenAll(ctx context.Context, tasks ...*Task) *Task {
	return New("when_all", func(ctx context.Context) (any, error) {
		results := make([]any, len(tasks))
		errs := make([]error, len(tasks))

		var wg sync.WaitGroup
		wg.Add(len(tasks))
		for i, t := range tasks {
			go func(i int, t *Task) {
				defer wg.Done()
				r, err := t.Await(ctx)
				results[i] = r
				errs[i] = err
			}(i, t)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return results, err
			}
		}
		return results, nil
	})
}

// WhenAny returns a task that resolves with the first input to terminate.
// The remaining ("losing") inputs are cancelled; WhenAny does not wait for
// them to acknowledge cancellation before resolving.
func WhenAny(ctx context.Context, tasks ...*Task) *Task {
	return New("when_any", func(ctx context.Context) (any, error) {
		type settled struct {
			result any
			err    error
		}
		first := make(chan settled, len(tasks))

		for _, t := range tasks {
			go func(t *Task) {
				r, err := t.Await(ctx)
				select {
				case first <- settled{r, err}:
				default:
				}
			}(t)
		}

		select {
		case s := <-first:
			for _, t := range tasks {
				t.Cancel()
			}
			return s.result, s.err
		case <-ctx.Done():
			for _, t := range tasks {
				t.Cancel()
			}
			return nil, ctx.Err()
		}
	})
}

// WithTimeout races inner against a timer of duration d. If inner settles
// first, its outcome is returned. If the timer fires first, inner is
// cancelled (without waiting for it to acknowledge) and WithTimeout fails
// with ErrTimeout.
func WithTimeout(inner *Task, d time.Duration) *Task {
	return New("with_timeout", func(ctx context.Context) (any, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		result, err := inner.Await(timeoutCtx)
		if timeoutCtx.Err() != nil && inner.State() != StateCompleted && inner.State() != StateFailed {
			inner.Cancel()
			return nil, ErrTimeout
		}
		return result, err
	})
}

// Then returns a task that, once the receiver completes successfully, runs
// fn with the receiver's result. If the receiver fails or is cancelled, the
// chained task settles the same way without running fn.
func (t *Task) Then(fn func(ctx context.Context, result any) (any, error)) *Task {
	return New(t.Name+".then", func(ctx context.Context) (any, error) {
		result, err := t.Await(ctx)
		if err != nil {
			return nil, err
		}
		return fn(ctx, result)
	})
}

// Catch returns a task that, once the receiver fails, runs fn with the
// observed error to produce a recovered result. A successful receiver
// passes its result through unchanged.
func (t *Task) Catch(fn func(ctx context.Context, err error) (any, error)) *Task {
	return New(t.Name+".catch", func(ctx context.Context) (any, error) {
		result, err := t.Await(ctx)
		if err == nil {
			return result, nil
		}
		return fn(ctx, err)
	})
}

// Finally returns a task that runs fn unconditionally after the receiver
// settles, then reproduces the receiver's original outcome.
func (t *Task) Finally(fn func(ctx context.Context)) *Task {
	return New(t.Name+".finally", func(ctx context.Context) (any, error) {
		result, err := t.Await(ctx)
		fn(ctx)
		return result, err
	})
}
