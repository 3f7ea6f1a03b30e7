package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWaiter simulates fd readiness after a short delay, standing in for a
// real blocking syscall wait in tests.
func fakeWaiter(delay time.Duration, mask InterestMask) IOWaiter {
	return func(ctx context.Context, fd int, interest InterestMask) (InterestMask, error) {
		select {
		case <-time.After(delay):
			return mask, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func TestCrossPlatformBackend_DispatchesReadyIO(t *testing.T) {
	b := NewCrossPlatformBackend(DefaultConfig(), fakeWaiter(5*time.Millisecond, InterestRead), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	require.NoError(t, b.RegisterIO(7, InterestRead, func(fd int, ready InterestMask) {
		assert.Equal(t, 7, fd)
		assert.True(t, ready.Has(InterestRead))
		close(done)
	}))

	go b.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestCrossPlatformBackend_StopIsIdempotent(t *testing.T) {
	b := NewCrossPlatformBackend(DefaultConfig(), fakeWaiter(time.Hour, InterestRead), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, b.Stop(100*time.Millisecond))
	require.NoError(t, b.Stop(100*time.Millisecond))
}
