//go:build linux

package loop

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/task"
)

// ReadinessBackend is the Linux readiness-only backend: edge-triggered
// epoll with optional oneshot rearm, per the "readiness-linux" backend
// variant.
type ReadinessBackend struct {
	core   *Core
	epfd   int
	oneoff bool
}

// NewReadinessBackend opens an epoll instance. oneshot enables EPOLLONESHOT
// rearm semantics on every registration.
func NewReadinessBackend(cfg Config, oneshot bool) (*ReadinessBackend, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &ReadinessBackend{core: NewCore(cfg), epfd: epfd, oneoff: oneshot}, nil
}

func (b *ReadinessBackend) Run(ctx context.Context) error {
	logger.WithLoop("readiness-linux").Info().Msg("event loop starting")
	defer logger.WithLoop("readiness-linux").Info().Msg("event loop stopped")
	defer unix.Close(b.epfd)
	return b.core.Run(ctx, b.poll)
}

func (b *ReadinessBackend) Stop(timeout time.Duration) error { return b.core.Stop(timeout) }

func (b *ReadinessBackend) Schedule(t *task.Task) error { return b.core.Schedule(t) }
func (b *ReadinessBackend) ScheduleWithPriority(t *task.Task, p int) error {
	return b.core.ScheduleWithPriority(t, p)
}
func (b *ReadinessBackend) Post(fn func()) error { return b.core.Post(fn) }

func (b *ReadinessBackend) CreateTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateTimer(d, cb)
}
func (b *ReadinessBackend) CreateRepeatingTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateRepeatingTimer(d, cb)
}
func (b *ReadinessBackend) CancelTimer(h TimerHandle) { b.core.CancelTimer(h) }

func toEpollEvents(m InterestMask) uint32 {
	var ev uint32
	if m.Has(InterestRead) || m.Has(InterestAccept) {
		ev |= unix.EPOLLIN
	}
	if m.Has(InterestWrite) || m.Has(InterestConnect) {
		ev |= unix.EPOLLOUT
	}
	ev |= unix.EPOLLET
	return ev
}

func fromEpollEvents(ev uint32) InterestMask {
	var m InterestMask
	if ev&unix.EPOLLIN != 0 {
		m |= InterestRead | InterestAccept
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= InterestWrite | InterestConnect
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		m |= InterestClose
	}
	return m
}

func (b *ReadinessBackend) RegisterIO(fd int, interest InterestMask, handler IOHandler) error {
	if err := b.core.RegisterIO(fd, interest, handler); err != nil {
		return err
	}
	events := toEpollEvents(interest)
	if b.oneoff {
		events |= unix.EPOLLONESHOT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_ = b.core.UnregisterIO(fd)
		return err
	}
	return nil
}

func (b *ReadinessBackend) ModifyIO(fd int, interest InterestMask) error {
	if err := b.core.ModifyIO(fd, interest); err != nil {
		return err
	}
	events := toEpollEvents(interest)
	if b.oneoff {
		events |= unix.EPOLLONESHOT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *ReadinessBackend) UnregisterIO(fd int) error {
	if err := b.core.UnregisterIO(fd); err != nil {
		return err
	}
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (b *ReadinessBackend) poll(budget time.Duration) bool {
	msTimeout := int(budget / time.Millisecond)
	if budget > 0 && msTimeout == 0 {
		msTimeout = 1
	}
	events := make([]unix.EpollEvent, 64)

	n, err := unix.EpollWait(b.epfd, events, msTimeout)
	if err != nil || n <= 0 {
		return false
	}

	dispatched := false
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		b.core.ioMu.Lock()
		reg, ok := b.core.io[fd]
		b.core.ioMu.Unlock()
		if !ok {
			continue
		}
		reg.handler(fd, fromEpollEvents(events[i].Events))
		dispatched = true
		if b.oneoff {
			ev := unix.EpollEvent{Events: toEpollEvents(reg.interest) | unix.EPOLLONESHOT, Fd: int32(fd)}
			_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		}
	}
	return dispatched
}
