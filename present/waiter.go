package present

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/drmplanes/mode"
)

// ErrInterrupted is returned by a waiter when the user asked to stop.
var ErrInterrupted = errors.New("interrupted by user")

// EventSource is a DRM device delivering events on its file descriptor.
type EventSource interface {
	Fd() uintptr
	ReadEvents() ([]mode.Event, error)
}

// Waiter blocks until the display completes a page flip.
type Waiter interface {
	WaitFlip(ctx context.Context) error
	Close() error
}

// flipLog logs the time between consecutive flips.
type flipLog struct {
	log  zerolog.Logger
	last time.Time
}

func (f *flipLog) handle(ev mode.Event) {
	t := ev.Time()
	if f.last.IsZero() {
		f.log.Debug().Uint32("sequence", ev.Sequence).Msg("first page flip")
	} else {
		f.log.Debug().
			Uint32("sequence", ev.Sequence).
			Int64("interval_ms", t.Sub(f.last).Milliseconds()).
			Msg("page flip")
	}
	f.last = t
}

// dispatch reads the pending events and reports whether one of them was
// a flip completion.
func (f *flipLog) dispatch(src EventSource) (bool, error) {
	events, err := src.ReadEvents()
	if err != nil {
		return false, fmt.Errorf("read drm events: %w", err)
	}
	flipped := false
	for _, ev := range events {
		if ev.Type == mode.EventFlipComplete {
			f.handle(ev)
			flipped = true
		}
	}
	return flipped, nil
}

// waker is an eventfd that becomes readable when a context ends, so a
// blocked select or epoll returns.
type waker struct {
	fd int
}

func newWaker() (*waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &waker{fd: fd}, nil
}

func (w *waker) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	unix.Write(w.fd, buf[:])
}

func (w *waker) watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, w.wake)
}

func (w *waker) close() error { return unix.Close(w.fd) }

// SelectWaiter waits with select(2) on the device and, optionally, on
// stdin: any input there stops the program.
type SelectWaiter struct {
	src   EventSource
	stdin int
	wake  *waker
	flips flipLog
}

// NewSelectWaiter watches src and the stdin descriptor. A negative stdin
// disables the user interrupt.
func NewSelectWaiter(src EventSource, stdin int, logger zerolog.Logger) (*SelectWaiter, error) {
	w, err := newWaker()
	if err != nil {
		return nil, err
	}
	return &SelectWaiter{src: src, stdin: stdin, wake: w, flips: flipLog{log: logger}}, nil
}

func (s *SelectWaiter) WaitFlip(ctx context.Context) error {
	stop := s.wake.watch(ctx)
	defer stop()

	drmFd := int(s.src.Fd())
	maxFd := max(drmFd, s.stdin, s.wake.fd)
	for {
		var fds unix.FdSet
		fds.Set(drmFd)
		fds.Set(s.wake.fd)
		if s.stdin >= 0 {
			fds.Set(s.stdin)
		}

		_, err := unix.Select(maxFd+1, &fds, nil, nil, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}

		if fds.IsSet(s.wake.fd) {
			return ctx.Err()
		}
		if s.stdin >= 0 && fds.IsSet(s.stdin) {
			return ErrInterrupted
		}
		if fds.IsSet(drmFd) {
			flipped, err := s.flips.dispatch(s.src)
			if err != nil {
				return err
			}
			if flipped {
				return nil
			}
		}
	}
}

func (s *SelectWaiter) Close() error { return s.wake.close() }

const maxEpollEvents = 16

// EpollWaiter waits for flips with epoll(7), without timeout.
type EpollWaiter struct {
	src   EventSource
	epfd  int
	wake  *waker
	flips flipLog
}

func NewEpollWaiter(src EventSource, logger zerolog.Logger) (*EpollWaiter, error) {
	w, err := newWaker()
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	for _, fd := range []int{int(src.Fd()), w.fd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(epfd)
			w.close()
			return nil, fmt.Errorf("epoll_ctl add %d: %w", fd, err)
		}
	}
	return &EpollWaiter{src: src, epfd: epfd, wake: w, flips: flipLog{log: logger}}, nil
}

func (e *EpollWaiter) WaitFlip(ctx context.Context) error {
	stop := e.wake.watch(ctx)
	defer stop()

	drmFd := int32(e.src.Fd())
	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		n, err := unix.EpollWait(e.epfd, events, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for _, ev := range events[:n] {
			switch ev.Fd {
			case int32(e.wake.fd):
				return ctx.Err()
			case drmFd:
				flipped, err := e.flips.dispatch(e.src)
				if err != nil {
					return err
				}
				if flipped {
					return nil
				}
			}
		}
	}
}

func (e *EpollWaiter) Close() error {
	return errors.Join(unix.Close(e.epfd), e.wake.close())
}
