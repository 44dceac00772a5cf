//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based multiplexer with an eventfd wired into the watch
// set for cross-thread wakeups.

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

type epollMux struct {
	epfd   int
	wakefd int
	buf    []unix.EpollEvent
}

// NewMultiplexer opens an epoll instance for the current platform.
func NewMultiplexer() (api.Multiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewError(api.ErrCodeInternal, "epoll create").WithCause(err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, api.NewError(api.ErrCodeInternal, "eventfd").WithCause(err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, api.NewError(api.ErrCodeInternal, "epoll ctl add wakeup fd").WithCause(err).WithContext("fd", wakefd)
	}
	return &epollMux{epfd: epfd, wakefd: wakefd}, nil
}

func epollEvents(interest api.InterestSet) uint32 {
	var events uint32
	if interest&api.EventRead != 0 {
		events |= unix.EPOLLIN
	}
	if interest&api.EventWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// Arm adds fd to the epoll watch set.
func (m *epollMux) Arm(fd uintptr, interest api.InterestSet) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		code := api.ErrCodeRegistration
		if err == unix.EEXIST {
			code = api.ErrCodeAlreadyExists
		}
		return api.NewError(code, "epoll ctl add").WithCause(err).WithContext("fd", int(fd))
	}
	return nil
}

// Rearm replaces the interest set of a watched fd.
func (m *epollMux) Rearm(fd uintptr, interest api.InterestSet) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return api.NewError(api.ErrCodeRegistration, "epoll ctl mod").WithCause(err).WithContext("fd", int(fd))
	}
	return nil
}

// Disarm removes fd from the watch set.
func (m *epollMux) Disarm(fd uintptr) error {
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return api.NewError(api.ErrCodeRegistration, "epoll ctl del").WithCause(err).WithContext("fd", int(fd))
	}
	return nil
}

// Wait blocks for readiness, filtering the internal wakeup fd out of the
// results. EINTR is swallowed and reported as zero events.
func (m *epollMux) Wait(events []api.Event, timeoutMillis int) (int, error) {
	// one extra slot so a wakeup cannot crowd out real events
	if len(m.buf) < len(events)+1 {
		m.buf = make([]unix.EpollEvent, len(events)+1)
	}
	timeout := timeoutMillis
	if timeout < 0 {
		timeout = -1
	}
	n, err := unix.EpollWait(m.epfd, m.buf[:len(events)+1], timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		raw := m.buf[i]
		if int(raw.Fd) == m.wakefd {
			m.drainWakeup()
			continue
		}
		var ready api.InterestSet
		if raw.Events&unix.EPOLLIN != 0 {
			ready |= api.EventRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			ready |= api.EventWrite
		}
		if raw.Events&unix.EPOLLERR != 0 {
			ready |= api.EventError
		}
		if raw.Events&unix.EPOLLHUP != 0 {
			ready |= api.EventHangup
		}
		events[out] = api.Event{Fd: uintptr(raw.Fd), Ready: ready}
		out++
	}
	return out, nil
}

// Wakeup bumps the eventfd counter, making the wakeup fd readable.
func (m *epollMux) Wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(m.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (m *epollMux) drainWakeup() {
	var buf [8]byte
	// nonblocking read resets the eventfd counter to zero
	for {
		if _, err := unix.Read(m.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases both descriptors.
func (m *epollMux) Close() error {
	werr := unix.Close(m.wakefd)
	eerr := unix.Close(m.epfd)
	if eerr != nil {
		return fmt.Errorf("close epoll fd: %w", eerr)
	}
	if werr != nil {
		return fmt.Errorf("close wakeup fd: %w", werr)
	}
	return nil
}
