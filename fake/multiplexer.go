// File: fake/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Scripted api.Multiplexer double. Records arm/rearm/disarm traffic,
// serves pushed readiness events, and can either block on an empty watch
// set (normal multiplexer behavior) or return immediately with zero
// events (the spin pathology).

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-dispatch/api"
)

// Multiplexer implements api.Multiplexer for testing.
type Multiplexer struct {
	mu      sync.Mutex
	pending []api.Event
	wake    chan struct{}

	// BlockOnEmpty makes Wait with a nonzero timeout actually wait for a
	// Push or Wakeup. When false, empty Waits return immediately with
	// zero events, simulating the spin defect.
	BlockOnEmpty bool

	Armed    map[uintptr]api.InterestSet
	ArmErrs  map[uintptr]error // injected per-fd Arm failures
	Rearmed  []api.Event       // Fd + interest pairs, in call order
	Disarmed []uintptr

	WaitCalls   int
	WakeupCalls int
	IsClosed    bool
}

// NewMultiplexer returns an empty fake with blocking behavior enabled.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		wake:         make(chan struct{}, 1),
		BlockOnEmpty: true,
		Armed:        make(map[uintptr]api.InterestSet),
		ArmErrs:      make(map[uintptr]error),
	}
}

// Push queues one readiness event and releases a blocked Wait.
func (m *Multiplexer) Push(ev api.Event) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Multiplexer) Arm(fd uintptr, interest api.InterestSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsClosed {
		return api.NewError(api.ErrCodeClosed, "multiplexer closed").WithContext("fd", fd)
	}
	if err := m.ArmErrs[fd]; err != nil {
		return err
	}
	if _, ok := m.Armed[fd]; ok {
		return api.ErrAlreadyRegistered
	}
	m.Armed[fd] = interest
	return nil
}

func (m *Multiplexer) Rearm(fd uintptr, interest api.InterestSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Armed[fd]; !ok {
		return api.ErrRegistrationFailed
	}
	m.Armed[fd] = interest
	m.Rearmed = append(m.Rearmed, api.Event{Fd: fd, Ready: interest})
	return nil
}

func (m *Multiplexer) Disarm(fd uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Armed[fd]; !ok {
		return api.ErrRegistrationFailed
	}
	delete(m.Armed, fd)
	m.Disarmed = append(m.Disarmed, fd)
	return nil
}

func (m *Multiplexer) Wait(events []api.Event, timeoutMillis int) (int, error) {
	m.mu.Lock()
	m.WaitCalls++
	m.mu.Unlock()

	var timer <-chan time.Time
	if timeoutMillis > 0 {
		tm := time.NewTimer(time.Duration(timeoutMillis) * time.Millisecond)
		defer tm.Stop()
		timer = tm.C
	}
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			n := copy(events, m.pending)
			m.pending = m.pending[n:]
			m.mu.Unlock()
			m.drainWake()
			return n, nil
		}
		block := m.BlockOnEmpty && timeoutMillis != 0
		m.mu.Unlock()
		if !block {
			// a non-blocking poll still observes and consumes a parked
			// wakeup token, matching eventfd semantics
			m.drainWake()
			return 0, nil
		}
		select {
		case <-m.wake:
			m.mu.Lock()
			empty := len(m.pending) == 0
			m.mu.Unlock()
			if empty {
				return 0, nil // pure wakeup
			}
		case <-timer:
			return 0, nil
		}
	}
}

func (m *Multiplexer) Wakeup() error {
	m.mu.Lock()
	m.WakeupCalls++
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsClosed = true
	return nil
}

func (m *Multiplexer) drainWake() {
	select {
	case <-m.wake:
	default:
	}
}

// WakePending reports whether a wakeup token is parked and undrained.
func (m *Multiplexer) WakePending() bool {
	return len(m.wake) > 0
}

// ArmedInterest returns the interest currently armed for fd.
func (m *Multiplexer) ArmedInterest(fd uintptr) (api.InterestSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interest, ok := m.Armed[fd]
	return interest, ok
}
