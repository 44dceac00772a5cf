// File: api/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Abstract contract for one generation of an OS-level readiness facility
// (epoll, kqueue, a test double). The reactor owns exactly one live
// Multiplexer at a time and may replace it wholesale during migration.

package api

// Channel is any pollable I/O handle the reactor can register.
type Channel interface {
	// Fd returns the raw descriptor or system handle.
	Fd() uintptr
}

// Multiplexer watches a set of descriptors and reports readiness.
//
// Arm, Rearm, Disarm and Close must only be called from the reactor's
// owning thread. Wakeup is the single operation safe from any thread.
type Multiplexer interface {
	// Arm adds fd to the watch set with the given interest.
	// Fails if the descriptor is closed or already watched.
	Arm(fd uintptr, interest InterestSet) error

	// Rearm replaces the interest set of an already-watched fd.
	Rearm(fd uintptr, interest InterestSet) error

	// Disarm removes fd from the watch set.
	Disarm(fd uintptr) error

	// Wait fills events with ready descriptors and returns the count.
	// timeoutMillis < 0 blocks indefinitely, 0 polls without blocking,
	// > 0 blocks up to that many milliseconds. A pending Wakeup causes
	// an early return with whatever is ready (possibly zero events).
	Wait(events []Event, timeoutMillis int) (int, error)

	// Wakeup forces a concurrent Wait to return early. Sticky: a wakeup
	// issued while no Wait is in flight affects the next Wait.
	Wakeup() error

	// Close releases the underlying facility. Terminal.
	Close() error
}
