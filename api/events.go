// File: api/events.go
// Author: momentics <momentics@gmail.com>
//
// Interest-set bitmask and readiness event types shared by multiplexer
// backends and the reactor dispatch loop.

package api

import "strings"

// InterestSet is a bitmask of event kinds a registration is armed to report.
type InterestSet uint32

const (
	// EventRead indicates the channel is ready for reading.
	EventRead InterestSet = 1 << iota
	// EventWrite indicates the channel is ready for writing.
	EventWrite
	// EventError indicates an error condition on the channel.
	EventError
	// EventHangup indicates the peer closed its end of the channel.
	EventHangup
)

// String renders the set for diagnostics, e.g. "read|write".
func (s InterestSet) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s&EventRead != 0 {
		parts = append(parts, "read")
	}
	if s&EventWrite != 0 {
		parts = append(parts, "write")
	}
	if s&EventError != 0 {
		parts = append(parts, "error")
	}
	if s&EventHangup != 0 {
		parts = append(parts, "hangup")
	}
	return strings.Join(parts, "|")
}

// Event is one readiness notification reported by a Multiplexer.
type Event struct {
	Fd    uintptr     // file descriptor or system handle
	Ready InterestSet // event kinds that fired
}
