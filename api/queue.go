// File: api/queue.go
// Author: momentics <momentics@gmail.com>
//
// Serial execution queue contract consumed by the completion tracker.

package api

import "time"

// SerialQueue executes submitted work exactly once, on one logical worker,
// preserving per-queue submission order. Delayed work is ordered relative
// to plain submissions at the moment its delay elapses.
type SerialQueue interface {
	// Submit schedules work for eventual execution.
	Submit(work func())

	// SubmitAfter schedules work with a minimum delay.
	SubmitAfter(delay time.Duration, work func())
}
