// File: fake/queue.go
// Author: momentics <momentics@gmail.com>
//
// Manual-clock api.SerialQueue double. Submit runs inline on the caller;
// SubmitAfter parks work on a virtual timeline driven by Advance. Meant
// for single-goroutine deterministic tests.

package fake

import "time"

type timedWork struct {
	at   time.Duration
	seq  int
	work func()
}

// SerialQueue implements api.SerialQueue with a virtual clock.
type SerialQueue struct {
	now     time.Duration
	seq     int
	delayed []timedWork
}

// NewSerialQueue returns a queue at virtual time zero.
func NewSerialQueue() *SerialQueue {
	return &SerialQueue{}
}

// Submit executes work immediately on the calling goroutine.
func (q *SerialQueue) Submit(work func()) {
	work()
}

// SubmitAfter parks work until the virtual clock passes now+delay.
func (q *SerialQueue) SubmitAfter(delay time.Duration, work func()) {
	q.seq++
	q.delayed = append(q.delayed, timedWork{at: q.now + delay, seq: q.seq, work: work})
}

// Advance moves the virtual clock forward, running due work in deadline
// order. Work that schedules more delayed work is honored within the same
// advance when its deadline still falls inside the window.
func (q *SerialQueue) Advance(d time.Duration) {
	target := q.now + d
	for {
		idx := -1
		for i, tw := range q.delayed {
			if tw.at > target {
				continue
			}
			if idx == -1 || tw.at < q.delayed[idx].at ||
				(tw.at == q.delayed[idx].at && tw.seq < q.delayed[idx].seq) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		tw := q.delayed[idx]
		q.delayed = append(q.delayed[:idx], q.delayed[idx+1:]...)
		q.now = tw.at
		tw.work()
	}
	q.now = target
}

// PendingDelayed returns how many delayed items remain parked.
func (q *SerialQueue) PendingDelayed() int {
	return len(q.delayed)
}
