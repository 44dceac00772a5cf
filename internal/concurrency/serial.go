// File: internal/concurrency/serial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SerialExecutor is a single-worker FIFO execution queue. It is the
// in-process stand-in for a dispatch framework's serial queue: work runs
// exactly once, in submission order, on one goroutine.

package concurrency

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// SerialExecutor drains a FIFO of work functions on a dedicated goroutine.
type SerialExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue // of func()
	closed  bool
	drained chan struct{}
}

// NewSerialExecutor starts the worker goroutine and returns the executor.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		pending: queue.New(),
		drained: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Submit enqueues work for execution. Work submitted after Close is dropped.
func (e *SerialExecutor) Submit(work func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending.Add(work)
	e.mu.Unlock()
	e.cond.Signal()
}

// SubmitAfter enqueues work once the minimum delay has elapsed. Ordering
// relative to plain submissions is decided when the timer fires and the
// work re-enters the FIFO.
func (e *SerialExecutor) SubmitAfter(delay time.Duration, work func()) {
	if delay <= 0 {
		e.Submit(work)
		return
	}
	time.AfterFunc(delay, func() { e.Submit(work) })
}

// Close stops the worker after already-queued work has drained and waits
// for it to exit. Idempotent.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.drained
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	<-e.drained
}

func (e *SerialExecutor) run() {
	for {
		e.mu.Lock()
		for e.pending.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.pending.Length() == 0 {
			e.mu.Unlock()
			close(e.drained)
			return
		}
		work := e.pending.Remove().(func())
		e.mu.Unlock()
		work()
	}
}
