// File: tracker/tracker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskTracker aggregates an open set of in-flight asynchronous units of
// work and fires a completion callback exactly once when all of them have
// finished, with optional timeout-driven escalation.
//
// Threading model: every mutation of the task set, the callback slot and
// the done flag is serialized through one api.SerialQueue, so from the
// tracker's perspective no two mutations ever race. Callers on arbitrary
// threads go through the queue rather than mutating directly; the blocking
// Await variants are the one exception and straddle thread boundaries via
// an independent one-shot gate.

package tracker

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
)

// Hook is the overridable escalation callback invoked when the configured
// timeout elapses with tasks still outstanding. It returns the delay until
// the next check; zero disables further checks.
type Hook func(started time.Time, outstanding []string) time.Duration

// TaskTracker is a completion barrier over a set of tracked tasks.
type TaskTracker struct {
	queue   api.SerialQueue
	log     *zap.Logger
	timeout time.Duration
	hook    Hook

	// queue-confined state
	tasks    map[*TrackedTask]struct{}
	callback func()
	done     bool
	started  time.Time
	gates    []chan struct{}
}

// TrackedTask is an opaque handle for one outstanding unit of work.
type TrackedTask struct {
	t         *TaskTracker
	label     string
	completed bool // queue-confined
}

// Label returns the caller-supplied identifier of this task.
func (task *TrackedTask) Label() string { return task.label }

// Complete removes this task from the tracker exactly once; completing an
// already-completed task is a no-op. If the set drains as a result and a
// callback is registered, the tracker transitions to done and the callback
// fires exactly once.
func (task *TrackedTask) Complete() {
	t := task.t
	t.queue.Submit(func() {
		if task.completed {
			return
		}
		task.completed = true
		delete(t.tasks, task)
		if len(t.tasks) == 0 {
			t.finish()
		}
	})
}

// New constructs a tracker whose state lives on the given serial queue.
func New(queue api.SerialQueue, opts ...Option) *TaskTracker {
	t := &TaskTracker{
		queue: queue,
		log:   zap.NewNop(),
		hook:  func(time.Time, []string) time.Duration { return 0 },
		tasks: make(map[*TrackedTask]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Task adds a new tracked task. Creating a task on a tracker that has
// already finalized and emptied is a programming fault and panics on the
// tracker's queue.
func (t *TaskTracker) Task(label string) *TrackedTask {
	task := &TrackedTask{t: t, label: label}
	t.queue.Submit(func() {
		if t.done && len(t.tasks) == 0 {
			panic("tracker: task created after completion: " + label)
		}
		t.tasks[task] = struct{}{}
	})
	return task
}

// OnComplete registers the completion callback. If the task set is empty
// at registration time the callback fires immediately; otherwise it fires
// when the set drains. Registration also starts the escalation sequence
// when a nonzero timeout was configured, timed from this moment.
// Registering a second callback is a programming fault.
func (t *TaskTracker) OnComplete(fn func()) {
	if fn == nil {
		panic("tracker: nil completion callback")
	}
	t.queue.Submit(func() {
		if t.callback != nil {
			panic("tracker: completion callback already registered")
		}
		t.callback = fn
		t.started = time.Now()
		if t.timeout > 0 {
			t.scheduleCheck(t.timeout)
		}
		if len(t.tasks) == 0 {
			t.finish()
		}
	})
}

// Await blocks until every tracked task has completed.
func (t *TaskTracker) Await() {
	<-t.gate()
}

// AwaitTimeout blocks up to d and reports whether completion happened
// before the deadline. The tracker itself is unaffected by the timeout:
// outstanding tasks keep running.
func (t *TaskTracker) AwaitTimeout(d time.Duration) bool {
	gate := t.gate()
	select {
	case <-gate:
		return true
	case <-time.After(d):
		select {
		case <-gate:
			return true
		default:
			return false
		}
	}
}

// Outstanding returns a snapshot of the labels still in flight, taken on
// the tracker's queue.
func (t *TaskTracker) Outstanding() []string {
	ch := make(chan []string, 1)
	t.queue.Submit(func() { ch <- t.outstanding() })
	return <-ch
}

// Done reports whether the tracker has finalized and fired its callback.
func (t *TaskTracker) Done() bool {
	ch := make(chan bool, 1)
	t.queue.Submit(func() { ch <- t.done })
	return <-ch
}

// finish runs on the queue with an empty task set: if a callback is armed,
// transition to done and fire it once, then release awaiters. Awaiters are
// released after the callback so Await returning implies it ran.
func (t *TaskTracker) finish() {
	if t.callback != nil && !t.done {
		t.done = true
		t.log.Debug("tracker complete", zap.Duration("elapsed", time.Since(t.started)))
		t.callback()
	}
	for _, gate := range t.gates {
		close(gate)
	}
	t.gates = nil
}

// scheduleCheck re-submits itself through the delayed-execution queue
// rather than recursing, so long escalation sequences cost no stack.
func (t *TaskTracker) scheduleCheck(delay time.Duration) {
	t.queue.SubmitAfter(delay, func() {
		if t.done {
			return
		}
		labels := t.outstanding()
		t.log.Debug("tracker timeout check",
			zap.Time("started", t.started),
			zap.Strings("outstanding", labels))
		if next := t.hook(t.started, labels); next > 0 {
			t.scheduleCheck(next)
		}
	})
}

// gate registers a one-shot gate released when the task set drains.
func (t *TaskTracker) gate() chan struct{} {
	gate := make(chan struct{})
	t.queue.Submit(func() {
		if t.done || len(t.tasks) == 0 {
			close(gate)
			return
		}
		t.gates = append(t.gates, gate)
	})
	return gate
}

// outstanding runs on the queue.
func (t *TaskTracker) outstanding() []string {
	labels := make([]string, 0, len(t.tasks))
	for task := range t.tasks {
		labels = append(labels, task.label)
	}
	sort.Strings(labels)
	return labels
}
