// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// tracker_test.go — TaskTracker contract: exactly-once completion,
// invariant faults, timeout escalation on a virtual clock.
package tracker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dispatch/fake"
	"github.com/momentics/hioload-dispatch/tracker"
)

func TestCallbackFiresOnceWhenSetDrains(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)

	t1 := tr.Task("t1")
	t2 := tr.Task("t2")
	t3 := tr.Task("t3")

	fired := 0
	tr.OnComplete(func() { fired++ })

	t1.Complete()
	t2.Complete()
	require.Equal(t, 0, fired, "callback fired with tasks outstanding")
	require.Equal(t, []string{"t3"}, tr.Outstanding())

	t3.Complete()
	require.Equal(t, 1, fired)
	require.True(t, tr.Done())

	// completing again is a no-op, the callback never re-fires
	t3.Complete()
	t1.Complete()
	require.Equal(t, 1, fired)
}

func TestCallbackFiresImmediatelyOnEmptySet(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)

	fired := 0
	tr.OnComplete(func() { fired++ })
	require.Equal(t, 1, fired)
	require.True(t, tr.Done())
}

func TestCreateTaskAfterDonePanics(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)
	tr.OnComplete(func() {})
	require.True(t, tr.Done())

	require.Panics(t, func() { tr.Task("late") })
}

func TestDoubleCallbackRegistrationPanics(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)
	tr.Task("t1")
	tr.OnComplete(func() {})

	require.Panics(t, func() { tr.OnComplete(func() {}) })
}

func TestDefaultEscalationChecksExactlyOnce(t *testing.T) {
	q := fake.NewSerialQueue()
	var calls [][]string
	tr := tracker.New(q,
		tracker.WithTimeout(50*time.Millisecond),
		tracker.WithEscalation(func(started time.Time, outstanding []string) time.Duration {
			calls = append(calls, outstanding)
			return 0 // default behavior: no further checks
		}),
	)

	tr.Task("stuck")
	tr.OnComplete(func() {})

	q.Advance(49 * time.Millisecond)
	require.Len(t, calls, 0, "hook ran before the timeout elapsed")

	q.Advance(2 * time.Millisecond)
	require.Len(t, calls, 1)
	require.Equal(t, []string{"stuck"}, calls[0])

	// a zero return disables the sequence for good
	q.Advance(time.Hour)
	require.Len(t, calls, 1)
	require.Zero(t, q.PendingDelayed())
}

func TestEscalationRepeatsUntilDone(t *testing.T) {
	q := fake.NewSerialQueue()
	var calls int
	tr := tracker.New(q,
		tracker.WithTimeout(10*time.Millisecond),
		tracker.WithEscalation(func(time.Time, []string) time.Duration {
			calls++
			return 10 * time.Millisecond
		}),
	)

	task := tr.Task("slow")
	tr.OnComplete(func() {})

	q.Advance(35 * time.Millisecond)
	require.Equal(t, 3, calls)

	task.Complete()
	require.True(t, tr.Done())

	// completion stops the re-submitted check at its next firing
	q.Advance(time.Hour)
	require.Equal(t, 3, calls)
}

func TestEscalationNotArmedWithoutTimeout(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)
	tr.Task("t1")
	tr.OnComplete(func() {})
	require.Zero(t, q.PendingDelayed())
}

func TestOutstandingSnapshotSorted(t *testing.T) {
	q := fake.NewSerialQueue()
	tr := tracker.New(q)
	tr.Task("zebra")
	tr.Task("alpha")
	tr.Task("mid")
	require.Equal(t, []string{"alpha", "mid", "zebra"}, tr.Outstanding())
}
