// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// reactor_test.go — Reactor contract: registration, readiness dispatch,
// wakeup/select handshake, cancellation, shutdown.
package reactor_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/fake"
	"github.com/momentics/hioload-dispatch/reactor"
)

// seqFactory hands out the given multiplexers one per call, erroring when
// exhausted. Lets tests script what migration finds.
func seqFactory(muxes ...*fake.Multiplexer) func() (api.Multiplexer, error) {
	i := 0
	return func() (api.Multiplexer, error) {
		if i >= len(muxes) {
			return nil, fmt.Errorf("factory exhausted after %d multiplexers", len(muxes))
		}
		m := muxes[i]
		i++
		return m, nil
	}
}

func newReactor(t *testing.T, opts ...reactor.Option) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRegisterAndDispatch(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))
	att := &fake.Attachment{}

	reg, err := r.Register(&fake.Channel{FD: 5}, api.EventRead|api.EventWrite, att)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, _ := m.ArmedInterest(5); got != api.EventRead|api.EventWrite {
		t.Fatalf("armed interest = %v", got)
	}

	m.Push(api.Event{Fd: 5, Ready: api.EventRead})
	n, err := r.Select(0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if n != 1 {
		t.Fatalf("Select processed %d, want 1", n)
	}
	if att.ReadyCount() != 1 {
		t.Fatalf("OnReady calls = %d, want 1", att.ReadyCount())
	}
	// the fired bit is disarmed, the rest stays armed
	if reg.Interest() != api.EventWrite {
		t.Fatalf("interest after dispatch = %v, want write", reg.Interest())
	}
	if got, _ := m.ArmedInterest(5); got != api.EventWrite {
		t.Fatalf("multiplexer interest after dispatch = %v, want write", got)
	}

	// handler re-arms explicitly
	if err := reg.SetInterest(api.EventRead | api.EventWrite); err != nil {
		t.Fatalf("SetInterest: %v", err)
	}
	if got, _ := m.ArmedInterest(5); got != api.EventRead|api.EventWrite {
		t.Fatalf("interest after re-arm = %v", got)
	}
}

func TestRegisterDuplicateFd(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	if _, err := r.Register(&fake.Channel{FD: 7}, api.EventRead, &fake.Attachment{}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := r.Register(&fake.Channel{FD: 7}, api.EventRead, &fake.Attachment{})
	if !errors.Is(err, api.ErrAlreadyRegistered) {
		t.Fatalf("duplicate Register err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterClosedChannel(t *testing.T) {
	m := fake.NewMultiplexer()
	m.ArmErrs[9] = errors.New("bad file descriptor")
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	_, err := r.Register(&fake.Channel{FD: 9}, api.EventRead, &fake.Attachment{})
	if !errors.Is(err, api.ErrRegistrationFailed) {
		t.Fatalf("Register err = %v, want ErrRegistrationFailed", err)
	}
}

func TestSelectNoRegistrations(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	// stray event with nothing registered must not be dispatched
	m.Push(api.Event{Fd: 3, Ready: api.EventRead})
	n, err := r.Select(0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if n != 0 {
		t.Fatalf("Select processed %d, want 0", n)
	}
}

func TestCancelBeforeDispatch(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	attB := &fake.Attachment{}
	var regB *reactor.Registration

	// A's handler cancels B mid-batch; B's event must then route to
	// OnCancel (already delivered by Cancel) and never to OnReady.
	attA := &fake.Attachment{ReadyFunc: func(*reactor.Registration) {
		regB.Cancel()
	}}

	if _, err := r.Register(&fake.Channel{FD: 1}, api.EventRead, attA); err != nil {
		t.Fatalf("Register A: %v", err)
	}
	var err error
	regB, err = r.Register(&fake.Channel{FD: 2}, api.EventRead, attB)
	if err != nil {
		t.Fatalf("Register B: %v", err)
	}

	m.Push(api.Event{Fd: 1, Ready: api.EventRead})
	m.Push(api.Event{Fd: 2, Ready: api.EventRead})
	if _, err := r.Select(0); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if attB.ReadyCount() != 0 {
		t.Fatalf("canceled registration got OnReady %d times", attB.ReadyCount())
	}
	if attB.CancelCount() != 1 {
		t.Fatalf("OnCancel calls = %d, want exactly 1", attB.CancelCount())
	}
	if regB.Valid() {
		t.Fatal("canceled registration still valid")
	}
	// cancel is idempotent
	regB.Cancel()
	if attB.CancelCount() != 1 {
		t.Fatalf("OnCancel after second Cancel = %d, want 1", attB.CancelCount())
	}
}

func TestWakeupUnblocksSelect(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.Select(-1); err != nil {
			t.Errorf("Select: %v", err)
		}
	}()

	waitSelecting(t, r)
	r.Wakeup()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Select did not return after Wakeup")
	}
	if r.IsSelecting() {
		t.Fatal("selecting flag not reset after Select returned")
	}
}

func TestWakeupBeforeSelectDoesNotBlock(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	r.Wakeup()

	start := time.Now()
	if _, err := r.Select(-1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Select blocked %v despite pending wakeup", elapsed)
	}

	// the pending wakeup is consumed; repeated wakeups coalesce into one skip
	r.Wakeup()
	r.Wakeup()
	r.Wakeup()
	start = time.Now()
	if _, err := r.Select(-1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Select blocked %v despite pending wakeups", elapsed)
	}
	if m.WakePending() {
		t.Fatal("wakeup token left parked after the skip poll")
	}
}

func TestWakeupSignalsNativelyWhileIdle(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	// A wakeup that only bumps the counter can be absorbed by the select
	// teardown reconciliation, leaving the next blocking select with
	// nothing to return for. The native signal must fire even with no
	// select in flight: the token is sticky and survives that window.
	r.Wakeup()
	if m.WakeupCalls != 1 {
		t.Fatalf("native wakeup signaled %d times, want 1", m.WakeupCalls)
	}
	if !m.WakePending() {
		t.Fatal("no wakeup token parked on the multiplexer")
	}

	// the skip-path poll drains the token so it cannot trip a later wait
	start := time.Now()
	if _, err := r.Select(-1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Select blocked %v despite pending wakeup", elapsed)
	}
	if m.WakePending() {
		t.Fatal("wakeup token not drained by the skip poll")
	}
}

func TestFdReuseWithinBatchNotMisdelivered(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	oldAtt := &fake.Attachment{}
	newAtt := &fake.Attachment{}
	var oldReg *reactor.Registration

	// A's handler cancels B and immediately registers a fresh channel on
	// the same fd. B's event from the current batch belongs to the old
	// registration and must not reach the new attachment.
	attA := &fake.Attachment{ReadyFunc: func(*reactor.Registration) {
		oldReg.Cancel()
		if _, err := r.Register(&fake.Channel{FD: 2}, api.EventWrite, newAtt); err != nil {
			t.Errorf("re-Register fd 2: %v", err)
		}
	}}

	if _, err := r.Register(&fake.Channel{FD: 1}, api.EventRead, attA); err != nil {
		t.Fatalf("Register A: %v", err)
	}
	var err error
	oldReg, err = r.Register(&fake.Channel{FD: 2}, api.EventRead, oldAtt)
	if err != nil {
		t.Fatalf("Register B: %v", err)
	}

	m.Push(api.Event{Fd: 1, Ready: api.EventRead})
	m.Push(api.Event{Fd: 2, Ready: api.EventRead})
	n, err := r.Select(0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if n != 1 {
		t.Fatalf("Select processed %d, want 1", n)
	}

	if newAtt.ReadyCount() != 0 {
		t.Fatalf("stale event delivered to the reused fd's new registration %d times", newAtt.ReadyCount())
	}
	if oldAtt.CancelCount() != 1 {
		t.Fatalf("old registration OnCancel = %d, want 1", oldAtt.CancelCount())
	}
	// the new registration is intact and serviced on the next batch
	m.Push(api.Event{Fd: 2, Ready: api.EventWrite})
	if n, err := r.Select(0); err != nil || n != 1 {
		t.Fatalf("follow-up Select = (%d, %v), want (1, nil)", n, err)
	}
	if newAtt.ReadyCount() != 1 {
		t.Fatalf("new registration OnReady = %d, want 1", newAtt.ReadyCount())
	}
}

func TestShutdown(t *testing.T) {
	m := fake.NewMultiplexer()
	r := newReactor(t, reactor.WithMultiplexer(seqFactory(m)))

	attA := &fake.Attachment{}
	attB := &fake.Attachment{}
	if _, err := r.Register(&fake.Channel{FD: 1}, api.EventRead, attA); err != nil {
		t.Fatalf("Register A: %v", err)
	}
	if _, err := r.Register(&fake.Channel{FD: 2}, api.EventWrite, attB); err != nil {
		t.Fatalf("Register B: %v", err)
	}

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if attA.CancelCount() != 1 || attB.CancelCount() != 1 {
		t.Fatalf("OnCancel counts = %d/%d, want 1/1", attA.CancelCount(), attB.CancelCount())
	}
	if !m.IsClosed {
		t.Fatal("multiplexer not closed on shutdown")
	}

	if _, err := r.Register(&fake.Channel{FD: 3}, api.EventRead, attA); !errors.Is(err, api.ErrReactorClosed) {
		t.Fatalf("Register after shutdown err = %v, want ErrReactorClosed", err)
	}
	if _, err := r.Select(0); !errors.Is(err, api.ErrReactorClosed) {
		t.Fatalf("Select after shutdown err = %v, want ErrReactorClosed", err)
	}
	// idempotent
	if err := r.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func waitSelecting(t *testing.T, r *reactor.Reactor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.IsSelecting() {
		if time.Now().After(deadline) {
			t.Fatal("reactor never entered blocking select")
		}
		time.Sleep(time.Millisecond)
	}
}
