// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor owns the native multiplexer handle, the registration table and
// the wakeup/select coordination counters, and runs readiness dispatch.
//
// Threading model: Register, Select, SetInterest, Cancel and Shutdown must
// all originate from (or be marshaled onto) one owning thread per Reactor,
// which removes any locking around the registration table and the
// multiplexer handle. Wakeup is the sole cross-thread entry point; its
// correctness rests on the counter handshake documented on Select.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
)

const maxEvents = 128

// muxBox wraps the live multiplexer for atomic publication to Wakeup,
// which runs on arbitrary threads while migration swaps the handle.
type muxBox struct {
	mux api.Multiplexer
}

// Reactor multiplexes readiness events across registered channels and
// dispatches them to their attachments.
type Reactor struct {
	mux      api.Multiplexer
	wakeMux  atomic.Pointer[muxBox]
	newMux   func() (api.Multiplexer, error)
	regs     map[uintptr]*Registration
	events   []api.Event
	staged   []*Registration
	retired  api.Multiplexer
	strategy selectStrategy
	log      *zap.Logger

	// wakeupCounter and selectCounter coordinate the handoff between a
	// thread calling Wakeup and the owning thread blocked in Select.
	// selecting is true only while the owning thread is inside the
	// blocking primitive.
	wakeupCounter atomic.Uint64
	selectCounter atomic.Uint64
	selecting     atomic.Bool

	generation uint64
	closed     bool

	spinWorkaround bool
	spinThreshold  time.Duration
	spinLimit      int
}

// New constructs a Reactor over a freshly created multiplexer.
func New(opts ...Option) (*Reactor, error) {
	r := &Reactor{
		newMux:        NewMultiplexer,
		regs:          make(map[uintptr]*Registration),
		events:        make([]api.Event, maxEvents),
		staged:        make([]*Registration, maxEvents),
		log:           zap.NewNop(),
		spinThreshold: defaultSpinThreshold,
		spinLimit:     defaultSpinLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	mux, err := r.newMux()
	if err != nil {
		return nil, fmt.Errorf("reactor: create multiplexer: %w", err)
	}
	r.mux = mux
	r.wakeMux.Store(&muxBox{mux: mux})
	if r.spinWorkaround {
		r.strategy = &spinGuard{r: r}
	} else {
		r.strategy = &directSelect{r: r}
	}
	return r, nil
}

// Register arms ch on the live multiplexer and binds att to the resulting
// registration. Owning thread only.
func (r *Reactor) Register(ch api.Channel, interest api.InterestSet, att Attachment) (*Registration, error) {
	if r.closed {
		return nil, api.ErrReactorClosed
	}
	fd := ch.Fd()
	if _, dup := r.regs[fd]; dup {
		return nil, fmt.Errorf("%w: fd %d", api.ErrAlreadyRegistered, fd)
	}
	if err := r.mux.Arm(fd, interest); err != nil {
		return nil, fmt.Errorf("%w: fd %d: %w", api.ErrRegistrationFailed, fd, err)
	}
	reg := &Registration{r: r, ch: ch, att: att, interest: interest, generation: r.generation}
	r.regs[fd] = reg
	return reg, nil
}

// Wakeup forces a concurrent or future blocking Select to return early.
// Callable from any thread, any number of times; wakeups coalesce.
func (r *Reactor) Wakeup() {
	r.wakeupCounter.Add(1)
	// The counter increment alone is not enough: racing block's teardown,
	// it can be absorbed into selectCounter after the wait already
	// returned, with the selecting flag still observed true or false on
	// either side. The native signal is therefore sent unconditionally.
	// It is sticky, so whichever wait runs next drains it; the skip-path
	// poll in block consumes a token that the counter compare already
	// accounted for.
	if box := r.wakeMux.Load(); box.mux != nil {
		_ = box.mux.Wakeup()
	}
}

// IsSelecting reports whether the owning thread is currently inside the
// blocking primitive.
func (r *Reactor) IsSelecting() bool {
	return r.selecting.Load()
}

// Select waits for readiness and dispatches it. timeoutMillis < 0 blocks
// until a channel is ready or a wakeup resolves the pending counter
// mismatch; 0 polls without blocking; > 0 bounds the wait in milliseconds.
// Returns the number of ready registrations processed. Only one Select may
// be in flight per Reactor.
func (r *Reactor) Select(timeoutMillis int) (int, error) {
	if r.closed {
		return 0, api.ErrReactorClosed
	}
	r.closeRetired()
	var n int
	var err error
	if timeoutMillis == 0 {
		n, err = r.wait(0)
	} else {
		n, err = r.block(timeoutMillis)
	}
	if err != nil {
		return 0, err
	}
	return r.dispatch(n), nil
}

// block performs the counter handshake around the blocking wait. The
// deferred reconciliation runs on every exit path, including failure.
func (r *Reactor) block(timeoutMillis int) (n int, err error) {
	r.selecting.Store(true)
	defer func() {
		r.selectCounter.Store(r.wakeupCounter.Load())
		r.selecting.Store(false)
	}()
	if r.wakeupPending() {
		// A wakeup arrived since the previous cycle; skip the blocking
		// wait and collect whatever is ready right now.
		return r.wait(0)
	}
	return r.strategy.Select(timeoutMillis)
}

func (r *Reactor) wait(timeoutMillis int) (int, error) {
	return r.mux.Wait(r.events, timeoutMillis)
}

func (r *Reactor) wakeupPending() bool {
	return r.selectCounter.Load() != r.wakeupCounter.Load()
}

// dispatch walks the ready events, disarms the fired interest bits and
// invokes each attachment. Registrations invalidated underneath the batch
// are routed to OnCancel; the staleness is not an error. Each event is
// resolved to the registration armed when the batch arrived, so a handler
// that cancels a peer and re-registers its fd mid-batch cannot receive the
// stale event on the new registration.
func (r *Reactor) dispatch(n int) int {
	if len(r.regs) == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		r.staged[i] = r.regs[r.events[i].Fd]
	}
	processed := 0
	for i := 0; i < n; i++ {
		ev := r.events[i]
		reg := r.staged[i]
		r.staged[i] = nil
		if reg == nil || r.regs[ev.Fd] != reg {
			// canceled while the batch was in flight, or the fd was reused
			// by a fresh registration
			continue
		}
		processed++
		if !reg.Valid() {
			delete(r.regs, ev.Fd)
			r.deliverCancel(reg)
			continue
		}
		reg.interest &^= ev.Ready
		if err := r.mux.Rearm(ev.Fd, reg.interest); err != nil {
			// channel closed underneath us
			reg.canceled = true
			delete(r.regs, ev.Fd)
			r.deliverCancel(reg)
			continue
		}
		reg.att.OnReady(reg)
	}
	return processed
}

// migrate re-creates the multiplexer and moves every still-valid
// registration onto it, generation bumped. Per-registration failures are
// isolated: the affected attachment gets OnCancel and migration continues.
// Runs only on the owning thread, never concurrently with dispatch.
func (r *Reactor) migrate() error {
	next, err := r.newMux()
	if err != nil {
		return fmt.Errorf("reactor: migrate: create multiplexer: %w", err)
	}
	r.generation++
	migrated, dropped := 0, 0
	for fd, reg := range r.regs {
		if !reg.Valid() {
			delete(r.regs, fd)
			r.deliverCancel(reg)
			dropped++
			continue
		}
		if err := next.Arm(fd, reg.interest); err != nil {
			// channel closed out underneath; drop just this one
			reg.canceled = true
			delete(r.regs, fd)
			r.deliverCancel(reg)
			dropped++
			continue
		}
		succ := &Registration{
			r:          r,
			ch:         reg.ch,
			att:        reg.att,
			interest:   reg.interest,
			generation: r.generation,
		}
		reg.superseded = true
		r.regs[fd] = succ
		reg.att.OnMigrate(succ)
		migrated++
	}
	// publish the new handle to Wakeup before retiring the old one. The
	// old descriptors stay open until the next Select cycle so a racing
	// Wakeup that already loaded the old handle cannot write into a
	// descriptor number the kernel has reassigned.
	r.wakeMux.Store(&muxBox{mux: next})
	r.closeRetired()
	r.retired = r.mux
	r.mux = next
	r.log.Warn("multiplexer spin detected, registrations migrated",
		zap.Uint64("generation", r.generation),
		zap.Int("migrated", migrated),
		zap.Int("dropped", dropped))
	return nil
}

// Shutdown cancels every live registration and releases the multiplexer.
// Terminal: the Reactor must not be used afterward.
func (r *Reactor) Shutdown() error {
	if r.closed {
		return nil
	}
	r.closed = true
	for fd, reg := range r.regs {
		delete(r.regs, fd)
		if !reg.Valid() {
			continue
		}
		reg.canceled = true
		r.deliverCancel(reg)
	}
	r.log.Debug("reactor shut down", zap.Uint64("generation", r.generation))
	// unpublish the handle so late Wakeup calls become no-ops before the
	// descriptors go away
	r.wakeMux.Store(&muxBox{})
	r.closeRetired()
	if err := r.mux.Close(); err != nil {
		return fmt.Errorf("reactor: close multiplexer: %w", err)
	}
	return nil
}

// closeRetired releases the multiplexer generation parked by the previous
// migration. Runs on the owning thread once a full cycle has passed, after
// which no stale Wakeup load of the old handle can remain in flight.
func (r *Reactor) closeRetired() {
	if r.retired == nil {
		return
	}
	_ = r.retired.Close()
	r.retired = nil
}

// deliverCancel routes exactly one OnCancel to the attachment, however
// many paths observe the dead registration.
func (r *Reactor) deliverCancel(reg *Registration) {
	if reg.cancelSent {
		return
	}
	reg.cancelSent = true
	reg.att.OnCancel(reg)
}
