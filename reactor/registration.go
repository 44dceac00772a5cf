// File: reactor/registration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registration binds one channel, one interest set and one attachment
// within a single multiplexer generation. All methods are reactor-thread
// only; callers on other threads marshal through the owning loop.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-dispatch/api"
)

// Attachment is the polymorphic handler bound to a Registration. It is
// implemented by the dispatch-source layer. All callbacks run on the
// reactor's owning thread.
type Attachment interface {
	// OnReady is invoked when the registration's channel reports
	// readiness. The fired interest bits have already been disarmed;
	// the handler re-arms what it still wants via SetInterest.
	OnReady(reg *Registration)

	// OnCancel is invoked exactly once when the registration is
	// canceled, dropped during migration, or torn down at shutdown.
	OnCancel(reg *Registration)

	// OnMigrate is invoked when the registration has been re-created on
	// a new multiplexer generation. The attachment must update its
	// back-reference so future interest edits target next.
	OnMigrate(next *Registration)
}

// Registration is one live entry in the reactor's table.
type Registration struct {
	r          *Reactor
	ch         api.Channel
	att        Attachment
	interest   api.InterestSet
	generation uint64

	canceled   bool
	superseded bool
	cancelSent bool
}

// Channel returns the registered channel.
func (reg *Registration) Channel() api.Channel { return reg.ch }

// Attachment returns the bound handler.
func (reg *Registration) Attachment() Attachment { return reg.att }

// Interest returns the currently armed interest set.
func (reg *Registration) Interest() api.InterestSet { return reg.interest }

// Generation returns the multiplexer generation this registration belongs to.
func (reg *Registration) Generation() uint64 { return reg.generation }

// Valid reports whether the registration still participates in dispatch.
func (reg *Registration) Valid() bool { return !reg.canceled && !reg.superseded }

// SetInterest replaces the armed interest set on the live multiplexer.
func (reg *Registration) SetInterest(interest api.InterestSet) error {
	if !reg.Valid() {
		return fmt.Errorf("%w: registration no longer valid", api.ErrRegistrationFailed)
	}
	if err := reg.r.mux.Rearm(reg.ch.Fd(), interest); err != nil {
		return fmt.Errorf("%w: fd %d: %v", api.ErrRegistrationFailed, reg.ch.Fd(), err)
	}
	reg.interest = interest
	return nil
}

// Cancel removes the registration from the reactor and delivers OnCancel
// exactly once. Idempotent; a no-op on superseded registrations, whose
// successor carries the binding.
func (reg *Registration) Cancel() {
	if !reg.Valid() {
		return
	}
	reg.canceled = true
	delete(reg.r.regs, reg.ch.Fd())
	_ = reg.r.mux.Disarm(reg.ch.Fd())
	reg.r.deliverCancel(reg)
}
