// File: fake/attachment.go
// Author: momentics <momentics@gmail.com>
//
// Recording reactor.Attachment double plus a trivial channel handle.

package fake

import (
	"sync"

	"github.com/momentics/hioload-dispatch/reactor"
)

// Channel is a bare pollable handle for tests.
type Channel struct {
	FD uintptr
}

// Fd returns the configured descriptor.
func (c *Channel) Fd() uintptr { return c.FD }

// Attachment records every callback and tracks its current registration
// the way a real dispatch source would.
type Attachment struct {
	mu       sync.Mutex
	Current  *reactor.Registration
	Ready    []*reactor.Registration
	Canceled []*reactor.Registration
	Migrated []*reactor.Registration

	// ReadyFunc, when set, runs after recording each OnReady. Lets tests
	// re-arm interest or cancel from inside dispatch.
	ReadyFunc func(reg *reactor.Registration)
}

func (a *Attachment) OnReady(reg *reactor.Registration) {
	a.mu.Lock()
	a.Ready = append(a.Ready, reg)
	a.Current = reg
	fn := a.ReadyFunc
	a.mu.Unlock()
	if fn != nil {
		fn(reg)
	}
}

func (a *Attachment) OnCancel(reg *reactor.Registration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Canceled = append(a.Canceled, reg)
}

func (a *Attachment) OnMigrate(next *reactor.Registration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Migrated = append(a.Migrated, next)
	a.Current = next
}

// ReadyCount returns how many OnReady callbacks were recorded.
func (a *Attachment) ReadyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Ready)
}

// CancelCount returns how many OnCancel callbacks were recorded.
func (a *Attachment) CancelCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Canceled)
}

// MigrateCount returns how many OnMigrate callbacks were recorded.
func (a *Attachment) MigrateCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Migrated)
}
