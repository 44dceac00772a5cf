// File: reactor/options.go
// Package reactor defines functional options for Reactor construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
)

// Option customizes Reactor initialization.
type Option func(*Reactor)

// WithSpinWorkaround selects the strategy that detects the busy-spin
// platform defect and repairs it by re-creating the multiplexer.
func WithSpinWorkaround() Option {
	return func(r *Reactor) {
		r.spinWorkaround = true
	}
}

// WithMultiplexer overrides the multiplexer factory. The factory is also
// used during migration to create replacement generations.
func WithMultiplexer(factory func() (api.Multiplexer, error)) Option {
	return func(r *Reactor) {
		r.newMux = factory
	}
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reactor) {
		r.log = log
	}
}

// WithSpinThreshold overrides the wall-time bound under which a zero-ready
// blocking wait counts as a spin.
func WithSpinThreshold(d time.Duration) Option {
	return func(r *Reactor) {
		r.spinThreshold = d
	}
}

// WithSpinLimit overrides how many consecutive spins are tolerated before
// migration triggers.
func WithSpinLimit(n int) Option {
	return func(r *Reactor) {
		r.spinLimit = n
	}
}
