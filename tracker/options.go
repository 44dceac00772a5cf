// File: tracker/options.go
// Package tracker defines functional options for TaskTracker construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tracker

import (
	"time"

	"go.uber.org/zap"
)

// Option customizes TaskTracker initialization.
type Option func(*TaskTracker)

// WithTimeout arms the escalation sequence: after d with tasks still
// outstanding, the escalation hook runs. Zero disables escalation.
func WithTimeout(d time.Duration) Option {
	return func(t *TaskTracker) {
		t.timeout = d
	}
}

// WithEscalation overrides the escalation hook. The default returns zero,
// meaning a single check and no further escalation.
func WithEscalation(hook Hook) Option {
	return func(t *TaskTracker) {
		t.hook = hook
	}
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *TaskTracker) {
		t.log = log
	}
}
