// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the I/O readiness core of the dispatch
// framework: a single-owner-thread reactor over a replaceable multiplexer,
// per-channel registrations with polymorphic attachments, a lock-free
// wakeup/select handshake, and an optional workaround strategy for the
// platform defect that makes a blocking poll spin at 100% CPU.
package reactor
