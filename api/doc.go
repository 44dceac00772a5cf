// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the shared contracts of the hioload-dispatch core:
// interest-set bitmasks, readiness events, the multiplexer abstraction over
// OS-level polling facilities, and the serial execution queue consumed by
// the completion tracker.
package api
