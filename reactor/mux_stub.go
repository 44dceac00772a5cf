//go:build !linux

// File: reactor/mux_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub multiplexer factory for platforms without a native backend. The
// reactor itself still works against any api.Multiplexer supplied through
// WithMultiplexer.

package reactor

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-dispatch/api"
)

// NewMultiplexer returns an error on unsupported platforms.
func NewMultiplexer() (api.Multiplexer, error) {
	return nil, fmt.Errorf("%w: no native multiplexer on %s", api.ErrNotSupported, runtime.GOOS)
}
