// File: reactor/strategy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Select strategies. The default is a thin pass-through to the
// multiplexer. The alternative detects the platform defect where a
// blocking wait returns immediately with zero ready channels over and
// over, and repairs it by migrating every registration onto a freshly
// created multiplexer.

package reactor

import "time"

const (
	// defaultSpinThreshold is the wall time under which a zero-ready
	// return from a blocking wait counts as a spin.
	defaultSpinThreshold = 50 * time.Millisecond

	// defaultSpinLimit is how many consecutive sub-threshold zero
	// returns are tolerated before migration triggers.
	defaultSpinLimit = 10
)

// selectStrategy wraps exactly one blocking wait on the multiplexer.
type selectStrategy interface {
	Select(timeoutMillis int) (int, error)
}

// directSelect is the default pass-through strategy.
type directSelect struct {
	r *Reactor
}

func (s *directSelect) Select(timeoutMillis int) (int, error) {
	return s.r.wait(timeoutMillis)
}

// spinGuard times each blocking wait and counts consecutive immediate
// zero-ready returns with no wakeup pending. Past the limit it triggers
// migration and starts over.
type spinGuard struct {
	r     *Reactor
	spins int
}

func (s *spinGuard) Select(timeoutMillis int) (int, error) {
	// With no registrations, or without a real blocking window, a fast
	// zero return is legitimate and the spin is undetectable.
	if len(s.r.regs) == 0 || timeoutMillis <= 0 {
		return s.r.wait(timeoutMillis)
	}
	start := time.Now()
	n, err := s.r.wait(timeoutMillis)
	if err != nil {
		s.spins = 0
		return n, err
	}
	if n == 0 && !s.r.wakeupPending() && time.Since(start) < s.r.spinThreshold {
		s.spins++
		if s.spins > s.r.spinLimit {
			s.spins = 0
			if merr := s.r.migrate(); merr != nil {
				return 0, merr
			}
		}
	} else {
		s.spins = 0
	}
	return n, nil
}
