// Package restartsignal provides the single process-wide flag that
// couples the Management Interface to the Lifecycle FSM: a management
// session raises it after validating a pending configuration change, and
// the active role loop tears itself down the next time it notices.
package restartsignal

import "sync/atomic"

// Signal is a guarded boolean with test-and-clear semantics. The zero
// value is ready to use (not requested).
type Signal struct {
	flag atomic.Bool
}

// Request marks a restart as pending.
func (s *Signal) Request() {
	s.flag.Store(true)
}

// Clear cancels a pending restart without reporting whether one was set.
func (s *Signal) Clear() {
	s.flag.Store(false)
}

// IsRequested reports whether a restart is currently pending, without
// clearing it. Role loops poll this at natural quiescence points (between
// accept() calls, between serial read timeouts, at the 1 Hz supervisor
// tick) rather than blocking on it.
func (s *Signal) IsRequested() bool {
	return s.flag.Load()
}

// CheckAndClear atomically reports whether a restart was pending and, if
// so, clears it. Used by the FSM's ModeStop state, which must observe the
// signal exactly once per restart cycle.
func (s *Signal) CheckAndClear() bool {
	return s.flag.CompareAndSwap(true, false)
}
