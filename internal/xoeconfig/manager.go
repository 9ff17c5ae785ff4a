package xoeconfig

import "sync"

// Manager owns the active/pending Configuration pair the Management
// Interface and the Lifecycle FSM share. active is what role loops
// observe; pending accumulates management-session mutations until the
// FSM's ApplyConfig state validates and swaps it in.
type Manager struct {
	mu         sync.Mutex
	active     Configuration
	pending    Configuration
	hasPending bool
}

// NewManager seeds a Manager from the boot Configuration. active and
// pending start identical.
func NewManager(boot Configuration) *Manager {
	return &Manager{active: boot, pending: boot}
}

// Active returns a copy of the currently active Configuration.
func (m *Manager) Active() Configuration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Pending returns a copy of the pending Configuration and whether it
// differs from the last-applied active one.
func (m *Manager) Pending() (Configuration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.hasPending
}

// MutatePending applies fn to a copy of the pending Configuration and,
// if fn succeeds, stores the result and marks a pending change.
// Management-session "set" handlers use this so mutation and the
// has_pending flag update atomically together.
func (m *Manager) MutatePending(fn func(*Configuration) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.pending
	if err := fn(&next); err != nil {
		return err
	}
	m.pending = next
	m.hasPending = true
	return nil
}

// Apply re-validates the pending Configuration and, on success,
// atomically swaps it into active. It is the only place active ever
// changes after NewManager, matching the "validated atomic swap"
// invariant. Returns false (with no change made) when there is nothing
// pending.
func (m *Manager) Apply() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasPending {
		return false, nil
	}
	if err := m.pending.Validate(); err != nil {
		return false, err
	}
	m.active = m.pending
	m.hasPending = false
	return true, nil
}

// DiscardPending drops any accumulated pending mutation without
// touching active.
func (m *Manager) DiscardPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = m.active
	m.hasPending = false
}

// HasPending reports whether a mutation is waiting to be applied.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasPending
}
