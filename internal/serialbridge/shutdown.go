package serialbridge

import "sync"

// shutdownLatch is a mutex-protected boolean shared by both pipeline
// tasks and the role state that hosts them. It is deliberately not the
// sync/atomic-based restartsignal.Signal: the Restart Signal is a
// single process-wide flag, while each SerialClient owns its own
// latch, scoped to its own lifetime.
type shutdownLatch struct {
	mu sync.Mutex
	on bool
}

func (l *shutdownLatch) request() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
}

func (l *shutdownLatch) should() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
