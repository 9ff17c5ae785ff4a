package mgmt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hcobbs/xoe/internal/restartsignal"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// maxMgmtSessions bounds the number of concurrent management
// connections the same way tcpserver bounds data-plane clients: a
// fixed array, no dynamic pool.
const maxMgmtSessions = 8

// Server is the loopback-only management listener: password auth,
// rate limiting, and the xoe> command loop driving a shared
// xoeconfig.Manager and restartsignal.Signal.
type Server struct {
	cfg     *xoeconfig.Manager
	restart *restartsignal.Signal
	hasher  PasswordHasher
	limiter *RateLimiter

	// clientPeers, when set, lets "show clients" list the data-plane
	// peers of whatever role is currently active. Left nil outside a
	// role that exposes one.
	clientPeers func() []string

	startedAt time.Time

	mu              sync.Mutex
	listener        net.Listener
	sessions        [maxMgmtSessions]bool
	closed          bool
	hashedPlaintext string
	cachedHash      string
}

// NewServer builds a management Server bound to cfg and restart. The
// listener itself is not opened until Serve is called.
func NewServer(cfg *xoeconfig.Manager, restart *restartsignal.Signal) *Server {
	return &Server{
		cfg:     cfg,
		restart: restart,
		hasher:  NewBcryptHasher(),
		limiter: NewRateLimiter(),
	}
}

// SetClientPeers installs the callback "show clients" uses to list the
// active role's connected data-plane peers.
func (s *Server) SetClientPeers(fn func() []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientPeers = fn
}

// passwordHash returns a bcrypt hash of the currently configured
// management password, recomputing it only when the plaintext
// Configuration field has changed. The session's auth loop verifies
// against this hash, never the plaintext field directly.
func (s *Server) passwordHash() string {
	plaintext := s.cfg.Active().MgmtPassword

	s.mu.Lock()
	defer s.mu.Unlock()
	if plaintext == s.hashedPlaintext && s.cachedHash != "" {
		return s.cachedHash
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		xoelog.Error("failed to hash management password", "error", err)
		return ""
	}
	s.hashedPlaintext = plaintext
	s.cachedHash = hash
	return s.cachedHash
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return time.Since(started)
}

func (s *Server) activeSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inUse := range s.sessions {
		if inUse {
			n++
		}
	}
	return n
}

func (s *Server) acquireSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if !s.sessions[i] {
			s.sessions[i] = true
			return i
		}
	}
	return -1
}

func (s *Server) releaseSlot(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot >= 0 && slot < len(s.sessions) {
		s.sessions[slot] = false
	}
}

// Serve opens a loopback listener on port and accepts management
// connections until ctx is cancelled. The listener is always bound to
// 127.0.0.1; remote management access is an explicit non-goal.
func (s *Server) Serve(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xoerr.Wrap(xoerr.NetworkError, err, "opening management listener")
	}

	s.mu.Lock()
	s.listener = ln
	s.startedAt = time.Now()
	s.mu.Unlock()

	xoelog.Info("management interface listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return xoerr.Wrap(xoerr.NetworkError, err, "accepting management connection")
		}

		slot := s.acquireSlot()
		if slot < 0 {
			xoelog.Warn("management session table full, rejecting connection", "peer", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		sess := newSession(slot, conn, s)
		go func() {
			defer s.releaseSlot(slot)
			defer conn.Close()
			sess.serve()
		}()
	}
}

// Stop closes the management listener. In-flight sessions are left to
// finish their current command and notice the closed listener on their
// next read.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listener == nil {
		return
	}
	s.closed = true
	_ = s.listener.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
