// Package tcpserver implements the fixed-slot TCP accept server: a
// listener accepting connections into a compile-time-bounded pool of
// client slots, each served by a detached per-client worker, with a
// 1-second shutdown-signal poll and a graceful drain window on stop.
package tcpserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// MaxClients bounds the fixed client-slot pool.
const MaxClients = 64

// drainTimeout is how long Stop waits for in-use slots to clear before
// giving up and reporting the remainder as force-abandoned.
const drainTimeout = 5 * time.Second

// shutdownPollInterval is how often the accept loop checks for a
// requested shutdown between blocking Accept calls.
const shutdownPollInterval = 1 * time.Second

// TLSWrapper upgrades a plain connection to an encrypted one. The
// concrete adapter over crypto/tls lives outside this package; TLS
// context construction is an external collaborator, but the call site
// and its failure handling belong here.
type TLSWrapper interface {
	Wrap(net.Conn) (net.Conn, error)
}

// Handler serves one accepted, possibly-TLS-wrapped connection until it
// closes or ctx is cancelled.
type Handler func(ctx context.Context, conn net.Conn)

// clientSlot is one entry in the fixed pool.
type clientSlot struct {
	mu    sync.Mutex
	inUse bool
	conn  net.Conn
	peer  string
}

// Server is the fixed-slot TCP accept server.
type Server struct {
	listener net.Listener
	tls      TLSWrapper
	handler  Handler

	slots [MaxClients]clientSlot

	listenerMu sync.Mutex
	closed     bool
}

// New binds listenAddr and returns a Server ready to Serve. tls may be
// nil, meaning connections are served in plain text.
func New(listenAddr string, tls TLSWrapper, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, xoerr.Wrap(xoerr.NetworkError, err, "binding tcp listener")
	}
	return &Server{listener: ln, tls: tls, handler: handler}, nil
}

// Addr returns the bound listener address, useful for ephemeral-port tests.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
// It polls for cancellation every shutdownPollInterval rather than
// blocking forever inside Accept, so shutdown is bounded even on
// platforms where Accept does not wake on listener Close promptly.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.closeListener()
	}()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	// Buffered by one: once the listener is closed, the accept
	// goroutine's final (error) result must be able to land even if
	// this loop has already returned on ctx.Done, or it would leak
	// blocked on the send forever.
	accepted := make(chan acceptResult, 1)

	go func() {
		for {
			conn, err := s.listener.Accept()
			accepted <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-accepted:
			if res.err != nil {
				if s.isClosed() {
					return
				}
				xoelog.Warn("accept failed", "error", res.err)
				continue
			}
			s.admit(ctx, res.conn)
		case <-time.After(shutdownPollInterval):
		}
	}
}

func (s *Server) admit(ctx context.Context, conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	slot := s.acquireSlot()
	if slot == nil {
		xoelog.Warn("rejecting connection, client pool full", "peer", conn.RemoteAddr())
		_ = conn.Close()
		return
	}

	if s.tls != nil {
		wrapped, err := s.tls.Wrap(conn)
		if err != nil {
			xoelog.Error("tls handshake failed", "peer", conn.RemoteAddr(), "error", err)
			_ = conn.Close()
			s.releaseSlot(slot)
			return
		}
		conn = wrapped
	}

	slot.mu.Lock()
	slot.conn = conn
	slot.peer = conn.RemoteAddr().String()
	slot.mu.Unlock()

	go func() {
		defer func() {
			_ = conn.Close()
			s.releaseSlot(slot)
		}()
		s.handler(ctx, conn)
	}()
}

func (s *Server) acquireSlot() *clientSlot {
	for i := range s.slots {
		slot := &s.slots[i]
		slot.mu.Lock()
		if !slot.inUse {
			slot.inUse = true
			slot.mu.Unlock()
			return slot
		}
		slot.mu.Unlock()
	}
	return nil
}

func (s *Server) releaseSlot(slot *clientSlot) {
	slot.mu.Lock()
	slot.inUse = false
	slot.conn = nil
	slot.peer = ""
	slot.mu.Unlock()
}

// Peers returns the remote addresses of all currently connected
// clients, for the management interface's "show clients" command.
func (s *Server) Peers() []string {
	peers := make([]string, 0, MaxClients)
	for i := range s.slots {
		s.slots[i].mu.Lock()
		if s.slots[i].inUse && s.slots[i].peer != "" {
			peers = append(peers, s.slots[i].peer)
		}
		s.slots[i].mu.Unlock()
	}
	return peers
}

func (s *Server) activeCount() int {
	n := 0
	for i := range s.slots {
		s.slots[i].mu.Lock()
		if s.slots[i].inUse {
			n++
		}
		s.slots[i].mu.Unlock()
	}
	return n
}

func (s *Server) closeListener() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

func (s *Server) isClosed() bool {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.closed
}

// Stop closes the listener, disconnects every in-use client, and waits
// up to drainTimeout for their slots to clear.
func (s *Server) Stop() {
	_ = s.closeListener()

	for i := range s.slots {
		slot := &s.slots[i]
		slot.mu.Lock()
		if slot.inUse && slot.conn != nil {
			_ = slot.conn.SetDeadline(time.Now())
		}
		slot.mu.Unlock()
	}

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		if s.activeCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.activeCount(); n > 0 {
		xoelog.Warn("shutdown drain window expired with clients still active", "count", n)
	}
}
