package fsm

import (
	"context"
	"net"
	"strconv"

	"github.com/hcobbs/xoe/internal/nbd"
	"github.com/hcobbs/xoe/internal/xoelog"
)

// nbdServerState runs the Network Block Device server role: a single
// export served to up to NBD.MaxConnections concurrent sessions. Unlike
// serverModeState this does not reuse tcpserver.Server, since NBD
// sessions own the whole connection lifecycle themselves (handshake,
// option negotiation, request/reply loop) and have no framed
// UART-shaped pipeline to bridge.
type nbdServerState struct{}

func (*nbdServerState) run(ctx context.Context, m *Machine) (bool, error) {
	cfg := m.active

	backend, err := nbd.Open(cfg.NBD.ExportPath, cfg.NBD.BackendKind, cfg.NBD.ReadOnly)
	if err != nil {
		return true, err
	}
	defer backend.Close()

	if cfg.NBD.CowEnabled && !cfg.NBD.ReadOnly {
		backend = nbd.NewCowBackend(backend)
	}

	exportSize := backend.Size()
	if cfg.NBD.SizeOverride != 0 {
		exportSize = cfg.NBD.SizeOverride
	}

	addr := net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return true, err
	}
	defer ln.Close()

	restartCtx, cancel := withRestartWatch(ctx, m.restart)
	defer cancel()

	maxSessions := cfg.NBD.MaxConnections
	if maxSessions <= 0 {
		maxSessions = 1
	}
	sem := make(chan struct{}, maxSessions)

	go func() {
		<-restartCtx.Done()
		_ = ln.Close()
	}()

	xoelog.Info("nbd server listening", "addr", ln.Addr().String(), "export", cfg.NBD.ExportPath, "max_connections", maxSessions)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if restartCtx.Err() != nil {
				break
			}
			xoelog.Warn("nbd accept failed", "error", err)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-restartCtx.Done():
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-sem }()
			defer c.Close()
			session := nbd.NewSession(c, backend, cfg.NBD.ExportName, exportSize, cfg.NBD.AllowFlush, cfg.NBD.AllowTrim)
			if err := session.Serve(); err != nil {
				xoelog.Warn("nbd session ended with error", "peer", c.RemoteAddr(), "error", err)
			}
		}(conn)
	}

	return !isRestartExit(ctx, restartCtx, m.restart), nil
}
