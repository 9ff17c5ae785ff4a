package fsm

import (
	"context"
	"net"
	"strconv"

	"github.com/hcobbs/xoe/internal/serialbridge"
	"github.com/hcobbs/xoe/internal/tcpserver"
	"github.com/hcobbs/xoe/internal/xoelog"
)

// serverModeState is the generic TCP accept server: any number of
// remote clients (std clients, serial clients, usb clients) dial in
// and are bridged, one framed pipeline per connection, to this
// process's own stdin/stdout.
type serverModeState struct{}

func (*serverModeState) run(ctx context.Context, m *Machine) (bool, error) {
	cfg := m.active

	wrapper, err := serverTLSWrapper(cfg)
	if err != nil {
		return true, err
	}

	addr := net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort))
	srv, err := tcpserver.New(addr, wrapper, serverModeHandler)
	if err != nil {
		return true, err
	}

	m.setClientPeers(srv.Peers)
	xoelog.Info("server mode listening", "addr", srv.Addr().String())

	restartCtx, cancel := withRestartWatch(ctx, m.restart)
	defer cancel()

	srv.Serve(restartCtx)
	srv.Stop()

	return !isRestartExit(ctx, restartCtx, m.restart), nil
}

func serverModeHandler(ctx context.Context, conn net.Conn) {
	bridge := serialbridge.New(stdioDevice{}, conn)
	bridge.Run(ctx)
	bridge.Cleanup()
}

// stdClientState dials a server and bridges the connection to this
// process's own stdin/stdout, the single-connection counterpart of
// serverModeState.
type stdClientState struct{}

func (*stdClientState) run(ctx context.Context, m *Machine) (bool, error) {
	conn, err := dialOut(m.active)
	if err != nil {
		return true, err
	}

	bridge := serialbridge.New(stdioDevice{}, conn)

	restartCtx, cancel := withRestartWatch(ctx, m.restart)
	defer cancel()

	bridge.Run(restartCtx)
	bridge.Stop()
	bridge.Cleanup()

	return !isRestartExit(ctx, restartCtx, m.restart), nil
}
