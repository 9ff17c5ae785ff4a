package mgmt

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hcobbs/xoe/internal/restartsignal"
	"github.com/hcobbs/xoe/internal/xoeconfig"
)

func testConfig(t *testing.T, password string) *xoeconfig.Manager {
	t.Helper()
	cfg := xoeconfig.Configuration{
		Role:         xoeconfig.RoleServer,
		ListenAddr:   "0.0.0.0",
		ListenPort:   9000,
		Encryption:   xoeconfig.EncryptionNone,
		MgmtPassword: password,
	}
	return xoeconfig.NewManager(cfg)
}

func startTestServer(t *testing.T, password string) (*Server, string) {
	t.Helper()
	srv := NewServer(testConfig(t, password), &restartsignal.Signal{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = srv.Serve(ctx, port)
	}()
	<-ready
	time.Sleep(30 * time.Millisecond)

	return srv, net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func dialAndAuth(t *testing.T, addr, password string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	reader := bufio.NewReader(conn)

	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	_, err = conn.Write([]byte(password + "\n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "welcome")

	return conn, reader
}

func TestIntegrationAuthSucceedsAndRunsCommands(t *testing.T) {
	srv, addr := startTestServer(t, "hunter2")
	defer srv.Stop()

	conn, reader := dialAndAuth(t, addr, "hunter2")
	defer conn.Close()

	_, err := conn.Write([]byte("get role\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "server")

	_, err = conn.Write([]byte("pending\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "no pending changes")

	_, err = conn.Write([]byte("quit\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "bye")
}

func TestIntegrationSetValidateApplyFlow(t *testing.T) {
	srv, addr := startTestServer(t, "hunter2")
	defer srv.Stop()

	conn, reader := dialAndAuth(t, addr, "hunter2")
	defer conn.Close()

	_, err := conn.Write([]byte("set listen_port 9100\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "ok")

	_, err = conn.Write([]byte("validate\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "valid")

	applied, err := srv.cfg.Apply()
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 9100, srv.cfg.Active().ListenPort)
}

func TestIntegrationFailedAuthIsRejectedAfterThreeAttempts(t *testing.T) {
	srv, addr := startTestServer(t, "hunter2")
	defer srv.Stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for i := 0; i < maxAuthAttempts; i++ {
		_, err = reader.ReadString('\n')
		require.NoError(t, err)
		_, err = conn.Write([]byte("wrong-password\n"))
		require.NoError(t, err)
	}

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "authentication failed")
}
