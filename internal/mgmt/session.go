package mgmt

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/hcobbs/xoe/internal/xoelog"
)

// readBufSize/writeBufSize mirror the fixed per-session buffers named
// in the management session record; bufio wraps the connection at
// these sizes so no per-command allocation grows beyond them in the
// common case.
const (
	readBufSize  = 1024
	writeBufSize = 1024
)

const maxAuthAttempts = 3

// session is one authenticated management connection: a slot index,
// the underlying socket, and the command dispatch loop bound to a
// Server's shared state.
type session struct {
	slot   int
	conn   net.Conn
	peerIP string
	server *Server

	authenticated bool
	reader        *bufio.Reader
	writer        *bufio.Writer
}

func newSession(slot int, conn net.Conn, server *Server) *session {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	if host == "" {
		host = conn.RemoteAddr().String()
	}
	return &session{
		slot:   slot,
		conn:   conn,
		peerIP: host,
		server: server,
		reader: bufio.NewReaderSize(conn, readBufSize),
		writer: bufio.NewWriterSize(conn, writeBufSize),
	}
}

// serve authenticates the peer, then runs the xoe> command loop until
// quit, a protocol error, or the connection closes.
func (s *session) serve() {
	if s.server.limiter.IsLockedOut(s.peerIP) {
		s.reply("locked out, try again later")
		return
	}

	if !s.authenticate() {
		return
	}

	s.reply("welcome to xoe management")
	for {
		line, err := s.readLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		if s.dispatch(line) {
			return
		}
	}
}

func (s *session) authenticate() bool {
	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		s.reply("password:")
		password, err := s.readLine()
		if err != nil {
			return false
		}
		passwordBytes := []byte(password)

		ok := s.server.hasher.Verify(s.server.passwordHash(), password)
		zero(passwordBytes)

		if ok {
			s.authenticated = true
			s.server.limiter.RecordSuccess(s.peerIP)
			return true
		}

		s.server.limiter.RecordFailure(s.peerIP)
		xoelog.Warn("management authentication failed", "peer", s.peerIP, "attempt", attempt+1)
	}
	s.reply("authentication failed")
	return false
}

func (s *session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *session) reply(format string, args ...any) {
	fmt.Fprintf(s.writer, format+"\n", args...)
	_ = s.writer.Flush()
}

// dispatch runs one command line and reports whether the session
// should close (quit, or shutdown acknowledged as a closing stub).
func (s *session) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help":
		s.cmdHelp()
	case "show":
		s.cmdShow(args)
	case "get":
		s.cmdGet(args)
	case "set":
		s.cmdSet(args)
	case "pending":
		s.cmdPending()
	case "clear":
		s.cmdClear()
	case "validate":
		s.cmdValidate()
	case "restart":
		s.cmdRestart()
	case "quit":
		s.reply("bye")
		return true
	case "shutdown":
		// Reserved stub: acknowledged but not acted on, see the
		// restart-protocol Open Question.
		s.reply("shutdown acknowledged (not implemented)")
	default:
		s.reply("unknown command %q, try 'help'", cmd)
	}
	return false
}

func (s *session) cmdHelp() {
	s.reply(strings.Join([]string{
		"commands:",
		"  help",
		"  show {config|status|clients}",
		"  get <param>",
		"  set <param> <value>",
		"  pending",
		"  clear",
		"  validate",
		"  restart",
		"  quit",
	}, "\n"))
}
