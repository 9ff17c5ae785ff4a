package nbd

import (
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/hcobbs/xoe/internal/ioutilx"
	"github.com/hcobbs/xoe/internal/xoelog"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// Session drives one client through the Fixed-Newstyle handshake and
// then the request/reply transmission loop against a single Backend.
// The NBD listener (see tcpserver/ModeNbdServer) accepts one session at
// a time; Session itself has no notion of concurrency with a sibling
// session.
type Session struct {
	conn       net.Conn
	backend    Backend
	exportName string
	exportSize int64
	allowFlush bool
	allowTrim  bool
}

// NewSession builds a Session over an accepted connection and an
// already-open Backend. exportSize overrides the Backend's reported
// size when non-zero (Configuration's size_override field).
func NewSession(conn net.Conn, backend Backend, exportName string, exportSize int64, allowFlush, allowTrim bool) *Session {
	size := backend.Size()
	if exportSize > 0 {
		size = exportSize
	}
	return &Session{
		conn:       conn,
		backend:    backend,
		exportName: exportName,
		exportSize: size,
		allowFlush: allowFlush,
		allowTrim:  allowTrim,
	}
}

// Serve runs the handshake and then the transmission loop until the
// client disconnects, sends DISC, or a fatal I/O error occurs.
func (s *Session) Serve() error {
	if err := s.handshake(); err != nil {
		return err
	}
	return s.transmissionLoop()
}

func (s *Session) handshake() error {
	hdr := make([]byte, 8+8+2)
	binary.BigEndian.PutUint64(hdr[0:8], magicNBD)
	binary.BigEndian.PutUint64(hdr[8:16], magicIHaveOpt)
	binary.BigEndian.PutUint16(hdr[16:18], handshakeFlagFixedNewstyle)
	if err := ioutilx.WriteAll(s.conn, hdr); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "writing nbd handshake header")
	}

	clientFlagsBuf := make([]byte, 4)
	if _, err := ioutilx.ReadFull(s.conn, clientFlagsBuf); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "reading nbd client flags")
	}
	clientFlags := binary.BigEndian.Uint32(clientFlagsBuf)
	if clientFlags&clientFlagFixedNewstyle == 0 {
		return xoerr.New(xoerr.InvalidArgument, "client did not negotiate fixed newstyle")
	}

	optHdr := make([]byte, 8+4+4)
	if _, err := ioutilx.ReadFull(s.conn, optHdr); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "reading nbd option header")
	}
	if binary.BigEndian.Uint64(optHdr[0:8]) != magicIHaveOpt {
		return xoerr.New(xoerr.InvalidArgument, "bad option magic")
	}
	opt := binary.BigEndian.Uint32(optHdr[8:12])
	if opt != optExportName {
		return xoerr.Newf(xoerr.InvalidArgument, "unsupported nbd option %d", opt)
	}
	nameLen := binary.BigEndian.Uint32(optHdr[12:16])
	name := make([]byte, nameLen)
	if _, err := ioutilx.ReadFull(s.conn, name); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "reading nbd export name")
	}

	transmitFlags := transmitFlagHasFlags
	if s.backend.ReadOnly() {
		transmitFlags |= transmitFlagReadOnly
	}
	if s.allowFlush {
		transmitFlags |= transmitFlagSendFlush
	}
	if s.allowTrim {
		transmitFlags |= transmitFlagSendTrim
	}

	reply := make([]byte, 8+2+reservedZeroLength)
	binary.BigEndian.PutUint64(reply[0:8], uint64(s.exportSize))
	binary.BigEndian.PutUint16(reply[8:10], transmitFlags)
	if err := ioutilx.WriteAll(s.conn, reply); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "writing nbd export reply")
	}
	return nil
}

func (s *Session) transmissionLoop() error {
	header := make([]byte, 4+2+2+8+8+4)
	for {
		if _, err := ioutilx.ReadFull(s.conn, header); err != nil {
			if errors.Is(err, io.EOF) {
				return xoerr.Wrap(xoerr.IoError, err, "nbd client disconnected")
			}
			return xoerr.Wrap(xoerr.IoError, err, "reading nbd request header")
		}

		req := request{
			magic:  binary.BigEndian.Uint32(header[0:4]),
			flags:  binary.BigEndian.Uint16(header[4:6]),
			typus:  binary.BigEndian.Uint16(header[6:8]),
			cookie: binary.BigEndian.Uint64(header[8:16]),
			offset: binary.BigEndian.Uint64(header[16:24]),
			length: binary.BigEndian.Uint32(header[24:28]),
		}
		if req.magic != requestMagic {
			return xoerr.New(xoerr.InvalidArgument, "bad nbd request magic")
		}

		if req.typus == cmdDisc {
			return nil
		}

		if err := s.dispatch(req); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(req request) error {
	switch req.typus {
	case cmdRead:
		return s.handleRead(req)
	case cmdWrite:
		return s.handleWrite(req)
	case cmdFlush:
		return s.handleFlush(req)
	case cmdTrim:
		return s.handleTrim(req)
	default:
		xoelog.Warn("rejecting unknown nbd command", "type", req.typus)
		return s.sendReply(req.cookie, errnoEINVAL)
	}
}

func (s *Session) handleRead(req request) error {
	if err := boundsCheck(int64(req.offset), int64(req.length), s.exportSize); err != nil {
		return s.sendReply(req.cookie, errnoEINVAL)
	}

	buf := make([]byte, req.length)
	n, err := s.backend.ReadAt(buf, int64(req.offset))
	if err != nil {
		return s.sendReply(req.cookie, errnoFor(err))
	}
	if err := s.sendReply(req.cookie, 0); err != nil {
		return err
	}
	if err := ioutilx.WriteAll(s.conn, buf[:n]); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "writing nbd read payload")
	}
	return nil
}

func (s *Session) handleWrite(req request) error {
	buf := make([]byte, req.length)
	if _, err := ioutilx.ReadFull(s.conn, buf); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "reading nbd write payload")
	}

	if err := boundsCheck(int64(req.offset), int64(req.length), s.exportSize); err != nil {
		return s.sendReply(req.cookie, errnoEINVAL)
	}

	_, err := s.backend.WriteAt(buf, int64(req.offset))
	if err != nil {
		return s.sendReply(req.cookie, errnoFor(err))
	}
	return s.sendReply(req.cookie, 0)
}

func (s *Session) handleFlush(req request) error {
	if !s.allowFlush {
		return s.sendReply(req.cookie, errnoEINVAL)
	}
	if err := s.backend.Flush(); err != nil {
		return s.sendReply(req.cookie, errnoFor(err))
	}
	return s.sendReply(req.cookie, 0)
}

func (s *Session) handleTrim(req request) error {
	if !s.allowTrim {
		return s.sendReply(req.cookie, errnoEINVAL)
	}
	if err := s.backend.Trim(int64(req.offset), int64(req.length)); err != nil {
		return s.sendReply(req.cookie, errnoFor(err))
	}
	return s.sendReply(req.cookie, 0)
}

func (s *Session) sendReply(cookie uint64, errno uint32) error {
	buf := make([]byte, 4+4+8)
	binary.BigEndian.PutUint32(buf[0:4], replyMagic)
	binary.BigEndian.PutUint32(buf[4:8], errno)
	binary.BigEndian.PutUint64(buf[8:16], cookie)
	if err := ioutilx.WriteAll(s.conn, buf); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "writing nbd reply")
	}
	return nil
}

// errnoFor maps a Backend error's taxonomy code to the wire errno
// value the NBD protocol expects.
func errnoFor(err error) uint32 {
	switch xoerr.CodeOf(err) {
	case xoerr.InvalidArgument:
		return errnoEINVAL
	case xoerr.PermissionDenied:
		return errnoEPERM
	default:
		return errnoEIO
	}
}
