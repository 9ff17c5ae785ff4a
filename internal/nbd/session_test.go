package nbd

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driveHandshake plays the client side of the Fixed-Newstyle handshake
// over conn and returns the negotiated export size and transmit flags.
func driveHandshake(t *testing.T, conn net.Conn, exportName string) (int64, uint16) {
	t.Helper()

	server := make([]byte, 18)
	_, err := readFull(conn, server)
	require.NoError(t, err)
	assert.Equal(t, magicNBD, binary.BigEndian.Uint64(server[0:8]))
	assert.Equal(t, magicIHaveOpt, binary.BigEndian.Uint64(server[8:16]))
	assert.NotZero(t, binary.BigEndian.Uint16(server[16:18])&handshakeFlagFixedNewstyle)

	clientFlags := make([]byte, 4)
	binary.BigEndian.PutUint32(clientFlags, clientFlagFixedNewstyle)
	_, err = conn.Write(clientFlags)
	require.NoError(t, err)

	opt := make([]byte, 8+4+4+len(exportName))
	binary.BigEndian.PutUint64(opt[0:8], magicIHaveOpt)
	binary.BigEndian.PutUint32(opt[8:12], optExportName)
	binary.BigEndian.PutUint32(opt[12:16], uint32(len(exportName)))
	copy(opt[16:], exportName)
	_, err = conn.Write(opt)
	require.NoError(t, err)

	reply := make([]byte, 8+2+reservedZeroLength)
	_, err = readFull(conn, reply)
	require.NoError(t, err)

	size := int64(binary.BigEndian.Uint64(reply[0:8]))
	flags := binary.BigEndian.Uint16(reply[8:10])
	return size, flags
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func sendRequest(t *testing.T, conn net.Conn, typus uint16, cookie uint64, offset uint64, length uint32) {
	t.Helper()
	buf := make([]byte, 4+2+2+8+8+4)
	binary.BigEndian.PutUint32(buf[0:4], requestMagic)
	binary.BigEndian.PutUint16(buf[6:8], typus)
	binary.BigEndian.PutUint64(buf[8:16], cookie)
	binary.BigEndian.PutUint64(buf[16:24], offset)
	binary.BigEndian.PutUint32(buf[24:28], length)
	_, err := conn.Write(buf)
	require.NoError(t, err)
}

func readReply(t *testing.T, conn net.Conn) (uint32, uint64) {
	t.Helper()
	buf := make([]byte, 4+4+8)
	_, err := readFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, replyMagic, binary.BigEndian.Uint32(buf[0:4]))
	return binary.BigEndian.Uint32(buf[4:8]), binary.BigEndian.Uint64(buf[8:16])
}

func TestSessionHandshakeNegotiatesExportSize(t *testing.T) {
	base := newMemBackend(4096)
	server, client := net.Pipe()
	defer client.Close()

	session := NewSession(server, base, "disk0", 0, true, true)
	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	size, flags := driveHandshake(t, client, "disk0")
	assert.Equal(t, int64(4096), size)
	assert.NotZero(t, flags&transmitFlagHasFlags)
	assert.NotZero(t, flags&transmitFlagSendFlush)
	assert.NotZero(t, flags&transmitFlagSendTrim)

	sendRequest(t, client, cmdDisc, 1, 0, 0)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not exit after DISC")
	}
}

func TestSessionWriteThenReadBack(t *testing.T) {
	base := newMemBackend(4096)
	server, client := net.Pipe()
	defer client.Close()

	session := NewSession(server, base, "disk0", 0, true, true)
	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	driveHandshake(t, client, "disk0")

	payload := []byte("some block of data")
	sendRequest(t, client, cmdWrite, 42, 0, uint32(len(payload)))
	_, err := client.Write(payload)
	require.NoError(t, err)
	errno, cookie := readReply(t, client)
	assert.Equal(t, uint32(0), errno)
	assert.Equal(t, uint64(42), cookie)

	sendRequest(t, client, cmdRead, 43, 0, uint32(len(payload)))
	errno, cookie = readReply(t, client)
	assert.Equal(t, uint32(0), errno)
	assert.Equal(t, uint64(43), cookie)
	dst := make([]byte, len(payload))
	_, err = readFull(client, dst)
	require.NoError(t, err)
	assert.Equal(t, payload, dst)

	sendRequest(t, client, cmdDisc, 99, 0, 0)
	<-done
}

func TestSessionReadBeyondBoundsReportsEINVAL(t *testing.T) {
	base := newMemBackend(4096)
	server, client := net.Pipe()
	defer client.Close()

	session := NewSession(server, base, "disk0", 0, true, true)
	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	driveHandshake(t, client, "disk0")

	sendRequest(t, client, cmdRead, 1, 8000, 128)
	errno, _ := readReply(t, client)
	assert.Equal(t, errnoEINVAL, errno)

	sendRequest(t, client, cmdDisc, 2, 0, 0)
	<-done
}

func TestSessionFlushRejectedWhenDisallowed(t *testing.T) {
	base := newMemBackend(4096)
	server, client := net.Pipe()
	defer client.Close()

	session := NewSession(server, base, "disk0", 0, false, false)
	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	driveHandshake(t, client, "disk0")

	sendRequest(t, client, cmdFlush, 1, 0, 0)
	errno, _ := readReply(t, client)
	assert.Equal(t, errnoEINVAL, errno)

	sendRequest(t, client, cmdDisc, 2, 0, 0)
	<-done
}
