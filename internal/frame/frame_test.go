package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcobbs/xoe/internal/xoerr"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	f, err := Encode(payload, 42, FlagXon)
	require.NoError(t, err)

	raw := f.Marshal()
	decoded, err := Unmarshal(raw)
	require.NoError(t, err)

	dst := make([]byte, len(payload))
	n, seq, flags, err := decoded.Decode(dst)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, uint16(42), seq)
	assert.True(t, flags.Xon())
	assert.False(t, flags.ParityError())
	assert.Equal(t, payload, dst[:n])
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	payload := make([]byte, MaxPayload+1)
	_, err := Encode(payload, 0, 0)
	require.Error(t, err)
	assert.Equal(t, xoerr.InvalidArgument, xoerr.CodeOf(err))
}

func TestEncodeAcceptsMaxPayload(t *testing.T) {
	payload := make([]byte, MaxPayload)
	for i := range payload {
		payload[i] = byte(i)
	}
	f, err := Encode(payload, 1, 0)
	require.NoError(t, err)

	raw := f.Marshal()
	decoded, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded.Payload)
}

func TestDecodeBufferTooSmall(t *testing.T) {
	f, err := Encode([]byte("hello"), 1, 0)
	require.NoError(t, err)

	dst := make([]byte, 3)
	_, _, _, err = f.Decode(dst)
	require.Error(t, err)
	assert.Equal(t, xoerr.BufferTooSmall, xoerr.CodeOf(err))
}

func TestUnmarshalRejectsUnknownProtocol(t *testing.T) {
	f, err := Encode([]byte("hi"), 1, 0)
	require.NoError(t, err)
	raw := f.Marshal()
	raw[1] = 0x02 // corrupt the low byte of the protocol id

	_, err = Unmarshal(raw)
	require.Error(t, err)
	assert.Equal(t, xoerr.InvalidArgument, xoerr.CodeOf(err))
}

// TestTamperDetection covers the invariant that any single-byte mutation
// of an encoded frame is caught by the checksum.
func TestTamperDetection(t *testing.T) {
	f, err := Encode([]byte("tamper-evident payload"), 7, FlagFramingError)
	require.NoError(t, err)
	raw := f.Marshal()

	for i := range raw {
		if i == 1 {
			continue // byte 1 is half of the protocol id; mutating it is covered separately
		}
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0xff
		_, err := Unmarshal(mutated)
		assert.Error(t, err, "mutation at byte %d went undetected", i)
	}
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	_, err := Unmarshal([]byte{0, 1, 2})
	require.Error(t, err)
	assert.Equal(t, xoerr.InvalidState, xoerr.CodeOf(err))
}
