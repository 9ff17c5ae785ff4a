// Package frame implements the serial wire format: a length-tagged,
// checksummed envelope carrying a sequence number, an error-flag
// bitfield, and up to 1020 bytes of opaque payload between the UART (or
// USB endpoint) side of a bridge and its TCP peer.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/hcobbs/xoe/internal/ioutilx"
	"github.com/hcobbs/xoe/internal/xoerr"
)

const (
	// ProtocolID identifies this wire format. Frames carrying any other
	// value fail decapsulation.
	ProtocolID uint16 = 0x0001
	// Version is the codec revision. Only one revision exists today.
	Version uint16 = 0x0001

	// MaxPayload is the largest payload a single Frame may carry.
	MaxPayload = 1020

	headerSize = 2 /*protocol*/ + 2 /*version*/ + 2 /*flags*/ + 2 /*sequence*/
	footerSize = 4 /*checksum*/
)

// Flags is the per-frame error/control bitfield. The receiver logs these
// but never discards a frame solely because one is set.
type Flags uint16

const (
	FlagParityError Flags = 1 << iota
	FlagFramingError
	FlagOverrunError
	FlagXon
	FlagXoff
)

func (f Flags) ParityError() bool  { return f&FlagParityError != 0 }
func (f Flags) FramingError() bool { return f&FlagFramingError != 0 }
func (f Flags) OverrunError() bool { return f&FlagOverrunError != 0 }
func (f Flags) Xon() bool          { return f&FlagXon != 0 }
func (f Flags) Xoff() bool         { return f&FlagXoff != 0 }

// Frame is a fully encoded wire envelope, ready to write to a socket or
// freshly read from one.
type Frame struct {
	Protocol uint16
	Version  uint16
	Flags    Flags
	Sequence uint16
	Payload  []byte
	Checksum uint32
}

// Encode builds a Frame carrying payload, tagged with sequence and
// flags. The payload is not copied; callers must not mutate it after
// the frame is handed to a writer.
func Encode(payload []byte, sequence uint16, flags Flags) (Frame, error) {
	if len(payload) > MaxPayload {
		return Frame{}, xoerr.Newf(xoerr.InvalidArgument,
			"payload too large: %d bytes exceeds maximum of %d", len(payload), MaxPayload)
	}
	f := Frame{
		Protocol: ProtocolID,
		Version:  Version,
		Flags:    flags,
		Sequence: sequence,
		Payload:  payload,
	}
	f.Checksum = computeChecksum(f.Protocol, f.Version, f.Flags, f.Sequence, f.Payload)
	return f, nil
}

// Marshal serializes f into its wire representation.
func (f Frame) Marshal() []byte {
	buf := make([]byte, headerSize+len(f.Payload)+footerSize)
	binary.BigEndian.PutUint16(buf[0:2], f.Protocol)
	binary.BigEndian.PutUint16(buf[2:4], f.Version)
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.Flags))
	binary.BigEndian.PutUint16(buf[6:8], f.Sequence)
	copy(buf[headerSize:], f.Payload)
	binary.BigEndian.PutUint32(buf[headerSize+len(f.Payload):], f.Checksum)
	return buf
}

// Unmarshal parses a wire-format frame out of raw, which must contain
// exactly one frame (header + payload + checksum, no trailing bytes).
func Unmarshal(raw []byte) (Frame, error) {
	if len(raw) < headerSize+footerSize {
		return Frame{}, xoerr.New(xoerr.InvalidState, "frame shorter than minimum header+checksum size")
	}

	var f Frame
	f.Protocol = binary.BigEndian.Uint16(raw[0:2])
	f.Version = binary.BigEndian.Uint16(raw[2:4])
	f.Flags = Flags(binary.BigEndian.Uint16(raw[4:6]))
	f.Sequence = binary.BigEndian.Uint16(raw[6:8])

	payloadLen := len(raw) - headerSize - footerSize
	f.Payload = raw[headerSize : headerSize+payloadLen]
	f.Checksum = binary.BigEndian.Uint32(raw[headerSize+payloadLen:])

	if f.Protocol != ProtocolID {
		return Frame{}, xoerr.Newf(xoerr.InvalidArgument, "unrecognized protocol id 0x%04x", f.Protocol)
	}
	want := computeChecksum(f.Protocol, f.Version, f.Flags, f.Sequence, f.Payload)
	if want != f.Checksum {
		return Frame{}, xoerr.New(xoerr.InvalidState, "checksum mismatch")
	}
	return f, nil
}

// Decode copies the payload of f into dst and returns the sequence and
// flags alongside the number of bytes copied. It fails if dst is too
// small to hold the payload.
func (f Frame) Decode(dst []byte) (n int, seq uint16, flags Flags, err error) {
	if len(dst) < len(f.Payload) {
		return 0, 0, 0, xoerr.Newf(xoerr.BufferTooSmall,
			"destination buffer of %d bytes cannot hold %d byte payload", len(dst), len(f.Payload))
	}
	n = copy(dst, f.Payload)
	return n, f.Sequence, f.Flags, nil
}

// WriteTo writes f to w length-prefixed with a 2-byte big-endian byte
// count, so a stream socket carrying back-to-back frames can recover
// frame boundaries on the other end.
func WriteTo(w io.Writer, f Frame) error {
	raw := f.Marshal()
	prefix := make([]byte, 2)
	binary.BigEndian.PutUint16(prefix, uint16(len(raw)))
	if err := ioutilx.WriteAll(w, prefix); err != nil {
		return err
	}
	return ioutilx.WriteAll(w, raw)
}

// ReadFrom reads one length-prefixed frame from r, as written by
// WriteTo.
func ReadFrom(r io.Reader) (Frame, error) {
	prefix := make([]byte, 2)
	if _, err := ioutilx.ReadFull(r, prefix); err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint16(prefix)
	raw := make([]byte, size)
	if _, err := ioutilx.ReadFull(r, raw); err != nil {
		return Frame{}, err
	}
	return Unmarshal(raw)
}

// computeChecksum sums the big-endian serialization of the full header
// (protocol, version, flags, sequence) followed by the raw payload
// bytes. This is a plain additive checksum, not a CRC; it only needs to
// detect the accidental corruption a noisy serial link introduces, and
// it must recompute identically on both ends.
func computeChecksum(protocol, version uint16, flags Flags, sequence uint16, payload []byte) uint32 {
	var sum uint32
	sum += uint32(protocol>>8) + uint32(protocol&0xff)
	sum += uint32(version>>8) + uint32(version&0xff)
	sum += uint32(flags>>8) + uint32(flags&0xff)
	sum += uint32(sequence>>8) + uint32(sequence&0xff)
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}
