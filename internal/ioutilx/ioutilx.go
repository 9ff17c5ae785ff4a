// Package ioutilx collects the small read/write helpers that replace
// the manual retry loops a C implementation of this bridge would hand
// roll around partial reads and partial writes. Go's net.Conn already
// restarts interrupted syscalls, so these only need to handle short
// reads/writes, not EINTR.
package ioutilx

import (
	"io"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// WriteAll writes the entirety of p to w, retrying on short writes. It
// differs from io.Writer's own contract only in that callers elsewhere
// in this module rely on it to map failures into the shared error
// taxonomy.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return xoerr.Wrap(xoerr.IoError, err, "short write")
		}
		if n == 0 {
			return xoerr.New(xoerr.IoError, "write made no progress")
		}
		p = p[n:]
	}
	return nil
}

// ReadFull reads exactly len(buf) bytes from r into buf, retrying on
// short reads. A clean EOF with zero bytes read is reported distinctly
// from a short/truncated read so callers can tell "peer closed" from
// "peer closed mid-frame".
func ReadFull(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return n, nil
	case err == io.EOF && n == 0:
		return 0, io.EOF
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return n, xoerr.Wrap(xoerr.IoError, err, "truncated read")
	default:
		return n, xoerr.Wrap(xoerr.IoError, err, "read failed")
	}
}
