package ioutilx

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shortWriter struct {
	buf   bytes.Buffer
	chunk int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.chunk {
		p = p[:w.chunk]
	}
	return w.buf.Write(p)
}

func TestWriteAllRetriesShortWrites(t *testing.T) {
	w := &shortWriter{chunk: 3}
	err := WriteAll(w, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", w.buf.String())
}

func TestReadFullReportsCleanEOF(t *testing.T) {
	r := bytes.NewReader(nil)
	buf := make([]byte, 4)
	n, err := ReadFull(r, buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFullReportsTruncation(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2})
	buf := make([]byte, 4)
	_, err := ReadFull(r, buf)
	require.Error(t, err)
}

func TestReadFullSuccess(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3, 4})
	buf := make([]byte, 4)
	n, err := ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}
