package nbd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is a tiny in-memory Backend double for exercising
// CowBackend without touching the filesystem.
type memBackend struct {
	data []byte
}

func newMemBackend(size int) *memBackend {
	return &memBackend{data: make([]byte, size)}
}

func (m *memBackend) ReadAt(dst []byte, offset int64) (int, error) {
	return copy(dst, m.data[offset:]), nil
}

func (m *memBackend) WriteAt(src []byte, offset int64) (int, error) {
	return copy(m.data[offset:], src), nil
}

func (m *memBackend) Flush() error                    { return nil }
func (m *memBackend) Trim(offset, length int64) error { return nil }
func (m *memBackend) Size() int64                     { return int64(len(m.data)) }
func (m *memBackend) ReadOnly() bool                  { return false }
func (m *memBackend) Close() error                    { return nil }

func TestCowBackendWritesDoNotReachBase(t *testing.T) {
	base := newMemBackend(2 * CowBlockSize)
	cow := NewCowBackend(base)

	payload := bytes.Repeat([]byte{0xAB}, 128)
	_, err := cow.WriteAt(payload, 10)
	require.NoError(t, err)

	baseCheck := make([]byte, 128)
	_, _ = base.ReadAt(baseCheck, 10)
	assert.NotEqual(t, payload, baseCheck, "cow write must not reach the wrapped backend")

	dst := make([]byte, 128)
	_, err = cow.ReadAt(dst, 10)
	require.NoError(t, err)
	assert.Equal(t, payload, dst)
}

func TestCowBackendReadsFallThroughUntouchedBlocks(t *testing.T) {
	base := newMemBackend(2 * CowBlockSize)
	copy(base.data, bytes.Repeat([]byte{0xCD}, 64))

	cow := NewCowBackend(base)
	dst := make([]byte, 64)
	_, err := cow.ReadAt(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xCD}, 64), dst)
}

func TestCowBackendWriteSpanningTwoBlocks(t *testing.T) {
	base := newMemBackend(2 * CowBlockSize)
	cow := NewCowBackend(base)

	payload := bytes.Repeat([]byte{0x11}, 32)
	offset := int64(CowBlockSize - 16)
	_, err := cow.WriteAt(payload, offset)
	require.NoError(t, err)

	dst := make([]byte, 32)
	_, err = cow.ReadAt(dst, offset)
	require.NoError(t, err)
	assert.Equal(t, payload, dst)
}

func TestCowBackendTrimDropsOverlay(t *testing.T) {
	base := newMemBackend(2 * CowBlockSize)
	cow := NewCowBackend(base)

	_, err := cow.WriteAt([]byte("dirty"), 0)
	require.NoError(t, err)
	require.NoError(t, cow.Trim(0, CowBlockSize))

	dst := make([]byte, 5)
	_, err = cow.ReadAt(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5), dst)
}
