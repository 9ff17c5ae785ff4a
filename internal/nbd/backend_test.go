package nbd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

func tempExport(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.img")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestOpenFileBackendClassifiesAuto(t *testing.T) {
	path := tempExport(t, 4096)
	b, err := Open(path, xoeconfig.BackendAuto, false)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(4096), b.Size())
	assert.False(t, b.ReadOnly())
}

func TestFileBackendReadWriteRoundTrip(t *testing.T) {
	path := tempExport(t, 4096)
	b, err := Open(path, xoeconfig.BackendFile, false)
	require.NoError(t, err)
	defer b.Close()

	payload := []byte("hello block device")
	n, err := b.WriteAt(payload, 100)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	dst := make([]byte, len(payload))
	n, err = b.ReadAt(dst, 100)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, dst)
}

func TestFileBackendRejectsOutOfBounds(t *testing.T) {
	path := tempExport(t, 512)
	b, err := Open(path, xoeconfig.BackendFile, false)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.ReadAt(make([]byte, 16), 600)
	require.Error(t, err)
	assert.Equal(t, xoerr.InvalidArgument, xoerr.CodeOf(err))
}

func TestFileBackendRejectsWriteWhenReadOnly(t *testing.T) {
	path := tempExport(t, 512)
	b, err := Open(path, xoeconfig.BackendFile, true)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteAt([]byte("x"), 0)
	require.Error(t, err)
	assert.Equal(t, xoerr.PermissionDenied, xoerr.CodeOf(err))
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.img"), xoeconfig.BackendFile, false)
	require.Error(t, err)
	assert.Equal(t, xoerr.FileNotFound, xoerr.CodeOf(err))
}
