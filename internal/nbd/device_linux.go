//go:build linux

package nbd

import (
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// deviceBackend serves a raw block device or ZFS volume. Size is
// queried once via BLKGETSIZE64; trim goes through BLKDISCARD when the
// device advertises it, otherwise is a no-op.
type deviceBackend struct {
	mu       sync.Mutex
	f        *os.File
	size     int64
	readOnly bool
	isZvol   bool
}

func openDevice(path string, readOnly bool, zvol bool) (Backend, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xoerr.Wrap(xoerr.FileNotFound, err, "opening nbd export device")
		}
		return nil, xoerr.Wrap(xoerr.IoError, err, "opening nbd export device")
	}

	size, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		_ = f.Close()
		return nil, xoerr.Wrap(xoerr.IoError, err, "querying block device size")
	}

	return &deviceBackend{f: f, size: int64(size), readOnly: readOnly, isZvol: zvol}, nil
}

func (b *deviceBackend) ReadAt(dst []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := boundsCheck(offset, int64(len(dst)), b.size); err != nil {
		return 0, err
	}
	n, err := b.f.ReadAt(dst, offset)
	if err != nil {
		return n, xoerr.Wrap(xoerr.IoError, err, "reading block device")
	}
	return n, nil
}

func (b *deviceBackend) WriteAt(src []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readOnly {
		return 0, xoerr.New(xoerr.PermissionDenied, "backend is read-only")
	}
	if err := boundsCheck(offset, int64(len(src)), b.size); err != nil {
		return 0, err
	}
	n, err := b.f.WriteAt(src, offset)
	if err != nil {
		return n, xoerr.Wrap(xoerr.IoError, err, "writing block device")
	}
	return n, nil
}

func (b *deviceBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.f.Sync(); err != nil {
		return xoerr.Wrap(xoerr.IoError, err, "flushing block device")
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), unix.BLKFLSBUF, 0); errno != 0 && errno != unix.ENOTTY {
		return xoerr.Wrap(xoerr.IoError, errno, "flushing block device buffers")
	}
	return nil
}

// Trim discards the given range via BLKDISCARD. Failure is tolerated
// since a device may simply not support discard.
func (b *deviceBackend) Trim(offset, length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := boundsCheck(offset, length, b.size); err != nil {
		return err
	}
	rng := [2]uint64{uint64(offset), uint64(length)}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&rng))); errno != 0 {
		if errno == unix.EOPNOTSUPP || errno == unix.ENOTTY {
			return nil
		}
		return xoerr.Wrap(xoerr.IoError, errno, "discarding block device range")
	}
	return nil
}

func (b *deviceBackend) Size() int64    { return b.size }
func (b *deviceBackend) ReadOnly() bool { return b.readOnly }
func (b *deviceBackend) Close() error   { return b.f.Close() }
