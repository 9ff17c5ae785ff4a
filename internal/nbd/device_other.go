//go:build !linux

package nbd

import (
	"runtime"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// openDevice is unsupported outside Linux: BLKGETSIZE64/BLKDISCARD are
// Linux block-layer ioctls with no portable equivalent.
func openDevice(path string, readOnly bool, zvol bool) (Backend, error) {
	return nil, xoerr.Newf(xoerr.InvalidState, "block/zvol device backends are not supported on %s", runtime.GOOS)
}
