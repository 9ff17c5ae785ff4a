//go:build !linux

package serialbridge

import (
	"runtime"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

// OpenUART is unsupported outside Linux: the termios ioctl surface
// goserial wraps (TCGETS/TCSETS and friends) is Linux-specific.
func OpenUART(settings xoeconfig.SerialSettings) (UART, error) {
	return nil, xoerr.Newf(xoerr.InvalidState, "serial device access is not supported on %s", runtime.GOOS)
}
