package fsm

import "os"

// stdioDevice adapts the process's own stdin/stdout to the narrow
// Read/Write/Close surface serialbridge.UART expects, so the
// interactive standard client and the generic accept-server role can
// reuse the serial pipeline's framing and ring-buffer machinery
// without a device attached at all.
type stdioDevice struct{}

func (stdioDevice) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioDevice) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// Close is a no-op: the process's standard streams are not ours to
// close, and doing so would break any other component still sharing
// them (e.g. the structured logger writing to stderr).
func (stdioDevice) Close() error { return nil }
