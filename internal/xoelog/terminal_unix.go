//go:build !windows

package xoelog

import "golang.org/x/sys/unix"

// isTerminal reports whether fd refers to a terminal, used to decide
// whether to colorize text-format output.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
	return err == nil
}
