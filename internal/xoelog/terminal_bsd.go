//go:build darwin || freebsd || netbsd || openbsd

package xoelog

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TIOCGETA
