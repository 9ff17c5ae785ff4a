//go:build linux

package xoelog

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TCGETS
