// Package xoerr defines the error taxonomy shared by every component of
// the bridge. Leaf functions return a plain error; most of those errors
// wrap one of the sentinels below with errors.Is/errors.As in mind, so a
// caller several layers up can still ask "was this a timeout?" without
// string-matching a message.
package xoerr

import (
	"errors"
	"fmt"
)

// Code names one of the error kinds from the specification's error
// taxonomy. It exists mainly for logging and for the numeric codes the
// NBD wire protocol and the management CLI need to report.
type Code int

const (
	OK Code = iota
	InvalidArgument
	NullReference
	FileNotFound
	PermissionDenied
	BufferTooSmall
	OutOfMemory
	InvalidState
	NetworkError
	IoError
	UsbTimeout
	UsbNoDevice
	UsbAccessDenied
	UsbBusy
	UsbNotSupported
	UsbPipeError
	UsbOverflow
	UsbCancelled
	Unknown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NullReference:
		return "null_reference"
	case FileNotFound:
		return "file_not_found"
	case PermissionDenied:
		return "permission_denied"
	case BufferTooSmall:
		return "buffer_too_small"
	case OutOfMemory:
		return "out_of_memory"
	case InvalidState:
		return "invalid_state"
	case NetworkError:
		return "network_error"
	case IoError:
		return "io_error"
	case UsbTimeout:
		return "usb_timeout"
	case UsbNoDevice:
		return "usb_no_device"
	case UsbAccessDenied:
		return "usb_access_denied"
	case UsbBusy:
		return "usb_busy"
	case UsbNotSupported:
		return "usb_not_supported"
	case UsbPipeError:
		return "usb_pipe_error"
	case UsbOverflow:
		return "usb_overflow"
	case UsbCancelled:
		return "usb_cancelled"
	default:
		return "unknown"
	}
}

// Error is a taxonomy error: a Code plus a human message and, for
// validation failures, the name of the offending Configuration field.
type Error struct {
	Code    Code
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a taxonomy error with no field and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Field builds a validation error naming the offending Configuration field,
// in the "field: message" shape required by the line-oriented error
// surfaces (stderr at boot, the management CLI's response line).
func Field(field, format string, args ...any) *Error {
	return &Error{Code: InvalidArgument, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code/message context to an underlying error while keeping
// it reachable through errors.Unwrap.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error; otherwise returns Unknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// RenderFieldError renders err the way both the boot-time validator and the
// management CLI's "set"/"validate"/"restart" failure path want it: one
// line, naming the field when there is one.
func RenderFieldError(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
