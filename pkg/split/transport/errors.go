package transport

import (
	"errors"
	"syscall"
)

var (
	// ErrInvalidSource indicates a source id other than the supported peripheral.
	ErrInvalidSource = errors.New("invalid source")
	// ErrInvalidPayload indicates a payload field that can't be encoded.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotSupported indicates an unknown command or event type.
	ErrNotSupported = errors.New("not supported")
	// ErrNoSpace indicates the outbound buffer can't hold the message.
	ErrNoSpace = errors.New("no space")
	// ErrNoDevice indicates the underlying device is not ready.
	ErrNoDevice = errors.New("no device")
	// ErrShortPayload indicates a payload shorter than its type requires.
	ErrShortPayload = errors.New("short payload")
)

// Errno maps an error to the errno reported by the firmware API.
// It returns 0 for nil and EIO for unknown errors.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrInvalidPayload):
		return syscall.EINVAL
	case errors.Is(err, ErrNotSupported):
		return syscall.ENOTSUP
	case errors.Is(err, ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, ErrNoDevice):
		return syscall.ENODEV
	case errors.Is(err, ErrShortPayload):
		return syscall.EMSGSIZE
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
