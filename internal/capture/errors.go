package capture

import (
	"errors"
	"fmt"
)

// Kind classifies capture-stage failures. All kinds are user-facing and
// need user action before a retry can succeed.
type Kind string

const (
	KindPermissionDenied       Kind = "PermissionDenied"
	KindDeviceUnavailable      Kind = "DeviceUnavailable"
	KindUnsupportedEnvironment Kind = "UnsupportedEnvironment"
)

var (
	ErrPermissionDenied       = errors.New("capture: permission denied")
	ErrDeviceUnavailable      = errors.New("capture: device unavailable")
	ErrUnsupportedEnvironment = errors.New("capture: unsupported environment")

	// ErrNotRecording is returned by Stop when there is no active handle.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrAlreadyRecording is returned by Start while a handle is held.
	ErrAlreadyRecording = errors.New("capture: already recording")
)

// Error is a classified capture failure. It matches both its Kind's
// sentinel and the underlying cause with errors.Is.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture: %s", e.Kind)
	}
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinel(e.Kind)}
	}
	return []error{sentinel(e.Kind), e.Err}
}

func sentinel(k Kind) error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindUnsupportedEnvironment:
		return ErrUnsupportedEnvironment
	default:
		return ErrDeviceUnavailable
	}
}

// Classify maps any source error onto a capture Error. Errors that match no
// known kind are treated as DeviceUnavailable.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &Error{Kind: KindPermissionDenied, Err: err}
	case errors.Is(err, ErrUnsupportedEnvironment):
		return &Error{Kind: KindUnsupportedEnvironment, Err: err}
	default:
		return &Error{Kind: KindDeviceUnavailable, Err: err}
	}
}
