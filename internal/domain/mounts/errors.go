package mounts

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a mount manager failure.
type Kind string

const (
	KindInvalidRequest         Kind = "invalid_request"
	KindAlreadyMountedConflict Kind = "already_mounted_conflict"
	KindAuthenticationFailed   Kind = "authentication_failed"
	KindHostUnreachable        Kind = "host_unreachable"
	KindPermissionDenied       Kind = "permission_denied"
	KindMountpointBusy         Kind = "mountpoint_busy"
	KindTimeout                Kind = "timeout"
	KindNotMounted             Kind = "not_mounted"
	KindOSError                Kind = "os_error"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
	ErrAlreadyMountedConflict = &Error{Kind: KindAlreadyMountedConflict}
	ErrAuthenticationFailed   = &Error{Kind: KindAuthenticationFailed}
	ErrHostUnreachable        = &Error{Kind: KindHostUnreachable}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrMountpointBusy         = &Error{Kind: KindMountpointBusy}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrNotMounted             = &Error{Kind: KindNotMounted}
	ErrOSError                = &Error{Kind: KindOSError}
)

// Error is a classified mount manager failure.
type Error struct {
	Kind       Kind
	Op         string
	Mountpoint string
	Server     string
	// Msg overrides the default sentence for the kind.
	Msg string
	// Detail is the raw diagnostic (helper output, errno text). Log it,
	// do not show it to end users.
	Detail string
	Err    error
}

// NewError builds a classified error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	if e.Mountpoint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Mountpoint)
	}
	if hint := hintFor(e.Kind); hint != "" {
		msg += ": " + hint
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// With returns a copy annotated with the operation and target.
func (e *Error) With(op, mountpoint, server string) *Error {
	cp := *e
	if cp.Op == "" {
		cp.Op = op
	}
	if cp.Mountpoint == "" {
		cp.Mountpoint = mountpoint
	}
	if cp.Server == "" {
		cp.Server = server
	}
	return &cp
}

// KindOf reports the kind of err. Unclassified errors are KindOSError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindOSError
}

// AsError converts any error into an *Error, wrapping unclassified
// ones as KindOSError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Msg: "operation cancelled", Err: err}
	}
	return &Error{Kind: KindOSError, Msg: err.Error(), Detail: err.Error(), Err: err}
}

func defaultMessage(k Kind) string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindAlreadyMountedConflict:
		return "mountpoint already holds a different share"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindHostUnreachable:
		return "server unreachable"
	case KindPermissionDenied:
		return "permission denied"
	case KindMountpointBusy:
		return "mountpoint busy"
	case KindTimeout:
		return "operation timed out"
	case KindNotMounted:
		return "nothing is mounted there"
	default:
		return "operating system error"
	}
}

func hintFor(k Kind) string {
	switch k {
	case KindAlreadyMountedConflict:
		return "unmount it first or choose another mountpoint"
	case KindAuthenticationFailed:
		return "check the username and password"
	case KindHostUnreachable:
		return "check the server address and network connection"
	case KindPermissionDenied:
		return "the service lacks privileges to mount"
	case KindMountpointBusy:
		return "close files using it or pick another directory"
	default:
		return ""
	}
}
