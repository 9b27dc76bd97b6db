package netdevice

import (
	"errors"
	"fmt"
)

// Error is a structured error carrying the operation that failed, the
// session it concerns (if any), a status code from the taxonomy below,
// and an optional wrapped error.
type Error struct {
	Op      string
	Session string
	Code    Code
	Msg     string
	Inner   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Session != "" {
			return fmt.Sprintf("netdevice: %s (op=%s session=%s)", msg, e.Op, e.Session)
		}
		return fmt.Sprintf("netdevice: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("netdevice: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports comparing against a bare Code as well as another *Error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// Code is the status-code taxonomy every operation in the framework
// reports its failures through.
type Code string

const (
	CodeInvalidArgs  Code = "INVALID_ARGS"
	CodeNotSupported Code = "NOT_SUPPORTED"
	CodeNoMemory     Code = "NO_MEMORY"
	CodeNoResources  Code = "NO_RESOURCES"
	CodeBadState     Code = "BAD_STATE"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeShouldWait   Code = "SHOULD_WAIT"
	CodeIOOverrun    Code = "IO_OVERRUN"
	CodeOutOfRange   Code = "OUT_OF_RANGE"
	CodeNotFound     Code = "NOT_FOUND"
)

func (c Code) Error() string { return string(c) }

// NewError creates a structured error with no session context.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSessionError creates a structured error attributed to a session.
func NewSessionError(op, session string, code Code, msg string) *Error {
	return &Error{Op: op, Session: session, Code: code, Msg: msg}
}

// WrapError wraps inner under op, preserving its code if inner is
// already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Session: e.Session, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Code: CodeUnavailable, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured Error with the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
