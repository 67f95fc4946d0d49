package hunt

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeExhausted         Code = "EXHAUSTED"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeInvalidBuffTarget Code = "INVALID_BUFF_TARGET"
	CodeNodeNotAvailable  Code = "NODE_NOT_AVAILABLE"
)

// Error is a domain failure with a caller-visible reason.
type Error struct {
	Code   Code
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return e.Reason
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, hunt.ErrConflict).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrExhausted         = &Error{Code: CodeExhausted}
	ErrInvalidState      = &Error{Code: CodeInvalidState}
	ErrInvalidBuffTarget = &Error{Code: CodeInvalidBuffTarget}
	ErrNodeNotAvailable  = &Error{Code: CodeNodeNotAvailable}
)

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CodeOf returns the domain code carried by err, or "" for infrastructure
// errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
