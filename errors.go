package dtpack

import (
	"errors"
	"fmt"
)

// Code is dtpack's error taxonomy (spec §7). There is no SUCCESS member:
// following Go convention, success is a nil error rather than a sentinel
// code.
type Code string

const (
	CodeBadArgs      Code = "bad arguments"
	CodeOutOfMem     Code = "out of memory"
	CodeNotSupported Code = "not supported"
	CodeInternal     Code = "internal error"
	CodeBackendError Code = "backend error"
)

// Error is dtpack's structured error: an operation, a high-level code, and
// (for backend-originated failures) the opaque driver error retained for
// inspection.
type Error struct {
	Op      string // Operation that failed (e.g. "TypeCreateStruct", "RequestWait")
	TypeID  uint64 // Datatype handle, if applicable (0 if not)
	ReqID   uint64 // Request handle, if applicable (0 if not)
	Code    Code
	Msg     string
	Inner   error // Wrapped error, including an opaque backend error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.TypeID != 0 {
		parts = append(parts, fmt.Sprintf("type=%#x", e.TypeID))
	}
	if e.ReqID != 0 {
		parts = append(parts, fmt.Sprintf("req=%#x", e.ReqID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("dtpack: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("dtpack: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError constructs a plain op/code/message error.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewTypeError constructs an error scoped to a datatype handle.
func NewTypeError(op string, typeID uint64, code Code, msg string) *Error {
	return &Error{Op: op, TypeID: typeID, Code: code, Msg: msg}
}

// NewRequestError constructs an error scoped to a request handle.
func NewRequestError(op string, reqID uint64, code Code, msg string) *Error {
	return &Error{Op: op, ReqID: reqID, Code: code, Msg: msg}
}

// WrapBackendError wraps an opaque driver-level error as spec §7's
// BACKEND_ERROR, retaining the original for inspection via errors.Unwrap.
func WrapBackendError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if de, ok := inner.(*Error); ok {
		return de
	}
	return &Error{Op: op, Code: CodeBackendError, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
