package chunkstore

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes attached to Error. They target automated handlers so that
// callers can branch on failure class without string matching.
const (
	EInternal    = "internal error"
	EInvalid     = "invalid"   // validation failed; the store was left unchanged
	ENotFound    = "not found" // the referenced entity, timeline or chunk does not exist
	EConflict    = "conflict"  // the operation contradicts previously registered state
	EUnavailable = "unavailable"
)

// Error is the typed error returned by the store's mutation surfaces.
//
// Code targets automated handling, Msg targets the operator, Op and Err
// chain errors together in a logical stack trace.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	if e.Op != "" {
		fmt.Fprintf(&b, "%s: ", e.Op)
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		if e.Code != "" {
			fmt.Fprintf(&b, "<%s>", e.Code)
			if e.Msg != "" {
				b.WriteString(" ")
			}
		}
		b.WriteString(e.Msg)
	}
	return b.String()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the code of the root error, if available; otherwise
// returns EInternal. A nil error returns the empty string.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return EInternal
	}
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorMessage returns the human-readable message of the first error in the
// chain that carries one.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "An internal error has occurred."
	}
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return "An internal error has occurred."
}
