// Package apperr defines the error kinds shared by the booking, reminder and
// notification layers. HTTP handlers map kinds to status codes.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindTransport     Kind = "transport"
	KindStore         Kind = "store"
	KindMissingData   Kind = "missing_data"
	KindInternal      Kind = "internal"
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind, so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrStore         = &Error{Kind: KindStore}
	ErrMissingData   = &Error{Kind: KindMissingData}
)

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports bad input.
func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

// Conflict reports an overlap with an existing appointment.
func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// Authorization reports an actor acting outside its rights.
func Authorization(format string, args ...interface{}) error {
	return newf(KindAuthorization, format, args...)
}

// NotFound reports a missing entity.
func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// Transport wraps a delivery failure.
func Transport(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindTransport, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Store wraps a persistence failure for op.
func Store(err error, op string) error {
	return &Error{Kind: KindStore, Msg: op, Err: err}
}

// MissingData reports that a message could not be built because fields are empty.
func MissingData(fields ...string) error {
	return &Error{Kind: KindMissingData, Msg: "missing required data: " + strings.Join(fields, ", ")}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
