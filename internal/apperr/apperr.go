// ABOUTME: Error taxonomy shared by the registry, session and funding services
// ABOUTME: Maps each error kind to an HTTP status in one place

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindDerivationMismatch
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindDerivationMismatch:
		return "derivation_mismatch"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is a classified failure. Msg is safe to show to callers; Err is the
// underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, apperr.ErrNotReady) style checks against the kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrState              = &Error{Kind: KindState}
	ErrDerivationMismatch = &Error{Kind: KindDerivationMismatch}
	ErrStorage            = &Error{Kind: KindStorage}
)

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func State(msg string) *Error { return &Error{Kind: KindState, Msg: msg} }

func DerivationMismatch(msg string) *Error {
	return &Error{Kind: KindDerivationMismatch, Msg: msg}
}

// Storage wraps a persistence failure.
func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
	}
	return err.Error()
}

// HTTPStatus maps an error to its transport status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
