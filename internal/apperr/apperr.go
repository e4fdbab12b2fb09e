// Package apperr defines the error taxonomy shared by the checkout pipeline.
// Repos keep their own sentinel errors; use cases translate them into a Kind
// at the boundary so handlers can map errors uniformly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	Validation Kind = iota
	NotFound
	InvalidState
	AlreadyMinted
	UnsupportedMethod
	Unavailable
	InsufficientStock
	Signature
	AccessDenied
	Transferred
	Transient
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case InvalidState:
		return "invalid_state"
	case AlreadyMinted:
		return "already_minted"
	case UnsupportedMethod:
		return "unsupported_method"
	case Unavailable:
		return "unavailable"
	case InsufficientStock:
		return "insufficient_stock"
	case Signature:
		return "signature"
	case AccessDenied:
		return "access_denied"
	case Transferred:
		return "transferred"
	case Transient:
		return "transient"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// RetryAfter is a hint for Transient errors; zero for everything else.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...any) *Error  { return New(Validation, format, args...) }
func NotFoundf(format string, args ...any) *Error    { return New(NotFound, format, args...) }
func InvalidStatef(format string, args ...any) *Error { return New(InvalidState, format, args...) }
func Signaturef(format string, args ...any) *Error   { return New(Signature, format, args...) }

// Transientf marks a collaborator/network failure the caller may retry.
func Transientf(retryAfter time.Duration, err error, format string, args ...any) *Error {
	return &Error{Kind: Transient, Msg: fmt.Sprintf(format, args...), Err: err, RetryAfter: retryAfter}
}

// KindOf reports the Kind of err when it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// RetryAfterOf returns the retry hint carried by a transient error, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// HTTPStatus maps err to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	k, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch k {
	case Validation, UnsupportedMethod:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case InvalidState, AlreadyMinted, InsufficientStock:
		return http.StatusConflict
	case Unavailable:
		return http.StatusUnprocessableEntity
	case Signature:
		return http.StatusUnauthorized
	case AccessDenied, Transferred:
		return http.StatusForbidden
	case Transient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
