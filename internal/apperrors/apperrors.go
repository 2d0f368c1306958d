// Package apperrors is the error taxonomy handlers translate into HTTP
// statuses. Anything that is not an *Error is treated as an upstream failure.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUpstream        Kind = "upstream"
)

// GenericMessage is the only text an upstream failure exposes to callers.
const GenericMessage = "Internal server error"

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

// Upstream wraps a transport failure of the store or a gateway. The message
// is for logs only.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// From classifies err. Unknown errors become upstream failures.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Upstream("unexpected error", err)
}

// PublicMessage is the text safe to return to a client for err.
func PublicMessage(err error) string {
	e := From(err)
	if e.Kind == KindUpstream {
		return GenericMessage
	}
	return e.Message
}
