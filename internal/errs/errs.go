// Package errs defines the orchestrator's error kinds and the helpers to
// classify and present them at the API boundary.
package errs

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind is one of the fixed error classes a caller can branch on.
type Kind string

const (
	NotFound          Kind = "NotFound"
	InvalidTransition Kind = "InvalidTransition"
	WouldCycle        Kind = "WouldCycle"
	Busy              Kind = "Busy"
	BridgeUnavailable Kind = "BridgeUnavailable"
	BridgeTimeout     Kind = "BridgeTimeout"
	BridgeProtocol    Kind = "BridgeProtocol"
	Persist           Kind = "Persist"
	Validation        Kind = "Validation"
)

// Error wraps a Kind with a human-readable detail. Construct with New or Wrap
// so the kind survives errors.As across pkg/errors wrapping layers.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a formatted detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap attaches a kind to an underlying error, preserving it for Unwrap.
func Wrap(kind Kind, cause error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, cause: errors.WithStack(cause)}
}

// As extracts the *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or "" if err does not wrap one.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a Kind to the status code the API surface should answer
// with, per spec: 4xx for client errors, 5xx for bridge/persistence failures.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InvalidTransition, WouldCycle, Validation:
		return http.StatusBadRequest
	case Busy:
		return http.StatusConflict
	case BridgeUnavailable, BridgeTimeout:
		return http.StatusBadGateway
	case BridgeProtocol, Persist:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
