// Package apierr defines the error taxonomy shared by the gateway and the
// engine, independent of transport. Both processes classify failures into a
// Kind; the HTTP layers map kinds to status codes and a JSON envelope.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	BadRequest          Kind = "bad-request"
	Unauthorized        Kind = "unauthorized"
	RateLimited         Kind = "rate-limited"
	NotFound            Kind = "not-found"
	WrongEndpoint       Kind = "wrong-endpoint"
	DependencyMissing   Kind = "dependency-missing"
	ArtifactMissing     Kind = "artifact-missing"
	InvocationFailed    Kind = "invocation-failed"
	LoadFailed          Kind = "load-failed"
	UpstreamUnavailable Kind = "upstream-unavailable"
	Timeout             Kind = "timeout"
	Internal            Kind = "internal"
)

// HTTPStatus returns the status code a kind maps to on the gateway surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest, WrongEndpoint:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case NotFound, ArtifactMissing:
		return http.StatusNotFound
	case DependencyMissing:
		return http.StatusNotImplemented
	case UpstreamUnavailable:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a client-visible message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// WriteJSON sends err as the {"error": "<message>"} envelope with the status
// code its kind maps to.
func WriteJSON(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(KindOf(err).HTTPStatus())
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
