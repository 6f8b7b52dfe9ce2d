// Package apperr defines the error taxonomy shared by the store, the request
// lifecycle, the HTTP layer and the sync client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind names an error category. It travels over the wire in error bodies so
// the client can rebuild the typed error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindInvalidState  Kind = "invalid_state"
	KindTransient     Kind = "transient"
	KindStale         Kind = "stale"
	KindInternal      Kind = "internal"
)

// ValidationError captures malformed or missing input, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation returns a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a field level issue.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = message
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError is returned for an unknown id or date.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// AuthorizationError is returned when a non-admin caller supplies the wrong
// deletion secret or an admin-only route is called without the admin flag.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Reason
}

// InvalidStateError is returned when a status transition is not permitted
// from the request's current status.
type InvalidStateError struct {
	ID   string
	From string
	To   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("request %q cannot move from %s to %s", e.ID, e.From, e.To)
}

// TransientStoreError wraps a network or backend failure. It is retryable.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	if e.Err == nil {
		return e.Op + ": transient store failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// StaleDataError is terminal: the backing store kept returning data for the
// wrong month (or kept failing) after every retry was spent.
type StaleDataError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *StaleDataError) Error() string {
	msg := fmt.Sprintf("data for %s is still stale after %d attempts, please refresh", e.Target, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StaleDataError) Unwrap() error { return e.Err }

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		nf *NotFoundError
		ae *AuthorizationError
		is *InvalidStateError
		te *TransientStoreError
		se *StaleDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return KindStale
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &ae):
		return KindAuthorization
	case errors.As(err, &is):
		return KindInvalidState
	case errors.As(err, &te):
		return KindTransient
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err may succeed if the same call is repeated.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindTransient, KindStale:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RemoteError carries an error decoded from an API response. Its message is
// the server's; Unwrap exposes the typed error so KindOf keeps working.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.Err }

// FromStatus rebuilds a typed error from an HTTP error response. It is the
// inverse of HTTPStatus as far as the wire allows.
func FromStatus(status int, kind Kind, message string, fields map[string]string) error {
	var typed error
	switch {
	case kind == KindValidation || (kind == "" && status == http.StatusBadRequest):
		v := &ValidationError{}
		for f, m := range fields {
			v.Add(f, m)
		}
		if !v.HasErrors() {
			v.Add("request", message)
		}
		typed = v
	case kind == KindAuthorization || (kind == "" && status == http.StatusForbidden):
		typed = &AuthorizationError{Reason: message}
	case kind == KindNotFound || (kind == "" && status == http.StatusNotFound):
		typed = &NotFoundError{Resource: "resource"}
	case kind == KindInvalidState || (kind == "" && status == http.StatusConflict):
		typed = &InvalidStateError{}
	case kind == KindStale:
		typed = &StaleDataError{Target: "server"}
	default:
		typed = &TransientStoreError{Op: "http", Err: fmt.Errorf("status %d: %s", status, message)}
	}
	return &RemoteError{Status: status, Message: message, Err: typed}
}
