package errs

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	Unauthenticated = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindInvalidArgument  Kind = "invalid_argument"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindUnauthenticated  Kind = "unauthenticated"
	KindUnavailable      Kind = "unavailable"
	KindInternal         Kind = "internal"
)

// Error is an application error carrying a Kind and, for validation
// failures, per-field messages.
type Error struct {
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	if len(e.Fields) != 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func PermissionDenied(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

func InvalidArgument(field, message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: "validation failed", Fields: map[string]string{field: message}}
}

func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Cause: cause}
}

// Internal wraps a persistence or unexpected failure. The message is what
// callers get to see; the cause stays in logs.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Public converts err into the shape safe to hand to a client.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return &Error{Kind: KindInternal, Message: e.Message}
		}
		return &Error{Kind: e.Kind, Message: e.Message, Fields: e.Fields}
	}
	return &Error{Kind: KindInternal, Message: "internal server error"}
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
