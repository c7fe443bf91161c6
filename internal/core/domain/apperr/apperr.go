package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes failures produced by the network and repository layers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindInternalServer
	KindHTTP
	KindAuthentication
	KindCacheMiss
	KindStaleDataServed
	KindInvalidResponse
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNetworkUnreachable: "network_unreachable",
	KindBadRequest:         "bad_request",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindNotFound:           "not_found",
	KindRateLimited:        "rate_limited",
	KindInternalServer:     "internal_server_error",
	KindHTTP:               "http_error",
	KindAuthentication:     "authentication_failed",
	KindCacheMiss:          "cache_miss",
	KindStaleDataServed:    "stale_data_served",
	KindInvalidResponse:    "invalid_response",
	KindCanceled:           "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the categorized error returned across the data-access layer.
type Error struct {
	Kind     Kind
	Status   int
	Endpoint string
	// Payload holds the response body for BadRequest errors.
	Payload []byte
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s: %s", e.Endpoint, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

var (
	ErrCacheMiss       = &Error{Kind: KindCacheMiss}
	ErrStaleDataServed = &Error{Kind: KindStaleDataServed}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
)

// New builds an Error of the given kind wrapping err.
func New(kind Kind, endpoint string, err error) *Error {
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

// FromStatus maps a non-success HTTP status to its error kind.
func FromStatus(status int, endpoint string, body []byte) *Error {
	e := &Error{Status: status, Endpoint: endpoint}
	switch status {
	case http.StatusBadRequest:
		e.Kind = KindBadRequest
		e.Payload = body
	case http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case http.StatusForbidden:
		e.Kind = KindForbidden
	case http.StatusNotFound:
		e.Kind = KindNotFound
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case http.StatusInternalServerError:
		e.Kind = KindInternalServer
	default:
		e.Kind = KindHTTP
	}
	return e
}

// KindOf extracts the kind from err, mapping context errors to KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindBadRequest, KindUnauthorized, KindForbidden, KindNotFound,
		KindAuthentication, KindInvalidResponse, KindCanceled:
		return false
	default:
		return true
	}
}
