package firecracker

import (
	"errors"
	"fmt"
)

// Common errors returned by the firecracker package.
// Every error returned by a Client operation matches exactly one of
// ErrValidation, ErrNetwork, ErrAPI or ErrRateLimited via errors.Is.
var (
	// ErrValidation is returned when a resource fails pre-flight validation.
	// No request was sent.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork is returned when the control plane could not be reached or
	// the exchange did not complete.
	ErrNetwork = errors.New("network error")

	// ErrCancelled is returned alongside ErrNetwork when the call was cancelled
	// or timed out before a response arrived.
	ErrCancelled = errors.New("request cancelled")

	// ErrAPI is returned when the control plane answered outside the 2xx range,
	// or answered 2xx with a body that could not be decoded.
	ErrAPI = errors.New("api error")

	// ErrDecode is returned alongside ErrAPI when a success response is unparseable.
	ErrDecode = errors.New("decode response")

	// ErrRateLimited is returned when the client-side limiter refused the request.
	ErrRateLimited = errors.New("rate limited")
)

// Kind discriminates the error taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNetwork
	KindAPI
	KindRateLimited
	// KindUnknown is only returned for errors that did not come from this package.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// KindOf returns the taxonomy kind of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrAPI):
		return KindAPI
	default:
		return KindUnknown
	}
}

// ValidationError reports the field and rule a resource violated.
type ValidationError struct {
	Resource string
	Field    string
	Rule     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Resource, e.Field, e.Rule)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(resource, field, rule string) error {
	return &ValidationError{Resource: resource, Field: field, Rule: rule}
}

// NetworkError wraps a transport failure. Retrying is safe only for
// idempotent verbs; a cancelled PUT may or may not have been applied.
type NetworkError struct {
	Method    string
	Path      string
	Cancelled bool
	Timeout   bool
	Err       error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: timed out: %v", e.Method, e.Path, e.Err)
	case e.Cancelled:
		return fmt.Sprintf("%s %s: cancelled: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork || (target == ErrCancelled && e.Cancelled)
}

// APIError carries the status code and the server message verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	// Decode is set when the status was a success but the body could not be decoded.
	Decode error
}

func (e *APIError) Error() string {
	if e.Decode != nil {
		return fmt.Sprintf("%s %s: status %d: decode response: %v", e.Method, e.Path, e.StatusCode, e.Decode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Decode }

func (e *APIError) Is(target error) bool {
	return target == ErrAPI || (target == ErrDecode && e.Decode != nil)
}

// IsClientError reports a 4xx answer, usually a configuration the server refuses.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports a 5xx answer.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// RateLimitedError is a local throttling decision. The request was never sent.
type RateLimitedError struct {
	Method string
	Path   string
	Err    error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
