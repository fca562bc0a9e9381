package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a provider failure. The selector's fallback decisions
// depend on the kind: transient kinds advance to the next candidate while
// [KindInvalidRequest] with provider-specific parameters is surfaced to the
// caller so the misconfiguration can be fixed.
type ErrorKind int

const (
	// KindUnknown covers anything that does not match a more specific kind.
	KindUnknown ErrorKind = iota

	// KindUnreachable means the backend could not be reached: connection
	// refused, DNS failure, or a request timeout.
	KindUnreachable

	// KindAuthFailure means the credential is missing, invalid, or could not
	// be decrypted.
	KindAuthFailure

	// KindRateLimited means the backend signalled throttling (HTTP 429).
	// Callers may surface this distinctly rather than silently falling back,
	// since repeated fallback under rate limiting wastes quota on providers
	// that may be near their own limits.
	KindRateLimited

	// KindInvalidRequest means the request itself was rejected, e.g. a
	// malformed model identifier.
	KindInvalidRequest
)

// String returns the stable label used in logs and metric attributes.
func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindAuthFailure:
		return "auth_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Error is the classified failure type returned by all provider
// implementations. It wraps the underlying transport or API error.
type Error struct {
	// Provider is the name of the backend that failed.
	Provider string

	// Kind is the failure classification.
	Kind ErrorKind

	// Err is the underlying cause. May be nil when the failure was detected
	// before any call was made (e.g. a missing credential).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified provider error.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the [ErrorKind] from err. Context cancellation is never
// classified (callers must check for it separately), so KindOf reports
// [KindUnknown] for context errors just as for any other unclassified error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// KindFromStatus maps an HTTP response status to an [ErrorKind]. Shared by the
// cloud providers, whose chat-completion APIs use conventional status codes.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailure
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// IsCancelled reports whether err stems from context cancellation or an
// expired deadline, directly or wrapped inside a provider error.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
