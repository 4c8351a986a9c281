package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies every error that crosses the adapter or bus
// boundary. Adapters map wire-level errors into these kinds; nothing
// protocol-specific leaks past them.
type FailureKind string

const (
	// FailAuth is an expired or invalid credential.
	FailAuth FailureKind = "auth"
	// FailRateLimited carries an optional retry-after hint.
	FailRateLimited FailureKind = "rate_limited"
	// FailNotFound means the target post or account no longer exists remotely.
	FailNotFound FailureKind = "not_found"
	// FailValidation is malformed input: schedule expression, empty body,
	// oversized media. Never retriable.
	FailValidation FailureKind = "validation"
	// FailNetwork is a transport failure, transient and retriable by the caller.
	FailNetwork FailureKind = "network"
	// FailProtocol is a malformed or unexpected remote response. Not retriable.
	FailProtocol FailureKind = "protocol"
	// FailConflict is an operation invalid in the current state, e.g.
	// cancelling a non-pending scheduled post.
	FailConflict FailureKind = "conflict"
	// FailInternal is an adapter or bus fault, including recovered panics.
	FailInternal FailureKind = "internal"
)

// Failure is the typed error shared across the system.
type Failure struct {
	Kind    FailureKind
	Message string
	// RetryAfter is set for rate-limit failures when the protocol
	// supplied a hint.
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	if f.Message != "" && f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure builds a failure of the given kind.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapFailure wraps an underlying error with a kind.
func WrapFailure(kind FailureKind, err error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain. Unclassified
// errors report as internal.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailInternal
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retriable reports whether a failure is worth another dispatch
// attempt. Only transient transport conditions qualify.
func Retriable(err error) bool {
	switch KindOf(err) {
	case FailNetwork, FailRateLimited:
		return true
	default:
		return false
	}
}
