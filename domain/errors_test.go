package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	f := NewFailure(FailRateLimited, "slow down")
	if KindOf(f) != FailRateLimited {
		t.Errorf("Expected rate_limited, got %s", KindOf(f))
	}

	// Wrapped failures keep their kind
	wrapped := fmt.Errorf("dispatch: %w", f)
	if KindOf(wrapped) != FailRateLimited {
		t.Errorf("Expected rate_limited through wrapping, got %s", KindOf(wrapped))
	}

	// Unclassified errors are internal
	if KindOf(errors.New("boom")) != FailInternal {
		t.Error("Expected unclassified error to report internal")
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(NewFailure(FailNetwork, "timeout")) {
		t.Error("Expected network failure to be retriable")
	}
	if !Retriable(NewFailure(FailRateLimited, "429")) {
		t.Error("Expected rate-limit failure to be retriable")
	}
	if Retriable(NewFailure(FailValidation, "empty body")) {
		t.Error("Expected validation failure to not be retriable")
	}
	if Retriable(NewFailure(FailProtocol, "bad json")) {
		t.Error("Expected protocol failure to not be retriable")
	}
}

func TestFailureUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	f := WrapFailure(FailNetwork, inner, "fetch timeline")
	if !errors.Is(f, inner) {
		t.Error("Expected wrapped error to be reachable via errors.Is")
	}
}
