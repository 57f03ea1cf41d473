package mail

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsAreDistinct(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("fetch unread: %w", &AuthError{Err: base})

	var authErr *AuthError
	if !errors.As(wrapped, &authErr) {
		t.Fatal("expected AuthError to surface through wrapping")
	}
	var connErr *ConnectionError
	if errors.As(wrapped, &connErr) {
		t.Error("AuthError must not match ConnectionError")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Unwrap chain broken: underlying error not reachable")
	}
}

func TestConnectionErrorMessage(t *testing.T) {
	err := &ConnectionError{Err: errors.New("dial tcp: timeout")}
	if got := err.Error(); got == "" {
		t.Fatal("empty error message")
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	base := errors.New("bad mime")
	err := &ParseError{Err: base}
	if !errors.Is(err, base) {
		t.Error("ParseError should unwrap to the underlying cause")
	}
}
