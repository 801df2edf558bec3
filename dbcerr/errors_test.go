package dbcerr

import (
	"errors"
	"strings"
	"testing"
)

func TestNewProducesTwelveCharMark(t *testing.T) {
	e := New(PoolTimeout, "borrow timed out")
	if len(e.Mark) != 12 {
		t.Fatalf("expected 12-char mark, got %q (%d chars)", e.Mark, len(e.Mark))
	}
	for _, r := range e.Mark {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyz234567", r) {
			t.Fatalf("mark %q contains unexpected rune %q", e.Mark, r)
		}
	}
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(ConnectFailure, cause, "dial mysql")

	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if wrapped.Unwrap() != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := New(UnknownTransaction, "no such transaction")
	if !Is(err, UnknownTransaction) {
		t.Fatalf("expected Is to match UnknownTransaction")
	}
	if Is(err, PoolClosed) {
		t.Fatalf("did not expect Is to match PoolClosed")
	}
}

func TestWrapNilCauseFallsBackToNew(t *testing.T) {
	err := Wrap(Backend, nil, "no cause")
	if err.Unwrap() != nil {
		t.Fatalf("expected nil cause to round-trip as nil")
	}
}
