package errkind

import (
	"errors"
	"testing"
)

func TestWrapPreservesErrorsIs(t *testing.T) {
	err := Wrap(SessionNotFound, "sess-123")
	if !errors.Is(err, SessionNotFound) {
		t.Fatalf("errors.Is(%v, SessionNotFound) = false, want true", err)
	}
	if errors.Is(err, NotRegistered) {
		t.Fatalf("errors.Is(%v, NotRegistered) = true, want false", err)
	}
}

func TestWrapErrorMessageIncludesKindAndMsg(t *testing.T) {
	err := Wrap(InvalidTone, "Z")
	want := "Z: invalid tone"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapUnwrapReturnsKind(t *testing.T) {
	err := Wrap(AllLinesBusy, "line manager")
	var u interface{ Unwrap() error }
	if !errors.As(err, &u) {
		t.Fatal("expected wrapped error to implement Unwrap")
	}
	if unwrapped := u.Unwrap(); unwrapped != AllLinesBusy {
		t.Fatalf("Unwrap() = %v, want %v", unwrapped, AllLinesBusy)
	}
}

func TestKindsAreDistinct(t *testing.T) {
	kinds := []error{
		InvalidConfig, UriBuildFailed, TransportStartFailed, NotRegistered,
		AllLinesBusy, InvalidTarget, SessionNotFound, SessionNotEstablished,
		InvalidTone, DtmfUnsupported, TransferRejected, SubscribeFailed,
		ProbeTimeout,
	}
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if seen[k.Error()] {
			t.Fatalf("duplicate error kind message %q", k.Error())
		}
		seen[k.Error()] = true
	}
}
