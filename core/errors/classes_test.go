package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodedUnwrapsToClass(t *testing.T) {
	sentinel := New(ErrState, "nothing_to_claim", "vault: nothing to claim")
	wrapped := fmt.Errorf("claim: %w", sentinel)

	if !stderrors.Is(wrapped, sentinel) {
		t.Fatalf("expected sentinel in chain")
	}
	if !stderrors.Is(wrapped, ErrState) {
		t.Fatalf("expected class in chain")
	}
	if stderrors.Is(wrapped, ErrValidation) {
		t.Fatalf("unexpected class match")
	}
	if ClassOf(wrapped) != ErrState {
		t.Fatalf("unexpected class %v", ClassOf(wrapped))
	}
	if CodeOf(wrapped) != "nothing_to_claim" {
		t.Fatalf("unexpected code %q", CodeOf(wrapped))
	}
	if ClassOf(stderrors.New("plain")) != nil {
		t.Fatalf("plain errors are unclassified")
	}
}
