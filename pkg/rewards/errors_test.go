package rewards

import (
	"errors"
	"testing"
)

func TestWrapErrorPreservesSentinel(t *testing.T) {
	t.Parallel()
	wrapped := WrapError("store", "redemption", "duplicate", ErrAlreadyRedeemed)
	if !errors.Is(wrapped, ErrAlreadyRedeemed) {
		t.Fatalf("expected errors.Is to match sentinel, got %v", wrapped)
	}

	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		t.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "redemption" || operationError.Code() != "duplicate" {
		t.Fatalf("unexpected segments: %+v", operationError)
	}
	if wrapped.Error() != "store.redemption.duplicate: already redeemed" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
}

func TestWrapErrorNilPassthrough(t *testing.T) {
	t.Parallel()
	if err := WrapError("store", "entry", "insert", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
