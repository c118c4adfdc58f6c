package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := Insufficient("wh-1", "tc-1", 3, 1)
	wrapped := fmt.Errorf("预留失败: %w", err)

	if !errors.Is(wrapped, ErrInsufficientStock) {
		t.Fatal("expected wrapped error to match ErrInsufficientStock")
	}
	if errors.Is(wrapped, ErrLedgerCorruption) {
		t.Fatal("did not expect match on ErrLedgerCorruption")
	}
	if KindOf(wrapped) != KindInsufficientStock {
		t.Errorf("expected kind %s, got %s", KindInsufficientStock, KindOf(wrapped))
	}
	meta := MetaOf(wrapped)
	if meta["available"] != 1 || meta["requested"] != 3 {
		t.Errorf("unexpected meta: %v", meta)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("plain errors should map to KindInternal")
	}
	if KindOf(nil) != "" {
		t.Error("nil error should have empty kind")
	}
}

func TestRetryableOnlyInsufficientStock(t *testing.T) {
	if !Retryable(Insufficient("w", "t", 1, 0)) {
		t.Error("insufficient stock should be retryable")
	}
	if Retryable(InvalidTransition("CaseLine", "l1", "A", "B")) {
		t.Error("invalid transition should not be retryable")
	}
	if Retryable(Corruption("w", "bad")) {
		t.Error("ledger corruption should not be retryable")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:             http.StatusBadRequest,
		KindNotFound:               http.StatusNotFound,
		KindInvalidStateTransition: http.StatusConflict,
		KindInsufficientStock:      http.StatusConflict,
		KindUnregisteredVehicle:    http.StatusUnprocessableEntity,
		KindLedgerCorruption:       http.StatusServiceUnavailable,
		KindInternal:               http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
