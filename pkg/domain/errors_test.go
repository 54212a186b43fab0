package domain

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
)

func TestStorageFailureMatchesSentinelAndCause(t *testing.T) {
	err := errors.Wrap(StorageFailure("consume view", context.DeadlineExceeded), "ledger")
	if !errors.Is(err, ErrStorage) {
		t.Error("expected errors.Is(err, ErrStorage)")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected the cause to stay reachable")
	}
	if got := HTTPStatus(err); got != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus() = %d, want 503", got)
	}
	if got := ToResp(err).Code; got != "STORAGE_UNAVAILABLE" {
		t.Errorf("code = %s, want STORAGE_UNAVAILABLE", got)
	}
}

func TestStorageFailureNil(t *testing.T) {
	if StorageFailure("x", nil) != nil {
		t.Error("nil cause should produce nil error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrPasteNotFound, http.StatusNotFound},
		{errors.Wrap(ErrPasteExpired, "consume"), http.StatusNotFound},
		{NewValidationErr("bad"), http.StatusBadRequest},
		{ErrPasteExists, http.StatusConflict},
		{ErrInvalidRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestToRespUnknown(t *testing.T) {
	resp := ToResp(errors.New("secret detail"))
	if resp.Code != "INTERNAL_ERROR" || resp.Error != "internal error" {
		t.Errorf("unexpected response %+v", resp)
	}
}
