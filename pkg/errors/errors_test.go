package errors

import (
	stdErrors "errors"
	"net/http"
	"strings"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewConflictCarriesReason(t *testing.T) {
	err := NewConflict(ReasonAlreadyIncluded, "link already included")

	if err.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
	if !IsConflict(err, ReasonAlreadyIncluded) {
		t.Fatal("expected IsConflict to match the reason")
	}
	if IsConflict(err, ReasonRoomOccupied) {
		t.Fatal("expected IsConflict to reject other reasons")
	}
}

func TestHasReason(t *testing.T) {
	err := NewPredictionFailed(ReasonPlaylistOutdated, "re-sync required")

	reason, ok := HasReason(err)
	if !ok || reason != ReasonPlaylistOutdated {
		t.Fatalf("expected playlist_outdated reason, got %q (ok=%v)", reason, ok)
	}

	if _, ok := HasReason(ErrNotFound); ok {
		t.Fatal("expected no reason on plain not-found error")
	}
}

func TestNewValidationNamesField(t *testing.T) {
	err := NewValidation("playlist_id")
	if err.Code != "VALIDATION_FAILED" {
		t.Fatalf("unexpected code: %s", err.Code)
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
	if !strings.Contains(err.Message, "playlist_id") {
		t.Fatalf("expected message to name the field, got %q", err.Message)
	}
}
