package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dinnervote/backend/internal/voting"
)

func TestStatusForError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "not found", err: voting.ErrNotFound, wantStatus: http.StatusNotFound, wantReason: "not_found"},
		{name: "closed", err: voting.ErrAlreadyClosed, wantStatus: http.StatusConflict, wantReason: "already_closed"},
		{name: "duplicate", err: fmt.Errorf("wrapped: %w", voting.ErrDuplicateVote), wantStatus: http.StatusConflict, wantReason: "duplicate_vote"},
		{name: "quota", err: voting.ErrQuotaExceeded, wantStatus: http.StatusConflict, wantReason: "quota_exceeded"},
		{name: "validation", err: &voting.ValidationError{Reason: voting.ReasonEventInPast}, wantStatus: http.StatusBadRequest, wantReason: "event_in_past"},
		{name: "device", err: voting.ErrInvalidDeviceID, wantStatus: http.StatusBadRequest, wantReason: "invalid_request"},
		{name: "storage", err: fmt.Errorf("%w: disk full", voting.ErrStorageFailure), wantStatus: http.StatusServiceUnavailable, wantReason: "storage_unavailable"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantReason: "internal_error"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			status, reason := statusForError(testCase.err)
			if status != testCase.wantStatus || reason != testCase.wantReason {
				t.Fatalf("expected %d/%s, got %d/%s", testCase.wantStatus, testCase.wantReason, status, reason)
			}
		})
	}
}
