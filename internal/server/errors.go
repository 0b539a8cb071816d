package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dinnervote/backend/internal/voting"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusForError(err error) (int, string) {
	var validationErr *voting.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, string(validationErr.Reason)
	case errors.Is(err, voting.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, voting.ErrAlreadyClosed):
		return http.StatusConflict, "already_closed"
	case errors.Is(err, voting.ErrDuplicateVote):
		return http.StatusConflict, "duplicate_vote"
	case errors.Is(err, voting.ErrQuotaExceeded):
		return http.StatusConflict, "quota_exceeded"
	case errors.Is(err, voting.ErrCandidateLimit):
		return http.StatusConflict, "candidate_limit"
	case errors.Is(err, voting.ErrCandidateExists):
		return http.StatusConflict, "candidate_exists"
	case errors.Is(err, voting.ErrLastCandidate):
		return http.StatusConflict, "last_candidate"
	case errors.Is(err, voting.ErrInvalidInput),
		errors.Is(err, voting.ErrInvalidGroupCode),
		errors.Is(err, voting.ErrInvalidCandidateID),
		errors.Is(err, voting.ErrInvalidDeviceID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, voting.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, reason := statusForError(err)
	payload := errorPayload{Error: reason}
	var serviceErr *voting.ServiceError
	if errors.As(err, &serviceErr) {
		payload.Code = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("unhandled request error", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.AbortWithStatusJSON(status, payload)
}
