package voting

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing poll group or candidate.
	ErrNotFound = errors.New("voting: not found")
	// ErrAlreadyClosed reports a vote cast at or after the deadline.
	ErrAlreadyClosed = errors.New("voting: poll closed")
	// ErrDuplicateVote reports a repeated vote for the same candidate.
	ErrDuplicateVote = errors.New("voting: duplicate vote")
	// ErrQuotaExceeded reports a device that has used all of its votes.
	ErrQuotaExceeded = errors.New("voting: vote quota exceeded")
	// ErrStorageFailure reports a transaction that could not commit; the caller may retry.
	ErrStorageFailure = errors.New("voting: storage failure")
	// ErrInvalidInput reports malformed caller input.
	ErrInvalidInput = errors.New("voting: invalid input")
	// ErrCandidateLimit reports a group that already holds the maximum number of candidates.
	ErrCandidateLimit = errors.New("voting: candidate limit reached")
	// ErrCandidateExists reports a candidate name already present in the group.
	ErrCandidateExists = errors.New("voting: candidate already exists")
	// ErrLastCandidate reports an attempt to remove the final candidate of a group.
	ErrLastCandidate = errors.New("voting: group must keep at least one candidate")

	errMissingDatabase      = errors.New("database handle is required")
	errMissingCodeGenerator = errors.New("code generator is required")
	errCodeSpaceExhausted   = errors.New("could not allocate a unique group code")
)

// ServiceError carries a stable dotted code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-qualified error code, e.g. voting.cast_vote.duplicate_vote.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func storageFailure(cause error) error {
	return fmt.Errorf("%w: %w", ErrStorageFailure, cause)
}

// ValidationReason names the first poll configuration rule that failed.
type ValidationReason string

const (
	ReasonMissingFields      ValidationReason = "missing_fields"
	ReasonNotHourAligned     ValidationReason = "not_hour_aligned"
	ReasonDeadlineAfterEvent ValidationReason = "deadline_after_event"
	ReasonEventInPast        ValidationReason = "event_in_past"
)

// ValidationError reports a rejected poll configuration.
type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	return "voting: invalid poll config: " + string(e.Reason)
}
