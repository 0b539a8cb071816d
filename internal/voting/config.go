package voting

import "time"

const defaultVotesPerPerson = 1

// PollConfigInput is the raw creation-form payload; times are wall-clock values in the display zone.
type PollConfigInput struct {
	EventLocal     string
	DeadlineLocal  string
	VotesPerPerson int
}

// PollConfigDraft is a validated configuration ready to be persisted.
type PollConfigDraft struct {
	EventAt        time.Time
	VoteDeadline   time.Time
	VotesPerPerson int
}

// ValidatePollConfig applies the creation rules in order and returns the first failure.
// A quota outside 1..3 is coerced to 1 rather than rejected.
func ValidatePollConfig(input PollConfigInput, now time.Time, location *time.Location) (PollConfigDraft, error) {
	eventLocal, eventOK := ParseLocal(input.EventLocal, location)
	deadlineLocal, deadlineOK := ParseLocal(input.DeadlineLocal, location)
	if !eventOK || !deadlineOK {
		return PollConfigDraft{}, &ValidationError{Reason: ReasonMissingFields}
	}
	if !onTheHour(eventLocal) || !onTheHour(deadlineLocal) {
		return PollConfigDraft{}, &ValidationError{Reason: ReasonNotHourAligned}
	}

	eventAt := NormalizeUTC(eventLocal)
	deadline := NormalizeUTC(deadlineLocal)
	if !deadline.Before(eventAt) {
		return PollConfigDraft{}, &ValidationError{Reason: ReasonDeadlineAfterEvent}
	}
	if !eventAt.After(NormalizeUTC(now)) {
		return PollConfigDraft{}, &ValidationError{Reason: ReasonEventInPast}
	}

	return PollConfigDraft{
		EventAt:        eventAt,
		VoteDeadline:   deadline,
		VotesPerPerson: normalizeQuota(input.VotesPerPerson),
	}, nil
}

func onTheHour(value time.Time) bool {
	return value.Minute() == 0 && value.Second() == 0
}

func normalizeQuota(value int) int {
	switch value {
	case 1, 2, 3:
		return value
	default:
		return defaultVotesPerPerson
	}
}
