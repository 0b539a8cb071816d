package voting

import (
	"errors"
	"testing"
	"time"
)

func TestValidatePollConfigAcceptsValidSchedule(t *testing.T) {
	now := localTime(2025, time.May, 20, 10, 0)
	draft, err := ValidatePollConfig(PollConfigInput{
		EventLocal:     "2025-06-01T19:00",
		DeadlineLocal:  "2025-06-01T12:00",
		VotesPerPerson: 2,
	}, now, taipei)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if !draft.EventAt.Equal(time.Date(2025, time.June, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected event instant %s", draft.EventAt)
	}
	if draft.EventAt.Location() != time.UTC {
		t.Fatalf("expected event instant in UTC, got %s", draft.EventAt.Location())
	}
	if !draft.VoteDeadline.Equal(time.Date(2025, time.June, 1, 4, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected deadline instant %s", draft.VoteDeadline)
	}
	if draft.VotesPerPerson != 2 {
		t.Fatalf("expected quota 2, got %d", draft.VotesPerPerson)
	}
}

func TestValidatePollConfigRulesInOrder(t *testing.T) {
	now := localTime(2025, time.May, 20, 10, 0)
	testCases := []struct {
		name       string
		input      PollConfigInput
		wantReason ValidationReason
	}{
		{
			name:       "missing-event",
			input:      PollConfigInput{DeadlineLocal: "2025-06-01T12:00", VotesPerPerson: 1},
			wantReason: ReasonMissingFields,
		},
		{
			name:       "unparseable-deadline",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:00", DeadlineLocal: "noon", VotesPerPerson: 1},
			wantReason: ReasonMissingFields,
		},
		{
			name:       "missing-wins-over-alignment",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:30", DeadlineLocal: "", VotesPerPerson: 1},
			wantReason: ReasonMissingFields,
		},
		{
			name:       "event-not-on-the-hour",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:30", DeadlineLocal: "2025-06-01T12:00", VotesPerPerson: 1},
			wantReason: ReasonNotHourAligned,
		},
		{
			name:       "deadline-with-seconds",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:00", DeadlineLocal: "2025-06-01T12:00:30", VotesPerPerson: 1},
			wantReason: ReasonNotHourAligned,
		},
		{
			name:       "deadline-after-event",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:00", DeadlineLocal: "2025-06-01T20:00", VotesPerPerson: 2},
			wantReason: ReasonDeadlineAfterEvent,
		},
		{
			name:       "deadline-equals-event",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:00", DeadlineLocal: "2025-06-01T19:00", VotesPerPerson: 1},
			wantReason: ReasonDeadlineAfterEvent,
		},
		{
			name:       "alignment-wins-over-ordering",
			input:      PollConfigInput{EventLocal: "2025-06-01T19:00", DeadlineLocal: "2025-06-01T20:15", VotesPerPerson: 1},
			wantReason: ReasonNotHourAligned,
		},
		{
			name:       "event-in-past",
			input:      PollConfigInput{EventLocal: "2025-05-20T10:00", DeadlineLocal: "2025-05-20T09:00", VotesPerPerson: 1},
			wantReason: ReasonEventInPast,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ValidatePollConfig(testCase.input, now, taipei)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validationErr.Reason != testCase.wantReason {
				t.Fatalf("unexpected reason: got %s want %s", validationErr.Reason, testCase.wantReason)
			}
		})
	}
}

func TestValidatePollConfigCoercesQuota(t *testing.T) {
	now := localTime(2025, time.May, 20, 10, 0)
	for _, quota := range []int{0, -1, 4, 99} {
		draft, err := ValidatePollConfig(defaultPollInput(quota), now, taipei)
		if err != nil {
			t.Fatalf("quota %d: unexpected error: %v", quota, err)
		}
		if draft.VotesPerPerson != 1 {
			t.Fatalf("quota %d: expected coercion to 1, got %d", quota, draft.VotesPerPerson)
		}
	}
	for _, quota := range []int{1, 2, 3} {
		draft, err := ValidatePollConfig(defaultPollInput(quota), now, taipei)
		if err != nil {
			t.Fatalf("quota %d: unexpected error: %v", quota, err)
		}
		if draft.VotesPerPerson != quota {
			t.Fatalf("quota %d: expected quota preserved, got %d", quota, draft.VotesPerPerson)
		}
	}
}

func TestValidatePollConfigAllowsPastDeadlineWhenEventIsFuture(t *testing.T) {
	now := localTime(2025, time.June, 1, 13, 0)
	if _, err := ValidatePollConfig(defaultPollInput(1), now, taipei); err != nil {
		t.Fatalf("expected schedule with elapsed deadline to validate, got %v", err)
	}
}
