package voting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreatePollGroupPersistsConfiguration(t *testing.T) {
	clock := newFakeClock(localTime(2025, time.May, 20, 10, 0))
	service, db := newTestService(t, clock)

	created, err := service.CreatePollGroup(context.Background(), "  team lunch  ", defaultPollInput(2))
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if created.Group.Code != "ABC234" {
		t.Fatalf("unexpected code %s", created.Group.Code)
	}
	if created.Group.Name != "team lunch" {
		t.Fatalf("expected trimmed name, got %q", created.Group.Name)
	}

	var stored PollConfig
	if err := db.Where(queryGroupID, created.Group.ID).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !stored.EventAt().Equal(localTime(2025, time.June, 1, 19, 0)) {
		t.Fatalf("unexpected stored event %s", stored.EventAt())
	}
	if !stored.VoteDeadline().Equal(localTime(2025, time.June, 1, 12, 0)) {
		t.Fatalf("unexpected stored deadline %s", stored.VoteDeadline())
	}
	if stored.Quota() != 2 {
		t.Fatalf("unexpected quota %d", stored.Quota())
	}
}

func TestCreatePollGroupRetriesTakenCodes(t *testing.T) {
	clock := newFakeClock(localTime(2025, time.May, 20, 10, 0))
	service, _ := newTestService(t, clock, "ABC234", "ABC234", "XYZ789")

	first := mustCreateGroup(t, service, defaultPollInput(1))
	second := mustCreateGroup(t, service, defaultPollInput(1))
	if first.Group.Code != "ABC234" || second.Group.Code != "XYZ789" {
		t.Fatalf("unexpected codes %s and %s", first.Group.Code, second.Group.Code)
	}
}

func TestCreatePollGroupReportsValidationReason(t *testing.T) {
	clock := newFakeClock(localTime(2025, time.May, 20, 10, 0))
	service, db := newTestService(t, clock)

	_, err := service.CreatePollGroup(context.Background(), "late", PollConfigInput{
		EventLocal:     "2025-06-01T19:00",
		DeadlineLocal:  "2025-06-01T20:00",
		VotesPerPerson: 2,
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validationErr.Reason != ReasonDeadlineAfterEvent {
		t.Fatalf("unexpected reason %s", validationErr.Reason)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "voting.create_group.deadline_after_event" {
		t.Fatalf("unexpected service error %v", err)
	}
	if count := countRows(t, db, &PollGroup{}, ""); count != 0 {
		t.Fatalf("expected no group to be stored, found %d", count)
	}
}

func TestFindGroupIsCaseInsensitive(t *testing.T) {
	clock := newFakeClock(localTime(2025, time.May, 20, 10, 0))
	service, _ := newTestService(t, clock)
	created := mustCreateGroup(t, service, defaultPollInput(1))

	code, err := NewGroupCode(strings.ToLower(created.Group.Code))
	if err != nil {
		t.Fatalf("unexpected code error: %v", err)
	}
	group, err := service.FindGroup(context.Background(), code)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if group.ID != created.Group.ID {
		t.Fatalf("expected group %d, got %d", created.Group.ID, group.ID)
	}

	if _, err := service.FindGroup(context.Background(), "MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRandomCodeGeneratorUsesAlphabet(t *testing.T) {
	generator := NewRandomCodeGenerator()
	for attempt := 0; attempt < 50; attempt++ {
		code, err := generator.NewCode()
		if err != nil {
			t.Fatalf("unexpected code error: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("unexpected code length %d", len(code))
		}
		for _, char := range code.String() {
			if !strings.ContainsRune(codeAlphabet, char) {
				t.Fatalf("code %s contains character outside alphabet", code)
			}
		}
	}
}
