package voting

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeAttempts = 8

var errCodeTaken = errors.New("group code already taken")

// CreatedGroup is the result of CreatePollGroup.
type CreatedGroup struct {
	Group  PollGroup
	Config PollConfig
}

// CreatePollGroup validates the schedule, allocates a share code and stores the group with its configuration.
func (s *Service) CreatePollGroup(ctx context.Context, name string, input PollConfigInput) (CreatedGroup, error) {
	if err := s.ensureDatabase(opCreateGroup); err != nil {
		return CreatedGroup{}, err
	}

	draft, err := ValidatePollConfig(input, s.Now(), s.Location())
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return CreatedGroup{}, newServiceError(opCreateGroup, string(validationErr.Reason), err)
		}
		return CreatedGroup{}, newServiceError(opCreateGroup, reasonInvalidInput, err)
	}

	if s.codes == nil {
		return CreatedGroup{}, newServiceError(opCreateGroup, reasonCodeFailed, errMissingCodeGenerator)
	}

	trimmedName := truncateRunes(strings.TrimSpace(name), maxGroupNameLength)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.NewCode()
		if err != nil {
			s.logError(opCreateGroup, reasonCodeFailed, err)
			return CreatedGroup{}, newServiceError(opCreateGroup, reasonCodeFailed, err)
		}

		created, err := s.insertGroup(ctx, code, trimmedName, draft)
		if errors.Is(err, errCodeTaken) {
			continue
		}
		if err != nil {
			return CreatedGroup{}, s.storageError(opCreateGroup, reasonInsertFailed, err, code)
		}

		s.loggerOrDefault().Info("poll group created",
			zap.String(fieldGroupCode, code.String()),
			zap.Time("event_at", draft.EventAt),
			zap.Time("vote_deadline", draft.VoteDeadline),
			zap.Int("votes_per_person", draft.VotesPerPerson))
		return created, nil
	}

	s.logError(opCreateGroup, reasonCodeFailed, errCodeSpaceExhausted)
	return CreatedGroup{}, newServiceError(opCreateGroup, reasonCodeFailed, errCodeSpaceExhausted)
}

func (s *Service) insertGroup(ctx context.Context, code GroupCode, name string, draft PollConfigDraft) (CreatedGroup, error) {
	var created CreatedGroup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&PollGroup{}).Where(queryCode, code.String()).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errCodeTaken
		}

		group := PollGroup{
			Code:             code.String(),
			Name:             name,
			CreatedAtSeconds: s.Now().Unix(),
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		config := PollConfig{
			GroupID:             group.ID,
			EventAtSeconds:      draft.EventAt.Unix(),
			VoteDeadlineSeconds: draft.VoteDeadline.Unix(),
			VotesPerPerson:      draft.VotesPerPerson,
		}
		if err := tx.Create(&config).Error; err != nil {
			return err
		}

		created = CreatedGroup{Group: group, Config: config}
		return nil
	})
	return created, err
}

// FindGroup resolves a share code case-insensitively, expiring the group first when due.
func (s *Service) FindGroup(ctx context.Context, code GroupCode) (PollGroup, error) {
	if err := s.ensureDatabase(opFindGroup); err != nil {
		return PollGroup{}, err
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return PollGroup{}, err
	}
	return s.loadGroup(s.db.WithContext(ctx), opFindGroup, code)
}
