package voting

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// MaxCandidatesPerGroup caps how many restaurants a single poll may list.
	MaxCandidatesPerGroup = 10
	// MinCandidatesPerGroup is the number of restaurants a poll must keep once populated.
	MinCandidatesPerGroup = 1

	maxCandidateNameLength  = 120
	maxCandidatePhoneLength = 50
	maxCandidateHoursLength = 120
	maxCandidateMenuLength  = 300
)

// CandidateInput is the payload for registering a restaurant.
type CandidateInput struct {
	Name    string
	Phone   string
	Hours   string
	MenuURL string
}

// AddCandidate registers a restaurant with the group. Names are unique per group ignoring case.
func (s *Service) AddCandidate(ctx context.Context, code GroupCode, input CandidateInput) (Candidate, error) {
	if err := s.ensureDatabase(opAddCandidate); err != nil {
		return Candidate{}, err
	}
	name := truncateRunes(strings.TrimSpace(input.Name), maxCandidateNameLength)
	if name == "" {
		return Candidate{}, newServiceError(opAddCandidate, reasonInvalidInput, ErrInvalidInput)
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return Candidate{}, err
	}

	var candidate Candidate
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.loadGroup(tx, opAddCandidate, code)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&Candidate{}).Where(queryGroupID, group.ID).Count(&count).Error; err != nil {
			return s.storageError(opAddCandidate, reasonQueryFailed, err, code)
		}
		if count >= MaxCandidatesPerGroup {
			return newServiceError(opAddCandidate, reasonCandidateLimit, ErrCandidateLimit)
		}

		var duplicates int64
		if err := tx.Model(&Candidate{}).
			Where(queryGroupID+" AND LOWER(name) = ?", group.ID, strings.ToLower(name)).
			Count(&duplicates).Error; err != nil {
			return s.storageError(opAddCandidate, reasonQueryFailed, err, code)
		}
		if duplicates > 0 {
			return newServiceError(opAddCandidate, reasonCandidateExists, ErrCandidateExists)
		}

		candidate = Candidate{
			GroupID: group.ID,
			Name:    name,
			Phone:   truncateRunes(strings.TrimSpace(input.Phone), maxCandidatePhoneLength),
			Hours:   truncateRunes(strings.TrimSpace(input.Hours), maxCandidateHoursLength),
			MenuURL: truncateRunes(strings.TrimSpace(input.MenuURL), maxCandidateMenuLength),
		}
		if err := tx.Create(&candidate).Error; err != nil {
			return s.storageError(opAddCandidate, reasonInsertFailed, err, code)
		}
		return nil
	})
	if txErr != nil {
		s.logRejection(opAddCandidate, txErr, zap.String(fieldGroupCode, code.String()))
		return Candidate{}, txErr
	}
	return candidate, nil
}

// Candidates lists the group's restaurants ordered by name.
func (s *Service) Candidates(ctx context.Context, code GroupCode) ([]Candidate, error) {
	if err := s.ensureDatabase(opListCandidates); err != nil {
		return nil, err
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	group, err := s.loadGroup(db, opListCandidates, code)
	if err != nil {
		return nil, err
	}
	return s.loadCandidates(db, opListCandidates, group)
}

// RemoveCandidate deletes a restaurant together with its eligibility tokens, ballots and tally.
func (s *Service) RemoveCandidate(ctx context.Context, code GroupCode, candidateID CandidateID) error {
	if err := s.ensureDatabase(opRemoveCandidate); err != nil {
		return err
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.loadGroup(tx, opRemoveCandidate, code)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&Candidate{}).Where(queryGroupID, group.ID).Count(&count).Error; err != nil {
			return s.storageError(opRemoveCandidate, reasonQueryFailed, err, code)
		}
		if count <= MinCandidatesPerGroup {
			return newServiceError(opRemoveCandidate, reasonLastCandidate, ErrLastCandidate)
		}

		var candidate Candidate
		err = tx.Where(queryGroupAndID, group.ID, uint(candidateID)).Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRemoveCandidate, reasonCandidateNotFound, ErrNotFound)
		}
		if err != nil {
			return s.storageError(opRemoveCandidate, reasonQueryFailed, err, code)
		}

		if err := deleteCandidateState(tx, group.ID, candidate.ID); err != nil {
			return s.storageError(opRemoveCandidate, reasonDeleteFailed, err, code)
		}
		return nil
	})
	if txErr != nil {
		s.logRejection(opRemoveCandidate, txErr,
			zap.String(fieldGroupCode, code.String()),
			zap.Uint(fieldCandidateID, uint(candidateID)))
		return txErr
	}

	s.loggerOrDefault().Info("candidate removed",
		zap.String(fieldGroupCode, code.String()),
		zap.Uint(fieldCandidateID, uint(candidateID)))
	return nil
}

func deleteCandidateState(tx *gorm.DB, groupID, candidateID uint) error {
	dependents := []any{
		&EligibilityToken{},
		&Ballot{},
		&ResultTally{},
	}
	for _, model := range dependents {
		if err := tx.Where(queryGroupCandidate, groupID, candidateID).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Where(queryGroupAndID, groupID, candidateID).Delete(&Candidate{}).Error
}
