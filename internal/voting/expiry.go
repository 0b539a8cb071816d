package voting

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaybeExpire removes every trace of the group once its event day has ended in the display zone.
// It reports whether the group was removed. Unknown groups and groups without a configuration are left alone.
func (s *Service) MaybeExpire(ctx context.Context, code GroupCode) (bool, error) {
	if err := s.ensureDatabase(opMaybeExpire); err != nil {
		return false, err
	}

	expired := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group PollGroup
		err := tx.Where(queryCode, code.String()).Take(&group).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return s.storageError(opMaybeExpire, reasonGroupLookupFailed, err, code)
		}

		config, err := s.loadConfig(tx, opMaybeExpire, group)
		if err != nil {
			return err
		}
		if config == nil {
			return nil
		}

		eventEnd := EventEnd(config.EventAt(), s.Location())
		if s.Now().Before(eventEnd) {
			return nil
		}

		if err := deleteGroupState(tx, group.ID); err != nil {
			return s.storageError(opMaybeExpire, reasonDeleteFailed, err, code)
		}
		expired = true
		return nil
	})
	if txErr != nil {
		return false, txErr
	}

	if expired {
		s.loggerOrDefault().Info("poll group expired", zap.String(fieldGroupCode, code.String()))
	}
	return expired, nil
}

// SweepExpired runs MaybeExpire for every group whose event has started and returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	if err := s.ensureDatabase(opSweepExpired); err != nil {
		return 0, err
	}

	var codes []string
	err := s.db.WithContext(ctx).
		Model(&PollGroup{}).
		Joins("JOIN "+PollConfig{}.TableName()+" ON "+PollConfig{}.TableName()+".group_id = "+PollGroup{}.TableName()+".id").
		Where(PollConfig{}.TableName()+".event_at_s <= ?", s.Now().Unix()).
		Pluck(PollGroup{}.TableName()+".code", &codes).Error
	if err != nil {
		s.logError(opSweepExpired, reasonQueryFailed, err)
		return 0, newServiceError(opSweepExpired, reasonQueryFailed, storageFailure(err))
	}

	removed := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		expired, err := s.MaybeExpire(ctx, GroupCode(code))
		if err != nil {
			return removed, err
		}
		if expired {
			removed++
		}
	}
	return removed, nil
}

func deleteGroupState(tx *gorm.DB, groupID uint) error {
	dependents := []any{
		&EligibilityToken{},
		&Ballot{},
		&ResultTally{},
		&Candidate{},
		&PollConfig{},
	}
	for _, model := range dependents {
		if err := tx.Where(queryGroupID, groupID).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&PollGroup{}, groupID).Error
}
