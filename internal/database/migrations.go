package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dinnervote/backend/internal/voting"
)

const (
	migrationUppercaseGroupCodes    = "2025-05-01_uppercase_group_codes"
	migrationBackfillBallotNickname = "2025-05-12_backfill_ballot_nicknames"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationUppercaseGroupCodes, apply: uppercaseGroupCodes},
		{name: migrationBackfillBallotNickname, apply: backfillBallotNicknames},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Codes are looked up upper-case; rows written by older clients may not be.
func uppercaseGroupCodes(db *gorm.DB) error {
	return db.Model(&voting.PollGroup{}).
		Where("code <> UPPER(code)").
		Update("code", gorm.Expr("UPPER(code)")).Error
}

func backfillBallotNicknames(db *gorm.DB) error {
	return db.Model(&voting.Ballot{}).
		Where("TRIM(nickname) = ''").
		Update("nickname", voting.DefaultNickname).Error
}
