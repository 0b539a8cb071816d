package voting

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew      = "voting.service.new"
	opCastVote        = "voting.cast_vote"
	opResults         = "voting.results"
	opTally           = "voting.tally"
	opDeviceVotes     = "voting.device_votes"
	opMaybeExpire     = "voting.maybe_expire"
	opSweepExpired    = "voting.sweep_expired"
	opCreateGroup     = "voting.create_group"
	opFindGroup       = "voting.find_group"
	opAddCandidate    = "voting.add_candidate"
	opListCandidates  = "voting.list_candidates"
	opRemoveCandidate = "voting.remove_candidate"

	fieldGroupCode   = "group_code"
	fieldCandidateID = "candidate_id"
	fieldDeviceID    = "device_id"

	columnGroupID     = "group_id"
	columnCandidateID = "candidate_id"
	columnVotes       = "votes"

	queryCode           = "code = ?"
	queryGroupID        = columnGroupID + " = ?"
	queryGroupCandidate = columnGroupID + " = ? AND " + columnCandidateID + " = ?"
	queryGroupClient    = columnGroupID + " = ? AND client_id = ?"
	queryGroupClientFor = queryGroupClient + " AND " + columnCandidateID + " = ?"
	queryGroupAndID     = columnGroupID + " = ? AND id = ?"

	reasonMissingDatabase    = "missing_database"
	reasonInvalidInput       = "invalid_input"
	reasonGroupNotFound      = "group_not_found"
	reasonCandidateNotFound  = "candidate_not_found"
	reasonAlreadyClosed      = "already_closed"
	reasonDuplicateVote      = "duplicate_vote"
	reasonNicknameVoted      = "nickname_already_voted"
	reasonQuotaExceeded      = "quota_exceeded"
	reasonGroupLookupFailed  = "group_lookup_failed"
	reasonConfigLookupFailed = "config_lookup_failed"
	reasonQueryFailed        = "query_failed"
	reasonTokenInsertFailed  = "token_insert_failed"
	reasonBallotInsertFailed = "ballot_insert_failed"
	reasonTallyUpsertFailed  = "tally_upsert_failed"
	reasonDeleteFailed       = "delete_failed"
	reasonInsertFailed       = "insert_failed"
	reasonCodeFailed         = "code_generation_failed"
	reasonCandidateLimit     = "candidate_limit"
	reasonCandidateExists    = "candidate_exists"
	reasonLastCandidate      = "last_candidate"
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the voting service.
type ServiceConfig struct {
	Database      *gorm.DB
	Clock         func() time.Time
	Location      *time.Location
	CodeGenerator CodeGenerator
	Logger        *zap.Logger
}

// Service implements poll creation, vote casting, closure, winners and expiry on top of GORM.
type Service struct {
	db       *gorm.DB
	clock    func() time.Time
	location *time.Location
	codes    CodeGenerator
	logger   *zap.Logger
}

// NewService validates the configuration and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	codes := cfg.CodeGenerator
	if codes == nil {
		codes = NewRandomCodeGenerator()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:       cfg.Database,
		clock:    clock,
		location: location,
		codes:    codes,
		logger:   logger,
	}, nil
}

// Location returns the display zone used for wall-clock input and event-day boundaries.
func (s *Service) Location() *time.Location {
	if s == nil || s.location == nil {
		return time.UTC
	}
	return s.location
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time {
	return NormalizeUTC(s.clock())
}

// VoteReceipt describes a successfully recorded vote.
type VoteReceipt struct {
	GroupCode    GroupCode
	CandidateID  CandidateID
	Votes        int64
	VotesUsed    int
	VotesAllowed int
	CastAt       time.Time
}

// CastVote records one vote for the candidate on behalf of the voter.
// The eligibility token, ballot and tally increment commit together or not at all.
func (s *Service) CastVote(ctx context.Context, code GroupCode, candidateID CandidateID, voter Voter) (VoteReceipt, error) {
	if err := s.ensureDatabase(opCastVote); err != nil {
		return VoteReceipt{}, err
	}
	if voter.DeviceID == "" || candidateID == 0 {
		return VoteReceipt{}, newServiceError(opCastVote, reasonInvalidInput, ErrInvalidInput)
	}

	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return VoteReceipt{}, err
	}

	var receipt VoteReceipt
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.loadGroup(tx, opCastVote, code)
		if err != nil {
			return err
		}

		var candidate Candidate
		err = tx.Where(queryGroupAndID, group.ID, uint(candidateID)).Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCastVote, reasonCandidateNotFound, ErrNotFound)
		}
		if err != nil {
			return s.storageError(opCastVote, reasonQueryFailed, err, code)
		}

		config, err := s.loadConfig(tx, opCastVote, group)
		if err != nil {
			return err
		}

		now := s.Now()
		if IsClosed(config, now) {
			return newServiceError(opCastVote, reasonAlreadyClosed, ErrAlreadyClosed)
		}

		var existing int64
		if err := tx.Model(&EligibilityToken{}).
			Where(queryGroupClientFor, group.ID, voter.DeviceID.String(), candidate.ID).
			Count(&existing).Error; err != nil {
			return s.storageError(opCastVote, reasonQueryFailed, err, code)
		}
		if existing > 0 {
			return newServiceError(opCastVote, reasonDuplicateVote, ErrDuplicateVote)
		}

		var used int64
		if err := tx.Model(&EligibilityToken{}).
			Where(queryGroupClient, group.ID, voter.DeviceID.String()).
			Count(&used).Error; err != nil {
			return s.storageError(opCastVote, reasonQueryFailed, err, code)
		}
		allowed := defaultVotesPerPerson
		if config != nil {
			allowed = config.Quota()
		}
		if used >= int64(allowed) {
			return newServiceError(opCastVote, reasonQuotaExceeded, ErrQuotaExceeded)
		}

		token := EligibilityToken{
			GroupID:          group.ID,
			ClientID:         voter.DeviceID.String(),
			CandidateID:      candidate.ID,
			CreatedAtSeconds: now.Unix(),
		}
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&token)
		if created.Error != nil {
			return s.storageError(opCastVote, reasonTokenInsertFailed, created.Error, code)
		}
		if created.RowsAffected == 0 {
			return newServiceError(opCastVote, reasonDuplicateVote, ErrDuplicateVote)
		}

		ballot := Ballot{
			GroupID:          group.ID,
			Nickname:         NewNickname(string(voter.Nickname)).String(),
			CandidateID:      candidate.ID,
			CreatedAtSeconds: now.Unix(),
		}
		created = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ballot)
		if created.Error != nil {
			return s.storageError(opCastVote, reasonBallotInsertFailed, created.Error, code)
		}
		if created.RowsAffected == 0 {
			return newServiceError(opCastVote, reasonNicknameVoted, ErrDuplicateVote)
		}

		tally := ResultTally{GroupID: group.ID, CandidateID: candidate.ID, Votes: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: columnGroupID}, {Name: columnCandidateID}},
			DoUpdates: clause.Assignments(map[string]any{
				columnVotes: gorm.Expr(ResultTally{}.TableName() + "." + columnVotes + " + 1"),
			}),
		}).Create(&tally).Error; err != nil {
			return s.storageError(opCastVote, reasonTallyUpsertFailed, err, code)
		}

		var stored ResultTally
		if err := tx.Where(queryGroupCandidate, group.ID, candidate.ID).Take(&stored).Error; err != nil {
			return s.storageError(opCastVote, reasonTallyUpsertFailed, err, code)
		}

		receipt = VoteReceipt{
			GroupCode:    GroupCode(group.Code),
			CandidateID:  CandidateID(candidate.ID),
			Votes:        stored.Votes,
			VotesUsed:    int(used) + 1,
			VotesAllowed: allowed,
			CastAt:       now,
		}
		return nil
	})
	if txErr != nil {
		s.logRejection(opCastVote, txErr,
			zap.String(fieldGroupCode, code.String()),
			zap.Uint(fieldCandidateID, uint(candidateID)),
			zap.String(fieldDeviceID, voter.DeviceID.String()))
		return VoteReceipt{}, txErr
	}

	s.loggerOrDefault().Info("vote cast",
		zap.String(fieldGroupCode, code.String()),
		zap.Uint(fieldCandidateID, uint(candidateID)),
		zap.Int64("votes", receipt.Votes))
	return receipt, nil
}

// PollView is the read model rendered for a poll group.
type PollView struct {
	Group      PollGroup
	Config     *PollConfig
	Candidates []Candidate
	Tally      map[CandidateID]int64
	Ballots    []Ballot
	Closed     bool
	Winners    []CandidateID
	Now        time.Time
}

// Results expires the group if due, then returns its candidates, tally, closure and winners.
// Winners are only populated once the poll is closed.
func (s *Service) Results(ctx context.Context, code GroupCode) (PollView, error) {
	if err := s.ensureDatabase(opResults); err != nil {
		return PollView{}, err
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return PollView{}, err
	}

	db := s.db.WithContext(ctx)
	group, err := s.loadGroup(db, opResults, code)
	if err != nil {
		return PollView{}, err
	}
	config, err := s.loadConfig(db, opResults, group)
	if err != nil {
		return PollView{}, err
	}
	candidates, err := s.loadCandidates(db, opResults, group)
	if err != nil {
		return PollView{}, err
	}
	tally, err := s.loadTally(db, opResults, group)
	if err != nil {
		return PollView{}, err
	}
	var ballots []Ballot
	if err := db.Where(queryGroupID, group.ID).Order("created_at_s ASC").Order("id ASC").Find(&ballots).Error; err != nil {
		return PollView{}, s.storageError(opResults, reasonQueryFailed, err, code)
	}

	now := s.Now()
	view := PollView{
		Group:      group,
		Config:     config,
		Candidates: candidates,
		Tally:      tally,
		Ballots:    ballots,
		Closed:     IsClosed(config, now),
		Now:        now,
	}
	if view.Closed {
		ids := make([]CandidateID, 0, len(candidates))
		for _, candidate := range candidates {
			ids = append(ids, CandidateID(candidate.ID))
		}
		view.Winners = Winners(ids, tally)
	}
	return view, nil
}

// Tally returns the vote count per candidate; candidates without votes are absent.
func (s *Service) Tally(ctx context.Context, code GroupCode) (map[CandidateID]int64, error) {
	if err := s.ensureDatabase(opTally); err != nil {
		return nil, err
	}
	if _, err := s.MaybeExpire(ctx, code); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	group, err := s.loadGroup(db, opTally, code)
	if err != nil {
		return nil, err
	}
	return s.loadTally(db, opTally, group)
}

// DeviceVotes lists the candidates the device has already voted for in the group.
func (s *Service) DeviceVotes(ctx context.Context, code GroupCode, deviceID DeviceID) ([]CandidateID, error) {
	if err := s.ensureDatabase(opDeviceVotes); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	group, err := s.loadGroup(db, opDeviceVotes, code)
	if err != nil {
		return nil, err
	}
	var ids []uint
	if err := db.Model(&EligibilityToken{}).
		Where(queryGroupClient, group.ID, deviceID.String()).
		Order(columnCandidateID+" ASC").
		Pluck(columnCandidateID, &ids).Error; err != nil {
		return nil, s.storageError(opDeviceVotes, reasonQueryFailed, err, code)
	}
	votes := make([]CandidateID, 0, len(ids))
	for _, id := range ids {
		votes = append(votes, CandidateID(id))
	}
	return votes, nil
}

func (s *Service) ensureDatabase(operation string) error {
	if s == nil || s.db == nil {
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (s *Service) loadGroup(db *gorm.DB, operation string, code GroupCode) (PollGroup, error) {
	var group PollGroup
	err := db.Where(queryCode, code.String()).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PollGroup{}, newServiceError(operation, reasonGroupNotFound, ErrNotFound)
	}
	if err != nil {
		return PollGroup{}, s.storageError(operation, reasonGroupLookupFailed, err, code)
	}
	return group, nil
}

func (s *Service) loadConfig(db *gorm.DB, operation string, group PollGroup) (*PollConfig, error) {
	var config PollConfig
	err := db.Where(queryGroupID, group.ID).Take(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError(operation, reasonConfigLookupFailed, err, GroupCode(group.Code))
	}
	return &config, nil
}

func (s *Service) loadCandidates(db *gorm.DB, operation string, group PollGroup) ([]Candidate, error) {
	var candidates []Candidate
	if err := db.Where(queryGroupID, group.ID).Order("name ASC").Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, s.storageError(operation, reasonQueryFailed, err, GroupCode(group.Code))
	}
	return candidates, nil
}

func (s *Service) loadTally(db *gorm.DB, operation string, group PollGroup) (map[CandidateID]int64, error) {
	var rows []ResultTally
	if err := db.Where(queryGroupID, group.ID).Find(&rows).Error; err != nil {
		return nil, s.storageError(operation, reasonQueryFailed, err, GroupCode(group.Code))
	}
	tally := make(map[CandidateID]int64, len(rows))
	for _, row := range rows {
		tally[CandidateID(row.CandidateID)] = row.Votes
	}
	return tally, nil
}

func (s *Service) storageError(operation, reason string, err error, code GroupCode) error {
	s.logError(operation, reason, err, zap.String(fieldGroupCode, code.String()))
	return newServiceError(operation, reason, storageFailure(err))
}

// logRejection logs expected user-facing refusals at info level; storage failures are already logged.
func (s *Service) logRejection(operation string, err error, fields ...zap.Field) {
	if errors.Is(err, ErrStorageFailure) {
		return
	}
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		attrs = append(attrs, zap.String("code", serviceErr.Code()))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Info("voting request rejected", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("voting service error", attrs...)
}
