package voting

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxGroupCodeLength = 12
	maxDeviceIDLength  = 64
	maxGroupNameLength = 120
	// MaxNicknameLength bounds the nickname stored on a ballot, in runes.
	MaxNicknameLength = 10
	// DefaultNickname is recorded on ballots cast by devices without a nickname.
	DefaultNickname = "Guest"
)

var (
	// ErrInvalidGroupCode indicates that a group code is empty or exceeds storage bounds.
	ErrInvalidGroupCode = errors.New("voting: invalid group code")
	// ErrInvalidDeviceID indicates that a device identifier is empty or exceeds storage bounds.
	ErrInvalidDeviceID = errors.New("voting: invalid device id")
	// ErrInvalidCandidateID indicates that a candidate identifier is not positive.
	ErrInvalidCandidateID = errors.New("voting: invalid candidate id")
)

// GroupCode is the normalized, upper-case share code of a poll group.
type GroupCode string

// NewGroupCode validates raw input and returns a GroupCode. Codes compare case-insensitively.
func NewGroupCode(rawInput string) (GroupCode, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGroupCode)
	}
	if len(trimmed) > maxGroupCodeLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidGroupCode, maxGroupCodeLength)
	}
	return GroupCode(trimmed), nil
}

// String returns the underlying code.
func (code GroupCode) String() string {
	return string(code)
}

// DeviceID is the opaque per-device voter identity.
type DeviceID string

// NewDeviceID validates raw input and returns a DeviceID.
func NewDeviceID(rawInput string) (DeviceID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if len(trimmed) > maxDeviceIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeviceID, maxDeviceIDLength)
	}
	return DeviceID(trimmed), nil
}

// String returns the underlying identifier.
func (id DeviceID) String() string {
	return string(id)
}

// CandidateID identifies a restaurant candidate within a poll group.
type CandidateID uint

// NewCandidateID validates the value and returns a CandidateID.
func NewCandidateID(value int64) (CandidateID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCandidateID, value)
	}
	return CandidateID(value), nil
}

// Nickname is the display name recorded on ballots.
type Nickname string

// NewNickname trims the input, falls back to DefaultNickname and truncates to MaxNicknameLength runes.
func NewNickname(rawInput string) Nickname {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return DefaultNickname
	}
	return Nickname(truncateRunes(trimmed, MaxNicknameLength))
}

// String returns the nickname text.
func (nickname Nickname) String() string {
	if nickname == "" {
		return DefaultNickname
	}
	return string(nickname)
}

// Voter carries the identity context of a single vote-cast request.
type Voter struct {
	DeviceID DeviceID
	Nickname Nickname
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

// PollGroup is a scoped voting session addressed by its share code.
type PollGroup struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Code             string `gorm:"column:code;size:12;not null;uniqueIndex:idx_vote_groups_code"`
	Name             string `gorm:"column:name;size:120;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PollGroup) TableName() string {
	return "vote_groups"
}

// PollConfig holds the immutable schedule and quota of a poll group.
type PollConfig struct {
	ID                  uint  `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID             uint  `gorm:"column:group_id;not null;uniqueIndex:idx_vote_group_configs_group"`
	EventAtSeconds      int64 `gorm:"column:event_at_s;not null;index:idx_vote_group_configs_event"`
	VoteDeadlineSeconds int64 `gorm:"column:vote_deadline_s;not null;index:idx_vote_group_configs_deadline"`
	VotesPerPerson      int   `gorm:"column:votes_per_person;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (PollConfig) TableName() string {
	return "vote_group_configs"
}

// EventAt returns the event instant in UTC.
func (c PollConfig) EventAt() time.Time {
	return fromUnixSeconds(c.EventAtSeconds)
}

// VoteDeadline returns the voting deadline in UTC.
func (c PollConfig) VoteDeadline() time.Time {
	return fromUnixSeconds(c.VoteDeadlineSeconds)
}

// Quota returns the number of candidates a single device may vote for.
func (c PollConfig) Quota() int {
	return normalizeQuota(c.VotesPerPerson)
}

// Candidate is a restaurant a poll group can vote for.
type Candidate struct {
	ID      uint   `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID uint   `gorm:"column:group_id;not null;index:idx_vote_candidates_group"`
	Name    string `gorm:"column:name;size:120;not null"`
	Phone   string `gorm:"column:phone;size:50;not null;default:''"`
	Hours   string `gorm:"column:hours;size:120;not null;default:''"`
	MenuURL string `gorm:"column:menu_url;size:300;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Candidate) TableName() string {
	return "vote_candidates"
}

// EligibilityToken records that a device has used one vote on a candidate.
type EligibilityToken struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID          uint   `gorm:"column:group_id;not null;uniqueIndex:uq_vote_token_once_per_candidate,priority:1"`
	ClientID         string `gorm:"column:client_id;size:64;not null;uniqueIndex:uq_vote_token_once_per_candidate,priority:2"`
	CandidateID      uint   `gorm:"column:candidate_id;not null;uniqueIndex:uq_vote_token_once_per_candidate,priority:3"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EligibilityToken) TableName() string {
	return "vote_tokens"
}

// Ballot is the display record of who voted for which candidate.
type Ballot struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID          uint   `gorm:"column:group_id;not null;uniqueIndex:uq_vote_ballot_once_per_candidate,priority:1"`
	Nickname         string `gorm:"column:nickname;size:10;not null;uniqueIndex:uq_vote_ballot_once_per_candidate,priority:2"`
	CandidateID      uint   `gorm:"column:candidate_id;not null;uniqueIndex:uq_vote_ballot_once_per_candidate,priority:3"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Ballot) TableName() string {
	return "vote_ballots"
}

// ResultTally is the live vote count of one candidate.
type ResultTally struct {
	ID          uint  `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID     uint  `gorm:"column:group_id;not null;uniqueIndex:uq_vote_result,priority:1"`
	CandidateID uint  `gorm:"column:candidate_id;not null;uniqueIndex:uq_vote_result,priority:2"`
	Votes       int64 `gorm:"column:votes;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (ResultTally) TableName() string {
	return "vote_results"
}

// Models lists every persisted voting model for schema migration.
func Models() []any {
	return []any{
		&PollGroup{},
		&PollConfig{},
		&Candidate{},
		&EligibilityToken{},
		&Ballot{},
		&ResultTally{},
	}
}
