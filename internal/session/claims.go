package session

import (
	"maps"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dinnervote/backend/internal/voting"
)

// ScopeVote keys nicknames used on ballots.
const ScopeVote = "vote"

// Claims is the JWT payload carried by the device cookie.
type Claims struct {
	DeviceID  string            `json:"device_id"`
	Nicknames map[string]string `json:"nicknames,omitempty"`
	jwt.RegisteredClaims
}

// NicknameKey joins a scope and a group code into the key used in Claims.Nicknames.
func NicknameKey(scope string, code voting.GroupCode) string {
	return scope + ":" + code.String()
}

// Nickname returns the nickname chosen for the scope and group, or the default.
func (c Claims) Nickname(scope string, code voting.GroupCode) voting.Nickname {
	return voting.NewNickname(c.Nicknames[NicknameKey(scope, code)])
}

// WithNickname returns a copy of the claims carrying the normalized nickname.
func (c Claims) WithNickname(scope string, code voting.GroupCode, rawNickname string) Claims {
	nicknames := make(map[string]string, len(c.Nicknames)+1)
	maps.Copy(nicknames, c.Nicknames)
	nicknames[NicknameKey(scope, code)] = voting.NewNickname(rawNickname).String()
	c.Nicknames = nicknames
	return c
}

// Voter builds the voting identity for a ballot in the given group.
func (c Claims) Voter(code voting.GroupCode) (voting.Voter, error) {
	deviceID, err := voting.NewDeviceID(c.DeviceID)
	if err != nil {
		return voting.Voter{}, err
	}
	return voting.Voter{DeviceID: deviceID, Nickname: c.Nickname(ScopeVote, code)}, nil
}
