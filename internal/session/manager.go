package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "dinnervote"
	defaultSessionTTL = 30 * 24 * time.Hour
	cookiePath        = "/"
)

var (
	ErrMissingSigningSecret = errors.New("session manager: signing secret required")
	ErrMissingCookieName    = errors.New("session manager: cookie name required")
	ErrMissingToken         = errors.New("session manager: token required")
	ErrInvalidToken         = errors.New("session manager: invalid token")
	ErrExpiredToken         = errors.New("session manager: token expired")
	ErrMissingDeviceID      = errors.New("session manager: device id required")
)

// ManagerConfig describes how device sessions are signed and carried.
type ManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	TTL           time.Duration
	Secure        bool
	Clock         func() time.Time
	NewDeviceID   func() (string, error)
}

// Manager issues and validates the HS256 device cookie.
type Manager struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	ttl           time.Duration
	secure        bool
	clock         func() time.Time
	newDeviceID   func() (string, error)
}

// NewManager constructs a Manager with the provided configuration.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newDeviceID := cfg.NewDeviceID
	if newDeviceID == nil {
		newDeviceID = newUUIDv7
	}
	return &Manager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		ttl:           ttl,
		secure:        cfg.Secure,
		clock:         clock,
		newDeviceID:   newDeviceID,
	}, nil
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CookieName returns the cookie name configured for session lookups.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// NewDevice returns claims for a device that has never been seen before.
func (m *Manager) NewDevice() (Claims, error) {
	deviceID, err := m.newDeviceID()
	if err != nil {
		return Claims{}, fmt.Errorf("session manager: generate device id: %w", err)
	}
	return Claims{DeviceID: deviceID}, nil
}

// Issue signs the claims with a fresh expiry and returns the token with its expiry instant.
func (m *Manager) Issue(claims Claims) (string, time.Time, error) {
	if strings.TrimSpace(claims.DeviceID) == "" {
		return "", time.Time{}, ErrMissingDeviceID
	}
	now := m.clock().UTC()
	expiresAt := now.Add(m.ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   claims.DeviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (m *Manager) ValidateToken(tokenString string) (Claims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithTimeFunc(m.clock),
		jwt.WithIssuer(m.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.DeviceID) == "" || claims.Subject != claims.DeviceID {
		return Claims{}, ErrMissingDeviceID
	}
	return *claims, nil
}

// ValidateRequest extracts the configured cookie from the request and validates it.
func (m *Manager) ValidateRequest(r *http.Request) (Claims, error) {
	if r == nil {
		return Claims{}, ErrMissingToken
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil {
		return Claims{}, ErrMissingToken
	}
	return m.ValidateToken(cookie.Value)
}

// Resolve returns the request's device claims, minting a new device when the cookie is absent or unusable.
// The boolean reports whether the claims are new and must be written back to the client.
func (m *Manager) Resolve(r *http.Request) (Claims, bool, error) {
	claims, err := m.ValidateRequest(r)
	if err == nil {
		return claims, false, nil
	}
	fresh, err := m.NewDevice()
	if err != nil {
		return Claims{}, false, err
	}
	return fresh, true, nil
}

// Cookie builds the HTTP cookie carrying the signed token.
func (m *Manager) Cookie(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(m.clock().UTC()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     cookiePath,
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
