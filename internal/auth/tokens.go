// Package auth issues and verifies access and refresh tokens, hashes
// passwords and guards routes with bearer authentication.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for expired, malformed or mis-typed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Config holds token configuration.
type Config struct {
	// Secret signs tokens with HS256.
	Secret []byte

	// Issuer is set on every token and required when parsing.
	Issuer string

	// AccessTTL is the lifetime of access tokens (default: 15m).
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh tokens (default: 7d).
	RefreshTTL time.Duration
}

// DefaultConfig returns the default token configuration without a secret.
func DefaultConfig() Config {
	return Config{
		Issuer:     "postfeed",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// Claims are the JWT claims of postfeed tokens.
type Claims struct {
	Kind     string `json:"typ"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// Tokens issues and parses signed tokens.
type Tokens struct {
	config Config
	now    func() time.Time
}

// NewTokens creates a token issuer.
func NewTokens(cfg Config) (*Tokens, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	defaults := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaults.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaults.RefreshTTL
	}
	return &Tokens{config: cfg, now: time.Now}, nil
}

// RefreshTTL returns the refresh token lifetime, used for the cookie Max-Age.
func (t *Tokens) RefreshTTL() time.Duration {
	return t.config.RefreshTTL
}

// IssueAccess returns a short-lived access token for user.
func (t *Tokens) IssueAccess(user model.User) (string, error) {
	token, _, err := t.issue(KindAccess, user.ID, user.Username, t.config.AccessTTL)
	return token, err
}

// IssueRefresh returns a refresh token for userID and its unique id. Only the
// most recently issued id is accepted, so storing it rotates the token.
func (t *Tokens) IssueRefresh(userID string) (token, id string, err error) {
	return t.issue(KindRefresh, userID, "", t.config.RefreshTTL)
}

func (t *Tokens) issue(kind, userID, username string, ttl time.Duration) (string, string, error) {
	now := t.now()
	id := uuid.NewString()
	claims := Claims{
		Kind:     kind,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.config.Issuer,
			Subject:   userID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.config.Secret)
	if err != nil {
		return "", "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, id, nil
}

// ParseAccess verifies an access token.
func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, KindAccess)
}

// ParseRefresh verifies a refresh token.
func (t *Tokens) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, KindRefresh)
}

func (t *Tokens) parse(token, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.config.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %q token, want %q", ErrInvalidToken, claims.Kind, kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
