package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/model"
)

// DefaultTokenTTL is the lifetime of a token when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Messages returned by Verify. They never say which check failed beyond
// distinguishing expiry.
const (
	MsgInvalidToken = "invalid token"
	MsgTokenExpired = "token expired"
)

// Claims is the signed payload of an identity token. The account id travels
// in the standard subject claim. iat is whole seconds, so the issue instant
// is also carried in microseconds for the password freshness check.
type Claims struct {
	jwt.RegisteredClaims
	Role           model.Role `json:"role"`
	Username       string     `json:"username"`
	IssuedAtMicros int64      `json:"iat_us,omitempty"`
}

// AccountID returns the subject claim.
func (c *Claims) AccountID() string { return c.Subject }

// IssuedAtTime returns the issue instant at microsecond precision, falling
// back to iat, or the zero time when both are absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAtMicros > 0 {
		return time.UnixMicro(c.IssuedAtMicros)
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Token is a signed token together with its expiry.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenService issues and verifies HS256 identity tokens. It holds no
// mutable state after construction.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a TokenService. An empty secret is a configuration
// error and must abort startup. A non-positive ttl selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, apperr.New(apperr.Configuration, "token signing secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock returns a copy of s reading time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// TTL returns the default token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the account. ttl <= 0 uses the service default.
func (s *TokenService) Issue(accountID string, role model.Role, username string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:           role,
		Username:       username,
		IssuedAtMicros: now.UnixMicro(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.Internal, err, "sign token")
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the signature, then expiry, and returns the claims.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.Authentication, err, MsgTokenExpired)
		}
		return nil, apperr.Wrap(apperr.Authentication, err, MsgInvalidToken)
	}
	if !tok.Valid || claims.Subject == "" || !claims.Role.Valid() || claims.IssuedAt == nil {
		return nil, apperr.New(apperr.Authentication, MsgInvalidToken)
	}
	return claims, nil
}
