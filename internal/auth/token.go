package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	autherrors "github.com/plcgate/authd/internal/errors"
)

// TokenIssuer mints and verifies signed bearer tokens. Tokens are
// stateless: validity is determined by HMAC signature and expiry alone,
// nothing is stored server-side.
type TokenIssuer struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewTokenIssuer creates an issuer signing with the process-wide secret.
// defaultTTL applies when Issue is called without an explicit lifetime.
func NewTokenIssuer(secret []byte, defaultTTL time.Duration) *TokenIssuer {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}

	return &TokenIssuer{secret: secret, defaultTTL: defaultTTL}
}

// Issue creates a signed HS256 token asserting the subject. A
// non-positive ttl falls back to the issuer default.
func (i *TokenIssuer) Issue(sub Subject, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = i.defaultTTL
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks signature integrity and expiry and returns the token's
// subject. Structural malformation, signature mismatch, lapsed expiry,
// and a bad subject claim all collapse to ErrInvalidToken so callers
// cannot probe which check rejected the token.
func (i *TokenIssuer) Verify(token string) (Subject, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Subject{}, autherrors.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return Subject{}, autherrors.ErrInvalidToken
	}

	sub, err := ParseSubject(claims.Subject)
	if err != nil {
		return Subject{}, autherrors.ErrInvalidToken
	}

	return sub, nil
}
