package errors

import "errors"

// Token endpoint errors. The grant dispatcher collapses component-level
// failures into these before they reach the wire.
var (
	ErrInvalidClient        = errors.New("invalid client credentials")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrInvalidGrant         = errors.New("invalid, expired, or already used authorization code")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
)

// Resource access errors raised by the bearer-token guard. Token
// verification failures are deliberately undifferentiated so callers
// cannot distinguish a bad signature from an expired token.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("subject kind not allowed for this resource")
)
