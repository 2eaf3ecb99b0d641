package auth

import (
	"net/url"
	"time"

	autherrors "github.com/plcgate/authd/internal/errors"
)

// Grant type values accepted by the token endpoint.
const (
	GrantPassword          = "password"
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// Grant is a parsed token request. Exactly one concrete variant is
// produced per request, so illegal field combinations cannot be
// represented past the parsing step.
type Grant interface {
	grantType() string
}

// PasswordGrant authenticates an end-user directly.
type PasswordGrant struct {
	Username string
	Password string
}

// AuthorizationCodeGrant exchanges a single-use code for a token.
type AuthorizationCodeGrant struct {
	ClientID     string
	ClientSecret string
	Code         string
}

// ClientCredentialsGrant authenticates a machine client.
type ClientCredentialsGrant struct {
	ClientID     string
	ClientSecret string
}

// unknownGrant carries an unrecognized grant_type. Client credentials
// are still carried along because they are checked before the grant
// type is rejected, keeping error precedence deterministic.
type unknownGrant struct {
	Name         string
	ClientID     string
	ClientSecret string
}

func (PasswordGrant) grantType() string          { return GrantPassword }
func (AuthorizationCodeGrant) grantType() string { return GrantAuthorizationCode }
func (ClientCredentialsGrant) grantType() string { return GrantClientCredentials }
func (g unknownGrant) grantType() string         { return g.Name }

// ParseGrant builds a Grant from token endpoint form values.
func ParseGrant(form url.Values) Grant {
	switch form.Get("grant_type") {
	case GrantPassword:
		return PasswordGrant{
			Username: form.Get("username"),
			Password: form.Get("password"),
		}
	case GrantAuthorizationCode:
		return AuthorizationCodeGrant{
			ClientID:     form.Get("client_id"),
			ClientSecret: form.Get("client_secret"),
			Code:         form.Get("code"),
		}
	case GrantClientCredentials:
		return ClientCredentialsGrant{
			ClientID:     form.Get("client_id"),
			ClientSecret: form.Get("client_secret"),
		}
	}

	return unknownGrant{
		Name:         form.Get("grant_type"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
	}
}

// IssuedToken is a successful token grant.
type IssuedToken struct {
	AccessToken string
	Subject     Subject
	TTL         time.Duration
}

// Dispatcher is the token endpoint state machine. Each call is a
// stateless decision tree over the parsed grant; nothing is persisted
// between calls except through the ledger.
type Dispatcher struct {
	dir    Directory
	ledger *Ledger
	issuer *TokenIssuer

	// grantTTL is the extended lifetime for tokens minted through the
	// authorization_code and client_credentials grants. The password
	// grant uses the issuer default.
	grantTTL time.Duration
}

// NewDispatcher wires the dispatcher's collaborators.
func NewDispatcher(dir Directory, ledger *Ledger, issuer *TokenIssuer, grantTTL time.Duration) *Dispatcher {
	return &Dispatcher{dir: dir, ledger: ledger, issuer: issuer, grantTTL: grantTTL}
}

// Dispatch validates the grant and mints a token. The check order is
// fixed: grant type first, then client authentication, then
// grant-specific validation. An unrecognized grant type is only
// reported after the client has authenticated.
func (d *Dispatcher) Dispatch(g Grant) (IssuedToken, error) {
	if pg, ok := g.(PasswordGrant); ok {
		return d.password(pg)
	}

	clientID, presented := clientAuth(g)

	client, found := d.dir.FindClient(clientID)
	stored := client.ClientSecret
	if !found {
		stored = "\x00invalid"
	}

	if !VerifySecret(stored, presented) || !found {
		return IssuedToken{}, autherrors.ErrInvalidClient
	}

	switch g := g.(type) {
	case AuthorizationCodeGrant:
		username, err := d.ledger.Redeem(g.Code, clientID)
		if err != nil {
			// Unknown, mismatched, spent, and expired codes all
			// collapse to the same protocol error.
			return IssuedToken{}, autherrors.ErrInvalidGrant
		}

		return d.mint(UserSubject(username), d.grantTTL)
	case ClientCredentialsGrant:
		return d.mint(ClientSubject(clientID), d.grantTTL)
	default:
		return IssuedToken{}, autherrors.ErrUnsupportedGrantType
	}
}

func (d *Dispatcher) password(g PasswordGrant) (IssuedToken, error) {
	p, found := d.dir.FindPrincipal(g.Username)
	hash := p.PasswordHash
	if !found {
		hash = dummyHash
	}

	if !VerifyPassword(hash, g.Password) || !found || p.Disabled {
		return IssuedToken{}, autherrors.ErrInvalidCredentials
	}

	return d.mint(UserSubject(g.Username), 0)
}

func (d *Dispatcher) mint(sub Subject, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		ttl = d.issuer.defaultTTL
	}

	token, err := d.issuer.Issue(sub, ttl)
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{AccessToken: token, Subject: sub, TTL: ttl}, nil
}

// clientAuth extracts client credentials from a non-password grant.
func clientAuth(g Grant) (clientID, secret string) {
	switch g := g.(type) {
	case AuthorizationCodeGrant:
		return g.ClientID, g.ClientSecret
	case ClientCredentialsGrant:
		return g.ClientID, g.ClientSecret
	case unknownGrant:
		return g.ClientID, g.ClientSecret
	}

	return "", ""
}
