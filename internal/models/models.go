// Package models defines types shared across internal packages.
package models

import "time"

// Principal is an end-user identity loaded from the seed file.
// Principals are immutable at runtime; provisioning happens out of band.
type Principal struct {
	Username     string `yaml:"username"`
	FullName     string `yaml:"full_name"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	Disabled     bool   `yaml:"disabled"`
}

// Client is a registered OAuth client. RedirectURI is only set for
// clients that use the authorization_code grant.
type Client struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// AuthCode is a single-use authorization code. Used flips false to true
// exactly once on redemption. Spent codes are not deleted, so a replayed
// code fails as already used rather than unknown.
type AuthCode struct {
	Code      string    `json:"code"`
	Username  string    `json:"username"`
	ClientID  string    `json:"client_id"`
	Used      bool      `json:"used"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
