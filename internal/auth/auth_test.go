package auth

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/plcgate/authd/internal/models"
)

// Shared fixtures for the auth package tests.

const (
	testUsername = "user1"
	testPassword = "password123"
	testClientID = "web-app-client-id"
	testSecret   = "web-app-client-secret"
	testRedirect = "http://localhost:8000/callback"

	plcClientID = "plc-client-id"
	plcSecret   = "plc-client-secret"
)

var testTokenSecret = []byte("0123456789abcdef0123456789abcdef")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hashFor hashes a password at MinCost to keep tests fast.
func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// testDirectory builds a static directory with one user, one web client
// with a redirect URI, and one machine client without.
func testDirectory(t *testing.T) *StaticDirectory {
	t.Helper()
	return NewStaticDirectory(
		[]models.Principal{{
			Username:     testUsername,
			FullName:     "Taro Yamada",
			Email:        "user1@example.com",
			PasswordHash: hashFor(t, testPassword),
		}},
		[]models.Client{
			{ClientID: testClientID, ClientSecret: testSecret, RedirectURI: testRedirect},
			{ClientID: plcClientID, ClientSecret: plcSecret},
		},
	)
}

func testCodeStore(t *testing.T) *MemoryCodeStore {
	t.Helper()
	s := NewMemoryCodeStore()
	t.Cleanup(s.Stop)
	return s
}

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(testCodeStore(t), 5*time.Minute)
}

func testIssuer() *TokenIssuer {
	return NewTokenIssuer(testTokenSecret, 15*time.Minute)
}

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(testDirectory(t), testLedger(t), testIssuer(), 30*time.Minute)
}
