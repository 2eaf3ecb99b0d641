package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/plcgate/authd/internal/models"
)

// Redemption failure kinds. The token endpoint collapses all four into a
// single invalid_grant so callers cannot probe ledger state.
var (
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrClientMismatch = errors.New("authorization code issued to a different client")
	ErrCodeUsed       = errors.New("authorization code already used")
	ErrCodeExpired    = errors.New("authorization code expired")
)

// CodeStore persists authorization codes. Redeem must be atomic: when
// redemptions of the same code race, exactly one call may succeed and
// the rest must fail with ErrCodeUsed.
type CodeStore interface {
	Put(code models.AuthCode) error
	Redeem(code, clientID string, now time.Time) (models.AuthCode, error)
}

const (
	// codeBytes is the number of random bytes in an authorization code
	// (256 bits, URL-safe base64 encoded).
	codeBytes = 32

	// reapInterval controls how often long-expired codes are pruned.
	reapInterval = 5 * time.Minute

	// reapGrace keeps expired codes around long enough that a late
	// redemption still fails as expired rather than unknown.
	reapGrace = time.Hour
)

// Ledger issues and redeems single-use authorization codes against an
// injected store.
type Ledger struct {
	store CodeStore
	ttl   time.Duration
}

// NewLedger creates a ledger issuing codes with the given lifetime.
func NewLedger(store CodeStore, ttl time.Duration) *Ledger {
	return &Ledger{store: store, ttl: ttl}
}

// Issue generates a new code owned by username on behalf of clientID and
// records it unused. Issuance needs no coordination beyond the store's
// concurrent-insert safety.
func (l *Ledger) Issue(username, clientID string) (string, error) {
	code := randomToken(codeBytes)
	now := time.Now()

	err := l.store.Put(models.AuthCode{
		Code:      code,
		Username:  username,
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	})
	if err != nil {
		return "", err
	}

	return code, nil
}

// Redeem consumes the code on behalf of clientID and returns the owning
// username. A code is redeemable at most once and only by the client it
// was issued to; the check-and-set on the used flag happens inside the
// store.
func (l *Ledger) Redeem(code, clientID string) (string, error) {
	ac, err := l.store.Redeem(code, clientID, time.Now())
	if err != nil {
		return "", err
	}

	return ac.Username, nil
}

// MemoryCodeStore is the in-memory CodeStore. All checks and the used
// flip happen under a single mutex. A background reaper prunes codes
// long past expiry; recently expired entries are kept so their
// redemption failure still reads as expired.
// Call Stop() to clean up the reaper goroutine.
type MemoryCodeStore struct {
	mu     sync.Mutex
	codes  map[string]*models.AuthCode
	stopGC chan struct{}
}

// NewMemoryCodeStore creates an empty store and starts the reaper.
func NewMemoryCodeStore() *MemoryCodeStore {
	s := &MemoryCodeStore{
		codes:  make(map[string]*models.AuthCode),
		stopGC: make(chan struct{}),
	}
	go s.reapLoop()

	return s
}

// Stop terminates the background reaper goroutine.
func (s *MemoryCodeStore) Stop() {
	close(s.stopGC)
}

func (s *MemoryCodeStore) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap(time.Now())
		case <-s.stopGC:
			return
		}
	}
}

// reap removes codes whose expiry lies more than reapGrace in the past.
func (s *MemoryCodeStore) reap(now time.Time) {
	cutoff := now.Add(-reapGrace)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ac := range s.codes {
		if ac.ExpiresAt.Before(cutoff) {
			delete(s.codes, k)
		}
	}
}

// Put stores an authorization code.
func (s *MemoryCodeStore) Put(code models.AuthCode) error {
	s.mu.Lock()
	s.codes[code.Code] = &code
	s.mu.Unlock()

	return nil
}

// Redeem checks and sets the used flag under the store lock, so exactly
// one of any number of racing redemptions can succeed. Spent codes stay
// in the map with Used=true rather than being deleted.
func (s *MemoryCodeStore) Redeem(code, clientID string, now time.Time) (models.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.codes[code]
	if !ok {
		return models.AuthCode{}, ErrCodeNotFound
	}

	if ac.ClientID != clientID {
		return models.AuthCode{}, ErrClientMismatch
	}

	if ac.Used {
		return models.AuthCode{}, ErrCodeUsed
	}

	if now.After(ac.ExpiresAt) {
		return models.AuthCode{}, ErrCodeExpired
	}

	ac.Used = true

	return *ac, nil
}

// randomToken generates a cryptographically random URL-safe token of the
// given byte length.
func randomToken(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return base64.RawURLEncoding.EncodeToString(b)
}
