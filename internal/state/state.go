// Package state persists authorization codes in a bbolt database so
// pending codes survive a restart. It implements auth.CodeStore; the
// in-memory store remains the default when no database path is
// configured.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/plcgate/authd/internal/auth"
	"github.com/plcgate/authd/internal/models"
)

const (
	// stateDirPerm is the permission mode for the database directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// reapInterval controls how often long-expired codes are pruned.
	reapInterval = 5 * time.Minute

	// reapGrace keeps expired codes around long enough that a late
	// redemption still fails as expired rather than unknown.
	reapGrace = time.Hour
)

var codesBucket = []byte("auth_codes")

// Store is a bbolt-backed authorization code store.
type Store struct {
	db *bolt.DB
}

// Open opens the code database at the given path, creating it and its
// parent directory if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening code db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(codesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating codes bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores an authorization code record.
func (s *Store) Put(code models.AuthCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encoding code: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(codesBucket).Put([]byte(code.Code), data)
	})
	if err != nil {
		return fmt.Errorf("storing code: %w", err)
	}

	return nil
}

// Redeem runs the check-and-set inside a single write transaction. bolt
// serializes writers, so exactly one of any number of racing redemptions
// can flip the used flag; the rest observe it set and fail.
func (s *Store) Redeem(code, clientID string, now time.Time) (models.AuthCode, error) {
	var ac models.AuthCode

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)

		data := b.Get([]byte(code))
		if data == nil {
			return auth.ErrCodeNotFound
		}

		if err := json.Unmarshal(data, &ac); err != nil {
			return fmt.Errorf("decoding stored code: %w", err)
		}

		if ac.ClientID != clientID {
			return auth.ErrClientMismatch
		}

		if ac.Used {
			return auth.ErrCodeUsed
		}

		if now.After(ac.ExpiresAt) {
			return auth.ErrCodeExpired
		}

		ac.Used = true

		updated, err := json.Marshal(ac)
		if err != nil {
			return fmt.Errorf("encoding redeemed code: %w", err)
		}

		return b.Put([]byte(code), updated)
	})
	if err != nil {
		return models.AuthCode{}, err
	}

	return ac, nil
}

// Reap deletes codes whose expiry lies more than grace in the past and
// returns how many were removed. Redemption handles expiry on its own;
// this only bounds database growth.
func (s *Store) Reap(now time.Time, grace time.Duration) (int, error) {
	cutoff := now.Add(-grace)
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ac models.AuthCode
			if err := json.Unmarshal(v, &ac); err != nil {
				// Unreadable entries are removed rather than kept forever.
				if err := c.Delete(); err != nil {
					return err
				}
				removed++

				continue
			}

			if ac.ExpiresAt.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reaping codes: %w", err)
	}

	return removed, nil
}

// RunReaper prunes long-expired codes on a ticker until the context is
// cancelled. The in-memory store runs its own goroutine for this; the
// durable store leaves lifecycle to the caller so the loop shuts down
// with the rest of the process.
func (s *Store) RunReaper(ctx context.Context, logger *slog.Logger) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.Reap(time.Now(), reapGrace)
			if err != nil {
				logger.Error("reaping codes", slog.String("error", err.Error()))
				continue
			}

			if removed > 0 {
				logger.Debug("reaped codes", slog.Int("removed", removed))
			}
		case <-ctx.Done():
			return nil
		}
	}
}
