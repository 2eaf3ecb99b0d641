package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/plcgate/authd/internal/models"
)

// Seed holds the static principals and clients provisioned at startup.
// The directory built from it is read-only for the life of the process;
// changing the file requires a restart.
type Seed struct {
	Principals []models.Principal `yaml:"principals"`
	Clients    []models.Client    `yaml:"clients"`
}

// LoadSeed reads and validates the YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("validating seed file: %w", err)
	}

	return seed, nil
}

func (s *Seed) validate() error {
	seenUsers := make(map[string]struct{})

	for i, p := range s.Principals {
		if p.Username == "" {
			return fmt.Errorf("principal %d: username is required", i+1)
		}

		if !strings.HasPrefix(p.PasswordHash, "$2") {
			return fmt.Errorf("principal %q: password_hash is not a bcrypt hash", p.Username)
		}

		if _, dup := seenUsers[p.Username]; dup {
			return fmt.Errorf("duplicate username %q", p.Username)
		}

		seenUsers[p.Username] = struct{}{}
	}

	seenClients := make(map[string]struct{})

	for i, c := range s.Clients {
		if c.ClientID == "" {
			return fmt.Errorf("client %d: client_id is required", i+1)
		}

		if c.ClientSecret == "" {
			return fmt.Errorf("client %q: client_secret is required", c.ClientID)
		}

		if _, dup := seenClients[c.ClientID]; dup {
			return fmt.Errorf("duplicate client_id %q", c.ClientID)
		}

		seenClients[c.ClientID] = struct{}{}
	}

	return nil
}
