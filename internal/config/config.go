package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// tokenSecretMinLen is the minimum length for the token signing secret.
// Shorter secrets do not provide enough entropy for HS256 signing.
const tokenSecretMinLen = 32

// Config holds all environment-based configuration for authd.
type Config struct {
	// HTTP listen address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Secret key used to sign access tokens. Required, minimum 32 characters.
	TokenSecret string `env:"TOKEN_SECRET"`

	// Path to the YAML seed file with principals and clients.
	SeedPath string `env:"SEED_PATH" envDefault:"seed.yaml"`

	// Path to the authorization code database. Empty means codes are
	// kept in memory and lost on restart.
	CodeDBPath string `env:"CODE_DB_PATH"`

	// TTL for tokens issued without an explicit duration.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"15m"`

	// TTL for tokens minted through the authorization_code and
	// client_credentials grants.
	GrantTokenTTL time.Duration `env:"GRANT_TOKEN_TTL" envDefault:"30m"`

	// TTL for authorization codes.
	CodeTTL time.Duration `env:"CODE_TTL" envDefault:"5m"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the token secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}

	if len(c.TokenSecret) < tokenSecretMinLen {
		return fmt.Errorf("TOKEN_SECRET too short (minimum %d characters)", tokenSecretMinLen)
	}

	if c.SeedPath == "" {
		return fmt.Errorf("SEED_PATH is required")
	}

	if c.TokenTTL <= 0 || c.GrantTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.CodeTTL <= 0 {
		return fmt.Errorf("CODE_TTL must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
