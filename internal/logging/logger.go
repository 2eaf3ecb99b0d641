// Package logging builds the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// sensitiveKeys are attribute keys whose values are masked before
// emission. The handlers never log credentials on purpose; this catches
// the accidental case.
var sensitiveKeys = map[string]bool{
	"password":           true,
	"client_secret":      true,
	"access_token":       true,
	"authorization_code": true,
	"token_secret":       true,
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.String(a.Key, "[REDACTED]")
	}

	return a
}

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format at Info level, everything else uses
// human-readable text at Debug level.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: redactSensitive,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
