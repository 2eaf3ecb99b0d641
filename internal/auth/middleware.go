package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	autherrors "github.com/plcgate/authd/internal/errors"
)

type contextKey int

const ctxSubject contextKey = iota

// RequestSubject returns the authenticated subject from the context.
// The second return is false outside a guarded handler.
func RequestSubject(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(ctxSubject).(Subject)
	return s, ok
}

// Guard returns HTTP middleware that validates Bearer tokens and
// authorizes by subject kind. A missing, malformed, or expired token is
// a 401; a valid token of the wrong kind is a 403. KindAny admits any
// valid token. The verified subject is injected into the request context
// so downstream handlers can identify the caller.
func Guard(issuer *TokenIssuer, logger *slog.Logger, required SubjectKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Debug("guard: no bearer token", slog.String("path", r.URL.Path))
				// RFC 6750 Section 3.1: no error attribute when no token was provided.
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")

				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			sub, err := issuer.Verify(token)
			if err != nil {
				logger.Debug("guard: invalid bearer token", slog.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", autherrors.ErrInvalidToken.Error())

				return
			}

			if required != KindAny && sub.Kind != required {
				logger.Debug("guard: wrong subject kind",
					slog.String("subject", sub.String()),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", autherrors.ErrForbidden.Error())

				return
			}

			ctx := context.WithValue(r.Context(), ctxSubject, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
