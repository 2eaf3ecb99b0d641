package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	autherrors "github.com/plcgate/authd/internal/errors"
)

// maxRequestBody caps request bodies on the auth endpoints.
const maxRequestBody = 1 << 20

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// writeJSONError writes an OAuth-style error response.
func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// grantErrorStatus maps a dispatch failure to its HTTP status and wire
// error code. Anything outside the protocol taxonomy is a server fault.
func grantErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, autherrors.ErrInvalidClient):
		return http.StatusUnauthorized, "invalid_client"
	case errors.Is(err, autherrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, autherrors.ErrInvalidGrant):
		return http.StatusBadRequest, "invalid_grant"
	case errors.Is(err, autherrors.ErrUnsupportedGrantType):
		return http.StatusBadRequest, "unsupported_grant_type"
	}

	return http.StatusInternalServerError, "server_error"
}

// HandleToken returns the /token handler. Requests are form-encoded;
// grant-specific fields are picked out by the grant parser.
func HandleToken(dispatcher *Dispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid form data")
			return
		}

		grantType := r.PostFormValue("grant_type")

		issued, err := dispatcher.Dispatch(ParseGrant(r.PostForm))
		if err != nil {
			status, code := grantErrorStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("token issuance failed",
					slog.String("grant_type", grantType),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, status, code, "internal error")

				return
			}

			logger.Debug("token request rejected",
				slog.String("grant_type", grantType),
				slog.String("error", code),
			)
			writeJSONError(w, status, code, err.Error())

			return
		}

		logger.Info("token issued",
			slog.String("grant_type", grantType),
			slog.String("subject", issued.Subject.String()),
		)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: issued.AccessToken,
			TokenType:   "bearer",
			ExpiresIn:   int(issued.TTL.Seconds()),
		})
	}
}
