package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/plcgate/authd/internal/auth"
)

// maxDataBody caps JSON payloads on the data submission endpoint.
const maxDataBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// profileResponse is the sanitized principal profile. The stored
// password hash never leaves the directory.
type profileResponse struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// handleUsersMe returns the profile of the authenticated user. Requires
// a user-kind subject; the guard enforces that before this runs.
func handleUsersMe(dir auth.Directory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sub, ok := auth.RequestSubject(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		principal, found := dir.FindPrincipal(sub.Name)
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown principal"})
			return
		}

		writeJSON(w, http.StatusOK, profileResponse{
			Username: principal.Username,
			FullName: principal.FullName,
			Email:    principal.Email,
		})
	})
}

// handlePLCData accepts a JSON payload from an authenticated machine
// client and echoes it back with the submitting client's identity.
func handlePLCData(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sub, ok := auth.RequestSubject(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxDataBody)

		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		logger.Info("data received",
			slog.String("client_id", sub.Name),
			slog.Int("fields", len(data)),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "Data received successfully",
			"client_id":     sub.Name,
			"received_data": data,
		})
	})
}

// handleSharedInfo serves any valid subject, user or client.
func handleSharedInfo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sub, ok := auth.RequestSubject(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"message":           "This is a shared resource. Access GRANTED.",
			"requester_subject": sub.String(),
		})
	})
}

// handleCallback is a demo receiver for the authorization redirect,
// useful when exercising the flow without a real client application.
func handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Authorization code received. Now exchange it for a token.",
		"code":    code,
	})
}
