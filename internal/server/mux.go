// Package server provides HTTP server construction for authd.
package server

import (
	"log/slog"
	"net/http"

	"github.com/plcgate/authd/internal/auth"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Directory  auth.Directory
	Ledger     *auth.Ledger
	Dispatcher *auth.Dispatcher
	Issuer     *auth.TokenIssuer
	Logger     *slog.Logger
}

// NewMux builds the HTTP mux with the authorization and token endpoints
// and the protected resources. Each resource sits behind the bearer
// guard for its required subject kind.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", auth.HandleAuthorize(cfg.Directory, cfg.Ledger, cfg.Logger))
	mux.HandleFunc("/token", auth.HandleToken(cfg.Dispatcher, cfg.Logger))
	mux.HandleFunc("/callback", handleCallback)

	userOnly := auth.Guard(cfg.Issuer, cfg.Logger, auth.KindUser)
	clientOnly := auth.Guard(cfg.Issuer, cfg.Logger, auth.KindClient)
	anySubject := auth.Guard(cfg.Issuer, cfg.Logger, auth.KindAny)

	mux.Handle("/users/me", userOnly(handleUsersMe(cfg.Directory)))
	mux.Handle("/plc/data", clientOnly(handlePLCData(cfg.Logger)))
	mux.Handle("/shared/info", anySubject(handleSharedInfo()))

	return mux
}
