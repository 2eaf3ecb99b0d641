package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/plcgate/authd/internal/auth"
	"github.com/plcgate/authd/internal/config"
	"github.com/plcgate/authd/internal/logging"
	"github.com/plcgate/authd/internal/server"
	"github.com/plcgate/authd/internal/state"
)

var Version = "dev"

func main() {
	// Handle hash-password subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword prints a bcrypt hash suitable for a seed file
// password_hash entry.
func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}
	password := scanner.Text()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("authd starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
	)

	seed, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		return fmt.Errorf("loading seed: %w", err)
	}

	dir := auth.NewStaticDirectory(seed.Principals, seed.Clients)
	logger.Info("directory loaded",
		slog.Int("principals", len(seed.Principals)),
		slog.Int("clients", len(seed.Clients)),
	)

	var (
		codes   auth.CodeStore
		durable *state.Store
	)
	if cfg.CodeDBPath != "" {
		st, err := state.Open(cfg.CodeDBPath)
		if err != nil {
			return fmt.Errorf("opening code db: %w", err)
		}
		defer st.Close()

		logger.Info("using durable code store", slog.String("path", cfg.CodeDBPath))
		codes = st
		durable = st
	} else {
		mem := auth.NewMemoryCodeStore()
		defer mem.Stop()

		codes = mem
	}

	ledger := auth.NewLedger(codes, cfg.CodeTTL)
	issuer := auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)
	dispatcher := auth.NewDispatcher(dir, ledger, issuer, cfg.GrantTokenTTL)

	mux := server.NewMux(server.MuxConfig{
		Directory:  dir,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Issuer:     issuer,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The in-memory store reaps itself; the bolt store needs the loop
	// run here so the database does not grow without bound.
	if durable != nil {
		g.Go(func() error {
			return durable.RunReaper(gctx, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server error: %w", err)
		}

		return nil
	})

	return g.Wait()
}
