package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"panel-lab/auth"
	"panel-lab/directory"
	"panel-lab/internal"
	"panel-lab/repositories"
	"panel-lab/services"
	"panel-lab/signaling"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the directory and serves it until SIGINT/SIGTERM, so that every
// deferred close runs before the process exits.
func run() error {
	// 1. Configuration & Logger
	var config internal.DirectoryConfig
	if err := internal.Load(&config); err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Services
	issuer := auth.NewIssuer(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(repositories.NewUserRepository(db), issuer)
	panelService := services.NewPanelService(log,
		repositories.NewPanelRepository(db),
		repositories.NewAuditRepository(db, log, config.LimitAuditRecords))
	relay := signaling.NewRelay(log)
	server := directory.NewServer(log, authService, panelService, issuer, relay)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. HTTP Server
	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting directory", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup. Hijacked signaling sockets are not tracked by Shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Directory shutdown incomplete", "error", err)
	}
	log.Info("Directory stopped cleanly", "signaling_peers", relay.Peers())
	return nil
}
