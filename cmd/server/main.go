package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/fieldsync/internal/server/handlers"
	"github.com/iudanet/fieldsync/internal/server/middleware"
	"github.com/iudanet/fieldsync/internal/server/resolver"
	"github.com/iudanet/fieldsync/internal/server/storage/sqlite"
	syncmgr "github.com/iudanet/fieldsync/internal/server/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", ":8080", "Listen address")
	dbPath := flag.String("db", "fieldsync.db", "Path to SQLite database")
	policyName := flag.String("policy", resolver.PolicyServerWins, "Conflict policy: server-wins or field-merge")
	genToken := flag.String("gen-token", "", "Generate a device token for the given client id and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Пустой секрет выключает аутентификацию устройств
	tokenCfg := handlers.TokenConfig{
		Secret:   []byte(os.Getenv("FIELDSYNC_AUTH_SECRET")),
		TokenTTL: 90 * 24 * time.Hour,
	}

	if *genToken != "" {
		if len(tokenCfg.Secret) == 0 {
			fmt.Fprintln(os.Stderr, "FIELDSYNC_AUTH_SECRET must be set to generate tokens")
			os.Exit(1)
		}
		token, err := handlers.GenerateDeviceToken(tokenCfg, *genToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(logger, *addr, *dbPath, *policyName, tokenCfg); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr, dbPath, policyName string, tokenCfg handlers.TokenConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := resolver.ForName(policyName)
	if err != nil {
		return err
	}

	store, err := sqlite.New(ctx, dbPath, policy)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	manager := syncmgr.NewManager(store, logger)
	router := handlers.NewRouter(
		handlers.NewSyncHandler(logger, manager),
		handlers.NewHealthHandler(logger, Version),
	)

	// Health остается открытым для мониторинга, sync endpoints - за токеном
	auth := middleware.AuthMiddleware(logger, tokenCfg)
	mux := http.NewServeMux()
	mux.Handle("/sync/", auth(router))
	mux.Handle("/health", router)

	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingWithSkip(logger, []string{"/health"})(
			middleware.RateLimitMiddleware(600, time.Minute, logger)(mux)))

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			"addr", addr,
			"policy", policy.Name(),
			"auth", len(tokenCfg.Secret) > 0,
			"version", Version)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	return nil
}

func printVersion() {
	fmt.Printf("FieldSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
