package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/config"
	"github.com/dukerupert/muster/internal/database"
	"github.com/dukerupert/muster/internal/logging"
	"github.com/dukerupert/muster/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "muster: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	keyring, err := auth.NewKeyring(cfg.AuthKeys())
	if err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}
	if len(cfg.Keys) == 0 {
		logger.Warn("no api keys configured; admin endpoints will reject every request")
	}

	srv := server.New(db, keyring, server.Options{
		BackfillSchedule: cfg.Backfill.Schedule,
		BackfillLookback: cfg.Backfill.Lookback,
		SelfMarkLimit:    cfg.RateLimit.SelfMarkLimit,
		SelfMarkWindow:   cfg.RateLimit.SelfMarkWindow,
		OriginPatterns:   cfg.Server.AllowedOrigins,
		PublicReads:      cfg.Server.PublicReads,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Ledger().Seed(ctx, cfg.Points); err != nil {
		return fmt.Errorf("seed point schedule: %w", err)
	}

	for _, rl := range srv.RateLimiters() {
		go rl.RunCleanup(ctx, 5*time.Minute)
	}

	if cfg.Backfill.Enabled {
		if cfg.Backfill.RunOnStart {
			if _, err := srv.Scheduler().RunOnce(ctx); err != nil {
				logger.Warn("startup backfill finished with errors", "error", err)
			}
		}
		if err := srv.Scheduler().Start(ctx); err != nil {
			return err
		}
		defer srv.Scheduler().Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("muster listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
