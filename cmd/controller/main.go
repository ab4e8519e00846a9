package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcnelson/gitops-stack-manager/internal/api"
	"github.com/bcnelson/gitops-stack-manager/internal/config"
	"github.com/bcnelson/gitops-stack-manager/internal/docker"
	"github.com/bcnelson/gitops-stack-manager/internal/git"
	"github.com/bcnelson/gitops-stack-manager/internal/reconcile"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
	"github.com/bcnelson/gitops-stack-manager/internal/storage/memory"
	sqlstore "github.com/bcnelson/gitops-stack-manager/internal/storage/sql"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// The in-memory cache is the source of truth; the SQL store, when
	// configured, mirrors it for history across restarts.
	var store storage.Store = memory.New()
	if cfg.UsePersistence() {
		if cfg.Database.Driver == "sqlite3" {
			if err := os.MkdirAll("data", 0o755); err != nil {
				logger.Error("failed to create data directory", "error", err)
				os.Exit(1)
			}
		}
		mirror, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			logger.Error("failed to initialize history database", "error", err)
			os.Exit(1)
		}
		store = storage.NewMirrored(store, mirror, logger)
	}
	defer store.Close()

	source := git.New(git.Config{
		URL:      cfg.Git.URL,
		Branch:   cfg.Git.Branch,
		Path:     cfg.Git.Path,
		Username: cfg.Git.Username,
		Password: cfg.Git.Password,
		WorkDir:  cfg.Git.WorkDir,
	}, logger)

	client := docker.NewCLI(cfg.Docker.Binary, logger)
	if err := client.Ping(context.Background()); err != nil {
		// Not fatal: the platform may come up later, and every cycle
		// degrades gracefully while it is down.
		logger.Warn("orchestration platform not reachable at startup", "error", err)
	}

	reconciler := reconcile.New(store, client, source, logger, cfg.Reconcile.ActionTimeout)
	loop := reconcile.NewLoop(source, reconciler, store, reconcile.LoopConfig{
		Interval:   cfg.Reconcile.Interval,
		StacksFile: cfg.Reconcile.StacksFile,
		PruneAfter: cfg.Reconcile.PruneAfter,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil {
			logger.Error("reconciliation loop exited", "error", err)
		}
	}()

	var server *http.Server
	if cfg.Server.Enabled {
		server = &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      api.NewRouter(store, loop, logger),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logger.Info("status server listening", "addr", cfg.Server.Addr())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// The loop finishes (or abandons) its in-flight cycle on its own; wait
	// for it so its final cache writes land before the store closes.
	<-loopDone

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "error", err)
		}
	}

	logger.Info("stopped")
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
