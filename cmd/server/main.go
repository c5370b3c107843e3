package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fileupload/internal/api"
	"fileupload/internal/config"
	"fileupload/internal/database"
	"fileupload/internal/service"
	"fileupload/internal/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load environment file", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"upload_dir", cfg.UploadOptions().Dir(),
		"storage_backend", cfg.StorageBackend,
		"model", cfg.ModelClass,
		"max_file_size", cfg.MaxFileSize,
	)

	ctx := context.Background()

	// Connect to database when records are persisted
	var (
		db   *database.DB
		repo service.RecordRepository
	)
	if cfg.ModelClass != "" {
		var err error
		db, err = database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")

		repo = database.NewRepository(db, cfg.ModelClass, cfg.Fields)
	}

	// Initialize storage
	movers, err := cfg.Movers(ctx)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0755); err != nil {
		slog.Error("failed to create spool directory", "path", cfg.SpoolDir, "error", err)
		os.Exit(1)
	}

	svc := service.NewUploadService(cfg.UploadOptions(), movers, repo, cfg.SpoolDir, cfg.MaxFileSize)

	// Start spool sweeper
	bgCtx, bgCancel := context.WithCancel(context.Background())
	sweeper := storage.NewSpoolSweeper(cfg.SpoolDir, cfg.SpoolTTL, cfg.CleanupInterval)
	sweeper.Start(bgCtx)

	// Setup HTTP router
	var health api.HealthChecker
	if db != nil {
		health = db
	}
	handler := api.NewHandler(svc, health)
	e := api.SetupRouter(bgCtx, handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop background work
	bgCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
