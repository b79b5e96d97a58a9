package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hodlhunt/internal/api"
	"hodlhunt/internal/auth"
	"hodlhunt/internal/config"
	"hodlhunt/internal/db"
	"hodlhunt/internal/eventlog"
	"hodlhunt/internal/events"
	"hodlhunt/internal/game"
	"hodlhunt/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var gameStore game.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.APIPool())
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("db migrate failed", "err", err)
			os.Exit(1)
		}
		gameStore = store.NewPostgres(pool, logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		gameStore = store.NewMemory()
	}

	hub := events.NewHub(logger)
	sinks := events.Multi{hub, events.LogSink{Log: logger}}
	var archive *eventlog.Archive
	if cfg.EventArchive != "" {
		archive, err = eventlog.Open(cfg.EventArchive, logger)
		if err != nil {
			logger.Error("open event archive failed", "path", cfg.EventArchive, "err", err)
			os.Exit(1)
		}
		defer archive.Close()
		sinks = append(sinks, archive)
	}

	gameSvc := game.NewService(gameStore, logger, game.ServiceConfig{
		Admin:          cfg.AdminID,
		StarterBalance: cfg.StarterBalance,
		Entropy:        game.KeccakEntropy{Beacon: &game.RandomBeacon{}},
		Sink:           sinks,
	})
	if cfg.AutoInit {
		if err := gameSvc.EnsureOcean(ctx); err != nil {
			logger.Error("ocean init failed", "err", err)
			os.Exit(1)
		}
	}

	// Signup refuses the admin id, so the admin login only exists when a
	// password is configured here.
	if cfg.AdminPassword != "" {
		hash, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			logger.Error("admin password rejected", "err", err)
			os.Exit(1)
		}
		if _, err := gameSvc.ProvisionAdmin(ctx, hash); err != nil {
			logger.Error("provision admin failed", "err", err)
			os.Exit(1)
		}
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	server := api.New(cfg, logger, issuer, gameSvc, hub, archive)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("hodlhunt api listening", "addr", cfg.Addr, "admin", cfg.AdminID)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
