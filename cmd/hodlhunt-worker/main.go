package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.WorkerPool())
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	sinks := events.Multi{events.LogSink{Log: logger}}
	if cfg.EventArchive != "" {
		archive, err := eventlog.Open(cfg.EventArchive, logger)
		if err != nil {
			logger.Error("open event archive failed", "path", cfg.EventArchive, "err", err)
			os.Exit(1)
		}
		defer archive.Close()
		sinks = append(sinks, archive)
	}

	svc := game.NewService(store.NewPostgres(pool, logger), logger, game.ServiceConfig{
		Admin:   cfg.AdminID,
		Entropy: game.KeccakEntropy{Beacon: &game.RandomBeacon{}},
		Sink:    sinks,
	})
	if err := svc.EnsureOcean(ctx); err != nil {
		logger.Error("ocean init failed", "err", err)
		os.Exit(1)
	}

	if cfg.RunOnce {
		res, err := svc.UpdateOceanDaily(ctx)
		if err != nil {
			logger.Error("daily update failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "changed", res.Changed, "mode", res.Mode.String())
		return
	}

	ticker := time.NewTicker(cfg.SchedulerEvery)
	defer ticker.Stop()

	logger.Info("worker started", "every", cfg.SchedulerEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			res, err := svc.UpdateOceanDaily(ctx)
			if err != nil {
				logger.Error("daily update failed", "err", err)
				continue
			}
			if res.Changed {
				logger.Info("daily update applied", "mode", res.Mode.String(), "next_mode_change", res.NextModeChange)
			}
		}
	}
}
