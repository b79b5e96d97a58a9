package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions sizes a pool for one process. The api serves concurrent
// serializable transactions; the worker runs one roll per tick.
type PoolOptions struct {
	AppName  string
	MaxConns int32
}

func APIPool() PoolOptions    { return PoolOptions{AppName: "hodlhunt-api", MaxConns: 20} }
func WorkerPool() PoolOptions { return PoolOptions{AppName: "hodlhunt-worker", MaxConns: 2} }

// Connect opens and pings a pool built by poolConfig.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db %s: %w", opts.AppName, err)
	}
	return pool, nil
}

// poolConfig tags sessions with the application name so api and worker show
// up separately in pg_stat_activity, and kills a transaction left idle by a
// dead retry loop instead of letting it hold the ocean row lock.
func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = min(2, cfg.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	params := cfg.ConnConfig.RuntimeParams
	if opts.AppName != "" {
		params["application_name"] = opts.AppName
	}
	if _, ok := params["idle_in_transaction_session_timeout"]; !ok {
		params["idle_in_transaction_session_timeout"] = "30000"
	}
	return cfg, nil
}
