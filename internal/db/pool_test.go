package db

import "testing"

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://hh:pw@localhost:5432/hodlhunt", WorkerPool())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxConns != 2 || cfg.MinConns != 2 {
		t.Fatalf("worker pool sized %d/%d", cfg.MinConns, cfg.MaxConns)
	}
	params := cfg.ConnConfig.RuntimeParams
	if params["application_name"] != "hodlhunt-worker" {
		t.Fatalf("application_name=%q", params["application_name"])
	}
	if params["idle_in_transaction_session_timeout"] != "30000" {
		t.Fatalf("idle timeout=%q", params["idle_in_transaction_session_timeout"])
	}

	cfg, err = poolConfig("postgres://localhost/hodlhunt?idle_in_transaction_session_timeout=5000", PoolOptions{MaxConns: 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxConns != 1 || cfg.MinConns != 1 {
		t.Fatalf("min conns must not exceed max, got %d/%d", cfg.MinConns, cfg.MaxConns)
	}
	if got := cfg.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"]; got != "5000" {
		t.Fatalf("url setting should win, got %q", got)
	}
	if api := APIPool(); api.MaxConns != 20 || api.AppName != "hodlhunt-api" {
		t.Fatalf("api pool=%+v", api)
	}

	if _, err := poolConfig("postgres://localhost:notaport/hodlhunt", APIPool()); err == nil {
		t.Fatalf("expected parse error")
	}
}
