package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr           string
	DatabaseURL    string
	JWTSecret      string
	TokenTTL       time.Duration
	AdminID        string
	AdminPassword  string
	StarterBalance uint64
	EventArchive   string
	AutoInit       bool
}

type WorkerConfig struct {
	DatabaseURL    string
	AdminID        string
	SchedulerEvery time.Duration
	RunOnce        bool
	EventArchive   string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("HODLHUNT_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:      strings.TrimSpace(os.Getenv("HODLHUNT_JWT_SECRET")),
		TokenTTL:       envDurationDefault("HODLHUNT_TOKEN_TTL", 7*24*time.Hour),
		AdminID:        envDefault("HODLHUNT_ADMIN_ID", "operator"),
		AdminPassword:  os.Getenv("HODLHUNT_ADMIN_PASSWORD"),
		StarterBalance: envUintDefault("HODLHUNT_STARTER_BALANCE", 1_000_000_000),
		EventArchive:   strings.TrimSpace(os.Getenv("HODLHUNT_EVENT_ARCHIVE")),
		AutoInit:       envBoolDefault("HODLHUNT_AUTO_INIT", true),
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("HODLHUNT_JWT_SECRET is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminID:        envDefault("HODLHUNT_ADMIN_ID", "operator"),
		SchedulerEvery: envDurationDefault("HODLHUNT_SCHEDULER_EVERY", time.Minute),
		RunOnce:        envBoolDefault("HODLHUNT_WORKER_RUN_ONCE", false),
		EventArchive:   strings.TrimSpace(os.Getenv("HODLHUNT_EVENT_ARCHIVE")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SchedulerEvery <= 0 {
		return cfg, fmt.Errorf("HODLHUNT_SCHEDULER_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("HH_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envUintDefault(key string, fallback uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(strings.ReplaceAll(v, "_", ""), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
