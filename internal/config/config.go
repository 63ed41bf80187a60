package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment.
type Config struct {
	Port          string
	Store         string
	DBPath        string
	DatabaseURL   string
	SeedPath      string
	RedisAddr     string
	NotifyChannel string
	LogEnv        string
	NotifyTimeout time.Duration
}

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Load reads an optional .env file and then the environment.
// A missing .env is not an error; the second return reports whether one was loaded.
func Load() (Config, bool, error) {
	loaded := godotenv.Load() == nil

	cfg := Config{
		Port:          Get("PORT", "8080"),
		Store:         strings.ToLower(Get("STORE", StoreSQLite)),
		DBPath:        Get("DB_PATH", "data/billing.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SeedPath:      Get("SEED_PATH", ""),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NotifyChannel: Get("NOTIFY_CHANNEL", "billing.notifications"),
		LogEnv:        Get("LOG_ENV", "development"),
	}

	timeout, err := time.ParseDuration(Get("NOTIFY_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, loaded, fmt.Errorf("load config: parse NOTIFY_TIMEOUT: %w", err)
	}
	cfg.NotifyTimeout = timeout

	switch cfg.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return Config{}, loaded, fmt.Errorf("load config: DATABASE_URL is required for STORE=%s", cfg.Store)
		}
	default:
		return Config{}, loaded, fmt.Errorf("load config: unknown STORE %q", cfg.Store)
	}

	return cfg, loaded, nil
}

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
