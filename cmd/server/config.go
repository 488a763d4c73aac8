package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/pkg/accessflow"
	"github.com/yourusername/accessflow/store"
)

type serverConfig struct {
	Port     string
	LogLevel slog.Level
	App      *accessflow.Config
}

// loadConfig reads .env (if present), then CONFIG_FILE (if set), then lets
// individual environment variables override the file.
func loadConfig() (serverConfig, error) {
	_ = godotenv.Load()

	cfg := serverConfig{Port: getEnv("PORT", "8080")}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return serverConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	app := accessflow.NewConfig()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		loaded, err := accessflow.LoadConfigFromFile(path)
		if err != nil {
			return serverConfig{}, err
		}
		app = loaded
	}

	if v := getEnv("MAX_REQUESTS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return serverConfig{}, fmt.Errorf("invalid MAX_REQUESTS: %w", err)
		}
		app.RateLimiter.MaxRequests = n
	}
	if v := getEnv("INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return serverConfig{}, fmt.Errorf("invalid INTERVAL: %w", err)
		}
		app.RateLimiter.Interval = d
	}
	if v := getEnv("EXEMPT", ""); v != "" {
		app.RateLimiter.Exempt = nil
		for _, item := range strings.Split(v, ",") {
			if id := strings.TrimSpace(item); id != "" {
				app.RateLimiter.Exempt = append(app.RateLimiter.Exempt, core.Identity(id))
			}
		}
	}
	if v := getEnv("DECAY", ""); v != "" {
		app.RateLimiter.Decay = core.DecayPolicy(v)
	}
	if v := getEnv("IDLE_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return serverConfig{}, fmt.Errorf("invalid IDLE_TTL: %w", err)
		}
		app.RateLimiter.IdleTTL = d
	}
	if v := getEnv("IDENTITY", ""); v != "" {
		app.Identity = v
	}
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
		if err != nil {
			return serverConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		app.Redis = &store.RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		}
	}

	if err := app.Validate(); err != nil {
		return serverConfig{}, err
	}
	cfg.App = app
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
