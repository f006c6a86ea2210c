package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all stepwise runtime configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	PoolSize      int    `json:"pool_size"`
	TemplateDir   string `json:"template_dir"`
	OwnerID       string `json:"owner_id"`
	MemoryStore   bool   `json:"memory_store"`
	WebhookLive   bool   `json:"webhook_live"`
	SchedulerTick int    `json:"scheduler_tick_seconds"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(stepwiseDir(), "stepwise.db"),
		LogLevel: "info",
		PoolSize: 32,
		OwnerID:  "local",
	}
}

func stepwiseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepwise"
	}
	return filepath.Join(home, ".stepwise")
}

func settingsPath() string {
	return filepath.Join(stepwiseDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEPWISE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STEPWISE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEPWISE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("STEPWISE_TEMPLATE_DIR"); v != "" {
		cfg.TemplateDir = v
	}
	if v := os.Getenv("STEPWISE_OWNER_ID"); v != "" {
		cfg.OwnerID = v
	}
	if v := os.Getenv("STEPWISE_MEMORY_STORE"); v != "" {
		cfg.MemoryStore = v == "true" || v == "1"
	}
	if v := os.Getenv("STEPWISE_WEBHOOK_LIVE"); v != "" {
		cfg.WebhookLive = v == "true" || v == "1"
	}
	if v := os.Getenv("STEPWISE_SCHEDULER_TICK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerTick = n
		}
	}

	return cfg
}
