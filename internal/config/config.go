package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	LogLevel         string
	SnapshotPath     string
	SnapshotInterval time.Duration // 0 disables periodic snapshots
	DatabaseURL      string        // optional: selects the Postgres store
	NatsURL          string        // optional: enables event publishing
	NatsToken        string
	AnthropicAPIKey  string
	AnthropicModel   string
	InferTimeout     time.Duration
	InferMaxRetries  int
	InferBackoff     time.Duration
	InferMaxTokens   int
	PromptBudget     int   // max prompt size in characters
	StoreMaxBytes    int64 // memory store capacity, 0 = unlimited
}

func Load() Config {
	return Config{
		Port:             envInt("COACHD_PORT", 8780),
		LogLevel:         envStr("COACHD_LOG_LEVEL", "info"),
		SnapshotPath:     envStr("COACHD_SNAPSHOT_PATH", "~/.coachd/snapshot.json"),
		SnapshotInterval: time.Duration(envInt("COACHD_SNAPSHOT_INTERVAL", 300)) * time.Second,
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   envStr("COACHD_MODEL", "claude-sonnet-4-20250514"),
		InferTimeout:     time.Duration(envInt("COACHD_INFER_TIMEOUT_MS", 30000)) * time.Millisecond,
		InferMaxRetries:  envInt("COACHD_INFER_MAX_RETRIES", 2),
		InferBackoff:     time.Duration(envInt("COACHD_INFER_BACKOFF_MS", 500)) * time.Millisecond,
		InferMaxTokens:   envInt("COACHD_INFER_MAX_TOKENS", 1024),
		PromptBudget:     envInt("COACHD_PROMPT_BUDGET", 24000),
		StoreMaxBytes:    int64(envInt("COACHD_STORE_MAX_BYTES", 64<<20)),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
