package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	// StageTopology overrides the built-in pipeline when set (JSON array of
	// stage definitions).
	StageTopology string

	PollInterval    time.Duration
	PollBatchSize   int
	OutboxRetention time.Duration

	SweepInterval  time.Duration
	SweepBatchSize int

	RateLimitPerMinute      int
	RateLimitBurst          int
	ActorRateLimitPerMinute int
	ActorRateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  readDurationSeconds("TOKEN_TTL_SECONDS", 8*60*60),

		StageTopology: os.Getenv("STAGE_TOPOLOGY"),

		PollInterval:    readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1),
		PollBatchSize:   readInt("OUTBOX_POLL_BATCH_SIZE", 100),
		OutboxRetention: readDurationSeconds("OUTBOX_RETENTION_SECONDS", 3600),

		SweepInterval:  readDurationSeconds("DAY_SWEEP_INTERVAL_SECONDS", 600),
		SweepBatchSize: readInt("DAY_SWEEP_BATCH_SIZE", 100),

		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		ActorRateLimitPerMinute: readInt("ACTOR_RATE_LIMIT_PER_MIN", 600),
		ActorRateLimitBurst:     readInt("ACTOR_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
