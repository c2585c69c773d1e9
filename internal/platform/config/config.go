package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr string

	// PostgresDSN points at the system of record. Empty means in-memory
	// stores, which is the default for local development and tests.
	PostgresDSN string

	// RedisURL enables the projection cache when set.
	RedisURL string

	// KafkaBrokers enables the durable job queue when non-empty; otherwise
	// jobs run over an in-process channel queue.
	KafkaBrokers []string
	JobsTopic    string

	// Handle-resolution service.
	HandleURL      string
	HandleUsername string
	HandlePassword string
	HandleTimeout  time.Duration

	// SandboxPrefix is the only prefix for which remote deletes are allowed.
	SandboxPrefix string

	// SQSQueue receives import/delete messages for findable DOIs. Empty
	// disables the feed.
	SQSQueue string

	// IndexWorkers sizes the index synchronizer pool.
	IndexWorkers int

	// Deterministic pins random seeds and suppresses outbound side feeds.
	// Set in tests.
	Deterministic bool
}

// ProjectionCacheTTL bounds how long cached index projections are reused.
var ProjectionCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("DORIA_ADDR", ":8085"),
		PostgresDSN:    os.Getenv("DORIA_POSTGRES_DSN"),
		RedisURL:       os.Getenv("DORIA_REDIS_URL"),
		JobsTopic:      envOr("DORIA_JOBS_TOPIC", "doria.jobs"),
		HandleURL:      envOr("DORIA_HANDLE_URL", "https://handle.test.doria.org"),
		HandleUsername: os.Getenv("DORIA_HANDLE_USERNAME"),
		HandlePassword: os.Getenv("DORIA_HANDLE_PASSWORD"),
		HandleTimeout:  10 * time.Second,
		SandboxPrefix:  envOr("DORIA_SANDBOX_PREFIX", "10.5072"),
		SQSQueue:       os.Getenv("DORIA_SQS_QUEUE"),
		IndexWorkers:   4,
		Deterministic:  os.Getenv("DORIA_DETERMINISTIC") == "true",
	}
	if brokers := os.Getenv("DORIA_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
