package main

import (
	"os"
	"strconv"
	"time"
)

// Centralized configuration defaults
const (
	// Server
	DefaultListenAddr = ":8080"

	// Rate limiting (worker-facing polling surface)
	RequestsPerSecond = 100
	BurstSize         = 200

	// Redis (development queue backend)
	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPassword = ""
	DefaultRedisDB       = 0

	// Job expiration sweep
	DefaultMaxJobAge = 24 * time.Hour
	SweepInterval    = 1 * time.Hour

	// Worker poll loop
	DefaultPollInterval  = 10 * time.Second
	DefaultPollAttempts  = 4
	DefaultBackoffBase   = 2 * time.Second
	DefaultRateLimitWait = 30 * time.Second
	DefaultIdleTimeout   = 5 * time.Minute

	// Pipeline
	DefaultSlideDuration = 5 * time.Second
)

// Config carries everything both subcommands need. Defaults above,
// overridden by SLIDECAST_* environment variables.
type Config struct {
	ListenAddr string

	// Queue backend: "memory" (serialized coordinator, production) or
	// "redis" (dev-only key-value store, unsafe for concurrent workers).
	QueueBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MaxJobAge time.Duration

	// Worker
	CoordinatorURL string
	BearerToken    string
	PollInterval   time.Duration
	PollAttempts   int
	BackoffBase    time.Duration
	RateLimitWait  time.Duration
	IdleTimeout    time.Duration
	IdleDisabled   bool
	WorkDir        string

	// External collaborators
	ComputeWakeURL string
	NarratorURL    string
	RendererURL    string
	StorageURL     string
}

func loadConfig() Config {
	return Config{
		ListenAddr:     envStr("SLIDECAST_LISTEN_ADDR", DefaultListenAddr),
		QueueBackend:   envStr("SLIDECAST_QUEUE_BACKEND", "memory"),
		RedisAddr:      envStr("SLIDECAST_REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:  envStr("SLIDECAST_REDIS_PASSWORD", DefaultRedisPassword),
		RedisDB:        envInt("SLIDECAST_REDIS_DB", DefaultRedisDB),
		MaxJobAge:      envDuration("SLIDECAST_MAX_JOB_AGE", DefaultMaxJobAge),
		CoordinatorURL: envStr("SLIDECAST_COORDINATOR_URL", "http://localhost:8080"),
		BearerToken:    envStr("SLIDECAST_BEARER_TOKEN", ""),
		PollInterval:   envDuration("SLIDECAST_POLL_INTERVAL", DefaultPollInterval),
		PollAttempts:   envInt("SLIDECAST_POLL_ATTEMPTS", DefaultPollAttempts),
		BackoffBase:    envDuration("SLIDECAST_BACKOFF_BASE", DefaultBackoffBase),
		RateLimitWait:  envDuration("SLIDECAST_RATE_LIMIT_WAIT", DefaultRateLimitWait),
		IdleTimeout:    envDuration("SLIDECAST_IDLE_TIMEOUT", DefaultIdleTimeout),
		IdleDisabled:   envBool("SLIDECAST_IDLE_SHUTDOWN_DISABLED", false),
		WorkDir:        envStr("SLIDECAST_WORK_DIR", os.TempDir()),
		ComputeWakeURL: envStr("SLIDECAST_COMPUTE_WAKE_URL", ""),
		NarratorURL:    envStr("SLIDECAST_NARRATOR_URL", ""),
		RendererURL:    envStr("SLIDECAST_RENDERER_URL", ""),
		StorageURL:     envStr("SLIDECAST_STORAGE_URL", ""),
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
