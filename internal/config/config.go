// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds each dispatcher shard queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of dispatcher shards, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the submission_id replay cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Match defaults applied when a registration leaves them out.
	BallsPerOver     int `koanf:"balls_per_over"`
	WicketsToFall    int `koanf:"wickets_to_fall"`
	MatchingWindowMS int `koanf:"matching_window_ms"`

	DisputeAlertIntervalMS int `koanf:"dispute_alert_interval_ms"`
	SweepIntervalMS        int `koanf:"sweep_interval_ms"`

	// StoreDriver is memory, sqlite or postgres. StoreDSN is the file path
	// for sqlite and the connection string for postgres.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// Redis stream push is enabled when RedisAddr is set.
	RedisAddr         string `koanf:"redis_addr"`
	RedisPassword     string `koanf:"redis_password"`
	RedisStreamPrefix string `koanf:"redis_stream_prefix"`
	RedisStreamMaxLen int64  `koanf:"redis_stream_max_len"`

	// An empty JWTSecret enables development identity headers.
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	TelegramToken  string `koanf:"telegram_token"`
	TelegramChatID int64  `koanf:"telegram_chat_id"`

	OTelEndpoint string `koanf:"otel_endpoint"`

	// CORSOrigins is a comma separated allow list.
	CORSOrigins string `koanf:"cors_origins"`

	WSSendBuffer int `koanf:"ws_send_buffer"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		EventQueueSize:         4096,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             50_000,
		BallsPerOver:           6,
		WicketsToFall:          10,
		MatchingWindowMS:       30_000,
		DisputeAlertIntervalMS: 120_000,
		SweepIntervalMS:        1_000,
		StoreDriver:            DriverMemory,
		RedisStreamPrefix:      "crease.match",
		RedisStreamMaxLen:      10_000,
		JWTIssuer:              "crease",
		CORSOrigins:            "*",
		WSSendBuffer:           256,
	}
}

// MatchingWindow is the time a slot waits for its counterpart claim.
func (c *Config) MatchingWindow() time.Duration {
	return time.Duration(c.MatchingWindowMS) * time.Millisecond
}

// DisputeAlertInterval is the gap between reminders for an open dispute.
func (c *Config) DisputeAlertInterval() time.Duration {
	return time.Duration(c.DisputeAlertIntervalMS) * time.Millisecond
}

// SweepInterval is how often pending slots are checked for timeout.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// Origins splits CORSOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.MatchingWindowMS <= 0:
		return invalid("matching_window_ms must be positive")
	case c.SweepIntervalMS <= 0:
		return invalid("sweep_interval_ms must be positive")
	case c.DisputeAlertIntervalMS <= 0:
		return invalid("dispute_alert_interval_ms must be positive")
	case c.BallsPerOver <= 0 || c.WicketsToFall <= 0:
		return invalid("balls_per_over and wickets_to_fall must be positive")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.StoreDSN == "" {
			return invalid("store_dsn is required for " + c.StoreDriver)
		}
	default:
		return invalid("unknown store_driver " + c.StoreDriver)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return invalid("telegram_chat_id is required with telegram_token")
	}
	return nil
}
