// Package config loads per-subsystem configuration structs with sane
// defaults, overlaid by environment variables, grounded on FluxForge
// main.go's env-var loading (os.Getenv + fmt.Sscanf) and
// scheduler/types.go's DefaultSchedulerConfig() pattern. No config
// library is used: the teacher never reaches for one, and a dozen
// flat env vars don't justify importing a file-format parser.
package config

import (
	"fmt"
	"os"
	"time"
)

// SchedulerConfig tunes the worker pool, queue aging, and circuit
// breakers shared across every DAG execution.
type SchedulerConfig struct {
	MaxConcurrency          int
	CircuitBreakerThreshold int
	CircuitRecoveryTimeout  time.Duration
	AgingFactor             float64
	MaxAgeBoost             float64
	DeferBoost              float64
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrency:          16,
		CircuitBreakerThreshold: 5,
		CircuitRecoveryTimeout:  30 * time.Second,
		AgingFactor:             0.1,
		MaxAgeBoost:             5.0,
		DeferBoost:              5.0,
	}
}

// ExecutorConfig tunes the DagExecutor's tick loop.
type ExecutorConfig struct {
	PollInterval    time.Duration
	EventBufferSize int
	TaskTimeout     time.Duration
	CascadeCancel   bool
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PollInterval:    50 * time.Millisecond,
		EventBufferSize: 256,
		TaskTimeout:     5 * time.Minute,
		CascadeCancel:   true,
	}
}

// BrokerConfig points at the message broker backend.
type BrokerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReplyTimeout  time.Duration
}

func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		RedisAddr:    "localhost:6379",
		RedisDB:      0,
		ReplyTimeout: 30 * time.Second,
	}
}

// CacheConfig tunes the multi-tier cache facade.
type CacheConfig struct {
	RedisAddr       string
	MaxEntrySize    int
	JanitorInterval time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		RedisAddr:       "localhost:6379",
		MaxEntrySize:    1 << 20, // 1 MiB
		JanitorInterval: 30 * time.Second,
	}
}

// PushConfig tunes the websocket fabric.
type PushConfig struct {
	HeartbeatInterval time.Duration
	OutboundBuffer    int
}

func DefaultPushConfig() PushConfig {
	return PushConfig{
		HeartbeatInterval: 30 * time.Second,
		OutboundBuffer:    256,
	}
}

// StoreConfig points at the durable archival backend.
type StoreConfig struct {
	PostgresDSN string
	RedisAddr   string
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		RedisAddr: "localhost:6379",
	}
}

// Config aggregates every subsystem's configuration, loaded once at
// process start.
type Config struct {
	Scheduler SchedulerConfig
	Executor  ExecutorConfig
	Broker    BrokerConfig
	Cache     CacheConfig
	Push      PushConfig
	Store     StoreConfig
	HTTPAddr  string
}

func DefaultConfig() Config {
	return Config{
		Scheduler: DefaultSchedulerConfig(),
		Executor:  DefaultExecutorConfig(),
		Broker:    DefaultBrokerConfig(),
		Cache:     DefaultCacheConfig(),
		Push:      DefaultPushConfig(),
		Store:     DefaultStoreConfig(),
		HTTPAddr:  ":8080",
	}
}

// LoadFromEnv overlays environment variables onto defaults, following
// FluxForge main.go's pattern of os.Getenv + fmt.Sscanf for non-string
// values with a guard against malformed/zero input.
func LoadFromEnv() Config {
	c := DefaultConfig()

	if v := os.Getenv("APEX_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}

	if v := os.Getenv("APEX_REDIS_ADDR"); v != "" {
		c.Broker.RedisAddr = v
		c.Cache.RedisAddr = v
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("APEX_REDIS_PASSWORD"); v != "" {
		c.Broker.RedisPassword = v
	}
	if v := os.Getenv("APEX_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}

	if v := os.Getenv("APEX_SCHEDULER_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Scheduler.MaxConcurrency = n
		}
	}
	if v := os.Getenv("APEX_CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Scheduler.CircuitBreakerThreshold = n
		}
	}

	if v := os.Getenv("APEX_CACHE_MAX_ENTRY_BYTES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Cache.MaxEntrySize = n
		}
	}

	return c
}
