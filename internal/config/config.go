// Package config defines the top-level configuration for the repricing engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Run modes accepted by Config.Mode.
const (
	ModeAll     = "all"     // SQS consumer + HTTP server + background jobs
	ModeServe   = "serve"   // HTTP server only (webhook intake still works)
	ModeConsume = "consume" // SQS consumer only
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UREPRICER_* environment variables.
type Config struct {
	Redis    RedisConfig    `toml:"redis"`
	SQS      SQSConfig      `toml:"sqs"`
	Engine   EngineConfig   `toml:"engine"`
	Breaker  BreakerConfig  `toml:"breaker"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Reset    ResetConfig    `toml:"reset"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters and the store TTL.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TTL        duration `toml:"ttl"` // container-key time-to-live
}

// SQSConfig holds the Amazon notification queue parameters. Endpoint
// overrides the AWS endpoint for LocalStack-style local runs.
type SQSConfig struct {
	Enabled           bool     `toml:"enabled"`
	QueueURL          string   `toml:"queue_url"`
	Region            string   `toml:"region"`
	Endpoint          string   `toml:"endpoint"`
	AccessKey         string   `toml:"access_key"`
	SecretKey         string   `toml:"secret_key"`
	BatchSize         int      `toml:"batch_size"`
	WaitTime          duration `toml:"wait_time"`
	VisibilityTimeout duration `toml:"visibility_timeout"`
	MaxReceive        int      `toml:"max_receive"` // redrive threshold; beyond it the queue's DLQ takes over
}

// EngineConfig bounds the repricing orchestrator.
type EngineConfig struct {
	Workers      int      `toml:"workers"`
	QueueBound   int      `toml:"queue_bound"`
	Deadline     duration `toml:"deadline"`
	DrainTimeout duration `toml:"drain_timeout"`
	LockEnabled  bool     `toml:"lock_enabled"`
	LockTTL      duration `toml:"lock_ttl"`
}

// BreakerConfig tunes the circuit breaker guarding the store.
type BreakerConfig struct {
	FailureRatio float64  `toml:"failure_ratio"`
	Window       duration `toml:"window"`
	Cooldown     duration `toml:"cooldown"`
	MinSamples   int      `toml:"min_samples"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`             // empty disables management auth
	WebhookSecret     string   `toml:"webhook_secret"`      // empty disables the webhook secret check
	WebhookSecretFile string   `toml:"webhook_secret_file"` // encrypted alternative to webhook_secret
	SecretPassphrase  string   `toml:"secret_passphrase"`
	RateLimit         int      `toml:"rate_limit"` // webhook requests per window per client; 0 disables
	RateWindow        duration `toml:"rate_window"`
}

// PostgresConfig holds the optional price-history database.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds the optional outcome-archive bucket.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	FlushInterval  duration `toml:"flush_interval"`
	MaxBuffered    int      `toml:"max_buffered"`
}

// ResetConfig schedules the price-reset job.
type ResetConfig struct {
	Enabled   bool     `toml:"enabled"`
	Cron      string   `toml:"cron"` // 5-field cron expression
	RuleCache duration `toml:"rule_cache"`
}

// NotifyConfig holds alert webhook parameters.
type NotifyConfig struct {
	SlackWebhookURL string   `toml:"slack_webhook_url"`
	Events          []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. A TOML
// file and UREPRICER_* environment variables override them selectively.
func Defaults() Config {
	return Config{
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			TTL:        duration{2 * time.Hour},
		},
		SQS: SQSConfig{
			Enabled:           true,
			Region:            "us-east-1",
			BatchSize:         10,
			WaitTime:          duration{20 * time.Second},
			VisibilityTimeout: duration{300 * time.Second},
			MaxReceive:        3,
		},
		Engine: EngineConfig{
			Workers:      100,
			QueueBound:   1000,
			Deadline:     duration{30 * time.Second},
			DrainTimeout: duration{20 * time.Second},
			LockEnabled:  false,
			LockTTL:      duration{10 * time.Second},
		},
		Breaker: BreakerConfig{
			FailureRatio: 0.5,
			Window:       duration{30 * time.Second},
			Cooldown:     duration{60 * time.Second},
			MinSamples:   10,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "urepricer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "urepricer-archive",
			UseSSL:         false,
			ForcePathStyle: true,
			FlushInterval:  duration{time.Minute},
			MaxBuffered:    5000,
		},
		Reset: ResetConfig{
			Enabled:   true,
			Cron:      "0 * * * *",
			RuleCache: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"breaker_open", "breaker_closed", "dlq"},
		},
		Mode:     ModeAll,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeAll:     true,
	ModeServe:   true,
	ModeConsume: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: all, serve, consume)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.TTL.Duration <= 0 {
		errs = append(errs, "redis: ttl must be positive")
	}

	// SQS settings are required unless running pure server mode or
	// explicitly disabled.
	if c.SQS.Enabled && c.Mode != ModeServe {
		if c.SQS.QueueURL == "" {
			errs = append(errs, "sqs: queue_url must not be empty when enabled")
		}
		if c.SQS.Region == "" {
			errs = append(errs, "sqs: region must not be empty")
		}
		if c.SQS.BatchSize < 1 || c.SQS.BatchSize > 10 {
			errs = append(errs, fmt.Sprintf("sqs: batch_size must be 1-10, got %d", c.SQS.BatchSize))
		}
		if c.SQS.WaitTime.Duration < 0 || c.SQS.WaitTime.Duration > 20*time.Second {
			errs = append(errs, "sqs: wait_time must be between 0s and 20s")
		}
		if c.SQS.VisibilityTimeout.Duration <= c.Engine.Deadline.Duration {
			errs = append(errs, "sqs: visibility_timeout must exceed engine.deadline")
		}
	}

	// Engine
	if c.Engine.Workers < 1 {
		errs = append(errs, "engine: workers must be >= 1")
	}
	if c.Engine.QueueBound < 1 {
		errs = append(errs, "engine: queue_bound must be >= 1")
	}
	if c.Engine.Deadline.Duration <= 0 {
		errs = append(errs, "engine: deadline must be positive")
	}
	if c.Engine.LockEnabled && c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be positive when lock_enabled")
	}

	// Breaker
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Sprintf("breaker: failure_ratio must be in (0, 1], got %g", c.Breaker.FailureRatio))
	}
	if c.Breaker.Window.Duration <= 0 {
		errs = append(errs, "breaker: window must be positive")
	}
	if c.Breaker.MinSamples < 1 {
		errs = append(errs, "breaker: min_samples must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.WebhookSecretFile != "" && c.Server.SecretPassphrase == "" {
			errs = append(errs, "server: secret_passphrase is required when webhook_secret_file is set")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.MaxBuffered < 1 {
			errs = append(errs, "s3: max_buffered must be >= 1")
		}
	}

	// Reset
	if c.Reset.Enabled {
		if strings.TrimSpace(c.Reset.Cron) == "" {
			errs = append(errs, "reset: cron must not be empty when enabled")
		}
		if c.Reset.RuleCache.Duration <= 0 {
			errs = append(errs, "reset: rule_cache must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
