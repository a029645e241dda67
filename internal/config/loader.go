package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UREPRICER_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the service can
// run entirely on defaults plus environment variables. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UREPRICER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UREPRICER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UREPRICER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UREPRICER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UREPRICER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UREPRICER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UREPRICER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TTL, "UREPRICER_REDIS_TTL")

	// ── SQS ──
	setBool(&cfg.SQS.Enabled, "UREPRICER_SQS_ENABLED")
	setStr(&cfg.SQS.QueueURL, "UREPRICER_SQS_QUEUE_URL")
	setStr(&cfg.SQS.Region, "UREPRICER_SQS_REGION")
	setStr(&cfg.SQS.Endpoint, "UREPRICER_SQS_ENDPOINT")
	setStr(&cfg.SQS.AccessKey, "UREPRICER_SQS_ACCESS_KEY")
	setStr(&cfg.SQS.SecretKey, "UREPRICER_SQS_SECRET_KEY")
	setInt(&cfg.SQS.BatchSize, "UREPRICER_SQS_BATCH_SIZE")
	setDuration(&cfg.SQS.WaitTime, "UREPRICER_SQS_WAIT_TIME")
	setDuration(&cfg.SQS.VisibilityTimeout, "UREPRICER_SQS_VISIBILITY_TIMEOUT")
	setInt(&cfg.SQS.MaxReceive, "UREPRICER_SQS_MAX_RECEIVE")

	// ── Engine ──
	setInt(&cfg.Engine.Workers, "UREPRICER_ENGINE_WORKERS")
	setInt(&cfg.Engine.QueueBound, "UREPRICER_ENGINE_QUEUE_BOUND")
	setDuration(&cfg.Engine.Deadline, "UREPRICER_ENGINE_DEADLINE")
	setDuration(&cfg.Engine.DrainTimeout, "UREPRICER_ENGINE_DRAIN_TIMEOUT")
	setBool(&cfg.Engine.LockEnabled, "UREPRICER_ENGINE_LOCK_ENABLED")
	setDuration(&cfg.Engine.LockTTL, "UREPRICER_ENGINE_LOCK_TTL")

	// ── Breaker ──
	setFloat64(&cfg.Breaker.FailureRatio, "UREPRICER_BREAKER_FAILURE_RATIO")
	setDuration(&cfg.Breaker.Window, "UREPRICER_BREAKER_WINDOW")
	setDuration(&cfg.Breaker.Cooldown, "UREPRICER_BREAKER_COOLDOWN")
	setInt(&cfg.Breaker.MinSamples, "UREPRICER_BREAKER_MIN_SAMPLES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UREPRICER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UREPRICER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UREPRICER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UREPRICER_SERVER_API_KEY")
	setStr(&cfg.Server.WebhookSecret, "UREPRICER_SERVER_WEBHOOK_SECRET")
	setStr(&cfg.Server.WebhookSecretFile, "UREPRICER_SERVER_WEBHOOK_SECRET_FILE")
	setStr(&cfg.Server.SecretPassphrase, "UREPRICER_SERVER_SECRET_PASSPHRASE")
	setInt(&cfg.Server.RateLimit, "UREPRICER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "UREPRICER_SERVER_RATE_WINDOW")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "UREPRICER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UREPRICER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UREPRICER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UREPRICER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UREPRICER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UREPRICER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UREPRICER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UREPRICER_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "UREPRICER_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "UREPRICER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UREPRICER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UREPRICER_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UREPRICER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UREPRICER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UREPRICER_S3_REGION")
	setStr(&cfg.S3.Bucket, "UREPRICER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UREPRICER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UREPRICER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UREPRICER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UREPRICER_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.FlushInterval, "UREPRICER_S3_FLUSH_INTERVAL")
	setInt(&cfg.S3.MaxBuffered, "UREPRICER_S3_MAX_BUFFERED")

	// ── Reset ──
	setBool(&cfg.Reset.Enabled, "UREPRICER_RESET_ENABLED")
	setStr(&cfg.Reset.Cron, "UREPRICER_RESET_CRON")
	setDuration(&cfg.Reset.RuleCache, "UREPRICER_RESET_RULE_CACHE")

	// ── Notify ──
	setStr(&cfg.Notify.SlackWebhookURL, "UREPRICER_NOTIFY_SLACK_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UREPRICER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UREPRICER_MODE")
	setStr(&cfg.LogLevel, "UREPRICER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
