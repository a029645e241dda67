package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// Defaults enable the SQS consumer but cannot know the queue URL; with a
	// URL filled in the defaults must validate cleanly.
	cfg.SQS.QueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/offer-changes"

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.Engine.Workers)
	assert.Equal(t, 1000, cfg.Engine.QueueBound)
	assert.Equal(t, 30*time.Second, cfg.Engine.Deadline.Duration)
	assert.Equal(t, 10, cfg.SQS.BatchSize)
	assert.Equal(t, 20*time.Second, cfg.SQS.WaitTime.Duration)
	assert.Equal(t, 300*time.Second, cfg.SQS.VisibilityTimeout.Duration)
	assert.Equal(t, 3, cfg.SQS.MaxReceive)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL.Duration)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 0.5, cfg.Breaker.FailureRatio)
	assert.Equal(t, "0 * * * *", cfg.Reset.Cron)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "daemon" },
			wantMsg: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantMsg: "unknown log_level",
		},
		{
			name:    "empty redis addr",
			mutate:  func(c *Config) { c.Redis.Addr = "" },
			wantMsg: "redis: addr",
		},
		{
			name:    "sqs batch size too large",
			mutate:  func(c *Config) { c.SQS.BatchSize = 11 },
			wantMsg: "sqs: batch_size",
		},
		{
			name:    "visibility below deadline",
			mutate:  func(c *Config) { c.SQS.VisibilityTimeout = duration{10 * time.Second} },
			wantMsg: "visibility_timeout",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Engine.Workers = 0 },
			wantMsg: "engine: workers",
		},
		{
			name:    "breaker ratio above one",
			mutate:  func(c *Config) { c.Breaker.FailureRatio = 1.5 },
			wantMsg: "breaker: failure_ratio",
		},
		{
			name:    "server port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantMsg: "server: port",
		},
		{
			name:    "secret file without passphrase",
			mutate:  func(c *Config) { c.Server.WebhookSecretFile = "/etc/urepricer/secret.json" },
			wantMsg: "secret_passphrase",
		},
		{
			name: "rate limit without window",
			mutate: func(c *Config) {
				c.Server.RateLimit = 100
				c.Server.RateWindow = duration{}
			},
			wantMsg: "rate_window",
		},
		{
			name: "postgres pool bounds inverted",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.PoolMinConns = 20
			},
			wantMsg: "pool_min_conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.SQS.QueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/q"
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateSkipsSQSInServeMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeServe
	// queue_url intentionally empty: serve mode never touches SQS.
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)

	want := Defaults()
	assert.Equal(t, want.Engine.Workers, cfg.Engine.Workers)
	assert.Equal(t, want.Redis.Addr, cfg.Redis.Addr)
	assert.Equal(t, want.Mode, cfg.Mode)
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "consume"
log_level = "debug"

[redis]
addr = "redis.internal:6380"
ttl = "1h"

[engine]
workers = 25

[sqs]
queue_url = "https://sqs.eu-west-1.amazonaws.com/123456789012/offers"
region = "eu-west-1"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "consume", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL.Duration)
	assert.Equal(t, 25, cfg.Engine.Workers)
	assert.Equal(t, "eu-west-1", cfg.SQS.Region)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Engine.QueueBound)
	assert.Equal(t, 10, cfg.SQS.BatchSize)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesBeatTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[redis]
addr = "from-toml:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("UREPRICER_REDIS_ADDR", "from-env:6379")
	t.Setenv("UREPRICER_ENGINE_WORKERS", "42")
	t.Setenv("UREPRICER_ENGINE_DEADLINE", "45s")
	t.Setenv("UREPRICER_SQS_ENABLED", "false")
	t.Setenv("UREPRICER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env:6379", cfg.Redis.Addr)
	assert.Equal(t, 42, cfg.Engine.Workers)
	assert.Equal(t, 45*time.Second, cfg.Engine.Deadline.Duration)
	assert.False(t, cfg.SQS.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("wh_topsecret_123", "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "wh_topsecret_123", got)

	_, err = DecryptSecret(blob, "wrong passphrase")
	assert.Error(t, err)
}

func TestResolveWebhookSecret(t *testing.T) {
	t.Run("inline secret wins", func(t *testing.T) {
		got, err := ResolveWebhookSecret(ServerConfig{WebhookSecret: "inline"})
		require.NoError(t, err)
		assert.Equal(t, "inline", got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptSecret("from-file", "pass")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "secret.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := ResolveWebhookSecret(ServerConfig{
			WebhookSecretFile: path,
			SecretPassphrase:  "pass",
		})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("unset disables the check", func(t *testing.T) {
		got, err := ResolveWebhookSecret(ServerConfig{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.Server.APIKey = "key123"
	cfg.Server.WebhookSecret = "wh123"
	cfg.SQS.SecretKey = "aws-secret"
	cfg.Notify.SlackWebhookURL = "https://hooks.slack.com/services/T0/B0/XXX"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Server.WebhookSecret)
	assert.Equal(t, "***", red.SQS.SecretKey)
	assert.Equal(t, "***", red.Notify.SlackWebhookURL)

	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "wh123", cfg.Server.WebhookSecret)

	// Non-secret fields pass through.
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
	assert.Equal(t, cfg.Engine.Workers, red.Engine.Workers)
}
