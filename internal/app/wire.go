package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/l3acucm/urepricer/internal/blob/s3"
	"github.com/l3acucm/urepricer/internal/breaker"
	"github.com/l3acucm/urepricer/internal/cache/redis"
	"github.com/l3acucm/urepricer/internal/config"
	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/notify"
	"github.com/l3acucm/urepricer/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Redis-backed state
	Redis      *redis.Client
	Listings   domain.ListingStore
	Strategies domain.StrategyStore
	Prices     domain.PriceStore
	Resets     domain.ResetRuleStore
	Locks      domain.LockManager
	Limiter    domain.RateLimiter
	Bus        domain.Bus

	// Repriced fan-out: the Redis feed plus whichever optional consumers are
	// configured (price history, outcome archive).
	Publisher domain.RepricedPublisher
	History   domain.HistoryStore // nil unless Postgres is enabled
	Archiver  *s3blob.Archiver    // nil unless S3 is enabled

	// Shared facilities
	Breaker  *breaker.Breaker
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.SlackWebhookURL != "" {
		senders = append(senders, notify.NewSlackSender(cfg.Notify.SlackWebhookURL, ""))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Circuit breaker around the Redis store ---
	deps.Breaker = breaker.New(breaker.Config{
		FailureRatio:  cfg.Breaker.FailureRatio,
		Window:        cfg.Breaker.Window.Duration,
		Cooldown:      cfg.Breaker.Cooldown.Duration,
		MinSamples:    cfg.Breaker.MinSamples,
		OnStateChange: breakerAlerter(deps.Notifier, logger),
	})

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	ttl := cfg.Redis.TTL.Duration

	deps.Redis = redisClient
	deps.Listings = redis.NewListingStore(redisClient, ttl)
	deps.Strategies = redis.NewStrategyStore(redisClient)
	deps.Prices = redis.NewPriceStore(redisClient, ttl)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)
	deps.Bus = redis.NewBus(redisClient)

	resets, err := redis.NewResetRuleStore(redisClient, cfg.Reset.RuleCache.Duration)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: reset rule store: %w", err)
	}
	closers = append(closers, resets.Close)
	deps.Resets = resets

	// --- PostgreSQL price history (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.History = postgres.NewHistoryStore(pgClient.Pool())
	}

	// --- S3 outcome archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3Client, s3blob.ArchiverConfig{
			BufferSize:    cfg.S3.MaxBuffered,
			FlushInterval: cfg.S3.FlushInterval.Duration,
		}, logger)
	}

	deps.Publisher = &repricedFanout{
		feed:     redis.NewRepricedFeed(redisClient),
		history:  deps.History,
		archiver: deps.Archiver,
		logger:   logger.With(slog.String("component", "repriced_fanout")),
	}

	return deps, cleanup, nil
}

// breakerAlerter returns the breaker state-change hook: it logs every
// transition and raises an alert when the breaker opens or closes. Alert
// delivery runs off the engine's path.
func breakerAlerter(notifier *notify.Notifier, logger *slog.Logger) func(from, to breaker.State) {
	return func(from, to breaker.State) {
		logger.Warn("breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)

		var event, title string
		switch to {
		case breaker.StateOpen:
			event = notify.EventBreakerOpen
			title = "Repricing store breaker opened"
		case breaker.StateClosed:
			event = notify.EventBreakerClose
			title = "Repricing store breaker closed"
		default:
			return
		}

		msg := fmt.Sprintf("circuit breaker: %s -> %s", from, to)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = notifier.Notify(ctx, event, title, msg)
		}()
	}
}

// repricedFanout delivers each written CalculatedPrice to the Redis feed and,
// when configured, to the price-history table and the outcome archive. The
// optional consumers are best-effort: their failures are logged and never
// surfaced to the repricing pipeline.
type repricedFanout struct {
	feed     *redis.RepricedFeed
	history  domain.HistoryStore
	archiver *s3blob.Archiver
	logger   *slog.Logger
}

func (p *repricedFanout) PublishRepriced(ctx context.Context, rec domain.CalculatedPrice) error {
	err := p.feed.PublishRepriced(ctx, rec)

	if p.history != nil {
		if herr := p.history.AppendPrice(ctx, rec); herr != nil {
			p.logger.WarnContext(ctx, "price history append failed",
				slog.String("seller_id", rec.SellerID),
				slog.String("sku", rec.SKU),
				slog.String("error", herr.Error()),
			)
		}
	}

	if p.archiver != nil {
		p.archiver.Record(rec)
	}

	return err
}
