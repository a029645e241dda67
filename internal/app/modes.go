package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l3acucm/urepricer/internal/config"
	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/engine"
	"github.com/l3acucm/urepricer/internal/feed"
	"github.com/l3acucm/urepricer/internal/pipeline"
	"github.com/l3acucm/urepricer/internal/server"
	"github.com/l3acucm/urepricer/internal/server/handler"
	"github.com/l3acucm/urepricer/internal/server/ws"
)

// core bundles the processing components every mode shares: the repricing
// engine's orchestrator and the counters both intake adapters and the stats
// endpoint report against.
type core struct {
	stats        *pipeline.Stats
	orchestrator *pipeline.Orchestrator
}

// AllMode runs the complete system: the SQS consumer, the HTTP server with
// the WebSocket feed, and the price-reset cron.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	g.Go(func() error { return c.orchestrator.Run(ctx) })
	a.startArchiver(ctx, g, deps)

	if a.cfg.SQS.Enabled {
		if err := a.startConsumer(ctx, g, deps, c); err != nil {
			return err
		}
	}
	if a.cfg.Server.Enabled {
		if err := a.startServer(ctx, g, deps, c); err != nil {
			return err
		}
	}
	a.startResetJob(ctx, g, deps)

	return g.Wait()
}

// ServeMode runs the HTTP server only. Webhook intake still feeds the worker
// pool; the SQS consumer and the reset cron stay off.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	g.Go(func() error { return c.orchestrator.Run(ctx) })
	a.startArchiver(ctx, g, deps)

	if err := a.startServer(ctx, g, deps, c); err != nil {
		return err
	}

	return g.Wait()
}

// ConsumeMode runs the SQS consumer only, without the HTTP surface.
func (a *App) ConsumeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting consume mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	g.Go(func() error { return c.orchestrator.Run(ctx) })
	a.startArchiver(ctx, g, deps)

	if err := a.startConsumer(ctx, g, deps, c); err != nil {
		return err
	}

	return g.Wait()
}

// buildCore constructs the repricing engine and the orchestrator that drains
// the internal event stream.
func (a *App) buildCore(deps *Dependencies) *core {
	var locks domain.LockManager
	if a.cfg.Engine.LockEnabled {
		locks = deps.Locks
	}

	repricer := engine.NewRepricer(engine.Deps{
		Listings:   deps.Listings,
		Strategies: deps.Strategies,
		Prices:     deps.Prices,
		Resets:     deps.Resets,
		Locks:      locks,
		Publisher:  deps.Publisher,
		Breaker:    deps.Breaker,
	}, a.cfg.Engine.LockTTL.Duration, a.logger)

	stats := pipeline.NewStats()
	orch := pipeline.NewOrchestrator(repricer, stats, pipeline.Config{
		Workers:       a.cfg.Engine.Workers,
		QueueSize:     a.cfg.Engine.QueueBound,
		EventDeadline: a.cfg.Engine.Deadline.Duration,
		DrainTimeout:  a.cfg.Engine.DrainTimeout.Duration,
	}, a.logger)

	return &core{stats: stats, orchestrator: orch}
}

// startConsumer builds the SQS consumer and starts its polling loop.
func (a *App) startConsumer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) error {
	sqsFeed, err := feed.NewSQSFeed(ctx, feed.SQSConfig{
		QueueURL:          a.cfg.SQS.QueueURL,
		Region:            a.cfg.SQS.Region,
		Endpoint:          a.cfg.SQS.Endpoint,
		AccessKey:         a.cfg.SQS.AccessKey,
		SecretKey:         a.cfg.SQS.SecretKey,
		BatchSize:         int32(a.cfg.SQS.BatchSize),
		WaitTime:          a.cfg.SQS.WaitTime.Duration,
		VisibilityTimeout: a.cfg.SQS.VisibilityTimeout.Duration,
		MaxReceive:        a.cfg.SQS.MaxReceive,
	}, c.orchestrator, deps.Breaker, c.stats, deps.Notifier, a.logger)
	if err != nil {
		return fmt.Errorf("building sqs consumer: %w", err)
	}

	g.Go(func() error { return sqsFeed.Run(ctx) })
	return nil
}

// startServer resolves the webhook secret, builds the HTTP server with the
// WebSocket hub, and starts both.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) error {
	secret, err := config.ResolveWebhookSecret(a.cfg.Server)
	if err != nil {
		return fmt.Errorf("resolving webhook secret: %w", err)
	}

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Redis, deps.Breaker, c.orchestrator, a.logger),
		Webhook: handler.NewWebhookHandler(c.orchestrator, a.logger),
		Stats:   handler.NewStatsHandler(c.stats, a.logger),
		Prices:  handler.NewPricesHandler(deps.Prices, a.logger),
		Pricing: handler.NewPricingHandler(deps.Listings, deps.Prices, a.logger),
	}

	var limiter domain.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = deps.Limiter
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		WebhookSecret:   secret,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, limiter, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

// startResetJob starts the price-reset cron when enabled.
func (a *App) startResetJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Reset.Enabled {
		return
	}

	job := pipeline.NewResetJob(deps.Listings, deps.Resets, deps.Prices, deps.Publisher, a.logger)
	cron := a.cfg.Reset.Cron
	g.Go(func() error { return job.RunCron(ctx, cron) })
}

// startArchiver starts the S3 flush loop when the archive is configured. It
// runs in every mode so buffered outcomes drain wherever the engine runs.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error { return deps.Archiver.Run(ctx) })
}
