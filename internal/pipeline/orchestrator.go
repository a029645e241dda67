// Package pipeline runs the event-processing side of the repricer: a bounded
// worker pool draining one internal stream fed by both intake adapters, the
// hourly price-reset job, and the shared processing counters.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/engine"
	"github.com/l3acucm/urepricer/internal/platform/amazon"
	"github.com/l3acucm/urepricer/internal/platform/walmart"
)

// RawEvent is one intake item: the raw payload plus the callback that settles
// the source message.
type RawEvent struct {
	ID         string
	Source     domain.Source
	Body       []byte
	ReceivedAt time.Time
	// Done receives the folded outcome exactly once. The queue adapter
	// deletes its message on ok/skip and leaves it for redelivery on retry;
	// webhook events were acked at intake and pass nil.
	Done func(domain.Outcome)
}

// Config sizes the orchestrator.
type Config struct {
	Workers       int
	QueueSize     int
	EventDeadline time.Duration
	DrainTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 100
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.EventDeadline <= 0 {
		c.EventDeadline = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	return c
}

// Orchestrator owns the internal event stream and the worker pool that
// drains it. Each event is handled end-to-end by one worker: normalize, run
// the repricing pipeline, account the results, settle the source message.
type Orchestrator struct {
	cfg      Config
	repricer *engine.Repricer
	stats    *Stats
	events   chan RawEvent
	closed   atomic.Bool
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator around the given repricer. Stats
// may be shared with the intake adapters and the stats endpoint.
func NewOrchestrator(repricer *engine.Repricer, stats *Stats, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:      cfg,
		repricer: repricer,
		stats:    stats,
		events:   make(chan RawEvent, cfg.QueueSize),
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Submit enqueues an event without blocking. It returns domain.ErrQueueFull
// when the stream is saturated or shutdown has begun; the webhook adapter
// turns that into a 503 and the queue adapter leaves the message unreceived.
func (o *Orchestrator) Submit(ev RawEvent) error {
	if o.closed.Load() {
		return domain.ErrQueueFull
	}
	select {
	case o.events <- ev:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Depth returns the number of queued, not yet claimed events.
func (o *Orchestrator) Depth() int { return len(o.events) }

// Capacity returns the stream bound.
func (o *Orchestrator) Capacity() int { return cap(o.events) }

// Run starts the worker pool and blocks until ctx is cancelled, then drains:
// intake stops immediately, queued events are worked off until the stream is
// empty or the drain timeout passes, and in-flight events are cut loose at
// the timeout.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Int("workers", o.cfg.Workers),
		slog.Int("queue_size", o.cfg.QueueSize),
		slog.Duration("event_deadline", o.cfg.EventDeadline),
	)

	// Workers live on their own context so queued events survive ctx
	// cancellation for the drain window.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(workCtx, stop)
		}()
	}

	<-ctx.Done()
	o.closed.Store(true)
	deadline := time.Now().Add(o.cfg.DrainTimeout)
	o.logger.Info("orchestrator draining", slog.Int("queued", len(o.events)))

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for len(o.events) > 0 && time.Now().Before(deadline) {
		<-tick.C
	}
	close(stop)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		cancelWork()
		<-done
	}

	if dropped := len(o.events); dropped > 0 {
		o.logger.Warn("orchestrator stopped with events still queued", slog.Int("dropped", dropped))
	} else {
		o.logger.Info("orchestrator stopped cleanly")
	}
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev := <-o.events:
			outcome := o.process(ctx, ev)
			if ev.Done != nil {
				ev.Done(outcome)
			}
		}
	}
}

// process runs one event through normalize and the repricing pipeline. It
// never panics through to the worker loop; an unexpected panic is logged
// with its stack and the event is acked as a skip.
func (o *Orchestrator) process(parent context.Context, ev RawEvent) (outcome domain.Outcome) {
	ctx, cancel := context.WithTimeout(parent, o.cfg.EventDeadline)
	defer cancel()

	log := o.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("source", string(ev.Source)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "panic while processing event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			o.stats.RecordEvent([]domain.Result{{Outcome: domain.OutcomeSkip, Reason: domain.SkipInvalidRecord}})
			outcome = domain.OutcomeSkip
		}
	}()

	change, err := normalize(ev)
	if err != nil {
		log.WarnContext(ctx, "dropping malformed event", slog.String("error", err.Error()))
		o.stats.RecordEvent([]domain.Result{{Outcome: domain.OutcomeSkip, Reason: domain.SkipInvalidRecord}})
		return domain.OutcomeSkip
	}

	results := o.repricer.Process(ctx, change)
	o.stats.RecordEvent(results)

	outcome = domain.ReduceOutcomes(results)
	log.DebugContext(ctx, "event processed",
		slog.String("asin", change.ASIN),
		slog.String("outcome", outcome.String()),
		slog.Int("listings", len(results)),
	)
	return outcome
}

// normalize dispatches the raw payload to its marketplace parser.
func normalize(ev RawEvent) (*domain.OfferChange, error) {
	var (
		change *domain.OfferChange
		err    error
	)
	switch ev.Source {
	case domain.SourceAmazon:
		change, err = amazon.Parse(ev.Body, ev.ReceivedAt)
	case domain.SourceWalmart:
		change, err = walmart.Parse(ev.Body, ev.ReceivedAt)
	default:
		return nil, fmt.Errorf("unknown event source %q", ev.Source)
	}
	if err != nil {
		return nil, err
	}
	if change.EventID == "" {
		change.EventID = ev.ID
	}
	return change, nil
}
