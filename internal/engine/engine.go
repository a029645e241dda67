// Package engine runs the per-event repricing pipeline: resolve which of our
// listings an offer change touches, load listing and strategy state, run the
// eligibility gates, compute the new price, and persist it. One Repricer is
// shared by all workers; it holds no per-event state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/l3acucm/urepricer/internal/breaker"
	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/strategy"
)

// Deps bundles the stores and optional facilities a Repricer uses. Resets,
// Locks, Publisher, and Breaker may be nil; the corresponding behavior is
// then disabled.
type Deps struct {
	Listings   domain.ListingStore
	Strategies domain.StrategyStore
	Prices     domain.PriceStore
	Resets     domain.ResetRuleStore
	Locks      domain.LockManager
	Publisher  domain.RepricedPublisher
	Breaker    *breaker.Breaker
}

// Repricer executes the repricing pipeline for one offer-change event.
type Repricer struct {
	deps     Deps
	computer *strategy.Computer
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepricer creates a Repricer. lockTTL bounds how long a crashed worker
// can keep a listing locked.
func NewRepricer(deps Deps, lockTTL time.Duration, logger *slog.Logger) *Repricer {
	return &Repricer{
		deps:     deps,
		computer: strategy.NewComputer(logger),
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
	}
}

// Process runs the pipeline for every one of our listings the change
// touches. Queue events carry no seller context and fan out to every owner
// of the ASIN; webhook events name the seller and are filtered to it. The
// caller folds the results with domain.ReduceOutcomes to ack or redeliver
// the source message.
func (r *Repricer) Process(ctx context.Context, change *domain.OfferChange) []domain.Result {
	if r.deps.Breaker != nil && !r.deps.Breaker.Allow() {
		return []domain.Result{{Outcome: domain.OutcomeRetry, Err: domain.ErrBreakerOpen}}
	}

	refs, err := r.resolveOwners(ctx, change)
	if err != nil {
		return []domain.Result{{Outcome: domain.OutcomeRetry, Err: err}}
	}
	if len(refs) == 0 {
		r.logger.DebugContext(ctx, "no listing owner resolved",
			slog.String("event_id", change.EventID),
			slog.String("asin", change.ASIN),
			slog.String("seller_id", change.SellerID),
		)
		return []domain.Result{{Outcome: domain.OutcomeSkip, Reason: domain.SkipUnknownOwner, SellerID: change.SellerID}}
	}

	results := make([]domain.Result, 0, len(refs))
	for _, ref := range refs {
		results = append(results, r.processOne(ctx, change, ref))
	}
	return results
}

func (r *Repricer) resolveOwners(ctx context.Context, change *domain.OfferChange) ([]domain.ListingRef, error) {
	refs, err := r.deps.Listings.ListOwners(ctx, change.ASIN)
	r.observe(err)
	if err != nil {
		if domain.Retryable(err) {
			return nil, err
		}
		return nil, nil
	}
	if change.SellerID == "" {
		return refs, nil
	}
	own := make([]domain.ListingRef, 0, 1)
	for _, ref := range refs {
		if ref.SellerID == change.SellerID {
			own = append(own, ref)
		}
	}
	return own, nil
}

func (r *Repricer) processOne(ctx context.Context, change *domain.OfferChange, ref domain.ListingRef) (res domain.Result) {
	start := r.now()
	res.SellerID, res.SKU = ref.SellerID, ref.SKU
	defer func() { res.Elapsed = r.now().Sub(start) }()

	log := r.logger.With(
		slog.String("event_id", change.EventID),
		slog.String("asin", change.ASIN),
		slog.String("seller_id", ref.SellerID),
		slog.String("sku", ref.SKU),
	)

	if r.deps.Locks != nil {
		unlock, err := r.deps.Locks.Acquire(ctx, ref.SellerID+":"+ref.SKU, r.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.DebugContext(ctx, "listing locked by another worker, leaving for redelivery")
			} else {
				r.observe(err)
				log.WarnContext(ctx, "lock acquire failed", slog.String("error", err.Error()))
			}
			res.Outcome, res.Err = domain.OutcomeRetry, err
			return res
		}
		defer unlock()
	}

	listing, ok := r.loadListing(ctx, change, ref, log, &res)
	if !ok {
		return res
	}

	cfg, ok := r.loadStrategy(ctx, listing, log, &res)
	if !ok {
		return res
	}

	decision := Decide(DecisionInput{
		Change:        change,
		Listing:       listing,
		Strategy:      cfg,
		InResetWindow: r.inResetWindow(ctx, change, ref, listing, log),
	})
	if !decision.ShouldReprice {
		log.DebugContext(ctx, "repricing skipped", slog.String("reason", decision.Reason))
		res.Outcome, res.Reason = domain.OutcomeSkip, decision.Reason
		return res
	}

	rec, err := r.computer.Compute(strategy.Input{Change: change, Listing: listing, Config: cfg})
	if err != nil {
		if se, isSkip := domain.AsSkip(err); isSkip {
			log.InfoContext(ctx, "strategy declined to reprice",
				slog.String("reason", se.Reason),
				slog.String("detail", se.Detail),
			)
			res.Outcome, res.Reason = domain.OutcomeSkip, se.Reason
			return res
		}
		// Redelivering the same event would fail the same way.
		log.ErrorContext(ctx, "price computation failed", slog.String("error", err.Error()))
		res.Outcome, res.Reason, res.Err = domain.OutcomeSkip, "computation_failed", err
		return res
	}

	res.Price = rec
	if !rec.PriceChanged {
		log.DebugContext(ctx, "price unchanged, write elided",
			slog.String("price", rec.NewPrice.String()),
		)
		res.Outcome, res.Reason = domain.OutcomeSkip, domain.SkipPriceUnchanged
		return res
	}

	rec.ProcessingTimeMs = r.now().Sub(start).Milliseconds()
	err = r.deps.Prices.PutCalculatedPrice(ctx, *rec)
	r.observe(err)
	if err != nil {
		if domain.Retryable(err) {
			res.Outcome, res.Err = domain.OutcomeRetry, err
			return res
		}
		log.ErrorContext(ctx, "calculated price write rejected", slog.String("error", err.Error()))
		res.Outcome, res.Reason, res.Err = domain.OutcomeSkip, domain.SkipInvalidRecord, err
		return res
	}
	res.Written = true

	if r.deps.Publisher != nil {
		if pubErr := r.deps.Publisher.PublishRepriced(ctx, *rec); pubErr != nil {
			log.WarnContext(ctx, "repriced publish failed", slog.String("error", pubErr.Error()))
		}
	}

	log.InfoContext(ctx, "listing repriced",
		slog.String("strategy", rec.StrategyUsed),
		slog.String("old_price", priceStr(rec.OldPrice)),
		slog.String("new_price", rec.NewPrice.String()),
		slog.Int64("processing_ms", rec.ProcessingTimeMs),
	)
	res.Outcome, res.Reason = domain.OutcomeOK, "ok"
	return res
}

// loadListing fetches the listing, mapping store failures onto outcomes:
// not-found feeds the first gate, transient errors redeliver, unreadable
// records are skipped. ok is false when res is already terminal.
func (r *Repricer) loadListing(ctx context.Context, change *domain.OfferChange, ref domain.ListingRef, log *slog.Logger, res *domain.Result) (*domain.Listing, bool) {
	l, err := r.deps.Listings.GetListing(ctx, change.ASIN, ref.SellerID, ref.SKU)
	r.observe(err)
	switch {
	case err == nil:
		return &l, true
	case errors.Is(err, domain.ErrNotFound):
		return nil, true
	case domain.Retryable(err):
		res.Outcome, res.Err = domain.OutcomeRetry, err
		return nil, false
	default:
		log.WarnContext(ctx, "listing record unreadable", slog.String("error", err.Error()))
		res.Outcome, res.Reason, res.Err = domain.OutcomeSkip, domain.SkipInvalidRecord, err
		return nil, false
	}
}

// loadStrategy resolves the listing's strategy. A nil strategy (unset id,
// missing or unreadable record) is handed to the gates, which report
// strategy_missing.
func (r *Repricer) loadStrategy(ctx context.Context, l *domain.Listing, log *slog.Logger, res *domain.Result) (*domain.Strategy, bool) {
	if l == nil || l.StrategyID == "" {
		return nil, true
	}
	s, err := r.deps.Strategies.GetStrategy(ctx, l.StrategyID)
	r.observe(err)
	switch {
	case err == nil:
		return &s, true
	case errors.Is(err, domain.ErrNotFound):
		return nil, true
	case domain.Retryable(err):
		res.Outcome, res.Err = domain.OutcomeRetry, err
		return nil, false
	default:
		log.WarnContext(ctx, "strategy record unreadable",
			slog.String("strategy_id", l.StrategyID),
			slog.String("error", err.Error()),
		)
		return nil, true
	}
}

// inResetWindow checks the seller's price-reset rule. Rule lookups are best
// effort: a failed read logs and reprices normally rather than holding the
// whole event hostage to an auxiliary feature.
func (r *Repricer) inResetWindow(ctx context.Context, change *domain.OfferChange, ref domain.ListingRef, l *domain.Listing, log *slog.Logger) bool {
	if r.deps.Resets == nil || l == nil {
		return false
	}
	rule, err := r.deps.Resets.GetRule(ctx, ref.SellerID, change.Marketplace)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.WarnContext(ctx, "reset rule lookup failed, repricing anyway", slog.String("error", err.Error()))
		}
		return false
	}
	return rule.InWindow(r.now())
}

// observe feeds store round-trips to the circuit breaker. Only transient
// failures count against it; not-found and decode errors are answers, not
// outages.
func (r *Repricer) observe(err error) {
	if r.deps.Breaker == nil {
		return
	}
	if err == nil || !domain.Retryable(err) {
		r.deps.Breaker.Success()
		return
	}
	r.deps.Breaker.Failure()
}

func priceStr(p *domain.Price) string {
	if p == nil {
		return "unset"
	}
	return p.String()
}
