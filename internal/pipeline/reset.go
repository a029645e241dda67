package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/strategy"
)

// ResetJob applies per-seller price-reset windows. The decision engine
// already suspends competitive repricing inside a window; this job writes
// the actual reset prices, once per window opening, as PRICE_RESET records.
type ResetJob struct {
	listings  domain.ListingStore
	resets    domain.ResetRuleStore
	prices    domain.PriceStore
	publisher domain.RepricedPublisher // optional
	logger    *slog.Logger
	now       func() time.Time
}

// NewResetJob creates a ResetJob. publisher may be nil.
func NewResetJob(
	listings domain.ListingStore,
	resets domain.ResetRuleStore,
	prices domain.PriceStore,
	publisher domain.RepricedPublisher,
	logger *slog.Logger,
) *ResetJob {
	return &ResetJob{
		listings:  listings,
		resets:    resets,
		prices:    prices,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "reset_job")),
		now:       time.Now,
	}
}

// Run executes a single reset pass: load all rules, work out which are in
// their window and still pending, then reset every listing of those sellers.
func (j *ResetJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	rules, err := j.resets.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("listing reset rules: %w", err)
	}

	// A seller may carry rules for several marketplaces; any pending
	// in-window rule triggers the reset for the seller's listings.
	pending := make(map[string]domain.ResetRule)
	for _, rule := range rules {
		if !rule.InWindow(now) {
			continue
		}
		if rule.PriceResetAt != nil && !rule.PriceResetAt.Before(windowStart(rule, now)) {
			continue // already reset this window
		}
		if _, ok := pending[rule.SellerID]; !ok {
			pending[rule.SellerID] = rule
		}
	}
	if len(pending) == 0 {
		j.logger.Debug("no reset windows pending", slog.Int("rules", len(rules)))
		return nil
	}

	var resets, skips, failures int
	scanErr := j.listings.ScanListings(ctx, func(l domain.Listing) bool {
		if _, ok := pending[l.SellerID]; !ok {
			return true
		}
		if err := j.resetListing(ctx, &l, now); err == nil {
			resets++
		} else if _, ok := domain.AsSkip(err); ok {
			skips++
		} else {
			failures++
			j.logger.Warn("price reset failed",
				slog.String("asin", l.ASIN),
				slog.String("seller_id", l.SellerID),
				slog.String("sku", l.SKU),
				slog.String("error", err.Error()),
			)
		}
		return ctx.Err() == nil
	})
	if scanErr != nil {
		return fmt.Errorf("scanning listings: %w", scanErr)
	}

	for seller, rule := range pending {
		if err := j.resets.MarkReset(ctx, seller, rule.Marketplace, now); err != nil {
			j.logger.Warn("marking reset failed",
				slog.String("seller_id", seller),
				slog.String("error", err.Error()),
			)
		}
	}

	j.logger.Info("reset pass complete",
		slog.Int("sellers", len(pending)),
		slog.Int("resets", resets),
		slog.Int("skips", skips),
		slog.Int("errors", failures),
	)
	return nil
}

// resetListing writes one PRICE_RESET record. The target is the listing's
// default price, falling back to its max; listings with neither are skipped.
func (j *ResetJob) resetListing(ctx context.Context, l *domain.Listing, now time.Time) error {
	target := l.DefaultPrice
	if target == nil {
		target = l.MaxPrice
	}
	if target == nil {
		return domain.Skipf(domain.SkipNoDefault, "no default or max price for %s/%s", l.ASIN, l.SKU)
	}
	if l.ListedPrice != nil && *l.ListedPrice == *target {
		return domain.Skip(domain.SkipPriceUnchanged)
	}

	rec := domain.CalculatedPrice{
		ASIN:         l.ASIN,
		SellerID:     l.SellerID,
		SKU:          l.SKU,
		NewPrice:     *target,
		OldPrice:     l.ListedPrice,
		StrategyUsed: strategy.NamePriceReset,
		PriceChanged: true,
		CalculatedAt: now,
	}
	if err := j.prices.PutCalculatedPrice(ctx, rec); err != nil {
		return err
	}
	if j.publisher != nil {
		if err := j.publisher.PublishRepriced(ctx, rec); err != nil {
			j.logger.Debug("reset publish failed", slog.String("error", err.Error()))
		}
	}

	j.logger.Info("price reset applied",
		slog.String("asin", l.ASIN),
		slog.String("seller_id", l.SellerID),
		slog.String("sku", l.SKU),
		slog.String("new_price", target.String()),
	)
	return nil
}

// RunCron runs the job on a 5-field cron schedule until ctx is cancelled.
// The default schedule is hourly on the hour ("0 * * * *").
func (j *ResetJob) RunCron(ctx context.Context, cronExpr string) error {
	j.logger.Info("reset cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, j.now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("reset cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("reset pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// windowStart returns the most recent wall-clock opening of the rule's
// window at or before now. Cross-midnight windows open the previous day once
// now is past midnight but still inside the window.
func windowStart(rule domain.ResetRule, now time.Time) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), rule.HourStart, 0, 0, 0, now.Location())
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}
