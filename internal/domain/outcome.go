package domain

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the terminal disposition of one processed event.
type Outcome int

const (
	// OutcomeOK: processing finished; source message is acked.
	OutcomeOK Outcome = iota
	// OutcomeSkip: a business rule declined to reprice; acked, not an error.
	OutcomeSkip
	// OutcomeRetry: a transient store/queue failure; message is left for
	// redelivery after its visibility timeout.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkip:
		return "skip"
	case OutcomeRetry:
		return "retry"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Skip reasons surfaced by the decision and strategy engines. External
// dashboards group on these strings.
const (
	SkipProductNotFound        = "product_not_found"
	SkipInactive               = "inactive"
	SkipPaused                 = "paused"
	SkipOutOfStock             = "out_of_stock"
	SkipStrategyMissing        = "strategy_missing"
	SkipNoPriceRoom            = "no_price_room"
	SkipSelfCompetingBuyBox    = "self_competing_buybox"
	SkipSoleSellerTrivial      = "sole_seller_trivial"
	SkipSelfCompetingLowest    = "self_competing_lowest"
	SkipSelfCompetingFBALowest = "self_competing_fba_lowest"
	SkipNoValidCompetitor      = "no_valid_competitor"
	SkipNoFBACompetitor        = "no_fba_competitor"
	SkipAlreadyCheaper         = "already_cheaper"
	SkipNoDefault              = "no_default"
	SkipBelowMinNoAction       = "below_min_no_action"
	SkipAboveMaxNoAction       = "above_max_no_action"
	SkipBoundsViolation        = "bounds_violation"
	SkipUnknownOwner           = "unknown_owner"
	SkipResetWindow            = "reset_window"
	SkipPriceUnchanged         = "price_unchanged"
	SkipInvalidRecord          = "invalid_record"
)

// Decision is the decision engine's verdict for one listing.
type Decision struct {
	ShouldReprice bool
	Reason        string
}

// SkipError carries a skip reason through error returns without treating the
// skip as a failure. Strategy and engine code return it instead of panicking
// or inventing sentinel errors per reason.
type SkipError struct {
	Reason string
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return "skip: " + e.Reason
	}
	return "skip: " + e.Reason + ": " + e.Detail
}

// Skip returns a SkipError with the given reason.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Skipf returns a SkipError with the given reason and formatted detail.
func Skipf(reason, format string, args ...any) error {
	return &SkipError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsSkip unwraps err into a SkipError if it is one.
func AsSkip(err error) (*SkipError, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Result is the per-listing processing outcome the orchestrator accounts and
// acks on.
type Result struct {
	Outcome  Outcome
	Reason   string
	SellerID string
	SKU      string
	Price    *CalculatedPrice // set when a price was computed
	Written  bool             // true when the price was persisted
	Err      error            // set for retry outcomes
	Elapsed  time.Duration
}

// ReduceOutcomes folds per-listing results into a single source-level
// outcome: any retry wins (the message must redeliver), else any ok, else
// skip.
func ReduceOutcomes(results []Result) Outcome {
	outcome := OutcomeSkip
	for _, r := range results {
		switch r.Outcome {
		case OutcomeRetry:
			return OutcomeRetry
		case OutcomeOK:
			outcome = OutcomeOK
		}
	}
	return outcome
}
