package handler

import (
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/strategy"
)

// PricingHandler serves the manual reset/resume management endpoints. These
// bypass the strategy math entirely and write through the stores directly.
type PricingHandler struct {
	listings domain.ListingStore
	prices   domain.PriceStore
	logger   *slog.Logger
}

// NewPricingHandler creates a PricingHandler over the given stores.
func NewPricingHandler(listings domain.ListingStore, prices domain.PriceStore, logger *slog.Logger) *PricingHandler {
	return &PricingHandler{
		listings: listings,
		prices:   prices,
		logger:   logger.With(slog.String("handler", "pricing")),
	}
}

type pricingResetRequest struct {
	SellerID string   `json:"seller_id"`
	Price    *float64 `json:"price,omitempty"` // overrides the per-listing default when set
	Reason   string   `json:"reason,omitempty"`
}

type pricingResumeRequest struct {
	SellerID string `json:"seller_id"`
}

// Reset sets every listing of a seller back to a fixed price (the request's
// price, else the listing's default) and pauses competitive repricing for it
// until a resume call.
// POST /pricing/reset
func (h *PricingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req pricingResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.SellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id is required")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual_reset"
	}

	var override *domain.Price
	if req.Price != nil {
		if *req.Price <= 0 {
			writeError(w, http.StatusBadRequest, "price must be positive")
			return
		}
		override = domain.PricePtr(domain.PriceFromFloat(*req.Price))
	}

	ctx := r.Context()
	now := time.Now().UTC()
	var resets, skips, failures int

	err := h.listings.ScanListings(ctx, func(l domain.Listing) bool {
		if l.SellerID != req.SellerID {
			return true
		}

		target := override
		if target == nil {
			target = l.DefaultPrice
		}
		if target == nil {
			skips++
			return true
		}

		rec := domain.CalculatedPrice{
			ASIN:            l.ASIN,
			SellerID:        l.SellerID,
			SKU:             l.SKU,
			NewPrice:        *target,
			OldPrice:        l.ListedPrice,
			StrategyUsed:    strategy.NamePriceReset,
			PriceChanged:    l.ListedPrice == nil || *l.ListedPrice != *target,
			CalculatedAt:    now,
			CompetitorPrice: nil,
		}
		if err := h.prices.PutCalculatedPrice(ctx, rec); err != nil {
			h.logger.WarnContext(ctx, "manual reset write failed",
				slog.String("sku", l.SKU),
				slog.String("error", err.Error()),
			)
			failures++
			return true
		}

		l.RepricingPaused = true
		l.UpdatedAt = &now
		if err := h.listings.PutListing(ctx, l); err != nil {
			h.logger.WarnContext(ctx, "pause flag write failed",
				slog.String("sku", l.SKU),
				slog.String("error", err.Error()),
			)
			failures++
			return true
		}
		resets++
		return true
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "manual reset scan failed",
			slog.String("seller_id", req.SellerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to scan listings")
		return
	}

	h.logger.InfoContext(ctx, "manual pricing reset",
		slog.String("seller_id", req.SellerID),
		slog.String("reason", reason),
		slog.Int("resets", resets),
		slog.Int("skipped", skips),
		slog.Int("failures", failures),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"seller_id":   req.SellerID,
		"reason":      reason,
		"reset_count": resets,
		"skipped":     skips,
		"error_count": failures,
		"reset_at":    now.Format(time.RFC3339),
	})
}

// Resume clears the repricing pause flag on every listing of a seller.
// POST /pricing/resume
func (h *PricingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req pricingResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.SellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	var resumed, failures int

	err := h.listings.ScanListings(ctx, func(l domain.Listing) bool {
		if l.SellerID != req.SellerID || !l.RepricingPaused {
			return true
		}

		l.RepricingPaused = false
		l.UpdatedAt = &now
		if err := h.listings.PutListing(ctx, l); err != nil {
			h.logger.WarnContext(ctx, "pause flag clear failed",
				slog.String("sku", l.SKU),
				slog.String("error", err.Error()),
			)
			failures++
			return true
		}
		resumed++
		return true
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "manual resume scan failed",
			slog.String("seller_id", req.SellerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to scan listings")
		return
	}

	h.logger.InfoContext(ctx, "manual pricing resume",
		slog.String("seller_id", req.SellerID),
		slog.Int("resumed", resumed),
		slog.Int("failures", failures),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"seller_id":    req.SellerID,
		"resume_count": resumed,
		"error_count":  failures,
		"resumed_at":   now.Format(time.RFC3339),
	})
}
