package handler

import (
	"log/slog"
	"net/http"

	"github.com/l3acucm/urepricer/internal/domain"
)

// PricesHandler serves calculated prices for a seller.
type PricesHandler struct {
	prices domain.PriceStore
	logger *slog.Logger
}

// NewPricesHandler creates a PricesHandler over the given store.
func NewPricesHandler(prices domain.PriceStore, logger *slog.Logger) *PricesHandler {
	return &PricesHandler{
		prices: prices,
		logger: logger.With(slog.String("handler", "prices")),
	}
}

// List returns every current calculated price for one seller. A seller with
// no calculated prices gets an empty list, not 404.
// GET /prices/{seller_id}
func (h *PricesHandler) List(w http.ResponseWriter, r *http.Request) {
	sellerID := pathParam(r, "seller_id")
	if sellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id is required")
		return
	}

	recs, err := h.prices.ListCalculatedPrices(r.Context(), sellerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list calculated prices failed",
			slog.String("seller_id", sellerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load calculated prices")
		return
	}
	if recs == nil {
		recs = []domain.CalculatedPrice{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"seller_id": sellerID,
		"count":     len(recs),
		"prices":    recs,
	})
}
