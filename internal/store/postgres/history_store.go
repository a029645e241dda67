package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// AppendPrice records one calculated price in the price_history table. Tiers
// are stored as JSONB; nil pointer fields become NULL columns.
func (s *HistoryStore) AppendPrice(ctx context.Context, rec domain.CalculatedPrice) error {
	var tiersJSON []byte
	if len(rec.Tiers) > 0 {
		var err error
		tiersJSON, err = json.Marshal(rec.Tiers)
		if err != nil {
			return fmt.Errorf("postgres: marshal price tiers: %w", err)
		}
	}

	const query = `
		INSERT INTO price_history (
			asin, seller_id, sku, new_price, old_price, strategy_used,
			strategy_id, competitor_price, price_changed, tiers,
			calculated_at, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		rec.ASIN,
		rec.SellerID,
		rec.SKU,
		int64(rec.NewPrice),
		priceOrNil(rec.OldPrice),
		rec.StrategyUsed,
		nilIfEmpty(rec.StrategyID),
		priceOrNil(rec.CompetitorPrice),
		rec.PriceChanged,
		tiersJSON,
		rec.CalculatedAt,
		rec.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("postgres: append price history %s/%s: %w", rec.SellerID, rec.SKU, err)
	}
	return nil
}

// ListRecentPrices returns the most recent history entries for a seller,
// newest first.
func (s *HistoryStore) ListRecentPrices(ctx context.Context, sellerID string, limit int) ([]domain.CalculatedPrice, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT asin, seller_id, sku, new_price, old_price, strategy_used,
		       strategy_id, competitor_price, price_changed, tiers,
		       calculated_at, processing_time_ms
		FROM price_history
		WHERE seller_id = $1
		ORDER BY calculated_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price history for %s: %w", sellerID, err)
	}
	defer rows.Close()

	var recs []domain.CalculatedPrice
	for rows.Next() {
		var (
			rec        domain.CalculatedPrice
			newPrice   int64
			oldPrice   *int64
			strategyID *string
			compPrice  *int64
			tiersJSON  []byte
		)

		if err := rows.Scan(
			&rec.ASIN, &rec.SellerID, &rec.SKU, &newPrice, &oldPrice,
			&rec.StrategyUsed, &strategyID, &compPrice, &rec.PriceChanged,
			&tiersJSON, &rec.CalculatedAt, &rec.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan price history row: %w", err)
		}

		rec.NewPrice = domain.Price(newPrice)
		if oldPrice != nil {
			rec.OldPrice = domain.PricePtr(domain.Price(*oldPrice))
		}
		if strategyID != nil {
			rec.StrategyID = *strategyID
		}
		if compPrice != nil {
			rec.CompetitorPrice = domain.PricePtr(domain.Price(*compPrice))
		}
		if len(tiersJSON) > 0 {
			if err := json.Unmarshal(tiersJSON, &rec.Tiers); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal price tiers: %w", err)
			}
		}

		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate price history rows: %w", err)
	}

	return recs, nil
}

// priceOrNil converts an optional price to a nullable int64 column value.
func priceOrNil(p *domain.Price) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

// nilIfEmpty maps an empty string to a NULL column value.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
