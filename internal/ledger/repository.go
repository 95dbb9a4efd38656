package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// Repository persists usage-ledger rows
// ⭐ SSOT: usage_ledger 테이블 접근은 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a usage ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one ledger row. Ledger rows are append-only.
func (r *Repository) Append(ctx context.Context, entry *contracts.UsageEntry) error {
	stagesJSON, err := json.Marshal(entry.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stage usage: %w", err)
	}

	query := `
		INSERT INTO usage_ledger (
			id, instrument_key, analysis_type, user_id,
			stages, input_tokens, output_tokens, cached_tokens,
			cost_usd, cost_krw, cached, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.pool.Exec(ctx, query,
		entry.ID, entry.InstrumentKey, string(entry.AnalysisType), entry.UserID,
		stagesJSON, entry.Totals.InputTokens, entry.Totals.OutputTokens, entry.Totals.CachedTokens,
		entry.CostUSD, entry.CostKRW, entry.Cached, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage entry: %w", err)
	}

	return nil
}

// SumForUser returns total token count and USD cost for a user since a cutoff
func (r *Repository) SumForUser(ctx context.Context, userID string) (int64, string, error) {
	query := `
		SELECT
			COALESCE(SUM(input_tokens + output_tokens + cached_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM usage_ledger
		WHERE user_id = $1
	`

	var tokens int64
	var costUSD string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&tokens, &costUSD); err != nil {
		return 0, "", fmt.Errorf("failed to sum usage: %w", err)
	}

	return tokens, costUSD, nil
}
