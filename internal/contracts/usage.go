package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenUsage counts tokens for one completion-service call
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CachedTokens int64 `json:"cached_tokens"`
}

// Add accumulates usage from another call
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedTokens += other.CachedTokens
}

// StageUsage is the per-stage breakdown in a ledger entry
type StageUsage struct {
	Stage      Stage      `json:"stage"`
	Model      string     `json:"model"`
	Usage      TokenUsage `json:"usage"`
	DurationMs int64      `json:"duration_ms"`
}

// UsageEntry is one usage-ledger row. The originating computation writes one
// row; every later cache hit writes a duplicate row flagged Cached with zero
// cost, attributing the access without re-billing compute.
type UsageEntry struct {
	ID            string       `json:"id"`
	InstrumentKey string       `json:"instrument_key"`
	AnalysisType  AnalysisType `json:"analysis_type"`
	UserID        string       `json:"user_id"`

	Stages []StageUsage `json:"stages"`
	Totals TokenUsage   `json:"totals"`

	CostUSD decimal.Decimal `json:"cost_usd"`
	CostKRW decimal.Decimal `json:"cost_krw"`

	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
}

// TotalTokens sums all counted tokens
func (e *UsageEntry) TotalTokens() int64 {
	return e.Totals.InputTokens + e.Totals.OutputTokens + e.Totals.CachedTokens
}
