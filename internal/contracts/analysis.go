package contracts

import (
	"fmt"
	"time"
)

// AnalysisType is the trading-horizon class of an analysis.
// ATR 배수와 유효기간이 타입별로 다름
type AnalysisType string

const (
	AnalysisSwing    AnalysisType = "swing"
	AnalysisIntraday AnalysisType = "intraday"
)

// IsValid checks the analysis type
func (t AnalysisType) IsValid() bool {
	return t == AnalysisSwing || t == AnalysisIntraday
}

// AnalysisStatus is the lifecycle state of an AnalysisRecord
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusInProgress AnalysisStatus = "in_progress"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s AnalysisStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TrendLabel classifies the prevailing trend
type TrendLabel string

const (
	TrendBullish TrendLabel = "bullish"
	TrendBearish TrendLabel = "bearish"
	TrendNeutral TrendLabel = "neutral"
)

// VolatilityLabel buckets ATR14/last
type VolatilityLabel string

const (
	VolatilityLow    VolatilityLabel = "low"    // < 1%
	VolatilityMedium VolatilityLabel = "medium" // 1~2%
	VolatilityHigh   VolatilityLabel = "high"   // > 2%
)

// VolumeLabel classifies recent volume against its average
type VolumeLabel string

const (
	VolumeLow    VolumeLabel = "low"
	VolumeNormal VolumeLabel = "normal"
	VolumeHigh   VolumeLabel = "high"
)

// MarketSummary is the Stage-1 condensed market view
type MarketSummary struct {
	Last       float64         `json:"last"`
	Trend      TrendLabel      `json:"trend"`
	Volatility VolatilityLabel `json:"volatility"`
	Volume     VolumeLabel     `json:"volume"`
}

// SentimentContext is the qualitative news view fed into Stage 3
type SentimentContext struct {
	Sentiment  string   `json:"sentiment"` // bullish, bearish, neutral
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Signals    []string `json:"signals"`
	Horizon    string   `json:"horizon"`
}

// Progress tracks pipeline advancement within one record.
// Orchestrator만 갱신함
type Progress struct {
	Percentage     int    `json:"percentage"`
	Step           string `json:"step"`
	StepsCompleted int    `json:"steps_completed"`
	TotalSteps     int    `json:"total_steps"`
	ETASeconds     int    `json:"eta_seconds"`
}

// OrderGate is the computed auto-submit decision
type OrderGate struct {
	CanPlaceOrder bool     `json:"can_place_order"`
	Reasons       []string `json:"reasons,omitempty"`
}

// RuntimeEval is the evaluation of triggers/invalidations against source data
type RuntimeEval struct {
	EvaluatedAt               time.Time     `json:"evaluated_at"`
	EntryTriggersPassed       bool          `json:"entry_triggers_passed"`
	PreEntryInvalidationFired bool          `json:"pre_entry_invalidation_fired"`
	Actionability             Actionability `json:"actionability"`
}

// AnalysisData is the payload of a completed record
type AnalysisData struct {
	MarketSummary MarketSummary     `json:"market_summary"`
	Sentiment     *SentimentContext `json:"sentiment,omitempty"`
	Strategies    []Strategy        `json:"strategies"` // 완료 레코드는 정확히 1개
	Runtime       *RuntimeEval      `json:"runtime,omitempty"`
	OrderGate     OrderGate         `json:"order_gate"`
}

// AnalysisRecord is the persisted analysis, keyed by (instrument_key, analysis_type)
// ⭐ SSOT: 상태 전이는 Orchestrator를 통해서만
type AnalysisRecord struct {
	InstrumentKey string         `json:"instrument_key"`
	StockName     string         `json:"stock_name"`
	StockSymbol   string         `json:"stock_symbol"`
	Type          AnalysisType   `json:"analysis_type"`
	Status        AnalysisStatus `json:"status"`
	CurrentPrice  float64        `json:"current_price"`
	Progress      Progress       `json:"progress"`
	Data          *AnalysisData  `json:"analysis_data,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`

	ValidUntil         time.Time  `json:"valid_until"`
	ScheduledReleaseAt *time.Time `json:"scheduled_release_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the cache key string for logs and redis
func (r *AnalysisRecord) Key() string {
	return fmt.Sprintf("%s:%s", r.InstrumentKey, r.Type)
}

// IsReusableAt reports whether a requester at time now may be served this
// record without recomputation. Failed records are never reusable, which is
// what makes them retryable.
func (r *AnalysisRecord) IsReusableAt(now time.Time) bool {
	if r.Status != StatusCompleted {
		return false
	}
	if r.ScheduledReleaseAt != nil && now.Before(*r.ScheduledReleaseAt) {
		return false
	}
	return now.Before(r.ValidUntil)
}

// Strategy returns the single strategy of a completed record, or nil
func (r *AnalysisRecord) Strategy() *Strategy {
	if r.Data == nil || len(r.Data.Strategies) == 0 {
		return nil
	}
	return &r.Data.Strategies[0]
}

// RequestStatus classifies how a request was satisfied
type RequestStatus string

const (
	RequestCached     RequestStatus = "cached"
	RequestInProgress RequestStatus = "inProgress"
	RequestFresh      RequestStatus = "fresh"
)

// RequestResult is what the orchestrator hands back to callers
type RequestResult struct {
	Status RequestStatus   `json:"status"`
	Record *AnalysisRecord `json:"record"`
}
