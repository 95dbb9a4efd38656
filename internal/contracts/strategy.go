package contracts

import "fmt"

// StrategyType is the directional class of a strategy
type StrategyType string

const (
	StrategyBuy     StrategyType = "BUY"
	StrategySell    StrategyType = "SELL"
	StrategyNoTrade StrategyType = "NO_TRADE"
)

// IsDirectional reports whether the strategy takes a position
func (t StrategyType) IsDirectional() bool {
	return t == StrategyBuy || t == StrategySell
}

// Actionability describes whether the strategy can act right now
type Actionability string

const (
	ActionableNow  Actionability = "actionable_now"
	WaitForTrigger Actionability = "wait_for_trigger"
	Invalidated    Actionability = "invalidated"
	NotActionable  Actionability = "not_actionable" // NO_TRADE
)

// ConditionScope classifies when a condition applies
type ConditionScope string

const (
	ScopeEntry     ConditionScope = "entry"
	ScopePreEntry  ConditionScope = "pre_entry"
	ScopePostEntry ConditionScope = "post_entry"
)

// Operator is a comparison between two value references
type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
)

// ValueRef references either a field of the market payload or a literal.
// Field가 비어있으면 Value 리터럴
type ValueRef struct {
	Field string  `json:"field,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// IsLiteral reports whether the reference carries a literal value
func (v ValueRef) IsLiteral() bool {
	return v.Field == ""
}

// Condition is a single evaluable trigger or invalidation
type Condition struct {
	Scope       ConditionScope `json:"scope"`
	Left        ValueRef       `json:"left"`
	Operator    Operator       `json:"operator"`
	Right       ValueRef       `json:"right"`
	Description string         `json:"description,omitempty"`

	// Evaluation outcome against source data
	Evaluated float64 `json:"evaluated"`
	Passed    bool    `json:"passed"`
}

// Compare applies the operator to resolved left/right values
func (c Condition) Compare(left, right float64) bool {
	switch c.Operator {
	case OpGT:
		return left > right
	case OpGTE:
		return left >= right
	case OpLT:
		return left < right
	case OpLTE:
		return left <= right
	default:
		return false
	}
}

// ScoreBand buckets the composite score
type ScoreBand string

const (
	BandHigh   ScoreBand = "High"   // >= 0.75
	BandMedium ScoreBand = "Medium" // >= 0.60
	BandLow    ScoreBand = "Low"
)

// RiskLabel is the inverse mapping of the score band
type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// PositionSize is the risk-budget-based sizing suggestion
type PositionSize struct {
	RiskBudgetPct float64 `json:"risk_budget_pct"` // of account, e.g. 1.0
	Quantity      int64   `json:"quantity"`
	Notional      float64 `json:"notional"`
}

// Strategy is the single recommendation attached to a completed record
type Strategy struct {
	ID        string       `json:"id"`
	Type      StrategyType `json:"type"`
	Archetype string       `json:"archetype"` // e.g. pullback, breakout, mean_reversion

	Entry      float64 `json:"entry"`
	Target     float64 `json:"target"`
	StopLoss   float64 `json:"stopLoss"`
	RiskReward float64 `json:"riskReward"`

	Triggers      []Condition `json:"triggers"`
	Invalidations []Condition `json:"invalidations"`

	// Validity windows, in market sessions
	EntryValidSessions int `json:"entry_valid_sessions"`
	TimeStopSessions   int `json:"time_stop_sessions"`

	Confidence    float64       `json:"confidence"`
	Score         float64       `json:"score"`
	ScoreBand     ScoreBand     `json:"score_band"`
	RiskMeter     RiskLabel     `json:"risk_meter"`
	Actionability Actionability `json:"actionability"`

	Position    PositionSize `json:"position"`
	Explanation string       `json:"explanation,omitempty"`
}

// Validate enforces price-level invariants.
// BUY ⇒ stop < entry < target, SELL ⇒ target < entry < stop
func (s *Strategy) Validate() error {
	switch s.Type {
	case StrategyBuy:
		if !(s.StopLoss < s.Entry && s.Entry < s.Target) {
			return fmt.Errorf("BUY bounds violated: stop=%.2f entry=%.2f target=%.2f", s.StopLoss, s.Entry, s.Target)
		}
	case StrategySell:
		if !(s.Target < s.Entry && s.Entry < s.StopLoss) {
			return fmt.Errorf("SELL bounds violated: target=%.2f entry=%.2f stop=%.2f", s.Target, s.Entry, s.StopLoss)
		}
	case StrategyNoTrade:
		// No price levels to check
	default:
		return fmt.Errorf("unknown strategy type %q", s.Type)
	}
	return nil
}

// EntryTriggers returns the entry-scope triggers
func (s *Strategy) EntryTriggers() []Condition {
	out := make([]Condition, 0, len(s.Triggers))
	for _, t := range s.Triggers {
		if t.Scope == ScopeEntry {
			out = append(out, t)
		}
	}
	return out
}

// PreEntryInvalidations returns the pre-entry invalidations
func (s *Strategy) PreEntryInvalidations() []Condition {
	out := make([]Condition, 0, len(s.Invalidations))
	for _, c := range s.Invalidations {
		if c.Scope == ScopePreEntry {
			out = append(out, c)
		}
	}
	return out
}
