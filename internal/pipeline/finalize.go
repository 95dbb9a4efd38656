package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/llm"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// FinalizeStage enriches the skeleton into the full strategy: triggers,
// invalidations, validity windows, explanation, position size.
// ⭐ SSOT: 트리거 필드 검증과 포지션 사이즈 계산은 여기서만
type FinalizeStage struct {
	completions contracts.CompletionService
	opts        contracts.CallOptions
	cfg         Config
	logger      *logger.Logger
}

// NewFinalizeStage creates Stage 3
func NewFinalizeStage(completions contracts.CompletionService, opts contracts.CallOptions, cfg Config, log *logger.Logger) *FinalizeStage {
	opts.JSONOnly = true
	return &FinalizeStage{completions: completions, opts: opts, cfg: cfg, logger: log}
}

// finalizePayload is the model's Stage-3 wire format
type finalizePayload struct {
	Triggers      []contracts.Condition `json:"triggers"`
	Invalidations []contracts.Condition `json:"invalidations"`
	Confidence    float64               `json:"confidence"`
	Explanation   string                `json:"explanation"`
}

// Run executes Stage 3. A NO_TRADE skeleton needs no completion call: the
// strategy is final as-is.
func (s *FinalizeStage) Run(ctx context.Context, symbol string, analysisType contracts.AnalysisType, skeleton *contracts.SkeletonResult, snap *market.Snapshot, sentiment *contracts.SentimentContext) (*contracts.FinalResult, contracts.StageUsage, error) {
	stageUsage := contracts.StageUsage{Stage: contracts.StageFinalize, Model: s.opts.Model}

	if skeleton.Type == contracts.StrategyNoTrade {
		return &contracts.FinalResult{Strategy: s.noTradeStrategy(skeleton), Fallback: skeleton.Fallback}, stageUsage, nil
	}

	start := time.Now()
	resp, err := s.completions.Complete(ctx, s.opts, []contracts.Message{
		{Role: "system", Content: finalizeSystem},
		{Role: "user", Content: finalizeUserPrompt(symbol, analysisType, skeleton, snap, sentiment)},
	})
	if err != nil {
		return nil, stageUsage, &contracts.ExternalServiceError{
			Service: "completion",
			Stage:   contracts.StageFinalize,
			Cause:   err,
		}
	}
	stageUsage.Usage = resp.Usage
	stageUsage.DurationMs = time.Since(start).Milliseconds()

	strategy := s.baseStrategy(skeleton, analysisType)

	var payload finalizePayload
	if err := llm.Decode(resp.Content, &payload); err != nil {
		s.logger.WithError(err).WithField("stage", contracts.StageFinalize.ShortName()).
			Warn("Finalize output unparseable, substituting fallback conditions")
		applyFallbackConditions(&strategy, skeleton)
		return &contracts.FinalResult{Strategy: strategy, Fallback: true}, stageUsage, nil
	}

	triggers := sanitizeConditions(payload.Triggers, contracts.ScopeEntry, snap)
	invalidations := sanitizeConditions(payload.Invalidations, contracts.ScopePreEntry, snap)
	if len(triggers) == 0 {
		// 평가 가능한 트리거가 하나도 안 남으면 대체 조건으로 강등
		s.logger.Warn("Finalize produced no evaluable triggers, substituting fallback conditions")
		applyFallbackConditions(&strategy, skeleton)
		return &contracts.FinalResult{Strategy: strategy, Fallback: true}, stageUsage, nil
	}

	strategy.Triggers = triggers
	strategy.Invalidations = invalidations
	strategy.Confidence = clampUnit(payload.Confidence)
	strategy.Explanation = payload.Explanation

	if err := strategy.Validate(); err != nil {
		return nil, stageUsage, &contracts.SchemaViolationError{
			Stage: contracts.StageFinalize,
			Cause: err,
		}
	}
	// S2에서 대체 골격이 들어왔으면 표식을 그대로 전달
	return &contracts.FinalResult{Strategy: strategy, Fallback: skeleton.Fallback}, stageUsage, nil
}

// baseStrategy carries the skeleton levels plus deterministic enrichment
func (s *FinalizeStage) baseStrategy(skeleton *contracts.SkeletonResult, analysisType contracts.AnalysisType) contracts.Strategy {
	return contracts.Strategy{
		ID:         uuid.NewString(),
		Type:       skeleton.Type,
		Archetype:  skeleton.Archetype,
		Entry:      skeleton.Entry,
		Target:     skeleton.Target,
		StopLoss:   skeleton.StopLoss,
		RiskReward: skeleton.RiskReward,

		EntryValidSessions: s.cfg.EntrySessions(analysisType),
		TimeStopSessions:   s.cfg.TimeStopSessions(analysisType),

		Position: s.positionSize(skeleton),
	}
}

func (s *FinalizeStage) noTradeStrategy(skeleton *contracts.SkeletonResult) contracts.Strategy {
	return contracts.Strategy{
		ID:            uuid.NewString(),
		Type:          contracts.StrategyNoTrade,
		Archetype:     skeleton.Archetype,
		Actionability: contracts.NotActionable,
		Explanation:   "현재 조건에서는 우위가 없어 관망을 권고합니다.",
	}
}

// positionSize derives a risk-budget-based size suggestion: quantity such
// that a stop-out loses RiskBudgetPct of the reference account.
func (s *FinalizeStage) positionSize(skeleton *contracts.SkeletonResult) contracts.PositionSize {
	riskPerShare := math.Abs(skeleton.Entry - skeleton.StopLoss)
	if riskPerShare <= 0 || skeleton.Entry <= 0 {
		return contracts.PositionSize{RiskBudgetPct: s.cfg.RiskBudgetPct}
	}

	riskBudget := s.cfg.AccountNotional * s.cfg.RiskBudgetPct / 100
	quantity := int64(riskBudget / riskPerShare)
	return contracts.PositionSize{
		RiskBudgetPct: s.cfg.RiskBudgetPct,
		Quantity:      quantity,
		Notional:      float64(quantity) * skeleton.Entry,
	}
}

// sanitizeConditions keeps only conditions whose field references exist in
// the snapshot and whose operator is known; scope is forced to the expected
// value.
func sanitizeConditions(conditions []contracts.Condition, scope contracts.ConditionScope, snap *market.Snapshot) []contracts.Condition {
	fields := snap.Fields()
	out := make([]contracts.Condition, 0, len(conditions))

	for _, c := range conditions {
		if !validOperator(c.Operator) {
			continue
		}
		if !validRef(c.Left, fields) || !validRef(c.Right, fields) {
			continue
		}
		// 리터럴끼리 비교하는 조건은 의미 없음
		if c.Left.IsLiteral() && c.Right.IsLiteral() {
			continue
		}
		c.Scope = scope
		c.Evaluated = 0
		c.Passed = false
		out = append(out, c)
	}
	return out
}

func validOperator(op contracts.Operator) bool {
	switch op {
	case contracts.OpGT, contracts.OpGTE, contracts.OpLT, contracts.OpLTE:
		return true
	}
	return false
}

func validRef(ref contracts.ValueRef, fields map[string]float64) bool {
	if ref.IsLiteral() {
		return true
	}
	_, ok := fields[ref.Field]
	return ok
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
