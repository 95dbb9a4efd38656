package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/llm"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/internal/scoring"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// SkeletonStage produces the Stage-2 strategy skeleton. The model proposes
// direction and ATR multiples; the price levels and risk-reward enforcement
// are computed here, never trusted from the model.
// ⭐ SSOT: entry/target/stop 산출과 rr 강제는 여기서만
type SkeletonStage struct {
	completions contracts.CompletionService
	opts        contracts.CallOptions
	cfg         Config
	bands       scoring.Config
	logger      *logger.Logger
}

// NewSkeletonStage creates Stage 2
func NewSkeletonStage(completions contracts.CompletionService, opts contracts.CallOptions, cfg Config, bands scoring.Config, log *logger.Logger) *SkeletonStage {
	opts.JSONOnly = true
	return &SkeletonStage{completions: completions, opts: opts, cfg: cfg, bands: bands, logger: log}
}

// skeletonPayload is the model's Stage-2 wire format
type skeletonPayload struct {
	Type          string  `json:"type"`
	Archetype     string  `json:"archetype"`
	Entry         float64 `json:"entry"`
	TargetATRMult float64 `json:"target_atr_mult"`
	StopATRMult   float64 `json:"stop_atr_mult"`
	Alignment     string  `json:"alignment"`
}

// Run executes Stage 2
func (s *SkeletonStage) Run(ctx context.Context, symbol string, analysisType contracts.AnalysisType, preflight *contracts.PreflightResult, snap *market.Snapshot) (*contracts.SkeletonResult, contracts.StageUsage, error) {
	stageUsage := contracts.StageUsage{Stage: contracts.StageSkeleton, Model: s.opts.Model}
	bands := s.bands.BandsFor(analysisType)

	targetBand := fmt.Sprintf("[%.2f, %.2f] x ATR", bands.Target.Min, bands.Target.Max)
	stopBand := fmt.Sprintf("[%.2f, %.2f] x ATR", bands.Stop.Min, bands.Stop.Max)

	start := time.Now()
	resp, err := s.completions.Complete(ctx, s.opts, []contracts.Message{
		{Role: "system", Content: skeletonSystem},
		{Role: "user", Content: skeletonUserPrompt(symbol, analysisType, preflight, snap, targetBand, stopBand)},
	})
	if err != nil {
		return nil, stageUsage, &contracts.ExternalServiceError{
			Service: "completion",
			Stage:   contracts.StageSkeleton,
			Cause:   err,
		}
	}
	stageUsage.Usage = resp.Usage
	stageUsage.DurationMs = time.Since(start).Milliseconds()

	var payload skeletonPayload
	if err := llm.Decode(resp.Content, &payload); err != nil {
		// 복구(펜스 제거 + 재파싱)까지 실패: 표식 달린 대체 골격으로 진행
		s.logger.WithError(err).WithField("stage", contracts.StageSkeleton.ShortName()).
			Warn("Skeleton output unparseable, substituting fallback")
		return FallbackSkeleton(preflight.MarketSummary.Trend, snap, bands), stageUsage, nil
	}

	result, err := s.build(payload, snap, bands)
	if err != nil {
		s.logger.WithError(err).Warn("Skeleton rejected by validation, substituting fallback")
		return FallbackSkeleton(preflight.MarketSummary.Trend, snap, bands), stageUsage, nil
	}
	return result, stageUsage, nil
}

// build derives price levels from the proposed multiples and enforces the
// bound and risk-reward invariants.
func (s *SkeletonStage) build(payload skeletonPayload, snap *market.Snapshot, bands scoring.TypeBands) (*contracts.SkeletonResult, error) {
	strategyType := contracts.StrategyType(payload.Type)
	switch strategyType {
	case contracts.StrategyNoTrade:
		return &contracts.SkeletonResult{
			Type:      contracts.StrategyNoTrade,
			Archetype: payload.Archetype,
			Alignment: payload.Alignment,
		}, nil
	case contracts.StrategyBuy, contracts.StrategySell:
		// continue below
	default:
		return nil, fmt.Errorf("unknown skeleton type %q", payload.Type)
	}

	entry := payload.Entry
	if entry <= 0 {
		entry = snap.Last
	}
	if entry <= 0 || snap.ATR14 <= 0 {
		return nil, fmt.Errorf("entry or ATR unavailable")
	}
	// Entry must stay near the current price; the model cannot move it
	// beyond one ATR away
	if math.Abs(entry-snap.Last) > snap.ATR14 {
		entry = snap.Last
	}

	k := clampMult(payload.TargetATRMult, bands.Target, bands.DefaultTarget)
	m := clampMult(payload.StopATRMult, bands.Stop, bands.DefaultStop)

	rr := k / m
	if rr < s.cfg.MinRiskReward {
		// One retune inside bounds: pull the stop in to restore rr
		m = clampMult(k/s.cfg.MinRiskReward, bands.Stop, bands.DefaultStop)
		rr = k / m
	}
	if rr < s.cfg.MinRiskReward {
		return &contracts.SkeletonResult{
			Type:      contracts.StrategyNoTrade,
			Archetype: payload.Archetype,
			Alignment: payload.Alignment,
		}, nil
	}

	result := &contracts.SkeletonResult{
		Type:          strategyType,
		Archetype:     payload.Archetype,
		Entry:         entry,
		RiskReward:    rr,
		TargetATRMult: k,
		StopATRMult:   m,
		Alignment:     payload.Alignment,
	}
	if strategyType == contracts.StrategyBuy {
		result.Target = entry + k*snap.ATR14
		result.StopLoss = entry - m*snap.ATR14
	} else {
		result.Target = entry - k*snap.ATR14
		result.StopLoss = entry + m*snap.ATR14
	}

	if err := validateSkeletonBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// validateSkeletonBounds enforces BUY ⇒ stop<entry<target, SELL ⇒ target<entry<stop
func validateSkeletonBounds(r *contracts.SkeletonResult) error {
	switch r.Type {
	case contracts.StrategyBuy:
		if !(r.StopLoss < r.Entry && r.Entry < r.Target) {
			return fmt.Errorf("BUY skeleton bounds violated: stop=%.2f entry=%.2f target=%.2f", r.StopLoss, r.Entry, r.Target)
		}
	case contracts.StrategySell:
		if !(r.Target < r.Entry && r.Entry < r.StopLoss) {
			return fmt.Errorf("SELL skeleton bounds violated: target=%.2f entry=%.2f stop=%.2f", r.Target, r.Entry, r.StopLoss)
		}
	}
	return nil
}

// clampMult clamps a proposed multiple into its band; non-positive proposals
// take the default
func clampMult(v float64, band scoring.MultBand, def float64) float64 {
	if v <= 0 {
		return def
	}
	if v < band.Min {
		return band.Min
	}
	if v > band.Max {
		return band.Max
	}
	return v
}
