package pipeline

import (
	"context"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/llm"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// PreflightStage computes the Stage-1 market summary and sufficiency check.
// ⭐ SSOT: trend/volatility/volume 라벨 규칙은 여기서만
//
// 라벨은 스냅샷에서 결정적으로 계산하고, completion 호출은 해설만 보탬.
// 모델이 라벨을 바꿔 말해도 계산값이 이김.
type PreflightStage struct {
	completions contracts.CompletionService
	opts        contracts.CallOptions
	logger      *logger.Logger
}

// NewPreflightStage creates Stage 1
func NewPreflightStage(completions contracts.CompletionService, opts contracts.CallOptions, log *logger.Logger) *PreflightStage {
	opts.JSONOnly = true
	return &PreflightStage{completions: completions, opts: opts, logger: log}
}

// preflightPayload is the model's Stage-1 wire format
type preflightPayload struct {
	Trend      string `json:"trend"`
	Volatility string `json:"volatility"`
	Volume     string `json:"volume"`
	Commentary string `json:"commentary"`
}

// Run executes Stage 1. Missing last price or ATR halts before any
// completion call: insufficient data is terminal, not retried.
func (s *PreflightStage) Run(ctx context.Context, symbol, stockName string, analysisType contracts.AnalysisType, snap *market.Snapshot) (*contracts.PreflightResult, contracts.StageUsage, error) {
	stageUsage := contracts.StageUsage{Stage: contracts.StagePreflight, Model: s.opts.Model}

	if !snap.HasLast || !snap.HasATR {
		return &contracts.PreflightResult{
			InsufficientData: true,
			MissingFields:    snap.Missing(),
		}, stageUsage, nil
	}

	summary := Summarize(snap)

	start := time.Now()
	resp, err := s.completions.Complete(ctx, s.opts, []contracts.Message{
		{Role: "system", Content: preflightSystem},
		{Role: "user", Content: preflightUserPrompt(symbol, stockName, analysisType, snap, summary)},
	})
	if err != nil {
		return nil, stageUsage, &contracts.ExternalServiceError{
			Service: "completion",
			Stage:   contracts.StagePreflight,
			Cause:   err,
		}
	}
	stageUsage.Usage = resp.Usage
	stageUsage.DurationMs = time.Since(start).Milliseconds()

	result := &contracts.PreflightResult{MarketSummary: summary}

	var payload preflightPayload
	if err := llm.Decode(resp.Content, &payload); err != nil {
		// 해설은 장식: 파싱 실패해도 계산된 요약으로 진행
		s.logger.WithError(err).Warn("Preflight commentary unparseable, proceeding without it")
		return result, stageUsage, nil
	}
	result.Commentary = payload.Commentary

	return result, stageUsage, nil
}

// Summarize maps an indicator snapshot to the Stage-1 labels.
// trend: EMA20>EMA50 이고 last>SMA200 이면 bullish, 반대면 bearish, 그 외 neutral
// volatility: ATR14/last < 1% low, 1~2% medium, > 2% high
func Summarize(snap *market.Snapshot) contracts.MarketSummary {
	summary := contracts.MarketSummary{
		Last:       snap.Last,
		Trend:      contracts.TrendNeutral,
		Volatility: contracts.VolatilityMedium,
		Volume:     contracts.VolumeNormal,
	}

	if snap.HasEMA && snap.HasSMA {
		switch {
		case snap.EMA20 > snap.EMA50 && snap.Last > snap.SMA200:
			summary.Trend = contracts.TrendBullish
		case snap.EMA20 < snap.EMA50 && snap.Last < snap.SMA200:
			summary.Trend = contracts.TrendBearish
		}
	}

	if snap.HasATR && snap.Last > 0 {
		atrPct := snap.ATR14 / snap.Last * 100
		switch {
		case atrPct < 1:
			summary.Volatility = contracts.VolatilityLow
		case atrPct <= 2:
			summary.Volatility = contracts.VolatilityMedium
		default:
			summary.Volatility = contracts.VolatilityHigh
		}
	}

	switch ratio := snap.VolumeRatio(); {
	case ratio == 0:
		summary.Volume = contracts.VolumeNormal
	case ratio < 0.7:
		summary.Volume = contracts.VolumeLow
	case ratio > 1.5:
		summary.Volume = contracts.VolumeHigh
	}

	return summary
}
