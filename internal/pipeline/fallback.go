package pipeline

import (
	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/internal/scoring"
)

// 대체 결과 (SSOT)
// 복구 불능 모델 출력은 예외 전파 대신 표식 달린 보수적 결과로 치환

// FallbackSkeleton builds the conservative skeleton used when Stage-2 output
// cannot be parsed or validated. Trend direction decides the side; a neutral
// trend degrades to NO_TRADE.
func FallbackSkeleton(trend contracts.TrendLabel, snap *market.Snapshot, bands scoring.TypeBands) *contracts.SkeletonResult {
	if trend == contracts.TrendNeutral || !snap.HasLast || !snap.HasATR || snap.Last <= 0 || snap.ATR14 <= 0 {
		return &contracts.SkeletonResult{
			Type:      contracts.StrategyNoTrade,
			Archetype: "fallback",
			Alignment: "neutral",
			Fallback:  true,
		}
	}

	k := bands.DefaultTarget
	m := bands.DefaultStop
	entry := snap.Last

	result := &contracts.SkeletonResult{
		Archetype:     "fallback",
		Entry:         entry,
		RiskReward:    k / m,
		TargetATRMult: k,
		StopATRMult:   m,
		Alignment:     "with_trend",
		Fallback:      true,
	}
	if trend == contracts.TrendBullish {
		result.Type = contracts.StrategyBuy
		result.Target = entry + k*snap.ATR14
		result.StopLoss = entry - m*snap.ATR14
	} else {
		result.Type = contracts.StrategySell
		result.Target = entry - k*snap.ATR14
		result.StopLoss = entry + m*snap.ATR14
	}
	return result
}

// applyFallbackConditions attaches the canned trigger/invalidation set used
// when Stage-3 output is unusable. Conditions reference only snapshot fields
// and are deliberately conservative.
func applyFallbackConditions(strategy *contracts.Strategy, skeleton *contracts.SkeletonResult) {
	entryOp := contracts.OpGTE
	invalidOp := contracts.OpLTE
	if strategy.Type == contracts.StrategySell {
		entryOp = contracts.OpLTE
		invalidOp = contracts.OpGTE
	}

	strategy.Triggers = []contracts.Condition{
		{
			Scope:       contracts.ScopeEntry,
			Left:        contracts.ValueRef{Field: "last"},
			Operator:    entryOp,
			Right:       contracts.ValueRef{Value: skeleton.Entry},
			Description: "가격이 제안 진입가에 도달",
		},
	}
	strategy.Invalidations = []contracts.Condition{
		{
			Scope:       contracts.ScopePreEntry,
			Left:        contracts.ValueRef{Field: "last"},
			Operator:    invalidOp,
			Right:       contracts.ValueRef{Value: skeleton.StopLoss},
			Description: "진입 전 손절 수준 돌파",
		},
	}
	strategy.Confidence = 0.3
	strategy.Explanation = "모델 출력 검증 실패로 보수적 대체 전략이 적용되었습니다. 제안 수준만 참고하시고 자동 주문은 비활성화됩니다."
}
