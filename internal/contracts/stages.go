package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 원장 row에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S1 → S2 → S3
//   Preflight  Skeleton  Finalize

// Stage represents a generation stage
type Stage string

const (
	// StagePreflight S1: 시장 요약 및 데이터 충분성 판정
	// 책임: market_summary 계산, insufficientData 플래그
	// 위치: internal/pipeline/preflight.go
	StagePreflight Stage = "S1_PREFLIGHT"

	// StageSkeleton S2: 전략 골격 생성
	// 책임: type/entry/target/stop/riskReward, ATR 배수 한계 강제
	// 위치: internal/pipeline/skeleton.go
	StageSkeleton Stage = "S2_SKELETON"

	// StageFinalize S3: 전략 완성
	// 책임: 트리거/무효화, 유효기간, 설명, 포지션 사이즈, order_gate
	// 위치: internal/pipeline/finalize.go
	StageFinalize Stage = "S3_FINALIZE"

	// StageSentiment 뉴스 감성 분류 (파이프라인 보조 호출)
	// 위치: internal/sentiment/
	StageSentiment Stage = "SENTIMENT"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name
func (s Stage) ShortName() string {
	switch s {
	case StagePreflight:
		return "S1"
	case StageSkeleton:
		return "S2"
	case StageFinalize:
		return "S3"
	case StageSentiment:
		return "SENT"
	default:
		return "UNKNOWN"
	}
}

// PipelineStages returns the ordered generation stages
func PipelineStages() []Stage {
	return []Stage{StagePreflight, StageSkeleton, StageFinalize}
}

// PreflightResult is the validated Stage-1 output
type PreflightResult struct {
	MarketSummary    MarketSummary `json:"market_summary"`
	InsufficientData bool          `json:"insufficient_data"`
	MissingFields    []string      `json:"missing_fields,omitempty"`
	Commentary       string        `json:"commentary,omitempty"`
}

// SkeletonResult is the validated Stage-2 output: the minimal strategy shape
// before enrichment.
type SkeletonResult struct {
	Type       StrategyType `json:"type"`
	Archetype  string       `json:"archetype"`
	Entry      float64      `json:"entry"`
	Target     float64      `json:"target"`
	StopLoss   float64      `json:"stopLoss"`
	RiskReward float64      `json:"riskReward"`

	// ATR multiples actually used, kept for scoring's volatility fit
	TargetATRMult float64 `json:"target_atr_mult"`
	StopATRMult   float64 `json:"stop_atr_mult"`

	Alignment string `json:"alignment"` // with_trend, counter_trend, neutral

	// Fallback marks a canned skeleton substituted after unparseable or
	// invalid model output. Stage 3 carries it into FinalResult so the
	// order gate stays closed.
	Fallback bool `json:"fallback,omitempty"`
}

// FinalResult is the validated Stage-3 output
type FinalResult struct {
	Strategy Strategy `json:"strategy"`
	Fallback bool     `json:"fallback,omitempty"` // canned content substituted in Stage 2 or 3 after parse failure
}
