package scoring

import (
	"math"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// 점수 계산 (SSOT)
// score()는 순수 함수: 같은 입력이면 항상 같은 출력

// IndicatorView is one indicator's directional read, used for confluence
type IndicatorView struct {
	Name  string               `json:"name"`
	Trend contracts.TrendLabel `json:"trend"`
}

// Context carries everything besides the strategy that scoring reads.
// 전부 값이고 외부 호출 없음
type Context struct {
	AnalysisType contracts.AnalysisType
	Trend        contracts.TrendLabel
	Indicators   []IndicatorView
	VolumeRatio  float64

	// ATR multiples the skeleton chose (0 means unknown)
	TargetATRMult float64
	StopATRMult   float64

	Sentiment *contracts.SentimentContext

	// Fraction of required market inputs present, [0,1]
	DataQuality float64
}

// Result is the scoring outcome with per-component sub-scores
type Result struct {
	Score      float64             `json:"score"`
	Band       contracts.ScoreBand `json:"band"`
	RiskMeter  contracts.RiskLabel `json:"risk_meter"`
	Components map[string]float64  `json:"components"`
}

// Engine computes composite scores from a fixed configuration
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Score maps a strategy plus context into a weighted score, band, and risk
// label. NO_TRADE strategies always score zero with band Low.
func (e *Engine) Score(strategy *contracts.Strategy, ctx Context) Result {
	if strategy == nil || !strategy.Type.IsDirectional() {
		return Result{
			Score:      0,
			Band:       contracts.BandLow,
			RiskMeter:  contracts.RiskHigh,
			Components: map[string]float64{},
		}
	}

	components := map[string]float64{
		"risk_reward":         e.riskRewardScore(strategy.RiskReward),
		"trend_alignment":     alignmentScore(strategy.Type, ctx.Trend),
		"volatility_fit":      e.volatilityFit(ctx),
		"confluence":          confluenceScore(strategy.Type, ctx.Indicators),
		"volume":              e.volumeScore(ctx.VolumeRatio),
		"sentiment_alignment": sentimentScore(strategy.Type, ctx.Sentiment),
		"data_quality":        clamp01(ctx.DataQuality),
	}

	w := e.cfg.Weights
	score := components["risk_reward"]*w.RiskReward +
		components["trend_alignment"]*w.TrendAlignment +
		components["volatility_fit"]*w.VolatilityFit +
		components["confluence"]*w.Confluence +
		components["volume"]*w.Volume +
		components["sentiment_alignment"]*w.SentimentAlignment +
		components["data_quality"]*w.DataQuality
	score = clamp01(score)

	band := e.band(score)
	return Result{
		Score:      score,
		Band:       band,
		RiskMeter:  riskMeterFor(band),
		Components: components,
	}
}

// riskRewardScore: floor below the ramp start, linear ramp to the top, then
// a flat cap. rr=1.5 → 0.2, rr=3.5 → 0.9, rr>3.5 → 0.95
func (e *Engine) riskRewardScore(rr float64) float64 {
	cfg := e.cfg
	switch {
	case rr < cfg.RRRampStart:
		return cfg.RRFloor
	case rr > cfg.RRRampEnd:
		return cfg.RRCap
	default:
		span := cfg.RRRampEnd - cfg.RRRampStart
		return cfg.RRFloor + (rr-cfg.RRRampStart)/span*(cfg.RRRampTop-cfg.RRFloor)
	}
}

// alignmentScore: with the trend 1.0, neutral 0.5, against 0
func alignmentScore(t contracts.StrategyType, trend contracts.TrendLabel) float64 {
	if trend == contracts.TrendNeutral {
		return 0.5
	}
	aligned := (t == contracts.StrategyBuy && trend == contracts.TrendBullish) ||
		(t == contracts.StrategySell && trend == contracts.TrendBearish)
	if aligned {
		return 1
	}
	return 0
}

// volatilityFit measures how close the chosen ATR multiples sit to the
// middle of the per-type ideal band, floored so an out-of-band (but
// validated) skeleton is penalized, not zeroed.
func (e *Engine) volatilityFit(ctx Context) float64 {
	bands := e.cfg.BandsFor(ctx.AnalysisType)

	targetMult := ctx.TargetATRMult
	if targetMult == 0 {
		targetMult = bands.DefaultTarget
	}
	stopMult := ctx.StopATRMult
	if stopMult == 0 {
		stopMult = bands.DefaultStop
	}

	fit := (bandFit(targetMult, bands.Target) + bandFit(stopMult, bands.Stop)) / 2
	if fit < e.cfg.VolFitFloor {
		fit = e.cfg.VolFitFloor
	}
	return fit
}

// bandFit: 1 at the band midpoint, falling linearly to 0 at one full
// half-width beyond the band edge
func bandFit(v float64, band MultBand) float64 {
	half := band.HalfWidth()
	if half <= 0 {
		return 1
	}
	dist := math.Abs(v-band.Mid()) / (2 * half)
	return clamp01(1 - dist)
}

// confluenceScore averages per-indicator agreement with the direction.
// Neutral indicators contribute 0.5; no indicators at all is neutral.
func confluenceScore(t contracts.StrategyType, indicators []IndicatorView) float64 {
	if len(indicators) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, ind := range indicators {
		sum += alignmentScore(t, ind.Trend)
	}
	return sum / float64(len(indicators))
}

// volumeScore saturates at the configured multiple of average volume
func (e *Engine) volumeScore(ratio float64) float64 {
	if e.cfg.VolumeSaturationRatio <= 0 {
		return 0
	}
	return clamp01(ratio / e.cfg.VolumeSaturationRatio)
}

// sentimentScore: missing sentiment is neutral, never a penalty
func sentimentScore(t contracts.StrategyType, s *contracts.SentimentContext) float64 {
	if s == nil {
		return 0.5
	}
	switch s.Sentiment {
	case "bullish":
		return alignmentScore(t, contracts.TrendBullish)
	case "bearish":
		return alignmentScore(t, contracts.TrendBearish)
	default:
		return 0.5
	}
}

func (e *Engine) band(score float64) contracts.ScoreBand {
	switch {
	case score >= e.cfg.HighThreshold:
		return contracts.BandHigh
	case score >= e.cfg.MediumThreshold:
		return contracts.BandMedium
	default:
		return contracts.BandLow
	}
}

// riskMeterFor is the inverse band mapping: a high-scoring setup carries a
// low risk label
func riskMeterFor(band contracts.ScoreBand) contracts.RiskLabel {
	switch band {
	case contracts.BandHigh:
		return contracts.RiskLow
	case contracts.BandMedium:
		return contracts.RiskMedium
	default:
		return contracts.RiskHigh
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
