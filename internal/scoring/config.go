package scoring

import "github.com/wonny/pythia/backend/internal/contracts"

// Weights are the component weights of the composite score.
// 휴리스틱 비즈니스 튜닝값이라 상수 대신 설정으로 노출
type Weights struct {
	RiskReward         float64 `json:"risk_reward"`
	TrendAlignment     float64 `json:"trend_alignment"`
	VolatilityFit      float64 `json:"volatility_fit"`
	Confluence         float64 `json:"confluence"`
	Volume             float64 `json:"volume"`
	SentimentAlignment float64 `json:"sentiment_alignment"`
	DataQuality        float64 `json:"data_quality"`
}

// MultBand is the allowed ATR-multiple range for one leg of a skeleton
type MultBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mid returns the band midpoint
func (b MultBand) Mid() float64 {
	return (b.Min + b.Max) / 2
}

// HalfWidth returns half the band width
func (b MultBand) HalfWidth() float64 {
	return (b.Max - b.Min) / 2
}

// Contains reports whether v lies within the band (inclusive)
func (b MultBand) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// TypeBands holds the per-analysis-type ATR-multiple bands
type TypeBands struct {
	Target MultBand `json:"target"`
	Stop   MultBand `json:"stop"`
	// Defaults used when the model omits multiples
	DefaultTarget float64 `json:"default_target"`
	DefaultStop   float64 `json:"default_stop"`
}

// Config is the scoring engine configuration
type Config struct {
	Weights Weights `json:"weights"`

	// Risk-reward sub-score ramp
	RRFloor     float64 `json:"rr_floor"`      // below RRRampStart
	RRRampStart float64 `json:"rr_ramp_start"` // rr where the ramp begins
	RRRampEnd   float64 `json:"rr_ramp_end"`   // rr where the ramp tops out
	RRRampTop   float64 `json:"rr_ramp_top"`   // value at ramp end
	RRCap       float64 `json:"rr_cap"`        // above ramp end

	// Band thresholds
	HighThreshold   float64 `json:"high_threshold"`
	MediumThreshold float64 `json:"medium_threshold"`

	// Volume sub-score saturates at this ratio of average volume
	VolumeSaturationRatio float64 `json:"volume_saturation_ratio"`

	// Volatility-fit floor
	VolFitFloor float64 `json:"vol_fit_floor"`

	Swing    TypeBands `json:"swing"`
	Intraday TypeBands `json:"intraday"`
}

// DefaultConfig returns the production scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			RiskReward:         0.35,
			TrendAlignment:     0.20,
			VolatilityFit:      0.15,
			Confluence:         0.15,
			Volume:             0.05,
			SentimentAlignment: 0.05,
			DataQuality:        0.05,
		},
		RRFloor:     0.2,
		RRRampStart: 1.5,
		RRRampEnd:   3.5,
		RRRampTop:   0.9,
		RRCap:       0.95,

		HighThreshold:   0.75,
		MediumThreshold: 0.60,

		VolumeSaturationRatio: 1.5,
		VolFitFloor:           0.3,

		Swing: TypeBands{
			Target:        MultBand{Min: 0.8, Max: 1.6},
			Stop:          MultBand{Min: 0.5, Max: 1.2},
			DefaultTarget: 1.2,
			DefaultStop:   0.8,
		},
		Intraday: TypeBands{
			Target:        MultBand{Min: 0.5, Max: 1.0},
			Stop:          MultBand{Min: 0.3, Max: 0.6},
			DefaultTarget: 0.75,
			DefaultStop:   0.5,
		},
	}
}

// BandsFor returns the ATR-multiple bands for an analysis type
func (c Config) BandsFor(t contracts.AnalysisType) TypeBands {
	if t == contracts.AnalysisIntraday {
		return c.Intraday
	}
	return c.Swing
}
