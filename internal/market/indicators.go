package market

import (
	"math"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// 지표 계산 (SSOT)
// 트리거가 참조할 수 있는 필드는 전부 Snapshot에서 나옴

// Snapshot is the normalized indicator payload handed to every pipeline
// stage. Triggers and invalidations may reference only fields it exposes.
type Snapshot struct {
	Last      float64 `json:"last"`
	PrevClose float64 `json:"prev_close"`

	EMA20  float64 `json:"ema20"`
	EMA50  float64 `json:"ema50"`
	SMA200 float64 `json:"sma200"`
	ATR14  float64 `json:"atr14"`

	High20 float64 `json:"high20"`
	Low20  float64 `json:"low20"`

	Volume      int64   `json:"volume"`
	AvgVolume20 float64 `json:"avg_volume20"`

	// Presence flags: zero is a legal value for prices, so missing inputs
	// are tracked explicitly.
	HasLast bool `json:"has_last"`
	HasATR  bool `json:"has_atr"`
	HasEMA  bool `json:"has_ema"`
	HasSMA  bool `json:"has_sma"`
}

// Fields exposes the referencable value universe for trigger evaluation
func (s *Snapshot) Fields() map[string]float64 {
	return map[string]float64{
		"last":         s.Last,
		"prev_close":   s.PrevClose,
		"ema20":        s.EMA20,
		"ema50":        s.EMA50,
		"sma200":       s.SMA200,
		"atr14":        s.ATR14,
		"high20":       s.High20,
		"low20":        s.Low20,
		"volume":       float64(s.Volume),
		"avg_volume20": s.AvgVolume20,
	}
}

// Missing lists required inputs that could not be computed
func (s *Snapshot) Missing() []string {
	var missing []string
	if !s.HasLast {
		missing = append(missing, "last")
	}
	if !s.HasATR {
		missing = append(missing, "atr14")
	}
	if !s.HasEMA {
		missing = append(missing, "ema20/ema50")
	}
	if !s.HasSMA {
		missing = append(missing, "sma200")
	}
	return missing
}

// VolumeRatio returns last volume over its 20-bar average (0 when unknown)
func (s *Snapshot) VolumeRatio() float64 {
	if s.AvgVolume20 <= 0 {
		return 0
	}
	return float64(s.Volume) / s.AvgVolume20
}

// BuildSnapshot computes the indicator snapshot from daily candles, oldest
// first. currentPrice overrides the last close when the caller supplies a
// fresher quote (0 means use the last close).
func BuildSnapshot(candles []contracts.Candle, currentPrice float64) *Snapshot {
	s := &Snapshot{}
	n := len(candles)
	if n == 0 {
		if currentPrice > 0 {
			s.Last = currentPrice
			s.HasLast = true
		}
		return s
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	s.Last = closes[n-1]
	s.HasLast = s.Last > 0
	if currentPrice > 0 {
		s.Last = currentPrice
		s.HasLast = true
	}
	if n >= 2 {
		s.PrevClose = closes[n-2]
	}

	if ema, ok := EMA(closes, 20); ok {
		s.EMA20 = ema
		if ema50, ok50 := EMA(closes, 50); ok50 {
			s.EMA50 = ema50
			s.HasEMA = true
		}
	}
	if sma, ok := SMA(closes, 200); ok {
		s.SMA200 = sma
		s.HasSMA = true
	}
	if atr, ok := ATR(candles, 14); ok {
		s.ATR14 = atr
		s.HasATR = true
	}

	s.High20, s.Low20 = rangeHighLow(candles, 20)
	s.Volume = candles[n-1].Volume
	s.AvgVolume20 = avgVolume(candles, 20)

	return s
}

// SMA returns the simple moving average of the last period closes
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average of the closes.
// SMA 시드 후 표준 smoothing factor 2/(period+1)
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	seed, _ := SMA(closes[:period], period)
	k := 2.0 / float64(period+1)

	ema := seed
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema, true
}

// ATR returns the Wilder average true range over the period
func ATR(candles []contracts.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := high - low
		if d := math.Abs(high - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low - prevClose); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}

	// Wilder smoothing: seed with the simple average of the first period
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}

func rangeHighLow(candles []contracts.Candle, period int) (float64, float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	window := candles[len(candles)-period:]
	high, low := window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

func avgVolume(candles []contracts.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	sum := int64(0)
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return float64(sum) / float64(period)
}
