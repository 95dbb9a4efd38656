package market

import (
	"math"
	"testing"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
)

func flatCandles(n int, price float64, volume int64) []contracts.Candle {
	candles := make([]contracts.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = contracts.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    volume,
		}
	}
	return candles
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	got, ok := SMA(closes, 5)
	if !ok || got != 3 {
		t.Errorf("SMA(5) = %v, %v; want 3, true", got, ok)
	}

	got, ok = SMA(closes, 2)
	if !ok || got != 4.5 {
		t.Errorf("SMA(2) = %v, %v; want 4.5, true", got, ok)
	}

	if _, ok := SMA(closes, 6); ok {
		t.Error("SMA with insufficient data must report not ok")
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}

	got, ok := EMA(closes, 20)
	if !ok {
		t.Fatal("EMA reported not ok")
	}
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("EMA of constant series = %v, want 100", got)
	}
}

func TestEMA_TrendsTowardRecent(t *testing.T) {
	// Rising series: EMA20 must sit above SMA of the whole series
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	ema, _ := EMA(closes, 20)
	sma, _ := SMA(closes, 60)
	if ema <= sma {
		t.Errorf("EMA20 (%v) should exceed full-series SMA (%v) in an uptrend", ema, sma)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	// Every bar has high-low = 2 and no gaps, so TR = 2 throughout
	candles := flatCandles(40, 100, 1000)

	got, ok := ATR(candles, 14)
	if !ok {
		t.Fatal("ATR reported not ok")
	}
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("ATR = %v, want 2", got)
	}
}

func TestATR_InsufficientData(t *testing.T) {
	if _, ok := ATR(flatCandles(10, 100, 1000), 14); ok {
		t.Error("ATR with 10 candles and period 14 must report not ok")
	}
}

func TestBuildSnapshot(t *testing.T) {
	candles := flatCandles(250, 100, 1000)

	snap := BuildSnapshot(candles, 0)

	if !snap.HasLast || !snap.HasATR || !snap.HasEMA || !snap.HasSMA {
		t.Fatalf("expected all inputs present, missing=%v", snap.Missing())
	}
	if snap.Last != 100 {
		t.Errorf("Last = %v, want 100", snap.Last)
	}
	if snap.Volume != 1000 || snap.AvgVolume20 != 1000 {
		t.Errorf("volume fields = %v/%v, want 1000/1000", snap.Volume, snap.AvgVolume20)
	}
	if snap.VolumeRatio() != 1 {
		t.Errorf("VolumeRatio = %v, want 1", snap.VolumeRatio())
	}

	fields := snap.Fields()
	for _, name := range []string{"last", "ema20", "ema50", "sma200", "atr14", "volume"} {
		if _, ok := fields[name]; !ok {
			t.Errorf("Fields() missing %q", name)
		}
	}
}

func TestBuildSnapshot_CurrentPriceOverride(t *testing.T) {
	candles := flatCandles(250, 100, 1000)

	snap := BuildSnapshot(candles, 102.5)
	if snap.Last != 102.5 {
		t.Errorf("Last = %v, want override 102.5", snap.Last)
	}
}

func TestBuildSnapshot_Empty(t *testing.T) {
	snap := BuildSnapshot(nil, 0)

	if snap.HasLast || snap.HasATR {
		t.Error("empty candles must mark inputs missing")
	}
	missing := snap.Missing()
	if len(missing) == 0 {
		t.Error("Missing() must list absent inputs")
	}
}
