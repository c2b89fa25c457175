package ta

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	got := SMA(closes, 5)
	if got != 3.0 {
		t.Errorf("Expected SMA 3.0, got %f", got)
	}

	got = SMA(closes, 2)
	if got != 4.5 {
		t.Errorf("Expected SMA 4.5 over last 2, got %f", got)
	}

	if !math.IsNaN(SMA(closes, 6)) {
		t.Error("Expected NaN when window exceeds data")
	}
	if !math.IsNaN(SMA(closes, 0)) {
		t.Error("Expected NaN for zero window")
	}
}

func TestEMA(t *testing.T) {
	// A constant series has its own value as EMA regardless of span.
	flat := []float64{1.1, 1.1, 1.1, 1.1, 1.1}
	if got := EMA(flat, 5); math.Abs(got-1.1) > 1e-12 {
		t.Errorf("Expected EMA of flat series to be 1.1, got %f", got)
	}

	// Seeded from the first value: single element is its own EMA.
	if got := EMA([]float64{42}, 5); got != 42 {
		t.Errorf("Expected single-element EMA 42, got %f", got)
	}

	// alpha = 2/(span+1); one step from seed 1.0 toward 2.0 with span 3
	// gives 1 + 0.5*(2-1) = 1.5.
	if got := EMA([]float64{1, 2}, 3); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("Expected EMA 1.5, got %f", got)
	}

	if !math.IsNaN(EMA(nil, 5)) {
		t.Error("Expected NaN for empty series")
	}
	if !math.IsNaN(EMA(flat, 0)) {
		t.Error("Expected NaN for zero span")
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got := RSI(closes, 14)
	if got != 100.0 {
		t.Errorf("Expected RSI 100 for monotone gains, got %f", got)
	}
}

func TestRSIAllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 120 - float64(i)
	}
	got := RSI(closes, 14)
	if got != 0.0 {
		t.Errorf("Expected RSI 0 for monotone losses, got %f", got)
	}
}

func TestRSIFlatSeriesIsNeutral(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	got := RSI(closes, 14)
	if got != 50.0 {
		t.Errorf("Expected neutral RSI 50 for a flat series, got %f", got)
	}
}

func TestRSIWilderSymmetry(t *testing.T) {
	// Negating every delta swaps the smoothed gain and loss averages,
	// so the mirrored series must land at 100 - RSI.
	closes := []float64{100, 101, 100.5, 102, 101.2, 103, 102.1, 104, 103.5,
		105, 104.2, 106, 105.1, 107, 106.3, 108}
	mirrored := make([]float64, len(closes))
	for i, c := range closes {
		mirrored[i] = 2*closes[0] - c
	}

	up := RSI(closes, 14)
	down := RSI(mirrored, 14)
	if math.Abs(up+down-100.0) > 1e-9 {
		t.Errorf("Expected mirrored RSI values to sum to 100, got %f and %f", up, down)
	}
	if up <= 50.0 {
		t.Errorf("Expected an uptrend RSI above 50, got %f", up)
	}
	if up >= 100.0 || down <= 0.0 {
		t.Errorf("Expected mixed series inside (0,100), got %f and %f", up, down)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	if !math.IsNaN(RSI([]float64{1, 2, 3}, 14)) {
		t.Error("Expected NaN when history is shorter than period+1")
	}
}

func TestATR(t *testing.T) {
	// Constant true range of 1.0 per bar.
	n := 16
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 101
		lows[i] = 100
		closes[i] = 100.5
	}
	got := ATR(highs, lows, closes, 14)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Expected ATR 1.0, got %f", got)
	}

	if !math.IsNaN(ATR(highs[:2], lows[:2], closes[:2], 14)) {
		t.Error("Expected NaN for insufficient history")
	}
	if !math.IsNaN(ATR(highs, lows[:4], closes, 14)) {
		t.Error("Expected NaN for mismatched slice lengths")
	}
}

func TestReturn(t *testing.T) {
	got := Return([]float64{100, 102})
	if math.Abs(got-0.02) > 1e-12 {
		t.Errorf("Expected return 0.02, got %f", got)
	}

	if Return([]float64{5}) != 0 {
		t.Error("Expected zero return for a single close")
	}
	if Return([]float64{0, 5}) != 0 {
		t.Error("Expected zero return when previous close is zero")
	}
}

func TestStdDev(t *testing.T) {
	vals := []float64{2, 2, 2, 2}
	if got := StdDev(vals, 4); got != 0 {
		t.Errorf("Expected zero stddev for constant series, got %f", got)
	}
	if !math.IsNaN(StdDev(vals, 5)) {
		t.Error("Expected NaN when window exceeds data")
	}
}
