package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"scalping-bot/internal/types"
)

func makeSnapshot(n int) types.MarketSnapshot {
	candles := make([]types.Candle, 0, n)
	price := 1.1000
	for i := 0; i < n; i++ {
		price += 0.0002
		candles = append(candles, types.Candle{
			Ts:    int64(1700000000 + i*60),
			Open:  price - 0.0001,
			High:  price + 0.0003,
			Low:   price - 0.0003,
			Close: price,
			Vol:   500,
		})
	}
	return types.MarketSnapshot{
		Symbol:  "EURUSD",
		Ts:      time.Unix(1700000000, 0).UTC(),
		Bid:     price,
		Ask:     price + 0.00012,
		Digits:  5,
		Candles: candles,
	}
}

func TestSchemaOrder(t *testing.T) {
	want := []string{
		"open", "high", "low", "close", "volume",
		"hl_range", "oc_change", "return",
		"ema_5", "ema_20", "sma_5", "sma_20",
		"rsi", "atr",
	}
	got := NewEngine().Schema()
	if len(got) != len(want) {
		t.Fatalf("Expected %d features, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected feature %q at position %d, got %q", want[i], i, got[i])
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	eng := NewEngine()
	snap := makeSnapshot(50)

	a, err := eng.Compute(snap)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := eng.Compute(snap)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(a.Values) != len(a.Names) {
		t.Fatalf("Expected %d values, got %d", len(a.Names), len(a.Values))
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			t.Errorf("Feature %q not deterministic: %f vs %f", a.Names[i], a.Values[i], b.Values[i])
		}
	}
}

func TestComputeValues(t *testing.T) {
	eng := NewEngine()
	snap := makeSnapshot(50)
	vec, err := eng.Compute(snap)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	byName := map[string]float64{}
	for i, name := range vec.Names {
		byName[name] = vec.Values[i]
	}

	latest := snap.Candles[len(snap.Candles)-1]
	if byName["close"] != latest.Close {
		t.Errorf("Expected close %f, got %f", latest.Close, byName["close"])
	}
	wantRange := latest.High - latest.Low
	if math.Abs(byName["hl_range"]-wantRange) > 1e-12 {
		t.Errorf("Expected hl_range %f, got %f", wantRange, byName["hl_range"])
	}
	// Monotone uptrend: RSI pegged at 100, positive one-bar return.
	if byName["rsi"] != 100.0 {
		t.Errorf("Expected RSI 100 on monotone series, got %f", byName["rsi"])
	}
	if byName["return"] <= 0 {
		t.Errorf("Expected positive return, got %f", byName["return"])
	}
	for _, name := range vec.Names {
		if math.IsNaN(byName[name]) {
			t.Errorf("Feature %q is NaN with a full window", name)
		}
	}
}

func TestComputeInsufficientHistory(t *testing.T) {
	eng := NewEngine()
	snap := makeSnapshot(eng.MinLookback() - 1)

	_, err := eng.Compute(snap)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("Expected ErrInsufficientHistory, got %v", err)
	}
}

func TestMinLookbackSufficient(t *testing.T) {
	eng := NewEngine()
	snap := makeSnapshot(eng.MinLookback())

	vec, err := eng.Compute(snap)
	if err != nil {
		t.Fatalf("Expected exactly MinLookback candles to suffice, got %v", err)
	}
	for i, v := range vec.Values {
		if math.IsNaN(v) {
			t.Errorf("Feature %q is NaN at minimum lookback", vec.Names[i])
		}
	}
}
