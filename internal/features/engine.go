// Package features derives the model input vector from a market snapshot.
// The feature order is fixed: it must match the order the classifier was
// trained on, so the engine publishes its schema and the classifier
// adapter validates it at startup.
package features

import (
	"errors"
	"fmt"

	"scalping-bot/internal/ta"
	"scalping-bot/internal/types"
)

// ErrInsufficientHistory is returned when the snapshot window is shorter
// than the minimum lookback required by the slowest indicator.
var ErrInsufficientHistory = errors.New("insufficient candle history")

const (
	emaFastSpan = 5
	emaSlowSpan = 20
	smaFastLen  = 5
	smaSlowLen  = 20
	rsiPeriod   = 14
	atrPeriod   = 14
)

// schema lists the features in training order. Do not reorder.
var schema = []string{
	"open", "high", "low", "close", "volume",
	"hl_range", "oc_change", "return",
	"ema_5", "ema_20", "sma_5", "sma_20",
	"rsi", "atr",
}

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Schema returns a copy of the feature names in output order.
func (e *Engine) Schema() []string {
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}

// MinLookback is the smallest candle window Compute accepts. The slow
// moving averages need 20 bars plus one prior close for returns and ATR.
func (e *Engine) MinLookback() int { return emaSlowSpan + 1 }

// Compute derives the feature vector from the snapshot's candle window.
// It is a pure function of the snapshot: same window, same vector.
func (e *Engine) Compute(snap types.MarketSnapshot) (types.FeatureVector, error) {
	cs := snap.Candles
	if len(cs) < e.MinLookback() {
		return types.FeatureVector{}, fmt.Errorf("%w: have %d candles, need %d",
			ErrInsufficientHistory, len(cs), e.MinLookback())
	}

	closes := make([]float64, len(cs))
	highs := make([]float64, len(cs))
	lows := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	latest := cs[len(cs)-1]
	values := []float64{
		latest.Open,
		latest.High,
		latest.Low,
		latest.Close,
		latest.Vol,
		latest.High - latest.Low,
		latest.Close - latest.Open,
		ta.Return(closes),
		ta.EMA(closes, emaFastSpan),
		ta.EMA(closes, emaSlowSpan),
		ta.SMA(closes, smaFastLen),
		ta.SMA(closes, smaSlowLen),
		ta.RSI(closes, rsiPeriod),
		ta.ATR(highs, lows, closes, atrPeriod),
	}

	return types.FeatureVector{Names: e.Schema(), Values: values}, nil
}
