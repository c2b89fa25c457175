// Package risk sizes orders and computes their protective bracket.
// All price and volume arithmetic is done in decimals; float rounding on
// a stop price is exactly the kind of bug a broker rejects an order over.
package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"scalping-bot/internal/ledger"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/types"
)

var (
	ErrSizeBelowMinimum = errors.New("computed order size rounds to zero")
	ErrExposureCapped   = errors.New("per-symbol position cap reached")
	ErrUnprotectedOrder = errors.New("order would carry no stop-loss")
)

// Params are loaded once from configuration and immutable for the run.
type Params struct {
	Volume                 decimal.Decimal
	MinVolume              decimal.Decimal
	MaxVolume              decimal.Decimal
	LotStep                decimal.Decimal
	StopLossPips           decimal.Decimal
	TakeProfitPips         decimal.Decimal
	AllowUnprotected       bool
	MaxConcurrentPerSymbol int
}

// Bracket is the sized order with its protective prices. A zero
// StopLoss/TakeProfit means the corresponding leg is disabled.
type Bracket struct {
	Volume     decimal.Decimal
	Entry      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

type Manager struct {
	params Params
	ledger *ledger.Ledger
}

func New(params Params, l *ledger.Ledger) *Manager {
	return &Manager{params: params, ledger: l}
}

// PointSize returns the conventional pip size for a symbol quoted with
// the given number of decimal places.
func PointSize(digits int) decimal.Decimal {
	switch digits {
	case 5:
		return decimal.NewFromFloat(0.0001)
	case 3:
		return decimal.NewFromFloat(0.01)
	default:
		return decimal.NewFromFloat(0.001)
	}
}

// AllowNewPosition enforces the per-symbol exposure cap. Must pass
// before any OrderRequest is built.
func (m *Manager) AllowNewPosition(ctx context.Context, symbol string) error {
	open := m.ledger.OpenCount(symbol)
	if open >= m.params.MaxConcurrentPerSymbol {
		logger.Risk(ctx, symbol, "EXPOSURE_CAP",
			"open_positions", open,
			"max_concurrent", m.params.MaxConcurrentPerSymbol,
		)
		return fmt.Errorf("%w: %d open for %s", ErrExposureCapped, open, symbol)
	}
	return nil
}

// SizeAndBracket computes volume, stop-loss and take-profit for an order
// on the snapshot's current quote. Entry is the ask for BUY and the bid
// for SELL; the bracket sits StopLossPips/TakeProfitPips away from entry
// in pips, mirrored for SHORT.
func (m *Manager) SizeAndBracket(snap types.MarketSnapshot, side types.Side) (Bracket, error) {
	volume := m.clampVolume()
	if volume.IsZero() {
		return Bracket{}, fmt.Errorf("%w: configured volume %s, lot step %s",
			ErrSizeBelowMinimum, m.params.Volume, m.params.LotStep)
	}

	point := PointSize(snap.Digits)
	slDist := m.params.StopLossPips.Mul(point)
	tpDist := m.params.TakeProfitPips.Mul(point)

	// A disabled stop leg needs explicit opt-in; never build an
	// unprotected order by accident.
	if !slDist.IsPositive() && !m.params.AllowUnprotected {
		return Bracket{}, ErrUnprotectedOrder
	}

	var entry, sl, tp decimal.Decimal
	if side == types.SideBuy {
		entry = decimal.NewFromFloat(snap.Ask)
		if slDist.IsPositive() {
			sl = entry.Sub(slDist)
		}
		if tpDist.IsPositive() {
			tp = entry.Add(tpDist)
		}
	} else {
		entry = decimal.NewFromFloat(snap.Bid)
		if slDist.IsPositive() {
			sl = entry.Add(slDist)
		}
		if tpDist.IsPositive() {
			tp = entry.Sub(tpDist)
		}
	}

	digits := int32(snap.Digits)
	return Bracket{
		Volume:     volume,
		Entry:      entry.Round(digits),
		StopLoss:   sl.Round(digits),
		TakeProfit: tp.Round(digits),
	}, nil
}

// clampVolume bounds the configured volume to [min, max] and rounds it
// down to the broker's lot step.
func (m *Manager) clampVolume() decimal.Decimal {
	v := m.params.Volume
	if v.LessThan(m.params.MinVolume) {
		v = m.params.MinVolume
	}
	if v.GreaterThan(m.params.MaxVolume) {
		v = m.params.MaxVolume
	}
	if m.params.LotStep.IsPositive() {
		v = v.Div(m.params.LotStep).Floor().Mul(m.params.LotStep)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
