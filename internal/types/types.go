package types

import "time"

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// MarketSnapshot is the immutable per-cycle view of one instrument: the
// current quote plus a fixed-length window of recent minute candles,
// oldest first.
type MarketSnapshot struct {
	Symbol       string
	Ts           time.Time
	Bid          float64
	Ask          float64
	Digits       int  // price decimal places reported by the broker
	TradeAllowed bool // broker-side session flag for the instrument
	Candles      []Candle
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is the classifier output for one cycle. Never persisted.
type Signal struct {
	Class      string  `json:"class"` // BUY, SELL or HOLD
	Confidence float64 `json:"confidence"`
}

const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// FeatureVector holds named numeric features in the exact order the
// classifier was trained on. Names and Values are index-aligned.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Position mirrors the broker's view of an open trade. The ledger owns
// these; they are only ever built from confirmed broker responses.
type Position struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`   // 0 means unset
	TakeProfit float64   `json:"take_profit,omitempty"` // 0 means unset
	OpenedAt   time.Time `json:"opened_at"`
	Comment    string    `json:"comment,omitempty"` // carries the client token
}

// Protected reports whether the position has a stop-loss attached.
func (p Position) Protected() bool { return p.StopLoss > 0 }

// OrderRequest is built by the decision loop and consumed exactly once by
// the execution gateway. Token is the client-generated idempotency token;
// retries reuse it so the broker side can spot a duplicate fill.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	StopLoss   float64 // absolute price, 0 disables
	TakeProfit float64 // absolute price, 0 disables
	Token      string
}

type AccountSummary struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Profit     float64 `json:"profit"`
	Currency   string  `json:"currency"`
}

// CycleResult summarizes one decision cycle for observability and the
// monitoring consumer.
type CycleResult struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Signal Signal    `json:"signal"`
	Price  float64   `json:"price"`
	Acted  bool      `json:"acted"`
	Ticket int64     `json:"ticket,omitempty"`
	Reason string    `json:"reason"`
}
