package mt5

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/types"
)

// bridgeClient talks to the MT5 terminal bridge HTTP API.
type bridgeClient struct {
	mu   sync.Mutex
	http *resty.Client
}

var _ interfaces.Broker = (*bridgeClient)(nil)

func newBridgeClient(p Params) *bridgeClient {
	c := resty.New().
		SetBaseURL(p.BridgeURL).
		SetTimeout(p.Timeout).
		SetHeader("Accept", "application/json")
	return &bridgeClient{http: c}
}

type envelope struct {
	OK      bool   `json:"ok"`
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
}

func (e envelope) err() error {
	if e.OK {
		return nil
	}
	return retcodeError(e.Retcode, e.Message)
}

type candlePayload struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume float64 `json:"tick_volume"`
}

type snapshotResponse struct {
	envelope
	Time         int64           `json:"time"`
	Bid          float64         `json:"bid"`
	Ask          float64         `json:"ask"`
	Digits       int             `json:"digits"`
	TradeAllowed bool            `json:"trade_allowed"`
	Candles      []candlePayload `json:"candles"`
}

type positionPayload struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"` // BUY or SELL
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Time      int64   `json:"time"`
	Comment   string  `json:"comment"`
}

func (p positionPayload) toPosition() types.Position {
	return types.Position{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Side:       types.Side(p.Type),
		Volume:     p.Volume,
		EntryPrice: p.PriceOpen,
		StopLoss:   p.SL,
		TakeProfit: p.TP,
		OpenedAt:   time.Unix(p.Time, 0).UTC(),
		Comment:    p.Comment,
	}
}

type positionsResponse struct {
	envelope
	Positions []positionPayload `json:"positions"`
}

type accountResponse struct {
	envelope
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"margin_free"`
	Profit     float64 `json:"profit"`
	Currency   string  `json:"currency"`
}

type orderResponse struct {
	envelope
	Position positionPayload `json:"position"`
}

func (b *bridgeClient) GetSnapshot(ctx context.Context, symbol string, window int) (types.MarketSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out snapshotResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("window", strconv.Itoa(window)).
		SetResult(&out).
		Get("/snapshot")
	if err := bridgeTransportErr(resp, err); err != nil {
		return types.MarketSnapshot{}, err
	}
	if err := out.err(); err != nil {
		return types.MarketSnapshot{}, err
	}

	candles := make([]types.Candle, len(out.Candles))
	for i, c := range out.Candles {
		candles[i] = types.Candle{Ts: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Vol: c.TickVolume}
	}
	return types.MarketSnapshot{
		Symbol:       symbol,
		Ts:           time.Unix(out.Time, 0).UTC(),
		Bid:          out.Bid,
		Ask:          out.Ask,
		Digits:       out.Digits,
		TradeAllowed: out.TradeAllowed,
		Candles:      candles,
	}, nil
}

func (b *bridgeClient) GetAccountPositions(ctx context.Context) ([]types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out positionsResponse
	resp, err := b.http.R().SetContext(ctx).SetResult(&out).Get("/positions")
	if err := bridgeTransportErr(resp, err); err != nil {
		return nil, err
	}
	if err := out.err(); err != nil {
		return nil, err
	}
	positions := make([]types.Position, len(out.Positions))
	for i, p := range out.Positions {
		positions[i] = p.toPosition()
	}
	return positions, nil
}

func (b *bridgeClient) GetAccountSummary(ctx context.Context) (types.AccountSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out accountResponse
	resp, err := b.http.R().SetContext(ctx).SetResult(&out).Get("/account")
	if err := bridgeTransportErr(resp, err); err != nil {
		return types.AccountSummary{}, err
	}
	if err := out.err(); err != nil {
		return types.AccountSummary{}, err
	}
	return types.AccountSummary{
		Balance:    out.Balance,
		Equity:     out.Equity,
		Margin:     out.Margin,
		FreeMargin: out.FreeMargin,
		Profit:     out.Profit,
		Currency:   out.Currency,
	}, nil
}

func (b *bridgeClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out orderResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"symbol":  req.Symbol,
			"type":    string(req.Side),
			"volume":  req.Volume,
			"sl":      req.StopLoss,
			"tp":      req.TakeProfit,
			"comment": req.Token,
		}).
		SetResult(&out).
		Post("/order")
	if err := bridgeTransportErr(resp, err); err != nil {
		return types.Position{}, err
	}
	if err := out.err(); err != nil {
		return types.Position{}, err
	}
	return out.Position.toPosition(), nil
}

func (b *bridgeClient) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out envelope
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"ticket": ticket, "sl": stopLoss, "tp": takeProfit}).
		SetResult(&out).
		Post("/order/modify")
	if err := bridgeTransportErr(resp, err); err != nil {
		return err
	}
	return out.err()
}

func (b *bridgeClient) CloseOrder(ctx context.Context, ticket int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out envelope
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"ticket": ticket}).
		SetResult(&out).
		Post("/order/close")
	if err := bridgeTransportErr(resp, err); err != nil {
		return err
	}
	return out.err()
}

// bridgeTransportErr maps transport-level failures to broker errors.
// HTTP 5xx means the bridge itself is struggling and is retry-worthy;
// 4xx means the request was malformed and retrying cannot help.
func bridgeTransportErr(resp *resty.Response, err error) error {
	if err != nil {
		return connectionError("bridge unreachable: %v", err)
	}
	if resp == nil {
		return connectionError("bridge returned no response")
	}
	if resp.StatusCode() >= 500 {
		return connectionError("bridge status %d", resp.StatusCode())
	}
	if resp.IsError() {
		return &Error{
			Code:      RetInvalidRequest,
			Reason:    fmt.Sprintf("bridge status %d: %s", resp.StatusCode(), resp.String()),
			Transient: false,
		}
	}
	return nil
}
