package mt5

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/types"
)

const (
	simSpread  = 0.00012
	simDigits  = 5
	simBalance = 10000.0
)

// Simulator is an in-process stand-in for the terminal used in DRY_RUN
// mode and in tests. Prices follow a random walk; fills are immediate
// and honor the idempotency token carried in the order comment.
type Simulator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	nextTicket int64
	prices     map[string]float64
	positions  map[int64]types.Position
	byToken    map[string]int64
}

var _ interfaces.Broker = (*Simulator)(nil)

func NewSimulator() *Simulator {
	return &Simulator{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		nextTicket: 100000,
		prices:     make(map[string]float64),
		positions:  make(map[int64]types.Position),
		byToken:    make(map[string]int64),
	}
}

func (s *Simulator) price(symbol string) float64 {
	p, ok := s.prices[symbol]
	if !ok {
		p = 1.10
	}
	p += (s.rng.Float64() - 0.5) * 0.0004
	s.prices[symbol] = p
	return p
}

func (s *Simulator) GetSnapshot(ctx context.Context, symbol string, window int) (types.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mid := s.price(symbol)
	now := time.Now()

	candles := make([]types.Candle, 0, window)
	p := mid
	for i := window; i > 0; i-- {
		c := p + (s.rng.Float64()-0.5)*0.0008
		h := c + s.rng.Float64()*0.0004
		l := c - s.rng.Float64()*0.0004
		candles = append(candles, types.Candle{
			Ts:    now.Unix() - int64((window-i+1)*60),
			Open:  c - 0.0001,
			High:  h,
			Low:   l,
			Close: c,
			Vol:   s.rng.Float64() * 1000,
		})
	}

	return types.MarketSnapshot{
		Symbol:       symbol,
		Ts:           now.UTC(),
		Bid:          mid,
		Ask:          mid + simSpread,
		Digits:       simDigits,
		TradeAllowed: true,
		Candles:      candles,
	}, nil
}

func (s *Simulator) GetAccountPositions(ctx context.Context) ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *Simulator) GetAccountSummary(ctx context.Context) (types.AccountSummary, error) {
	return types.AccountSummary{Balance: simBalance, Equity: simBalance, FreeMargin: simBalance, Currency: "USD"}, nil
}

func (s *Simulator) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A resubmitted token returns the original fill instead of opening a
	// second position.
	if ticket, ok := s.byToken[req.Token]; ok {
		if pos, open := s.positions[ticket]; open {
			return pos, nil
		}
	}

	if req.Volume <= 0 {
		return types.Position{}, retcodeError(RetInvalidVolume, "")
	}

	mid := s.price(req.Symbol)
	entry := mid + simSpread
	if req.Side == types.SideSell {
		entry = mid
	}

	s.nextTicket++
	pos := types.Position{
		Ticket:     s.nextTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: entry,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now().UTC(),
		Comment:    req.Token,
	}
	s.positions[pos.Ticket] = pos
	if req.Token != "" {
		s.byToken[req.Token] = pos.Ticket
	}
	return pos, nil
}

func (s *Simulator) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[ticket]
	if !ok {
		return retcodeError(RetPositionMissing, "")
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	s.positions[ticket] = pos
	return nil
}

func (s *Simulator) CloseOrder(ctx context.Context, ticket int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[ticket]; !ok {
		return retcodeError(RetPositionMissing, "")
	}
	delete(s.positions, ticket)
	return nil
}
