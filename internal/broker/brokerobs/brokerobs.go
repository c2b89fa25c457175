package brokerobs

import (
	"context"

	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/trace"
	"scalping-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// GetSnapshot fetches a market snapshot with observability
func (ob *observableBroker) GetSnapshot(ctx context.Context, symbol string, window int) (types.MarketSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetSnapshot")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching market snapshot", "symbol", symbol, "window", window)

	snap, err := ob.broker.GetSnapshot(ctx, symbol, window)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch snapshot", err, "symbol", symbol, "window", window)
		return types.MarketSnapshot{}, err
	}

	logger.DebugSkip(ctx, 1, "Snapshot fetched successfully",
		"symbol", symbol, "bid", snap.Bid, "ask", snap.Ask, "candles", len(snap.Candles))
	return snap, nil
}

// GetAccountPositions lists open positions with observability
func (ob *observableBroker) GetAccountPositions(ctx context.Context) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetAccountPositions")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching account positions")

	positions, err := ob.broker.GetAccountPositions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched successfully", "count", len(positions))
	return positions, nil
}

// GetAccountSummary fetches the account summary with observability
func (ob *observableBroker) GetAccountSummary(ctx context.Context) (types.AccountSummary, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetAccountSummary")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching account summary")

	summary, err := ob.broker.GetAccountSummary(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account summary", err)
		return types.AccountSummary{}, err
	}

	logger.DebugSkip(ctx, 1, "Account summary fetched successfully",
		"balance", summary.Balance, "equity", summary.Equity)
	return summary, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"volume", req.Volume,
		"token", req.Token,
	)

	pos, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"volume", req.Volume,
			"token", req.Token,
		)
		return types.Position{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", pos.Symbol,
		"ticket", pos.Ticket,
		"entry_price", pos.EntryPrice,
	)
	return pos, nil
}

// ModifyOrder adjusts stop-loss/take-profit with observability
func (ob *observableBroker) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	ctx, span := trace.StartSpan(ctx, "broker.ModifyOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Modifying order",
		"ticket", ticket, "stop_loss", stopLoss, "take_profit", takeProfit)

	if err := ob.broker.ModifyOrder(ctx, ticket, stopLoss, takeProfit); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to modify order", err, "ticket", ticket)
		return err
	}

	logger.InfoSkip(ctx, 1, "Order modified successfully", "ticket", ticket)
	return nil
}

// CloseOrder closes a position with observability
func (ob *observableBroker) CloseOrder(ctx context.Context, ticket int64) error {
	ctx, span := trace.StartSpan(ctx, "broker.CloseOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing position", "ticket", ticket)

	if err := ob.broker.CloseOrder(ctx, ticket); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close position", err, "ticket", ticket)
		return err
	}

	logger.InfoSkip(ctx, 1, "Position closed successfully", "ticket", ticket)
	return nil
}
