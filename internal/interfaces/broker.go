package interfaces

import (
	"context"

	"scalping-bot/internal/types"
)

// Broker is the narrow surface of the trading terminal the core depends
// on. Implementations are assumed slow and lossy; every call must honor
// ctx deadlines. A single broker session backs the whole process, so
// implementations serialize their calls internally.
type Broker interface {
	GetSnapshot(ctx context.Context, symbol string, window int) (types.MarketSnapshot, error)
	GetAccountPositions(ctx context.Context) ([]types.Position, error)
	GetAccountSummary(ctx context.Context) (types.AccountSummary, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Position, error)
	ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	CloseOrder(ctx context.Context, ticket int64) error
}
