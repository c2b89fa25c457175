// Package gateway submits and closes orders against the broker session
// with bounded retries and duplicate-fill protection. Retries reuse the
// request's idempotency token, and before any retry the gateway checks
// whether the previous attempt actually filled, so a transient timeout
// can never double-open a position.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scalping-bot/internal/broker/mt5"
	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/retry"
	"scalping-bot/internal/types"
)

// ErrPartialProtection marks a position that opened but could not get
// its stop-loss/take-profit attached after retries. The position is
// real; the caller must treat it as unbounded risk, not as a failure.
var ErrPartialProtection = errors.New("position opened without full protection")

// RejectedOrderError is a non-transient broker refusal.
type RejectedOrderError struct {
	Code   int
	Reason string
}

func (e *RejectedOrderError) Error() string {
	return fmt.Sprintf("order rejected by broker (%d): %s", e.Code, e.Reason)
}

type Gateway struct {
	broker interfaces.Broker
	policy retry.Policy

	mu        sync.Mutex
	submitted map[string]types.Position // token -> confirmed fill
}

func New(broker interfaces.Broker, policy retry.Policy) *Gateway {
	return &Gateway{
		broker:    broker,
		policy:    policy,
		submitted: make(map[string]types.Position),
	}
}

// Submit places req as a market order. At-most-once: a token that
// already produced a fill returns that fill instead of submitting again.
func (g *Gateway) Submit(ctx context.Context, req types.OrderRequest) (types.Position, error) {
	if req.Token == "" {
		return types.Position{}, errors.New("order request has no idempotency token")
	}

	g.mu.Lock()
	if pos, ok := g.submitted[req.Token]; ok {
		g.mu.Unlock()
		logger.Warn(ctx, "Duplicate submit for token, returning original fill",
			"token", req.Token, "ticket", pos.Ticket)
		return pos, nil
	}
	g.mu.Unlock()

	var pos types.Position
	attempt := 0
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			// The previous attempt failed transiently; the broker may
			// still have filled it. Look for our token before resending.
			if found, ok := g.findByToken(ctx, req.Token); ok {
				logger.Warn(ctx, "Previous attempt filled despite transient error",
					"token", req.Token, "ticket", found.Ticket, "attempt", attempt)
				pos = found
				return nil
			}
		}

		p, err := g.broker.PlaceOrder(ctx, req)
		if err != nil {
			logger.Warn(ctx, "Order attempt failed",
				"symbol", req.Symbol, "side", req.Side, "token", req.Token,
				"attempt", attempt, "error", err)
			return err
		}
		pos = p
		return nil
	}, mt5.IsTransient)
	if err != nil {
		return types.Position{}, g.asRejection(err)
	}

	pos, err = g.ensureProtection(ctx, req, pos)

	g.mu.Lock()
	g.submitted[req.Token] = pos
	g.mu.Unlock()

	logger.Trade(ctx, pos.Symbol, string(pos.Side), pos.Volume, pos.EntryPrice, pos.Ticket,
		"token", req.Token,
		"stop_loss", pos.StopLoss,
		"take_profit", pos.TakeProfit,
		"attempts", attempt,
	)
	return pos, err
}

// ensureProtection verifies the fill carries the requested bracket and
// attaches it with a modify call when the broker silently dropped it.
func (g *Gateway) ensureProtection(ctx context.Context, req types.OrderRequest, pos types.Position) (types.Position, error) {
	slMissing := req.StopLoss > 0 && pos.StopLoss == 0
	tpMissing := req.TakeProfit > 0 && pos.TakeProfit == 0
	if !slMissing && !tpMissing {
		return pos, nil
	}

	logger.Risk(ctx, pos.Symbol, "PROTECTION_DROPPED",
		"ticket", pos.Ticket,
		"requested_sl", req.StopLoss,
		"requested_tp", req.TakeProfit,
	)

	err := g.policy.Do(ctx, func(ctx context.Context) error {
		return g.broker.ModifyOrder(ctx, pos.Ticket, req.StopLoss, req.TakeProfit)
	}, mt5.IsTransient)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to attach protective orders after retries", err,
			"ticket", pos.Ticket, "symbol", pos.Symbol)
		return pos, fmt.Errorf("%w: ticket %d: %v", ErrPartialProtection, pos.Ticket, err)
	}

	pos.StopLoss = req.StopLoss
	pos.TakeProfit = req.TakeProfit
	return pos, nil
}

// Close closes the position behind ticket with the same retry policy.
func (g *Gateway) Close(ctx context.Context, ticket int64) error {
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		return g.broker.CloseOrder(ctx, ticket)
	}, mt5.IsTransient)
	if err != nil {
		return g.asRejection(err)
	}
	return nil
}

// findByToken asks the broker whether any open position carries our
// idempotency token in its comment.
func (g *Gateway) findByToken(ctx context.Context, token string) (types.Position, bool) {
	positions, err := g.broker.GetAccountPositions(ctx)
	if err != nil {
		return types.Position{}, false
	}
	for _, p := range positions {
		if p.Comment == token {
			return p, true
		}
	}
	return types.Position{}, false
}

// asRejection converts non-transient broker refusals into the gateway's
// error type; transient errors that exhausted the budget pass through.
func (g *Gateway) asRejection(err error) error {
	var be *mt5.Error
	if errors.As(err, &be) && !be.Transient {
		return &RejectedOrderError{Code: be.Code, Reason: be.Reason}
	}
	return err
}
