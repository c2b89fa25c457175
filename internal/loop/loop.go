// Package loop runs the per-symbol decision cycle: snapshot, features,
// classification, gates, order. One Loop instance owns one symbol; it
// never runs two cycles concurrently, which is what keeps duplicate
// submissions from overlapping evaluations structurally impossible.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scalping-bot/internal/broker/mt5"
	"scalping-bot/internal/features"
	"scalping-bot/internal/gateway"
	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/ledger"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/monitor"
	"scalping-bot/internal/retry"
	"scalping-bot/internal/risk"
	"scalping-bot/internal/tradelog"
	"scalping-bot/internal/types"
)

type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingSnapshot State = "AWAITING_SNAPSHOT"
	StateEvaluating       State = "EVALUATING"
	StateActing           State = "ACTING"
	StateSkipping         State = "SKIPPING"
	StateRecovering       State = "RECOVERING"
)

type Config struct {
	Symbol          string
	PollInterval    time.Duration
	Window          int
	SnapshotTimeout time.Duration
	SubmitTimeout   time.Duration
	MinConfidence   float64
	// SessionOpen gates on the configured trading session; nil means
	// always open. The broker's own trade-allowed flag applies anyway.
	SessionOpen func(time.Time) bool
}

type Deps struct {
	Broker     interfaces.Broker
	Features   *features.Engine
	Classifier interfaces.Classifier
	Ledger     *ledger.Ledger
	Risk       *risk.Manager
	Gateway    *gateway.Gateway
	Publisher  *monitor.Publisher // optional
	Reconnect  retry.Policy
}

type Loop struct {
	cfg   Config
	d     Deps
	state atomic.Value // State
}

var _ interfaces.Loop = (*Loop)(nil)

func New(cfg Config, d Deps) *Loop {
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	l := &Loop{cfg: cfg, d: d}
	l.state.Store(StateIdle)
	return l
}

// State returns the loop's current state-machine state.
func (l *Loop) State() State {
	return l.state.Load().(State)
}

func (l *Loop) setState(s State) {
	l.state.Store(s)
}

// Run drives cycles on the poll cadence until ctx is done. A failed
// cycle never stops the loop: the next cycle must still reconcile and
// protect existing positions.
func (l *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(l.cfg.PollInterval)
	defer tick.Stop()

	logger.Info(ctx, "Decision loop started",
		"symbol", l.cfg.Symbol,
		"poll_interval", l.cfg.PollInterval.String(),
	)

	for {
		l.setState(StateIdle)
		// The stop signal is honored here, at the IDLE boundary, and
		// never mid-cycle.
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Decision loop stopped", "symbol", l.cfg.Symbol)
			return nil
		case <-tick.C:
			if _, err := l.Cycle(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Cycle failed", err, "symbol", l.cfg.Symbol)
			}
		}
	}
}

// Cycle executes one pass of the state machine and reports what
// happened. It returns an error only for faults worth surfacing to the
// runner; gates and per-cycle skips are normal results.
func (l *Loop) Cycle(ctx context.Context) (result *types.CycleResult, err error) {
	defer func() {
		// A single faulty cycle must not take the process down.
		if r := recover(); r != nil {
			logger.Error(ctx, "Cycle panic recovered",
				"symbol", l.cfg.Symbol, "panic", fmt.Sprint(r))
			result = &types.CycleResult{
				Symbol: l.cfg.Symbol,
				Time:   time.Now().UTC(),
				Reason: "internal fault, cycle abandoned",
			}
			err = nil
		}
		l.setState(StateIdle)
	}()

	l.setState(StateAwaitingSnapshot)
	snap, err := l.awaitSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot wait failed: %w", err)
	}

	l.setState(StateEvaluating)
	report, rerr := l.d.Broker.GetAccountPositions(ctx)
	if rerr != nil {
		// Without a fresh reconcile the exposure gate would run on stale
		// state; skip the whole cycle instead.
		logger.ErrorWithErr(ctx, "Reconcile failed, skipping cycle", rerr, "symbol", l.cfg.Symbol)
		return l.skip(ctx, snap, types.Signal{}, "reconcile unavailable"), nil
	}
	l.d.Ledger.Reconcile(ctx, report)

	vec, err := l.d.Features.Compute(snap)
	if err != nil {
		if errors.Is(err, features.ErrInsufficientHistory) {
			logger.Warn(ctx, "Not enough history, skipping cycle",
				"symbol", l.cfg.Symbol, "candles", len(snap.Candles))
			return l.skip(ctx, snap, types.Signal{}, "insufficient history"), nil
		}
		return nil, err
	}

	sig, err := l.d.Classifier.Classify(vec)
	if err != nil {
		logger.ErrorWithErr(ctx, "Classification failed, skipping cycle", err, "symbol", l.cfg.Symbol)
		return l.skip(ctx, snap, types.Signal{}, "classifier unavailable"), nil
	}

	logger.Decision(ctx, l.cfg.Symbol, sig.Class, sig.Confidence, "classifier output",
		"bid", snap.Bid, "ask", snap.Ask)
	_ = tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol:     l.cfg.Symbol,
		Class:      sig.Class,
		Confidence: sig.Confidence,
		Price:      snap.Bid,
		Features:   featureMap(vec),
	})

	if reason := l.gate(ctx, snap, sig); reason != "" {
		l.setState(StateSkipping)
		logger.Debug(ctx, "Gate closed, no action", "symbol", l.cfg.Symbol, "reason", reason)
		return l.skip(ctx, snap, sig, reason), nil
	}

	l.setState(StateActing)
	return l.act(ctx, snap, sig)
}

// awaitSnapshot fetches the next snapshot within the configured timeout.
// Connection loss moves the loop to RECOVERING and reconnects with
// exponential backoff instead of silently treating the cycle as done.
func (l *Loop) awaitSnapshot(ctx context.Context) (types.MarketSnapshot, error) {
	snap, err := l.fetchSnapshot(ctx)
	if err == nil || !mt5.IsTransient(err) {
		return snap, err
	}

	l.setState(StateRecovering)
	logger.Warn(ctx, "Snapshot unavailable, attempting reconnection",
		"symbol", l.cfg.Symbol, "error", err)

	var out types.MarketSnapshot
	rerr := l.d.Reconnect.Do(ctx, func(ctx context.Context) error {
		s, ferr := l.fetchSnapshot(ctx)
		if ferr != nil {
			return ferr
		}
		out = s
		return nil
	}, mt5.IsTransient)
	if rerr != nil {
		return types.MarketSnapshot{}, rerr
	}
	logger.Info(ctx, "Reconnected to market data", "symbol", l.cfg.Symbol)
	return out, nil
}

func (l *Loop) fetchSnapshot(ctx context.Context) (types.MarketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.SnapshotTimeout)
	defer cancel()
	return l.d.Broker.GetSnapshot(ctx, l.cfg.Symbol, l.cfg.Window)
}

// gate applies the act/skip rules in order: signal class, confidence
// threshold, exposure cap, market session. Returns the reason the gate
// closed, or empty when all pass.
func (l *Loop) gate(ctx context.Context, snap types.MarketSnapshot, sig types.Signal) string {
	if sig.Class == types.SignalHold {
		return "hold signal"
	}
	if sig.Confidence < l.cfg.MinConfidence {
		return fmt.Sprintf("confidence %.2f below threshold %.2f", sig.Confidence, l.cfg.MinConfidence)
	}
	if err := l.d.Risk.AllowNewPosition(ctx, l.cfg.Symbol); err != nil {
		return err.Error()
	}
	if !snap.TradeAllowed {
		return "instrument not tradable"
	}
	if l.cfg.SessionOpen != nil && !l.cfg.SessionOpen(snap.Ts) {
		return "outside configured session"
	}
	return ""
}

func (l *Loop) act(ctx context.Context, snap types.MarketSnapshot, sig types.Signal) (*types.CycleResult, error) {
	side := types.SideBuy
	if sig.Class == types.SignalSell {
		side = types.SideSell
	}

	bracket, err := l.d.Risk.SizeAndBracket(snap, side)
	if err != nil {
		logger.Warn(ctx, "Sizing refused order", "symbol", l.cfg.Symbol, "error", err)
		return l.skip(ctx, snap, sig, err.Error()), nil
	}

	req := types.OrderRequest{
		Symbol:     l.cfg.Symbol,
		Side:       side,
		Volume:     bracket.Volume.InexactFloat64(),
		StopLoss:   bracket.StopLoss.InexactFloat64(),
		TakeProfit: bracket.TakeProfit.InexactFloat64(),
		Token:      uuid.NewString(),
	}

	// Shutdown must not cut an in-flight submission short: an
	// interrupted order leaves broker-side state unknown. The submit
	// path gets its own deadline, detached from the run context.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.SubmitTimeout)
	defer cancel()

	res := &types.CycleResult{
		Symbol: l.cfg.Symbol,
		Time:   snap.Ts,
		Signal: sig,
		Price:  bracket.Entry.InexactFloat64(),
	}

	pos, serr := l.d.Gateway.Submit(submitCtx, req)
	switch {
	case serr == nil:
		l.d.Ledger.RecordOpen(pos)
		res.Acted, res.Ticket, res.Reason = true, pos.Ticket, "order filled"
		_ = tradelog.Append(tradelog.Entry{
			Symbol:     pos.Symbol,
			Side:       string(pos.Side),
			Ticket:     pos.Ticket,
			Token:      req.Token,
			Volume:     pos.Volume,
			Price:      pos.EntryPrice,
			StopLoss:   pos.StopLoss,
			TakeProfit: pos.TakeProfit,
			Confidence: sig.Confidence,
			Reason:     sig.Class,
		})
	case errors.Is(serr, gateway.ErrPartialProtection):
		// The position is real even though the bracket is not; track it
		// so the next cycles see the exposure.
		l.d.Ledger.RecordOpen(pos)
		res.Acted, res.Ticket, res.Reason = true, pos.Ticket, "opened without full protection"
	default:
		logger.ErrorWithErr(ctx, "Order submission failed", serr,
			"symbol", l.cfg.Symbol, "side", side, "token", req.Token)
		res.Reason = "submission failed: " + serr.Error()
	}

	l.publish(ctx, *res)
	return res, nil
}

func (l *Loop) skip(ctx context.Context, snap types.MarketSnapshot, sig types.Signal, reason string) *types.CycleResult {
	res := &types.CycleResult{
		Symbol: l.cfg.Symbol,
		Time:   snap.Ts,
		Signal: sig,
		Price:  snap.Bid,
		Reason: reason,
	}
	l.publish(ctx, *res)
	return res
}

func (l *Loop) publish(ctx context.Context, res types.CycleResult) {
	if l.d.Publisher == nil {
		return
	}
	// Best effort: the dashboard is read-only and must never block or
	// fail a cycle.
	account, err := l.d.Broker.GetAccountSummary(ctx)
	if err != nil {
		logger.Debug(ctx, "Account summary unavailable for monitor", "error", err)
	}
	l.d.Publisher.Publish(ctx, account, l.d.Ledger.All(), res)
}

func featureMap(vec types.FeatureVector) map[string]float64 {
	m := make(map[string]float64, len(vec.Names))
	for i, name := range vec.Names {
		if i < len(vec.Values) {
			m[name] = vec.Values[i]
		}
	}
	return m
}
