// Package ledger keeps the authoritative in-process view of open
// positions, reconciled against the broker's report at the start of
// every cycle. Local updates via RecordOpen/RecordClose only bridge the
// gap between an order acknowledgment and the next reconciliation.
package ledger

import (
	"context"
	"sort"
	"sync"

	"scalping-bot/internal/logger"
	"scalping-bot/internal/types"
)

type Ledger struct {
	mu        sync.RWMutex
	positions map[int64]types.Position
}

func New() *Ledger {
	return &Ledger{positions: make(map[int64]types.Position)}
}

// Reconcile replaces the ledger's view with the broker report. The
// broker always wins on conflict. Idempotent: reconciling the same
// report twice is a no-op.
func (l *Ledger) Reconcile(ctx context.Context, report []types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make(map[int64]types.Position, len(report))
	for _, p := range report {
		if prev, ok := l.positions[p.Ticket]; ok && prev.Protected() && !p.Protected() {
			// The broker dropped a stop-loss out of band (stop-out rules,
			// manual intervention). We adopt the broker's values but never
			// silently.
			logger.Warn(ctx, "Position lost stop-loss protection at reconcile",
				"ticket", p.Ticket,
				"symbol", p.Symbol,
				"previous_sl", prev.StopLoss,
			)
		}
		fresh[p.Ticket] = p
	}

	for ticket, prev := range l.positions {
		if _, ok := fresh[ticket]; !ok {
			logger.Debug(ctx, "Position no longer reported by broker",
				"ticket", ticket, "symbol", prev.Symbol)
		}
	}

	l.positions = fresh
}

func (l *Ledger) HasOpenPosition(symbol string) bool {
	return l.OpenCount(symbol) > 0
}

func (l *Ledger) OpenCount(symbol string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.positions {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Open returns the open positions for symbol, ordered by ticket.
func (l *Ledger) Open(symbol string) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0)
	for _, p := range l.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// All returns every open position, ordered by ticket.
func (l *Ledger) All() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// RecordOpen adds a position after a confirmed broker acknowledgment.
// Never call it speculatively.
func (l *Ledger) RecordOpen(p types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[p.Ticket] = p
}

// RecordClose drops a position after a confirmed broker close ack.
func (l *Ledger) RecordClose(ticket int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, ticket)
}
