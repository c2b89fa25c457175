package ledger

import (
	"context"
	"testing"
	"time"

	"scalping-bot/internal/types"
)

func position(ticket int64, symbol string, sl float64) types.Position {
	return types.Position{
		Ticket:     ticket,
		Symbol:     symbol,
		Side:       types.SideBuy,
		Volume:     0.01,
		EntryPrice: 1.1000,
		StopLoss:   sl,
		OpenedAt:   time.Now().UTC(),
	}
}

func TestReconcileAdoptsBrokerView(t *testing.T) {
	ctx := context.Background()
	l := New()

	// Cold start: the process believes nothing, the broker reports an
	// open EURUSD position. After reconcile the gate must see it.
	report := []types.Position{position(42, "EURUSD", 1.0990)}
	l.Reconcile(ctx, report)

	if !l.HasOpenPosition("EURUSD") {
		t.Fatal("Expected ledger to adopt broker-reported position")
	}
	if l.HasOpenPosition("GBPUSD") {
		t.Error("Expected no position for unrelated symbol")
	}
	open := l.Open("EURUSD")
	if len(open) != 1 || open[0].Ticket != 42 {
		t.Fatalf("Expected ticket 42, got %+v", open)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	l := New()
	report := []types.Position{position(1, "EURUSD", 1.0990), position(2, "GBPUSD", 1.2490)}

	l.Reconcile(ctx, report)
	l.Reconcile(ctx, report)

	if got := len(l.All()); got != 2 {
		t.Errorf("Expected 2 positions after double reconcile, got %d", got)
	}
}

func TestReconcileDropsVanishedPositions(t *testing.T) {
	ctx := context.Background()
	l := New()

	l.Reconcile(ctx, []types.Position{position(7, "EURUSD", 1.0990)})
	// Stop-loss hit between cycles: broker no longer reports it.
	l.Reconcile(ctx, nil)

	if l.HasOpenPosition("EURUSD") {
		t.Error("Expected vanished position to be dropped")
	}
}

func TestReconcileBrokerWinsOnConflict(t *testing.T) {
	ctx := context.Background()
	l := New()

	local := position(9, "EURUSD", 1.0990)
	l.RecordOpen(local)

	updated := local
	updated.StopLoss = 1.0995
	l.Reconcile(ctx, []types.Position{updated})

	got := l.Open("EURUSD")[0]
	if got.StopLoss != 1.0995 {
		t.Errorf("Expected broker stop-loss 1.0995 to win, got %f", got.StopLoss)
	}
}

func TestRecordOpenAndClose(t *testing.T) {
	l := New()

	l.RecordOpen(position(3, "EURUSD", 1.0990))
	if l.OpenCount("EURUSD") != 1 {
		t.Fatal("Expected one open position after RecordOpen")
	}

	l.RecordClose(3)
	if l.OpenCount("EURUSD") != 0 {
		t.Error("Expected zero open positions after RecordClose")
	}

	// Closing an unknown ticket is a no-op.
	l.RecordClose(999)
}

func TestAllOrderedByTicket(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Reconcile(ctx, []types.Position{
		position(30, "EURUSD", 0),
		position(10, "GBPUSD", 0),
		position(20, "EURUSD", 0),
	})

	all := l.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 positions, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Ticket >= all[i].Ticket {
			t.Errorf("Expected tickets in ascending order, got %d before %d", all[i-1].Ticket, all[i].Ticket)
		}
	}
}
