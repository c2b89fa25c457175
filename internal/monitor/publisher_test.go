package monitor

import (
	"context"
	"testing"
	"time"

	"scalping-bot/internal/types"
)

func result(symbol, reason string) types.CycleResult {
	return types.CycleResult{
		Symbol: symbol,
		Time:   time.Now().UTC(),
		Signal: types.Signal{Class: types.SignalHold, Confidence: 0.5},
		Reason: reason,
	}
}

func TestPublishUpdatesSnapshot(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(10)

	account := types.AccountSummary{Balance: 10000, Equity: 10010}
	positions := []types.Position{{Ticket: 1, Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.01}}

	p.Publish(ctx, account, positions, result("EURUSD", "hold signal"))

	snap := p.Snapshot()
	if snap.Account.Balance != 10000 {
		t.Errorf("Expected balance 10000, got %f", snap.Account.Balance)
	}
	if len(snap.Positions) != 1 || snap.Positions[0].Ticket != 1 {
		t.Errorf("Expected published position, got %+v", snap.Positions)
	}
	if len(snap.Recent) != 1 || snap.Recent[0].Reason != "hold signal" {
		t.Errorf("Expected one recent decision, got %+v", snap.Recent)
	}
}

func TestRecentRingIsDepthBounded(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(3)

	for i := 0; i < 5; i++ {
		p.Publish(ctx, types.AccountSummary{}, nil, result("EURUSD", reasonFor(i)))
	}

	snap := p.Snapshot()
	if len(snap.Recent) != 3 {
		t.Fatalf("Expected ring depth 3, got %d", len(snap.Recent))
	}
	// Oldest entries are evicted first.
	if snap.Recent[0].Reason != reasonFor(2) || snap.Recent[2].Reason != reasonFor(4) {
		t.Errorf("Expected the three newest decisions, got %+v", snap.Recent)
	}
}

func reasonFor(i int) string {
	return string(rune('a' + i))
}

func TestDefaultDepth(t *testing.T) {
	p := NewPublisher(0)
	if p.depth != 50 {
		t.Errorf("Expected default depth 50, got %d", p.depth)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	p := NewPublisher(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Serve to return after cancellation")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(10)
	p.Publish(ctx, types.AccountSummary{}, []types.Position{{Ticket: 9, Symbol: "EURUSD"}}, result("EURUSD", "x"))

	snap := p.Snapshot()
	snap.Positions[0].Ticket = 42
	snap.Recent[0].Reason = "mutated"

	fresh := p.Snapshot()
	if fresh.Positions[0].Ticket != 9 {
		t.Error("Expected snapshot positions to be a copy")
	}
	if fresh.Recent[0].Reason != "x" {
		t.Error("Expected snapshot decisions to be a copy")
	}
}
