package eod

import (
	"encoding/csv"
	"os"
	"strconv"
	"testing"
	"time"

	"scalping-bot/internal/tradelog"
)

func TestSummarizeDay(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	entries := []tradelog.Entry{
		{Symbol: "EURUSD", Side: "BUY", Ticket: 1, Volume: 1.0, Price: 1.1000},
		{Symbol: "EURUSD", Side: "SELL", Ticket: 2, Volume: 1.0, Price: 1.1200},
		{Symbol: "GBPUSD", Side: "BUY", Ticket: 3, Volume: 0.02, Price: 1.2500},
	}
	for _, e := range entries {
		if err := tradelog.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	path, err := SummarizeDay(time.Now().UTC())
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path == "" {
		t.Fatal("Expected a CSV path")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// Header, EURUSD, GBPUSD, TOTAL.
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}
	if rows[1][0] != "EURUSD" || rows[2][0] != "GBPUSD" {
		t.Errorf("Expected symbols in sorted order, got %s, %s", rows[1][0], rows[2][0])
	}

	// EURUSD: 1.0 lot matched at +200 pips.
	pnl, err := strconv.ParseFloat(rows[1][5], 64)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pnl - 0.02; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected realized pnl 0.02, got %.6f", pnl)
	}

	// GBPUSD has no sells: nothing matched.
	if rows[2][5] != "0.00" {
		t.Errorf("Expected zero realized pnl for unmatched buys, got %s", rows[2][5])
	}
	if rows[3][0] != "TOTAL" {
		t.Errorf("Expected TOTAL footer, got %s", rows[3][0])
	}
}

func TestSummarizeDayNoTrades(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	path, err := SummarizeDay(time.Now().UTC())
	if err != nil {
		t.Fatalf("Expected no error for a missing log, got %v", err)
	}
	if path != "" {
		t.Errorf("Expected empty path for a missing log, got %s", path)
	}
}
