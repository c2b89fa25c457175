// Package eod summarizes a day's trade log into a per-symbol CSV:
// volumes, average prices, and realized PnL from matched buy/sell
// volume. Meant to run once at shutdown or after session close.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// tradeLine matches the JSON shape written by the tradelog package.
type tradeLine struct {
	Time       string
	Symbol     string
	Side       string
	Ticket     int64
	Volume     float64
	Price      float64
	Reason     string
	Confidence float64
}

// aggRow holds per-symbol aggregates across the day's fills.
type aggRow struct {
	Symbol      string
	BuyVol      float64
	BuyValue    float64
	SellVol     float64
	SellValue   float64
	RealizedPnL float64
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func tradeFilePath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func summaryCSVPath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "eod", d+".csv")
}

// SummarizeDay aggregates the given day's trade log into a CSV and
// returns its path. A missing or empty log is not an error; it returns
// an empty path.
func SummarizeDay(t time.Time) (string, error) {
	inPath := tradeFilePath(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradeLine
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil {
			// Tolerate the odd malformed line rather than losing the
			// whole summary.
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		switch tl.Side {
		case "BUY":
			row.BuyVol += tl.Volume
			row.BuyValue += tl.Volume * tl.Price
		case "SELL":
			row.SellVol += tl.Volume
			row.SellValue += tl.Volume * tl.Price
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := summaryCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "buy_vol", "buy_avg", "sell_vol", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalBuy, totalSell, totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg float64
		if r.BuyVol > 0 {
			buyAvg = r.BuyValue / r.BuyVol
		}
		if r.SellVol > 0 {
			sellAvg = r.SellValue / r.SellVol
		}
		matched := r.BuyVol
		if r.SellVol < matched {
			matched = r.SellVol
		}
		// Guard the zero-matched case: 0 * negative is -0.0, which would
		// print as "-0.00".
		if matched > 0 {
			r.RealizedPnL = matched * (sellAvg - buyAvg)
		}
		rec := []string{
			r.Symbol,
			fmt.Sprintf("%.2f", r.BuyVol),
			fmt.Sprintf("%.5f", buyAvg),
			fmt.Sprintf("%.2f", r.SellVol),
			fmt.Sprintf("%.5f", sellAvg),
			fmt.Sprintf("%.2f", r.RealizedPnL),
			fmt.Sprintf("%.2f", r.BuyValue),
			fmt.Sprintf("%.2f", r.SellValue),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", "", "", "", "", fmt.Sprintf("%.2f", totalPnL), fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell)})
	return outPath, nil
}

// SummarizeToday summarizes the current UTC day.
func SummarizeToday() (string, error) {
	return SummarizeDay(time.Now().UTC())
}
