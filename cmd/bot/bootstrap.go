package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"scalping-bot/internal/broker/brokerobs"
	"scalping-bot/internal/broker/mt5"
	"scalping-bot/internal/features"
	"scalping-bot/internal/gateway"
	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/ledger"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/loop"
	"scalping-bot/internal/loop/loopobs"
	"scalping-bot/internal/model"
	"scalping-bot/internal/monitor"
	"scalping-bot/internal/risk"
	"scalping-bot/internal/store"
	"scalping-bot/internal/trace"
	"scalping-bot/internal/tradelog"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker initializes and returns the broker instance with observability
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	brk := mt5.New(mt5.Params{
		Mode:      cfg.Mode,
		BridgeURL: cfg.Bridge.URL,
		Timeout:   cfg.BridgeTimeout(),
	})

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders go to a simulated terminal")
	} else {
		logger.Info(ctx, "Using LIVE terminal bridge", "url", cfg.Bridge.URL)
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(brk)
}

// initializeClassifier loads the trained model and checks its feature
// schema against the engine's. A mismatch is fatal: predictions made on
// wrongly ordered inputs are silent garbage.
func initializeClassifier(ctx context.Context, cfg *store.Config, eng *features.Engine) (*model.Classifier, error) {
	if err := model.InitializeRuntime(); err != nil {
		return nil, fmt.Errorf("onnx runtime init failed: %w", err)
	}
	clf, err := model.Load(cfg.Model.Path, cfg.Model.Metadata)
	if err != nil {
		return nil, fmt.Errorf("model load failed: %w", err)
	}
	if err := clf.ValidateSchema(eng.Schema()); err != nil {
		clf.Close()
		return nil, err
	}
	logger.Info(ctx, "Model loaded", "path", cfg.Model.Path, "version", clf.Version())
	return clf, nil
}

// verifyBroker confirms the terminal is reachable before any loop
// starts. In LIVE mode an unreachable bridge aborts startup.
func verifyBroker(ctx context.Context, cfg *store.Config, brk interfaces.Broker) error {
	summary, err := brk.GetAccountSummary(ctx)
	if err != nil {
		if cfg.Mode == "LIVE" {
			return fmt.Errorf("terminal unreachable: %w", err)
		}
		logger.Warn(ctx, "Terminal check failed in DRY_RUN, continuing", "error", err)
		return nil
	}
	logger.Info(ctx, "Connected to trading account",
		"balance", summary.Balance, "equity", summary.Equity, "currency", summary.Currency)
	return nil
}

func riskParams(cfg *store.Config) risk.Params {
	return risk.Params{
		Volume:                 decimal.NewFromFloat(cfg.Lot.Volume),
		MinVolume:              decimal.NewFromFloat(cfg.Lot.Min),
		MaxVolume:              decimal.NewFromFloat(cfg.Lot.Max),
		LotStep:                decimal.NewFromFloat(cfg.Lot.Step),
		StopLossPips:           decimal.NewFromFloat(cfg.Stop.SLPips),
		TakeProfitPips:         decimal.NewFromFloat(cfg.Stop.TPPips),
		AllowUnprotected:       cfg.Stop.AllowUnprotected,
		MaxConcurrentPerSymbol: cfg.Risk.MaxConcurrentPerSymbol,
	}
}

// initializeLoops builds one observable decision loop per configured
// symbol. All loops share the broker, ledger, and gateway: the broker
// session and the position view are process-wide resources.
func initializeLoops(cfg *store.Config, brk interfaces.Broker, clf *model.Classifier, pub *monitor.Publisher, eng *features.Engine) []interfaces.Loop {
	led := ledger.New()
	rm := risk.New(riskParams(cfg), led)
	gw := gateway.New(brk, cfg.RetryPolicy())

	loops := make([]interfaces.Loop, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		l := loop.New(loop.Config{
			Symbol:          sym,
			PollInterval:    cfg.PollInterval(),
			Window:          cfg.Window,
			SnapshotTimeout: cfg.SnapshotTimeout(),
			MinConfidence:   cfg.MinConfidence,
			SessionOpen:     sessionGate(cfg),
		}, loop.Deps{
			Broker:     brk,
			Features:   eng,
			Classifier: clf,
			Ledger:     led,
			Risk:       rm,
			Gateway:    gw,
			Publisher:  pub,
			Reconnect:  cfg.RetryPolicy(),
		})
		loops = append(loops, loopobs.Wrap(l))
	}
	return loops
}

func sessionGate(cfg *store.Config) func(t time.Time) bool {
	if cfg.Session.Open == "" {
		return nil
	}
	return cfg.WithinSession
}
