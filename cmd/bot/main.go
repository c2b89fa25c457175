package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"scalping-bot/internal/eod"
	"scalping-bot/internal/features"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/monitor"
	"scalping-bot/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}

	compressOldLogs(ctx)

	brk := initializeBroker(ctx, cfg)
	if err := verifyBroker(ctx, cfg, brk); err != nil {
		logger.ErrorWithErr(ctx, "Broker verification failed", err)
		os.Exit(1)
	}

	eng := features.NewEngine()
	clf, err := initializeClassifier(ctx, cfg, eng)
	if err != nil {
		logger.ErrorWithErr(ctx, "Classifier initialization failed", err)
		os.Exit(1)
	}
	defer clf.Close()

	var pub *monitor.Publisher
	if cfg.Monitor.Addr != "" {
		pub = monitor.NewPublisher(0)
		go func() {
			if err := pub.Serve(ctx, cfg.Monitor.Addr); err != nil {
				logger.ErrorWithErr(ctx, "Monitor endpoint stopped", err, "addr", cfg.Monitor.Addr)
			}
		}()
	}

	loops := initializeLoops(cfg, brk, clf, pub, eng)

	var wg sync.WaitGroup
	for _, l := range loops {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Run(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Loop terminated", err)
			}
		}()
	}
	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "symbols", cfg.Symbols)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info(ctx, "Shutting down...")
	cancel()
	wg.Wait()

	if p, err := eod.SummarizeToday(); err == nil && p != "" {
		logger.Info(context.Background(), "EOD CSV written", "path", p)
	}
	_ = trace.Shutdown(context.Background())
}
