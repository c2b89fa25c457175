package loopobs

import (
	"context"
	"time"

	"scalping-bot/internal/interfaces"
	"scalping-bot/internal/logger"
	"scalping-bot/internal/trace"
	"scalping-bot/internal/types"
)

type observableLoop struct {
	loop interfaces.Loop
}

var _ interfaces.Loop = (*observableLoop)(nil)

func Wrap(l interfaces.Loop) interfaces.Loop {
	return &observableLoop{
		loop: l,
	}
}

func (ol *observableLoop) Cycle(ctx context.Context) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "loop.Cycle")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting decision cycle")

	result, err := ol.loop.Cycle(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Decision cycle completed",
		"symbol", result.Symbol,
		"class", result.Signal.Class,
		"confidence", result.Signal.Confidence,
		"acted", result.Acted,
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (ol *observableLoop) Run(ctx context.Context) error {
	return ol.loop.Run(ctx)
}
