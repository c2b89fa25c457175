package interfaces

import (
	"context"

	"scalping-bot/internal/types"
)

// Loop drives the decision cycle for one symbol.
type Loop interface {
	// Cycle runs a single decision cycle and reports what happened.
	Cycle(ctx context.Context) (*types.CycleResult, error)
	// Run executes cycles on the configured cadence until ctx is done.
	// Cancellation is honored at cycle boundaries, never mid-submission.
	Run(ctx context.Context) error
}
