package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, Always)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Always)
	if err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoAttemptBudget(t *testing.T) {
	failure := errors.New("still broken")
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	}, Always)
	if !errors.Is(err, failure) {
		t.Fatalf("Expected the last error to surface, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected exactly 4 attempts, got %d", calls)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	permanent := errors.New("rejected")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	}, func(err error) bool { return false })
	if !errors.Is(err, permanent) {
		t.Fatalf("Expected permanent error to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no retry of a permanent error, got %d calls", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{
		MaxAttempts:     10,
		InitialInterval: time.Hour, // would hang without cancellation
		MaxInterval:     time.Hour,
		Multiplier:      1.0,
	}.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, Always)
	if err == nil {
		t.Fatal("Expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation stopped the backoff wait, got %d", calls)
	}
}
