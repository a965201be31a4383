package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunVisitsEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 8, 100} {
		n := 37
		counts := make([]int32, n)

		err := Run(context.Background(), n, workers, func(i int) {
			atomic.AddInt32(&counts[i], 1)
		})
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}

		for i, c := range counts {
			if c != 1 {
				t.Errorf("workers=%d: index %d visited %d times", workers, i, c)
			}
		}
	}
}

func TestRunEmpty(t *testing.T) {
	called := false
	if err := Run(context.Background(), 0, 4, func(int) { called = true }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if called {
		t.Error("fn should not be called for an empty range")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var visited int32
	err := Run(ctx, 1000, 4, func(int) { atomic.AddInt32(&visited, 1) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if visited != 0 {
		t.Errorf("Expected no work after cancellation, got %d calls", visited)
	}
}
