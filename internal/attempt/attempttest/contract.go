// Package attempttest holds the behavioural checks every attempt.Tracker
// backend must pass.
package attempttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// Run checks the Tracker contract against a backend
func Run(t *testing.T, tr attempt.Tracker) {
	t.Helper()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := tr.Reserve(ctx, "s1", "q1", 3)
		if err != nil {
			t.Fatalf("Reserve() #%d error = %v", want, err)
		}
		if got != want {
			t.Errorf("Reserve() = %d; want %d", got, want)
		}
	}

	if _, err := tr.Reserve(ctx, "s1", "q1", 3); !errors.Is(err, domain.ErrAttemptsExceeded) {
		t.Errorf("4th Reserve() error = %v; want ErrAttemptsExceeded", err)
	}
	if n, _ := tr.Count(ctx, "s1", "q1"); n != 3 {
		t.Errorf("Count() after rejection = %d; want 3", n)
	}

	// Keys are independent.
	if n, err := tr.Reserve(ctx, "s2", "q1", 3); err != nil || n != 1 {
		t.Errorf("Reserve(s2) = %d, %v; want 1", n, err)
	}
	if n, err := tr.Reserve(ctx, "s1", "q2", 3); err != nil || n != 1 {
		t.Errorf("Reserve(q2) = %d, %v; want 1", n, err)
	}

	// Ids containing the key separator stay distinct.
	if n, err := tr.Reserve(ctx, "a:b", "c", 1); err != nil || n != 1 {
		t.Errorf("Reserve(a:b, c) = %d, %v; want 1", n, err)
	}
	if n, err := tr.Reserve(ctx, "a", "b:c", 1); err != nil || n != 1 {
		t.Errorf("Reserve(a, b:c) = %d, %v; want 1", n, err)
	}

	// Unlimited budget.
	for i := 0; i < 5; i++ {
		if _, err := tr.Reserve(ctx, "s3", "q1", 0); err != nil {
			t.Fatalf("Reserve(unlimited) error = %v", err)
		}
	}
	if n, _ := tr.Count(ctx, "s3", "q1"); n != 5 {
		t.Errorf("Count(unlimited) = %d; want 5", n)
	}
}

// RunConcurrent checks that concurrent reservations never exceed the limit
func RunConcurrent(t *testing.T, tr attempt.Tracker) {
	t.Helper()
	const limit = 5
	var wg sync.WaitGroup
	var accepted, rejected atomic.Int32

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Reserve(context.Background(), "race", "q", limit)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrAttemptsExceeded):
				rejected.Add(1)
			default:
				t.Errorf("Reserve() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != limit {
		t.Errorf("accepted = %d; want %d", accepted.Load(), limit)
	}
	if rejected.Load() != 40-limit {
		t.Errorf("rejected = %d; want %d", rejected.Load(), 40-limit)
	}
}
