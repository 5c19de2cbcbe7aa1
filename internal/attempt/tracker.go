// Package attempt counts submissions per (student, question) and enforces the
// attempt budget with an atomic check-and-increment.
package attempt

import (
	"context"
	"fmt"
	"sync"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// Tracker reserves attempt numbers. Reserve must be atomic per key: two
// concurrent calls never both observe an under-limit count.
type Tracker interface {
	// Reserve returns the 1-based number of the new attempt, or
	// domain.ErrAttemptsExceeded without incrementing when maxAttempts > 0
	// and the budget is spent.
	Reserve(ctx context.Context, studentID, questionID string, maxAttempts int) (int, error)

	// Count returns the attempts made so far
	Count(ctx context.Context, studentID, questionID string) (int, error)
}

// Exceeded builds the error returned when the budget is spent
func Exceeded(studentID, questionID string, maxAttempts int) error {
	return fmt.Errorf("%w: student %s used all %d attempts on question %s",
		domain.ErrAttemptsExceeded, studentID, maxAttempts, questionID)
}

type key struct {
	student  string
	question string
}

// MemoryTracker keeps counts in process memory
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[key]int
}

// NewMemoryTracker creates an empty in-memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: make(map[key]int)}
}

func (t *MemoryTracker) Reserve(ctx context.Context, studentID, questionID string, maxAttempts int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{studentID, questionID}
	if maxAttempts > 0 && t.counts[k] >= maxAttempts {
		return 0, Exceeded(studentID, questionID, maxAttempts)
	}
	t.counts[k]++
	return t.counts[k], nil
}

func (t *MemoryTracker) Count(_ context.Context, studentID, questionID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key{studentID, questionID}], nil
}
