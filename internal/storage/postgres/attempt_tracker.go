package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/jackc/pgx/v5"
)

// AttemptTracker counts attempts in attempt_counters. The conditional upsert
// holds the row lock between the check and the increment.
type AttemptTracker struct {
	store *Store
}

// AttemptTracker returns a tracker sharing the store's pool.
func (s *Store) AttemptTracker() *AttemptTracker {
	return &AttemptTracker{store: s}
}

// Reserve increments the counter unless the budget is spent.
func (t *AttemptTracker) Reserve(ctx context.Context, studentID, questionID string, maxAttempts int) (int, error) {
	var n int
	err := t.store.pool.QueryRow(ctx, `
		INSERT INTO attempt_counters (student_id, question_id, count, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (student_id, question_id) DO UPDATE SET
			count = attempt_counters.count + 1, updated_at = now()
		WHERE $3::int <= 0 OR attempt_counters.count < $3::int
		RETURNING count`,
		studentID, questionID, maxAttempts,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, attempt.Exceeded(studentID, questionID, maxAttempts)
	}
	if err != nil {
		return 0, fmt.Errorf("reserve attempt: %w", err)
	}
	return n, nil
}

// Count returns the attempts recorded so far.
func (t *AttemptTracker) Count(ctx context.Context, studentID, questionID string) (int, error) {
	var n int
	err := t.store.pool.QueryRow(ctx,
		"SELECT count FROM attempt_counters WHERE student_id = $1 AND question_id = $2",
		studentID, questionID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}
