package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
)

// AttemptTracker counts attempts in the attempt_counters table. The
// conditional upsert runs on the single writer connection, so the check and
// the increment cannot interleave.
type AttemptTracker struct {
	db *DB
}

// NewAttemptTracker creates a SQLite-backed attempt tracker.
func NewAttemptTracker(db *DB) *AttemptTracker {
	return &AttemptTracker{db: db}
}

// Reserve increments the counter unless the budget is spent.
func (t *AttemptTracker) Reserve(ctx context.Context, studentID, questionID string, maxAttempts int) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `
		INSERT INTO attempt_counters (student_id, question_id, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(student_id, question_id) DO UPDATE SET
			count = attempt_counters.count + 1, updated_at = excluded.updated_at
		WHERE ? <= 0 OR attempt_counters.count < ?
		RETURNING count`,
		studentID, questionID, time.Now().UTC(), maxAttempts, maxAttempts,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := t.db.QueryRowContext(ctx,
		"SELECT count FROM attempt_counters WHERE student_id = ? AND question_id = ?",
		studentID, questionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}
