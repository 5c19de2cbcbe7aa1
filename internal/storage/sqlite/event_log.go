package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// DefaultEventLimit caps Query when the filter sets no limit
const DefaultEventLimit = 100

// LoggedEvent is a domain event as stored in the event log
type LoggedEvent struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	QuestionID string          `json:"question_id"`
	StudentID  string          `json:"student_id,omitempty"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventFilter narrows Query. Zero fields match everything.
type EventFilter struct {
	Type       string
	QuestionID string
	StudentID  string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// EventLog keeps an append-only record of published domain events
type EventLog struct {
	db *DB
}

// NewEventLog creates an event log on an open, migrated database
func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db}
}

// Record stores an event. Recording the same event twice is a no-op.
func (l *EventLog) Record(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var student *string
	if id := studentOf(e); id != "" {
		student = &id
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_log (event_id, event_type, question_id, student_id, data, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.EventID().String(), e.EventType(), e.AggregateID(), student, string(payload), e.OccurredAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func studentOf(e domain.Event) string {
	switch ev := e.(type) {
	case domain.AnswerScoredEvent:
		return ev.StudentID
	case domain.AttemptRejectedEvent:
		return ev.StudentID
	}
	return ""
}

// Query returns matching events, newest first
func (l *EventLog) Query(ctx context.Context, f EventFilter) ([]LoggedEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.Type)
	}
	if f.QuestionID != "" {
		where = append(where, "question_id = ?")
		args = append(args, f.QuestionID)
	}
	if f.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.Until.UTC())
	}

	query := "SELECT id, event_id, event_type, question_id, student_id, data, occurred_at FROM event_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []LoggedEvent{}
	for rows.Next() {
		var (
			e       LoggedEvent
			student *string
			data    string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.QuestionID, &student, &data, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if student != nil {
			e.StudentID = *student
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of stored events of a type, or of every type
// when eventType is empty
func (l *EventLog) Count(ctx context.Context, eventType string) (int, error) {
	query := "SELECT COUNT(*) FROM event_log"
	var args []any
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	var n int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Prune deletes events older than the given age
func (l *EventLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := l.db.ExecContext(ctx, "DELETE FROM event_log WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
