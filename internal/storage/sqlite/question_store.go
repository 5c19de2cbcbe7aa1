package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

const questionColumns = `id, parent_id, position, type, stage, points, validation_method,
	title, instructions, content, options, answer, configuration, max_attempts,
	created_at, updated_at`

// QuestionStore persists questions and their sub-questions in SQLite.
type QuestionStore struct {
	db *DB
}

// NewQuestionStore creates a SQLite-backed question store.
func NewQuestionStore(db *DB) *QuestionStore {
	return &QuestionStore{db: db}
}

// GetQuestion loads a question and, for composites, its sub-questions
// ordered by position.
func (s *QuestionStore) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	children, err := s.children(ctx, s.db.DB, q.ID)
	if err != nil {
		return nil, err
	}
	q.SubQuestions = children
	return q, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *QuestionStore) children(ctx context.Context, db queryer, parentID string) ([]*domain.Question, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE parent_id = ? ORDER BY position, id", parentID)
	if err != nil {
		return nil, fmt.Errorf("list sub-questions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ListQuestions returns all top-level questions with their sub-questions.
func (s *QuestionStore) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE parent_id IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	var out []*domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: children are read after the parent cursor closes.
	for _, q := range out {
		if q.SubQuestions, err = s.children(ctx, s.db.DB, q.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveQuestion upserts a question. A top-level save also upserts the given
// sub-questions and removes children that are no longer listed.
func (s *QuestionStore) SaveQuestion(ctx context.Context, q *domain.Question) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		if q.ParentID != "" {
			var one int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM questions WHERE id = ?", q.ParentID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent %s", domain.ErrQuestionNotFound, q.ParentID)
			}
			if err != nil {
				return fmt.Errorf("check parent: %w", err)
			}
			return upsertQuestion(ctx, tx, q, q.ParentID, q.Position, now)
		}

		if err := upsertQuestion(ctx, tx, q, "", q.Position, now); err != nil {
			return err
		}

		ids := make([]any, 0, len(q.SubQuestions)+1)
		ids = append(ids, q.ID)
		for i, c := range q.SubQuestions {
			pos := c.Position
			if pos == 0 {
				pos = i
			}
			if err := upsertQuestion(ctx, tx, c, q.ID, pos, now); err != nil {
				return fmt.Errorf("sub-question %s: %w", c.ID, err)
			}
			ids = append(ids, c.ID)
		}

		query := "DELETE FROM questions WHERE parent_id = ?"
		if len(ids) > 1 {
			query += " AND id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)-1), ",") + ")"
		}
		if _, err := tx.ExecContext(ctx, query, ids...); err != nil {
			return fmt.Errorf("prune sub-questions: %w", err)
		}
		return nil
	})
}

func upsertQuestion(ctx context.Context, tx *sql.Tx, q *domain.Question, parentID string, position int, now time.Time) error {
	answer, err := domain.EncodeAnswer(q.Answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	options, err := marshalNullable(q.Options, len(q.Options) == 0)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	config, err := marshalNullable(q.Configuration, len(q.Configuration) == 0)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	created := q.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id=excluded.parent_id, position=excluded.position,
			type=excluded.type, stage=excluded.stage, points=excluded.points,
			validation_method=excluded.validation_method,
			title=excluded.title, instructions=excluded.instructions,
			content=excluded.content, options=excluded.options,
			answer=excluded.answer, configuration=excluded.configuration,
			max_attempts=excluded.max_attempts, updated_at=excluded.updated_at`,
		q.ID, nullString([]byte(parentID)), position, string(q.Type), string(q.Stage),
		q.Points, string(q.ValidationMethod), q.Title, q.Instructions,
		nullString(q.Content), options, nullString(answer), config,
		q.MaxAttempts, created, now,
	)
	if err != nil {
		return fmt.Errorf("upsert question %s: %w", q.ID, err)
	}
	return nil
}

// UpdateQuestionPoints sets the points of a single question.
func (s *QuestionStore) UpdateQuestionPoints(ctx context.Context, id string, points int) error {
	return s.setPoints(ctx, id, points)
}

// UpdateCompositePoints writes the derived total of a composite parent.
func (s *QuestionStore) UpdateCompositePoints(ctx context.Context, parentID string, points int) error {
	return s.setPoints(ctx, parentID, points)
}

func (s *QuestionStore) setPoints(ctx context.Context, id string, points int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE questions SET points = ?, updated_at = ? WHERE id = ?",
		points, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update points: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	return nil
}

// DeleteQuestion removes a question; sub-questions cascade.
func (s *QuestionStore) DeleteQuestion(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM questions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (*domain.Question, error) {
	var q domain.Question
	var parentID, content, options, answer, config sql.NullString
	var typ, stage, method string

	err := row.Scan(
		&q.ID, &parentID, &q.Position, &typ, &stage, &q.Points, &method,
		&q.Title, &q.Instructions, &content, &options, &answer, &config,
		&q.MaxAttempts, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan question: %w", err)
	}

	q.ParentID = parentID.String
	q.Type = domain.QuestionType(typ)
	q.Stage = domain.Stage(stage)
	q.ValidationMethod = domain.ValidationMethod(method)
	if content.Valid {
		q.Content = json.RawMessage(content.String)
	}
	if options.Valid {
		if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if config.Valid {
		if err := json.Unmarshal([]byte(config.String), &q.Configuration); err != nil {
			return nil, fmt.Errorf("unmarshal configuration: %w", err)
		}
	}
	if answer.Valid {
		ref, err := domain.DecodeReference(q.Type, json.RawMessage(answer.String))
		if err != nil {
			return nil, err
		}
		q.Answer = ref
	}
	return &q, nil
}

// marshalNullable encodes v as JSON text, or NULL when empty.
func marshalNullable(v any, empty bool) (*string, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return nullString(b), nil
}

// nullString converts a byte slice to a *string for nullable TEXT columns.
func nullString(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}
