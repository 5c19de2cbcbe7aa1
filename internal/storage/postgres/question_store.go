package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/jackc/pgx/v5"
)

const questionColumns = `id, parent_id, position, type, stage, points, validation_method,
	title, instructions, content, options, answer, configuration, max_attempts,
	created_at, updated_at`

// GetQuestion loads a question and its sub-questions ordered by position.
func (s *Store) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	row := s.db(ctx).QueryRow(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = $1", id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if q.SubQuestions, err = s.children(ctx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store) children(ctx context.Context, parentID string) ([]*domain.Question, error) {
	rows, err := s.db(ctx).Query(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE parent_id = $1 ORDER BY position, id", parentID)
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
func (s *Store) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	rows, err := s.db(ctx).Query(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE parent_id IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, q := range out {
		if q.SubQuestions, err = s.children(ctx, q.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveQuestion upserts a question. A top-level save also upserts the listed
// sub-questions and deletes children that are no longer listed.
func (s *Store) SaveQuestion(ctx context.Context, q *domain.Question) error {
	return pgx.BeginFunc(ctx, s.db(ctx), func(tx pgx.Tx) error {
		now := time.Now().UTC()

		if q.ParentID != "" {
			var exists bool
			err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)", q.ParentID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check parent: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: parent %s", domain.ErrQuestionNotFound, q.ParentID)
			}
			return upsertQuestion(ctx, tx, q, q.ParentID, q.Position, now)
		}

		if err := upsertQuestion(ctx, tx, q, "", q.Position, now); err != nil {
			return err
		}

		keep := make([]string, 0, len(q.SubQuestions))
		for i, c := range q.SubQuestions {
			pos := c.Position
			if pos == 0 {
				pos = i
			}
			if err := upsertQuestion(ctx, tx, c, q.ID, pos, now); err != nil {
				return fmt.Errorf("sub-question %s: %w", c.ID, err)
			}
			keep = append(keep, c.ID)
		}

		_, err := tx.Exec(ctx,
			"DELETE FROM questions WHERE parent_id = $1 AND NOT (id = ANY($2))", q.ID, keep)
		if err != nil {
			return fmt.Errorf("prune sub-questions: %w", err)
		}
		return nil
	})
}

func upsertQuestion(ctx context.Context, tx pgx.Tx, q *domain.Question, parentID string, position int, now time.Time) error {
	answer, err := domain.EncodeAnswer(q.Answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	options, err := jsonValue(q.Options, len(q.Options) == 0)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	config, err := jsonValue(q.Configuration, len(q.Configuration) == 0)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	var parent *string
	if parentID != "" {
		parent = &parentID
	}
	created := q.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id, position = EXCLUDED.position,
			type = EXCLUDED.type, stage = EXCLUDED.stage, points = EXCLUDED.points,
			validation_method = EXCLUDED.validation_method,
			title = EXCLUDED.title, instructions = EXCLUDED.instructions,
			content = EXCLUDED.content, options = EXCLUDED.options,
			answer = EXCLUDED.answer, configuration = EXCLUDED.configuration,
			max_attempts = EXCLUDED.max_attempts, updated_at = EXCLUDED.updated_at`,
		q.ID, parent, position, string(q.Type), string(q.Stage),
		q.Points, string(q.ValidationMethod), q.Title, q.Instructions,
		rawJSON(q.Content), options, rawJSON(answer), config,
		q.MaxAttempts, created, now,
	)
	if err != nil {
		return fmt.Errorf("upsert question %s: %w", q.ID, err)
	}
	return nil
}

// UpdateQuestionPoints sets the points of a single question.
func (s *Store) UpdateQuestionPoints(ctx context.Context, id string, points int) error {
	return s.setPoints(ctx, id, points)
}

// UpdateCompositePoints writes the derived total of a composite parent.
func (s *Store) UpdateCompositePoints(ctx context.Context, parentID string, points int) error {
	return s.setPoints(ctx, parentID, points)
}

func (s *Store) setPoints(ctx context.Context, id string, points int) error {
	tag, err := s.db(ctx).Exec(ctx,
		"UPDATE questions SET points = $1, updated_at = now() WHERE id = $2", points, id)
	if err != nil {
		return fmt.Errorf("update points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	return nil
}

// DeleteQuestion removes a question; sub-questions cascade.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.db(ctx).Exec(ctx, "DELETE FROM questions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	return nil
}

func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var q domain.Question
	var parentID *string
	var content, options, answer, config []byte
	var typ, stage, method string

	err := row.Scan(
		&q.ID, &parentID, &q.Position, &typ, &stage, &q.Points, &method,
		&q.Title, &q.Instructions, &content, &options, &answer, &config,
		&q.MaxAttempts, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan question: %w", err)
	}

	if parentID != nil {
		q.ParentID = *parentID
	}
	q.Type = domain.QuestionType(typ)
	q.Stage = domain.Stage(stage)
	q.ValidationMethod = domain.ValidationMethod(method)
	if content != nil {
		q.Content = json.RawMessage(content)
	}
	if options != nil {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if config != nil {
		if err := json.Unmarshal(config, &q.Configuration); err != nil {
			return nil, fmt.Errorf("unmarshal configuration: %w", err)
		}
	}
	if answer != nil {
		if q.Answer, err = domain.DecodeReference(q.Type, answer); err != nil {
			return nil, err
		}
	}
	return &q, nil
}
