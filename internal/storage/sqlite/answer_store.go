package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// AnswerStore persists submissions and their scored results. Rows are
// insert-only.
type AnswerStore struct {
	db *DB
}

// NewAnswerStore creates a SQLite-backed answer store.
func NewAnswerStore(db *DB) *AnswerStore {
	return &AnswerStore{db: db}
}

// SaveScoredAnswer inserts the submission and its score in one transaction.
func (s *AnswerStore) SaveScoredAnswer(ctx context.Context, a *domain.ScoredAnswer) error {
	details, err := marshalNullable(a.Details, len(a.Details) == 0)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	userAnswer := string(a.Submission.UserAnswer)
	if userAnswer == "" {
		userAnswer = "null"
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		sub := a.Submission
		_, err := tx.ExecContext(ctx, `
			INSERT INTO submitted_answers (id, question_id, student_id, user_answer,
				attempt_number, elapsed_ms, media_count, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.ID.String(), sub.QuestionID, sub.StudentID, userAnswer,
			sub.AttemptNumber, sub.ElapsedMs, sub.MediaCount, sub.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("insert submitted answer: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO scored_answers (id, submission_id, question_id, student_id,
				is_correct, points_earned, max_points, attempt_number,
				feedback_en, feedback_es, details, judge_failure, scored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), sub.ID.String(), a.QuestionID, a.StudentID,
			a.IsCorrect, a.PointsEarned, a.MaxPoints, a.AttemptNumber,
			a.Feedback.EN, a.Feedback.ES, details, a.JudgeFailure, a.ScoredAt,
		)
		if err != nil {
			return fmt.Errorf("insert scored answer: %w", err)
		}
		return nil
	})
}

// ListScoredAnswers returns scored answers for a question ordered by attempt.
// An empty studentID returns every student's answers.
func (s *AnswerStore) ListScoredAnswers(ctx context.Context, questionID, studentID string) ([]*domain.ScoredAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sc.id, sc.question_id, sc.student_id, sc.is_correct, sc.points_earned,
			sc.max_points, sc.attempt_number, sc.feedback_en, sc.feedback_es,
			sc.details, sc.judge_failure, sc.scored_at,
			sa.id, sa.user_answer, sa.attempt_number, sa.elapsed_ms, sa.media_count, sa.submitted_at
		FROM scored_answers sc
		JOIN submitted_answers sa ON sa.id = sc.submission_id
		WHERE sc.question_id = ? AND (? = '' OR sc.student_id = ?)
		ORDER BY sc.attempt_number, sc.scored_at`,
		questionID, studentID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list scored answers: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScoredAnswer
	for rows.Next() {
		var a domain.ScoredAnswer
		var details sql.NullString
		var userAnswer string
		err := rows.Scan(
			&a.ID, &a.QuestionID, &a.StudentID, &a.IsCorrect, &a.PointsEarned,
			&a.MaxPoints, &a.AttemptNumber, &a.Feedback.EN, &a.Feedback.ES,
			&details, &a.JudgeFailure, &a.ScoredAt,
			&a.Submission.ID, &userAnswer, &a.Submission.AttemptNumber,
			&a.Submission.ElapsedMs, &a.Submission.MediaCount, &a.Submission.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scored answer: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &a.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		a.Submission.QuestionID = a.QuestionID
		a.Submission.StudentID = a.StudentID
		a.Submission.UserAnswer = json.RawMessage(userAnswer)
		out = append(out, &a)
	}
	return out, rows.Err()
}
