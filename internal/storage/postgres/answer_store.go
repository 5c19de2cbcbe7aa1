package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SaveScoredAnswer inserts the submission and its score in one transaction.
func (s *Store) SaveScoredAnswer(ctx context.Context, a *domain.ScoredAnswer) error {
	details, err := jsonValue(a.Details, len(a.Details) == 0)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	userAnswer := a.Submission.UserAnswer
	if len(userAnswer) == 0 {
		userAnswer = json.RawMessage("null")
	}

	return pgx.BeginFunc(ctx, s.db(ctx), func(tx pgx.Tx) error {
		sub := a.Submission
		_, err := tx.Exec(ctx, `
			INSERT INTO submitted_answers (id, question_id, student_id, user_answer,
				attempt_number, elapsed_ms, media_count, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sub.ID, sub.QuestionID, sub.StudentID, rawJSON(userAnswer),
			sub.AttemptNumber, sub.ElapsedMs, sub.MediaCount, sub.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("insert submitted answer: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO scored_answers (id, submission_id, question_id, student_id,
				is_correct, points_earned, max_points, attempt_number,
				feedback_en, feedback_es, details, judge_failure, scored_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, sub.ID, a.QuestionID, a.StudentID,
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
func (s *Store) ListScoredAnswers(ctx context.Context, questionID, studentID string) ([]*domain.ScoredAnswer, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT sc.id, sc.question_id, sc.student_id, sc.is_correct, sc.points_earned,
			sc.max_points, sc.attempt_number, sc.feedback_en, sc.feedback_es,
			sc.details, sc.judge_failure, sc.scored_at,
			sa.id, sa.user_answer, sa.attempt_number, sa.elapsed_ms, sa.media_count, sa.submitted_at
		FROM scored_answers sc
		JOIN submitted_answers sa ON sa.id = sc.submission_id
		WHERE sc.question_id = $1 AND ($2 = '' OR sc.student_id = $2)
		ORDER BY sc.attempt_number, sc.scored_at`,
		questionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list scored answers: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScoredAnswer
	for rows.Next() {
		var a domain.ScoredAnswer
		var details, userAnswer []byte
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
		if details != nil {
			if err := json.Unmarshal(details, &a.Details); err != nil {
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
