// Package assessment is the engine's entry point: it validates a submission
// end to end and persists the immutable result.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/grading"
	"github.com/eriker75/onenglish-sub004/internal/metrics"
	"github.com/eriker75/onenglish-sub004/internal/scoring"
	"github.com/eriker75/onenglish-sub004/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxAttempts applies to questions that do not set their own budget
const DefaultMaxAttempts = 3

// ErrRecalculationUnavailable is returned when no points service is wired
var ErrRecalculationUnavailable = errors.New("point recalculation not configured")

// Store is the persistence the assessment service needs
type Store interface {
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	SaveScoredAnswer(ctx context.Context, a *domain.ScoredAnswer) error
	ListScoredAnswers(ctx context.Context, questionID, studentID string) ([]*domain.ScoredAnswer, error)
}

// Recalculator restores a composite's point total
type Recalculator interface {
	Recalculate(ctx context.Context, parentID string) (int, error)
}

// Submission is one raw answer from a student
type Submission struct {
	QuestionID string
	StudentID  string
	UserAnswer json.RawMessage
	Media      []domain.Media
	ElapsedMs  int64
}

// Service validates and scores answers
type Service struct {
	store       Store
	registry    *grading.Registry
	tracker     attempt.Tracker
	points      Recalculator
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	events      *domain.EventDispatcher
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithRecalculator wires the point recalculation service
func WithRecalculator(r Recalculator) Option {
	return func(s *Service) { s.points = r }
}

// WithDefaultMaxAttempts sets the budget for questions with MaxAttempts == 0.
// A non-positive value means unlimited.
func WithDefaultMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records validation outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents publishes answer and attempt events
func WithEvents(d *domain.EventDispatcher) Option {
	return func(s *Service) { s.events = d }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an assessment service
func NewService(store Store, registry *grading.Registry, tracker attempt.Tracker, opts ...Option) *Service {
	s := &Service{
		store:       store,
		registry:    registry,
		tracker:     tracker,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAnswer grades a submission and persists the result. Hard errors
// (not found, unsupported type, invalid shape, attempts exceeded) are
// returned; judge failures come back as an incorrect ScoredAnswer.
func (s *Service) ValidateAnswer(ctx context.Context, sub Submission) (_ *domain.ScoredAnswer, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assessment.validate_answer")
	span.SetAttributes(
		attribute.String("question.id", sub.QuestionID),
		attribute.String("student.id", sub.StudentID),
		attribute.Int("media.count", len(sub.Media)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	start := time.Now()

	if strings.TrimSpace(sub.StudentID) == "" {
		return nil, fmt.Errorf("%w: student id is required", domain.ErrInvalidAnswerShape)
	}

	q, err := s.store.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("question.type", q.Type.String()))

	validator, err := s.registry.Dispatch(q.Type)
	if err != nil {
		return nil, err
	}

	answer, err := domain.DecodeAnswer(q, sub.UserAnswer)
	if err != nil {
		return nil, err
	}

	limit := s.effectiveMaxAttempts(q)
	attemptNumber, err := s.tracker.Reserve(ctx, sub.StudentID, q.ID, limit)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptsExceeded) {
			s.metrics.AttemptRejected(q.Type)
			s.events.Publish(domain.NewAttemptRejectedEvent(q.ID, sub.StudentID, limit))
			s.logger.Info("attempt rejected",
				"question_id", q.ID, "student_id", sub.StudentID, "max_attempts", limit)
		}
		return nil, err
	}

	verdict, err := validator.Evaluate(ctx, q, answer, sub.Media)
	if err != nil {
		s.metrics.ObserveValidation(q.Type, nil, time.Since(start))
		return nil, err
	}

	scored := s.buildScoredAnswer(q, sub, attemptNumber, verdict)
	if err := s.store.SaveScoredAnswer(ctx, scored); err != nil {
		return nil, fmt.Errorf("save scored answer: %w", err)
	}

	s.events.Publish(domain.NewAnswerScoredEvent(q, scored))
	s.metrics.ObserveValidation(q.Type, scored, time.Since(start))
	span.SetAttributes(
		attribute.Bool("answer.correct", scored.IsCorrect),
		attribute.Int("answer.points", scored.PointsEarned),
		attribute.Int("answer.attempt", attemptNumber),
	)
	s.logger.Info("scored answer",
		"question_id", q.ID,
		"type", q.Type,
		"student_id", sub.StudentID,
		"attempt", attemptNumber,
		"correct", scored.IsCorrect,
		"points", scored.PointsEarned,
		"max_points", scored.MaxPoints,
		"judge_failure", scored.JudgeFailure,
	)
	return scored, nil
}

func (s *Service) effectiveMaxAttempts(q *domain.Question) int {
	if q.MaxAttempts > 0 {
		return q.MaxAttempts
	}
	return s.maxAttempts
}

func (s *Service) buildScoredAnswer(q *domain.Question, sub Submission, attemptNumber int, v domain.Verdict) *domain.ScoredAnswer {
	now := s.now()
	points, correct := scoring.Score(v, q)

	userAnswer := sub.UserAnswer
	if len(userAnswer) == 0 {
		userAnswer = json.RawMessage("null")
	}
	feedback := v.Feedback
	if feedback.IsEmpty() {
		feedback = domain.Binary(correct).Feedback
	}

	submitted := domain.SubmittedAnswer{
		ID:            uuid.New(),
		QuestionID:    q.ID,
		StudentID:     sub.StudentID,
		UserAnswer:    userAnswer,
		AttemptNumber: attemptNumber,
		ElapsedMs:     sub.ElapsedMs,
		MediaCount:    len(sub.Media),
		SubmittedAt:   now,
	}
	return &domain.ScoredAnswer{
		ID:            uuid.New(),
		Submission:    submitted,
		QuestionID:    q.ID,
		StudentID:     sub.StudentID,
		IsCorrect:     correct,
		PointsEarned:  points,
		MaxPoints:     q.Points,
		AttemptNumber: attemptNumber,
		Feedback:      feedback,
		Details:       v.Details,
		JudgeFailure:  v.JudgeFailure,
		ScoredAt:      now,
	}
}

// RecalculateCompositePoints restores parent.Points = Σ children.Points
func (s *Service) RecalculateCompositePoints(ctx context.Context, parentID string) (int, error) {
	if s.points == nil {
		return 0, ErrRecalculationUnavailable
	}
	return s.points.Recalculate(ctx, parentID)
}

// GetQuestion returns a question with its sub-questions
func (s *Service) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	return s.store.GetQuestion(ctx, id)
}

// History lists a student's scored answers for a question by attempt
func (s *Service) History(ctx context.Context, questionID, studentID string) ([]*domain.ScoredAnswer, error) {
	return s.store.ListScoredAnswers(ctx, questionID, studentID)
}

// Attempts returns how many attempts the student has used and the budget
func (s *Service) Attempts(ctx context.Context, questionID, studentID string) (used, limit int, err error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return 0, 0, err
	}
	used, err = s.tracker.Count(ctx, studentID, questionID)
	if err != nil {
		return 0, 0, err
	}
	return used, s.effectiveMaxAttempts(q), nil
}

// QuestionTypes lists the types the registry can grade
func (s *Service) QuestionTypes() []domain.QuestionType {
	return s.registry.Types()
}
