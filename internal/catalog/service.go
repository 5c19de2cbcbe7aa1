package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/points"
)

// Store is the question persistence authoring needs
type Store interface {
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	SaveQuestion(ctx context.Context, q *domain.Question) error
	UpdateQuestionPoints(ctx context.Context, id string, points int) error
	DeleteQuestion(ctx context.Context, id string) error
	ListQuestions(ctx context.Context) ([]*domain.Question, error)
}

// Service applies authoring changes and keeps composite totals in sync by
// calling the points service after every change that can move them
type Service struct {
	store  Store
	points *points.Service
	logger *slog.Logger
}

// NewService creates an authoring service
func NewService(store Store, pts *points.Service) *Service {
	return &Service{
		store:  store,
		points: pts,
		logger: slog.Default(),
	}
}

// SetLogger replaces the default logger
func (s *Service) SetLogger(l *slog.Logger) {
	s.logger = l
}

// SaveQuestion validates and stores a question. A composite's declared
// points are replaced by the sum of its sub-questions; saving a single
// sub-question recalculates its parent.
func (s *Service) SaveQuestion(ctx context.Context, q *domain.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}

	if q.ParentID != "" {
		if q.IsComposite() {
			return fmt.Errorf("%w: %s", domain.ErrNestedComposite, q.ID)
		}
		parent, err := s.store.GetQuestion(ctx, q.ParentID)
		if err != nil {
			return err
		}
		if parent.ParentID != "" {
			return fmt.Errorf("%w: %s is itself a sub-question", domain.ErrNestedComposite, parent.ID)
		}
		if parent.Type.Family() != domain.FamilyComposite {
			return fmt.Errorf("%w: %s does not accept sub-questions", domain.ErrInvalidQuestion, parent.ID)
		}
		if err := s.store.SaveQuestion(ctx, q); err != nil {
			return fmt.Errorf("save question: %w", err)
		}
		return s.points.OnSubQuestionPointsChanged(ctx, q.ParentID)
	}

	if q.IsComposite() {
		declared := q.Points
		q = q.Clone()
		q.Points = q.SumChildPoints()
		if declared != q.Points {
			s.logger.Warn("ignoring declared composite points",
				"question_id", q.ID, "declared", declared, "sum", q.Points)
		}
	}
	if err := s.store.SaveQuestion(ctx, q); err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	if q.IsComposite() {
		if _, err := s.points.Recalculate(ctx, q.ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePoints changes a leaf question's points. Composite totals are
// derived and cannot be written directly.
func (s *Service) UpdatePoints(ctx context.Context, id string, pts int) error {
	if pts < 0 {
		return fmt.Errorf("%w: points must be non-negative", domain.ErrInvalidQuestion)
	}
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if q.IsComposite() {
		return fmt.Errorf("%w: %s", domain.ErrCompositePointsManaged, id)
	}
	if err := s.store.UpdateQuestionPoints(ctx, id, pts); err != nil {
		return err
	}
	s.logger.Info("question points updated", "question_id", id, "points", pts)

	if q.ParentID != "" {
		return s.points.OnSubQuestionPointsChanged(ctx, q.ParentID)
	}
	return nil
}

// DeleteQuestion removes a question. Deleting a sub-question recalculates
// its parent; deleting a composite removes its sub-questions with it.
func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.logger.Info("question deleted", "question_id", id, "parent_id", q.ParentID)

	if q.ParentID != "" {
		return s.points.OnSubQuestionDeleted(ctx, q.ParentID)
	}
	return nil
}

// GetQuestion returns a question with its sub-questions
func (s *Service) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	return s.store.GetQuestion(ctx, id)
}

// List returns every top-level question
func (s *Service) List(ctx context.Context) ([]*domain.Question, error) {
	return s.store.ListQuestions(ctx)
}

// Seed saves a batch of questions, typically loaded from YAML packs, and
// returns how many were stored
func (s *Service) Seed(ctx context.Context, questions []*domain.Question) (int, error) {
	n := 0
	for _, q := range questions {
		if err := s.SaveQuestion(ctx, q); err != nil {
			return n, fmt.Errorf("seed %s: %w", q.ID, err)
		}
		n++
	}
	s.logger.Info("seeded questions", "count", n)
	return n, nil
}

// SeedFromLoader loads every pack the loader can see and seeds it
func (s *Service) SeedFromLoader(ctx context.Context, l *Loader) (int, error) {
	questions, err := l.LoadAll()
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, questions)
}
