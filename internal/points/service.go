// Package points keeps every composite question's total equal to the sum of
// its sub-questions. It is the only writer of a composite's points.
package points

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/metrics"
)

// Store is the persistence the service needs
type Store interface {
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	UpdateCompositePoints(ctx context.Context, parentID string, points int) error
}

// ParentLocker is implemented by stores that can serialize recalculation of
// one parent across processes
type ParentLocker interface {
	WithParentLock(ctx context.Context, parentID string, fn func(ctx context.Context) error) error
}

// Service recalculates composite totals
type Service struct {
	store   Store
	locks   *keyedMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *domain.EventDispatcher
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records recalculation outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents publishes PointsRecalculatedEvent on change
func WithEvents(d *domain.EventDispatcher) Option {
	return func(s *Service) { s.events = d }
}

// NewService creates a recalculation service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSubQuestionPointsChanged recalculates after a child's points changed
func (s *Service) OnSubQuestionPointsChanged(ctx context.Context, parentID string) error {
	_, err := s.Recalculate(ctx, parentID)
	return err
}

// OnSubQuestionDeleted recalculates after a child was removed
func (s *Service) OnSubQuestionDeleted(ctx context.Context, parentID string) error {
	_, err := s.Recalculate(ctx, parentID)
	return err
}

// Recalculate sets parent.points to the sum of its current children and
// returns the resulting total. A parent with no children keeps its total.
// Calls for the same parent are serialized; repeated calls converge.
func (s *Service) Recalculate(ctx context.Context, parentID string) (int, error) {
	unlock := s.locks.Lock(parentID)
	defer unlock()

	var total int
	run := func(ctx context.Context) error {
		var err error
		total, err = s.recalculate(ctx, parentID)
		return err
	}

	var err error
	if locker, ok := s.store.(ParentLocker); ok {
		err = locker.WithParentLock(ctx, parentID, run)
	} else {
		err = run(ctx)
	}
	s.metrics.ObserveRecalculation(err)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) recalculate(ctx context.Context, parentID string) (int, error) {
	parent, err := s.store.GetQuestion(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("load parent %s: %w", parentID, err)
	}
	if parent.ParentID != "" {
		return 0, fmt.Errorf("%w: %s is a sub-question of %s", domain.ErrNestedComposite, parentID, parent.ParentID)
	}
	if !parent.IsComposite() {
		return parent.Points, nil
	}

	total := parent.SumChildPoints()
	if total == parent.Points {
		return total, nil
	}

	if err := s.store.UpdateCompositePoints(ctx, parentID, total); err != nil {
		return 0, fmt.Errorf("update composite points %s: %w", parentID, err)
	}

	s.logger.Info("recalculated composite points",
		"question_id", parentID,
		"old_points", parent.Points,
		"new_points", total,
		"children", len(parent.SubQuestions))
	s.events.Publish(domain.NewPointsRecalculatedEvent(parentID, parent.Points, total))
	return total, nil
}
