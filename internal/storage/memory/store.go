// Package memory is an in-process question and answer store for tests,
// the CLI and single-node deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// Store keeps questions flat, keyed by id, and assembles composites on read
type Store struct {
	mu        sync.RWMutex
	questions map[string]*domain.Question
	answers   []*domain.ScoredAnswer
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{questions: make(map[string]*domain.Question)}
}

// GetQuestion returns a copy of the question with its sub-questions ordered
// by position
func (s *Store) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	out := q.Clone()
	out.SubQuestions = s.childrenLocked(id)
	return out, nil
}

func (s *Store) childrenLocked(parentID string) []*domain.Question {
	var children []*domain.Question
	for _, q := range s.questions {
		if q.ParentID == parentID {
			children = append(children, q.Clone())
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Position != children[j].Position {
			return children[i].Position < children[j].Position
		}
		return children[i].ID < children[j].ID
	})
	return children
}

// SaveQuestion upserts q. Saving a top-level question replaces its set of
// sub-questions; saving a sub-question (ParentID set) touches only that row.
func (s *Store) SaveQuestion(ctx context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if q.ParentID != "" {
		if _, ok := s.questions[q.ParentID]; !ok {
			return fmt.Errorf("%w: parent %s", domain.ErrQuestionNotFound, q.ParentID)
		}
		s.putLocked(q, now)
		return nil
	}

	s.putLocked(q, now)
	keep := make(map[string]struct{}, len(q.SubQuestions))
	for i, c := range q.SubQuestions {
		child := c.Clone()
		child.ParentID = q.ID
		if child.Position == 0 {
			child.Position = i
		}
		s.putLocked(child, now)
		keep[child.ID] = struct{}{}
	}
	for id, existing := range s.questions {
		if existing.ParentID != q.ID {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(s.questions, id)
		}
	}
	return nil
}

func (s *Store) putLocked(q *domain.Question, now time.Time) {
	rec := q.Clone()
	rec.SubQuestions = nil
	if prev, ok := s.questions[q.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.questions[q.ID] = rec
}

// UpdateQuestionPoints sets the points of a single question
func (s *Store) UpdateQuestionPoints(ctx context.Context, id string, points int) error {
	return s.setPoints(id, points)
}

// UpdateCompositePoints sets the derived total of a composite parent
func (s *Store) UpdateCompositePoints(ctx context.Context, parentID string, points int) error {
	return s.setPoints(parentID, points)
}

func (s *Store) setPoints(id string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	q.Points = points
	q.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteQuestion removes a question and its sub-questions. Answer history
// is kept.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	delete(s.questions, id)
	for cid, q := range s.questions {
		if q.ParentID == id {
			delete(s.questions, cid)
		}
	}
	return nil
}

// ListQuestions returns every top-level question, ordered by id
func (s *Store) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Question
	for id, q := range s.questions {
		if q.ParentID != "" {
			continue
		}
		c := q.Clone()
		c.SubQuestions = s.childrenLocked(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveScoredAnswer appends an immutable scored answer
func (s *Store) SaveScoredAnswer(ctx context.Context, a *domain.ScoredAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.answers {
		if existing.ID == a.ID {
			return fmt.Errorf("scored answer %s already saved", a.ID)
		}
	}
	cp := *a
	s.answers = append(s.answers, &cp)
	return nil
}

// ListScoredAnswers returns a student's answers to a question by attempt
func (s *Store) ListScoredAnswers(ctx context.Context, questionID, studentID string) ([]*domain.ScoredAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ScoredAnswer
	for _, a := range s.answers {
		if a.QuestionID == questionID && (studentID == "" || a.StudentID == studentID) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}
