// Package grading maps question types to validators and implements the five
// comparison families. Validators return hard errors only; judge failures are
// folded into a soft verdict before they leave this package.
package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/judge"
)

// Validator evaluates one answer against one question
type Validator interface {
	Evaluate(ctx context.Context, q *domain.Question, a domain.Answer, media []domain.Media) (domain.Verdict, error)
}

// evaluator is a validator whose answer variant is statically known
type evaluator[A domain.Answer] func(ctx context.Context, q *domain.Question, a A, media []domain.Media) (domain.Verdict, error)

// bound adapts a typed evaluator to the Validator interface. This is the only
// place an answer variant is asserted.
type bound[A domain.Answer] struct {
	fn evaluator[A]
}

func bind[A domain.Answer](fn func(context.Context, *domain.Question, A, []domain.Media) (domain.Verdict, error)) Validator {
	return bound[A]{fn: fn}
}

func (b bound[A]) Evaluate(ctx context.Context, q *domain.Question, a domain.Answer, media []domain.Media) (domain.Verdict, error) {
	typed, ok := a.(A)
	if !ok {
		return domain.Verdict{}, fmt.Errorf("%w: %s expects %T, got %T", domain.ErrInvalidAnswerShape, q.Type, typed, a)
	}
	return b.fn(ctx, q, typed, media)
}

// Registry dispatches question types to validators. It is built once and
// never mutated.
type Registry struct {
	validators  map[domain.QuestionType]Validator
	judge       judge.Judge
	logger      *slog.Logger
	concurrency int
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithConcurrency bounds concurrent sub-question evaluation
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRegistry builds the validator table. A nil judge is allowed; judge-backed
// types then always produce a soft failure verdict.
func NewRegistry(j judge.Judge, opts ...Option) (*Registry, error) {
	r := &Registry{
		judge:       j,
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}

	types := domain.AllQuestionTypes()
	r.validators = make(map[domain.QuestionType]Validator, len(types))
	for _, t := range types {
		v := r.validatorFor(t)
		if v == nil {
			return nil, fmt.Errorf("%w: no validator for %s", domain.ErrUnsupportedQuestionType, t)
		}
		r.validators[t] = v
	}
	return r, nil
}

func (r *Registry) validatorFor(t domain.QuestionType) Validator {
	switch t.Family() {
	case domain.FamilyExact:
		return bind(evaluateExact)
	case domain.FamilySequence:
		return bind(evaluateSequence)
	case domain.FamilySet:
		if t == domain.TypeTagIt {
			return bind(evaluateTagSet)
		}
		return bind(r.evaluateAssociations)
	case domain.FamilyComposite:
		return bind(r.evaluateComposite)
	case domain.FamilyJudge:
		return bind(r.evaluateSemantic)
	}
	return nil
}

// Dispatch returns the validator for t
func (r *Registry) Dispatch(t domain.QuestionType) (Validator, error) {
	v, ok := r.validators[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedQuestionType, t)
	}
	return v, nil
}

// Types returns every dispatchable type in a stable order
func (r *Registry) Types() []domain.QuestionType {
	out := make([]domain.QuestionType, 0, len(r.validators))
	for _, t := range domain.AllQuestionTypes() {
		if _, ok := r.validators[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func missingReference(q *domain.Question) error {
	return fmt.Errorf("%w: %s has no reference answer", domain.ErrInvalidQuestion, q.ID)
}
