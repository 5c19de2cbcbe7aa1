package grading

import (
	"context"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// evaluateExact compares a single selected or typed value with the reference
func evaluateExact(_ context.Context, q *domain.Question, a domain.TextAnswer, _ []domain.Media) (domain.Verdict, error) {
	ref, ok := q.Answer.(domain.TextAnswer)
	if !ok {
		return domain.Verdict{}, missingReference(q)
	}

	v := domain.Binary(normalize(a.Value) == normalize(ref.Value))
	if !v.IsCorrect {
		v = v.WithDetail("expected", ref.Value)
	}
	return v, nil
}
