package grading

import (
	"context"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// evaluateSequence requires the submitted tokens in exactly the reference order
func evaluateSequence(_ context.Context, q *domain.Question, a domain.SequenceAnswer, _ []domain.Media) (domain.Verdict, error) {
	ref, ok := q.Answer.(domain.SequenceAnswer)
	if !ok || len(ref.Tokens) == 0 {
		return domain.Verdict{}, missingReference(q)
	}

	if len(a.Tokens) != len(ref.Tokens) {
		return domain.Incorrect().
			WithDetail("expected_length", len(ref.Tokens)).
			WithDetail("submitted_length", len(a.Tokens)), nil
	}

	for i := range ref.Tokens {
		if normalize(a.Tokens[i]) != normalize(ref.Tokens[i]) {
			return domain.Incorrect().WithDetail("mismatch_index", i), nil
		}
	}
	return domain.Correct(), nil
}
