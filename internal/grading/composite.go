package grading

import (
	"context"
	"fmt"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/scoring"
	"golang.org/x/sync/errgroup"
)

type childResult struct {
	question *domain.Question
	verdict  domain.Verdict
	earned   int
}

// evaluateComposite grades every sub-question independently and weights the
// parent by earned child points. Overall correctness requires every child.
func (r *Registry) evaluateComposite(ctx context.Context, q *domain.Question, a domain.SubAnswers, _ []domain.Media) (domain.Verdict, error) {
	results := make([]childResult, len(q.SubQuestions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, child := range q.SubQuestions {
		g.Go(func() error {
			v, err := r.evaluateChild(gctx, child, a)
			if err != nil {
				return fmt.Errorf("sub-question %s: %w", child.ID, err)
			}
			results[i] = childResult{
				question: child,
				verdict:  v,
				earned:   scoring.PointsEarned(v.Fraction, child.Points),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Verdict{}, err
	}

	earned, total := 0, 0
	allCorrect := len(results) > 0
	judgeFailure := false
	breakdown := make([]map[string]any, 0, len(results))
	for _, res := range results {
		earned += res.earned
		total += res.question.Points
		allCorrect = allCorrect && res.verdict.IsCorrect
		judgeFailure = judgeFailure || res.verdict.JudgeFailure

		entry := map[string]any{
			"id":            res.question.ID,
			"type":          res.question.Type,
			"is_correct":    res.verdict.IsCorrect,
			"points_earned": res.earned,
			"max_points":    res.question.Points,
		}
		if len(res.verdict.Details) > 0 {
			entry["details"] = res.verdict.Details
		}
		breakdown = append(breakdown, entry)
	}

	denom := q.Points
	if denom <= 0 {
		denom = total
	}
	fraction := scoring.Fraction(earned, denom)
	if denom == 0 && allCorrect {
		fraction = 1
	}

	v := domain.Partial(fraction)
	v.IsCorrect = allCorrect
	switch {
	case allCorrect:
		v.Feedback = domain.Correct().Feedback
	case fraction >= 1:
		v.Feedback = domain.Partial(0.5).Feedback
	}
	v.JudgeFailure = judgeFailure
	v = v.WithDetail("sub_questions", breakdown).
		WithDetail("earned", earned).
		WithDetail("total", denom)
	return v, nil
}

func (r *Registry) evaluateChild(ctx context.Context, child *domain.Question, a domain.SubAnswers) (domain.Verdict, error) {
	if child.IsComposite() || child.Type.Family() == domain.FamilyComposite {
		return domain.Verdict{}, fmt.Errorf("%w: %s", domain.ErrNestedComposite, child.ID)
	}

	answer, ok := a.Values[child.ID]
	if !ok {
		return domain.Incorrect().WithDetail("reason", "missing_answer"), nil
	}

	v, err := r.Dispatch(child.Type)
	if err != nil {
		return domain.Verdict{}, err
	}
	return v.Evaluate(ctx, child, answer, nil)
}
