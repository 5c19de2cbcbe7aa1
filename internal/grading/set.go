package grading

import (
	"context"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// Configuration keys holding the required number of valid items
const (
	ConfigMaxAssociations = "max_associations"
	ConfigMaxWords        = "max_words"
)

// evaluateTagSet accepts a non-empty selection drawn only from the accepted set
func evaluateTagSet(_ context.Context, q *domain.Question, a domain.SetAnswer, _ []domain.Media) (domain.Verdict, error) {
	ref, ok := q.Answer.(domain.SetAnswer)
	if !ok || len(ref.Items) == 0 {
		return domain.Verdict{}, missingReference(q)
	}

	accepted := toSet(ref.Items)
	submitted := dedupe(a.Items)
	if len(submitted) == 0 {
		return domain.Incorrect().WithDetail("reason", "empty_selection"), nil
	}

	var invalid []string
	for _, it := range submitted {
		if _, ok := accepted[it]; !ok {
			invalid = append(invalid, it)
		}
	}
	if len(invalid) > 0 {
		return domain.Incorrect().WithDetail("invalid_items", invalid), nil
	}
	return domain.Correct(), nil
}

// evaluateAssociations counts distinct valid items against a required
// minimum. AI questions send the surviving candidates to the judge in one
// call; a judge failure yields a soft failure, never a pass.
func (r *Registry) evaluateAssociations(ctx context.Context, q *domain.Question, a domain.SetAnswer, _ []domain.Media) (domain.Verdict, error) {
	required := q.ConfigInt(requiredCountKey(q.Type), 1)
	if required < 1 {
		required = 1
	}

	candidates, rejected := filterCandidates(q, dedupe(a.Items))
	valid := candidates
	details := map[string]any{"required": required}

	if q.ValidationMethod == domain.ValidationAI && len(candidates) > 0 {
		judged, err := r.judgeItems(ctx, q, candidates, required)
		if err != nil {
			r.logger.Warn("association judge failed",
				"question_id", q.ID,
				"error", err)
			return domain.SoftFailure(judgeFailureReason(err)).
				WithDetail("required", required).
				WithDetail("candidate_count", len(candidates)), nil
		}
		kept := toSet(judged)
		valid = nil
		for _, c := range candidates {
			if _, ok := kept[c]; ok {
				valid = append(valid, c)
			} else {
				rejected = append(rejected, c)
			}
		}
	}

	v := domain.Binary(len(valid) >= required)
	v.Details = details
	v = v.WithDetail("valid_items", valid).WithDetail("valid_count", len(valid))
	if len(rejected) > 0 {
		v = v.WithDetail("invalid_items", rejected)
	}
	return v, nil
}

func requiredCountKey(t domain.QuestionType) string {
	if t == domain.TypeWordbox {
		return ConfigMaxWords
	}
	return ConfigMaxAssociations
}

// filterCandidates keeps items on the accepted list (when one exists) and,
// for wordbox, items that can be spelled from the letter grid
func filterCandidates(q *domain.Question, items []string) (kept, rejected []string) {
	var accepted map[string]struct{}
	if ref, ok := q.Answer.(domain.SetAnswer); ok && len(ref.Items) > 0 {
		accepted = toSet(ref.Items)
	}

	var grid map[rune]int
	if q.Type == domain.TypeWordbox {
		grid = gridLetters(q.Content)
	}

	for _, it := range items {
		if accepted != nil {
			if _, ok := accepted[it]; !ok {
				rejected = append(rejected, it)
				continue
			}
		}
		if grid != nil && !formable(it, grid) {
			rejected = append(rejected, it)
			continue
		}
		kept = append(kept, it)
	}
	return kept, rejected
}

func (r *Registry) judgeItems(ctx context.Context, q *domain.Question, candidates []string, required int) ([]string, error) {
	if r.judge == nil {
		return nil, errNoJudge
	}
	jd, err := r.judge.InvokeText(ctx, associationPrompt(q, candidates, required))
	if err != nil {
		return nil, err
	}
	return jd.ValidItems, nil
}
