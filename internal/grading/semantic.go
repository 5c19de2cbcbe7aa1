package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/judge"
)

var errNoJudge = fmt.Errorf("%w: no judge configured", domain.ErrJudgeUnavailable)

// evaluateSemantic grades free-form text or media through the judge. All
// media of one answer go out in a single call.
func (r *Registry) evaluateSemantic(ctx context.Context, q *domain.Question, a domain.TextAnswer, media []domain.Media) (domain.Verdict, error) {
	text := strings.TrimSpace(a.Value)
	if text == "" && len(media) == 0 {
		return domain.Incorrect().WithDetail("reason", "empty_submission"), nil
	}

	// Deterministic questions answered in writing skip the judge.
	if q.ValidationMethod == domain.ValidationAuto && len(media) == 0 {
		if ref, ok := q.Answer.(domain.TextAnswer); ok && ref.Value != "" {
			return evaluateExact(ctx, q, a, nil)
		}
	}

	jd, err := r.invokeJudge(ctx, semanticPrompt(q, text, len(media)), media)
	if err != nil {
		r.logger.Warn("judge failed, returning soft verdict",
			"question_id", q.ID,
			"type", q.Type,
			"media", len(media),
			"error", err)
		return domain.SoftFailure(judgeFailureReason(err)), nil
	}

	v := domain.Verdict{
		IsCorrect: jd.IsCorrect,
		Fraction:  jd.Fraction(),
		Feedback:  jd.Feedback(),
	}
	if v.Feedback.IsEmpty() {
		v.Feedback = domain.Binary(jd.IsCorrect).Feedback
	}
	if jd.Score != nil {
		v = v.WithDetail("score", *jd.Score)
	}
	if jd.Transcript != "" {
		v = v.WithDetail("transcript", jd.Transcript)
	}
	return v, nil
}

func (r *Registry) invokeJudge(ctx context.Context, p judge.Prompt, media []domain.Media) (*judge.Judgement, error) {
	if r.judge == nil {
		return nil, errNoJudge
	}
	if len(media) > 0 {
		return r.judge.InvokeWithMedia(ctx, p, media)
	}
	return r.judge.InvokeText(ctx, p)
}

// judgeFailureReason gives a short diagnostic for the soft verdict
func judgeFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrJudgeTimeout), errors.Is(err, context.DeadlineExceeded):
		return "judge_timeout"
	case errors.Is(err, domain.ErrMalformedJudgeResponse):
		return "malformed_judge_response"
	default:
		return "judge_unavailable"
	}
}
