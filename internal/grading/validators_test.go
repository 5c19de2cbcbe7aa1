package grading

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/judge"
	"github.com/eriker75/onenglish-sub004/internal/scoring"
)

func TestExact(t *testing.T) {
	r := newTestRegistry(t, nil)

	tests := []struct {
		name   string
		ref    string
		answer string
		want   bool
	}{
		{"case and padding", "Apple", " apple ", true},
		{"inner whitespace", "is  going", "IS going", true},
		{"different word", "Apple", "pear", false},
		{"empty", "Apple", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &domain.Question{ID: "q", Type: domain.TypeTenses, Points: 2, Answer: domain.TextAnswer{Value: tt.ref}}
			v := evaluate(t, r, q, domain.TextAnswer{Value: tt.answer})
			if v.IsCorrect != tt.want {
				t.Errorf("IsCorrect = %v; want %v", v.IsCorrect, tt.want)
			}
			if v.Feedback.IsEmpty() {
				t.Error("Feedback should never be empty")
			}
		})
	}
}

func TestExact_MultipleChoiceFullPoints(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := &domain.Question{
		ID:      "mc",
		Type:    domain.TypeMultipleChoice,
		Points:  3,
		Options: []string{"cat", "dog", "bird"},
		Answer:  domain.TextAnswer{Value: "cat"},
	}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "cat"})
	points, ok := scoring.Score(v, q)
	if !ok || points != 3 {
		t.Errorf("Score() = %d, %v; want 3, true", points, ok)
	}
}

func TestExact_MissingReference(t *testing.T) {
	r := newTestRegistry(t, nil)
	v, _ := r.Dispatch(domain.TypeWordMatch)

	q := &domain.Question{ID: "q", Type: domain.TypeWordMatch}
	_, err := v.Evaluate(context.Background(), q, domain.TextAnswer{Value: "x"}, nil)
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Errorf("Evaluate() error = %v; want ErrInvalidQuestion", err)
	}
}

func TestSequence(t *testing.T) {
	r := newTestRegistry(t, nil)
	ref := []string{"She", "has", "never", "been", "to", "Paris"}
	q := &domain.Question{ID: "u", Type: domain.TypeUnscramble, Points: 4, Answer: domain.SequenceAnswer{Tokens: ref}}

	v := evaluate(t, r, q, domain.SequenceAnswer{Tokens: []string{" she", "HAS", "never ", "been", "to", "paris"}})
	if !v.IsCorrect {
		t.Errorf("canonical order IsCorrect = false; want true")
	}

	for i := 0; i < len(ref)-1; i++ {
		swapped := append([]string(nil), ref...)
		swapped[i], swapped[i+1] = swapped[i+1], swapped[i]

		v := evaluate(t, r, q, domain.SequenceAnswer{Tokens: swapped})
		if v.IsCorrect {
			t.Errorf("transposition at %d IsCorrect = true; want false", i)
		}
		if v.Details["mismatch_index"] != i {
			t.Errorf("transposition at %d mismatch_index = %v", i, v.Details["mismatch_index"])
		}
	}

	short := evaluate(t, r, q, domain.SequenceAnswer{Tokens: ref[:3]})
	if short.IsCorrect || short.Details["expected_length"] != len(ref) {
		t.Errorf("short answer verdict = %+v; want incorrect with expected_length", short)
	}
}

func TestTagSet(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := &domain.Question{
		ID:     "tag",
		Type:   domain.TypeTagIt,
		Points: 1,
		Answer: domain.SetAnswer{Items: []string{"doesn't", "does not"}},
	}

	tests := []struct {
		name  string
		items []string
		want  bool
	}{
		{"single accepted", []string{"Doesn't"}, true},
		{"both accepted with repeat", []string{"does not", "doesn't", "DOES NOT"}, true},
		{"one invalid", []string{"doesn't", "don't"}, false},
		{"empty", []string{" "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evaluate(t, r, q, domain.SetAnswer{Items: tt.items})
			if v.IsCorrect != tt.want {
				t.Errorf("IsCorrect = %v; want %v", v.IsCorrect, tt.want)
			}
		})
	}
}

func TestAssociations_Deterministic(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := &domain.Question{
		ID:               "wa",
		Type:             domain.TypeWordAssociations,
		Points:           5,
		ValidationMethod: domain.ValidationAuto,
		Answer:           domain.SetAnswer{Items: []string{"sun", "sand", "sea", "towel"}},
		Configuration:    map[string]string{ConfigMaxAssociations: "3"},
	}

	v := evaluate(t, r, q, domain.SetAnswer{Items: []string{"Sun", "sun", "sea", "snow"}})
	if v.IsCorrect {
		t.Error("2 valid of 3 required should be incorrect")
	}
	if v.Details["valid_count"] != 2 {
		t.Errorf("valid_count = %v; want 2", v.Details["valid_count"])
	}

	v = evaluate(t, r, q, domain.SetAnswer{Items: []string{"sun", "sea", "towel"}})
	if !v.IsCorrect {
		t.Error("3 valid of 3 required should be correct")
	}
}

func TestAssociations_WordboxGrid(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := &domain.Question{
		ID:            "wb",
		Type:          domain.TypeWordbox,
		Points:        2,
		Content:       json.RawMessage(`{"grid": [["c","a","t"],["d","o","g"]]}`),
		Configuration: map[string]string{ConfigMaxWords: "2"},
	}

	v := evaluate(t, r, q, domain.SetAnswer{Items: []string{"cat", "dog", "cool"}})
	if !v.IsCorrect {
		t.Errorf("cat+dog formable from grid; verdict = %+v", v)
	}
	invalid, _ := v.Details["invalid_items"].([]string)
	if len(invalid) != 1 || invalid[0] != "cool" {
		t.Errorf("invalid_items = %v; want [cool]", v.Details["invalid_items"])
	}

	v = evaluate(t, r, q, domain.SetAnswer{Items: []string{"cat", "good"}})
	if v.IsCorrect {
		t.Error("good needs a second o; want incorrect")
	}
}

func TestAssociations_JudgeFilter(t *testing.T) {
	fj := &fakeJudge{judgement: &judge.Judgement{IsCorrect: true, ValidItems: []string{"Beach", "sun"}}}
	r := newTestRegistry(t, fj)
	q := &domain.Question{
		ID:               "wa",
		Type:             domain.TypeWordAssociations,
		Points:           2,
		ValidationMethod: domain.ValidationAI,
		Content:          json.RawMessage(`{"theme": "summer"}`),
		Configuration:    map[string]string{ConfigMaxAssociations: "3"},
	}

	v := evaluate(t, r, q, domain.SetAnswer{Items: []string{"beach", "sun", "qwerty"}})
	if fj.textCalls != 1 {
		t.Errorf("judge text calls = %d; want 1", fj.textCalls)
	}
	if v.IsCorrect {
		t.Error("2 judged-valid items of 3 required should be incorrect")
	}
	if v.Details["valid_count"] != 2 {
		t.Errorf("valid_count = %v; want 2", v.Details["valid_count"])
	}
}

func TestAssociations_JudgeFailureIsSoft(t *testing.T) {
	fj := &fakeJudge{err: domain.ErrJudgeTimeout}
	r := newTestRegistry(t, fj)
	q := &domain.Question{
		ID:               "wa",
		Type:             domain.TypeWordAssociations,
		Points:           2,
		ValidationMethod: domain.ValidationAI,
		Configuration:    map[string]string{ConfigMaxAssociations: "2"},
	}

	v := evaluate(t, r, q, domain.SetAnswer{Items: []string{"qwxz", "zzzq"}})
	if v.IsCorrect {
		t.Error("judge failure must not pass the answer")
	}
	if !v.JudgeFailure {
		t.Error("JudgeFailure = false; want true")
	}
	if v.Fraction != 0 {
		t.Errorf("Fraction = %v; want 0", v.Fraction)
	}
	if v.Details["judge_error"] != "judge_timeout" {
		t.Errorf("judge_error = %v; want judge_timeout", v.Details["judge_error"])
	}
	if v.Feedback.EN == "" {
		t.Error("soft failure should carry feedback")
	}
}

func readIt(childPoints ...int) *domain.Question {
	q := &domain.Question{ID: "read", Type: domain.TypeReadIt}
	for i, p := range childPoints {
		id := string(rune('a' + i))
		q.SubQuestions = append(q.SubQuestions, &domain.Question{
			ID:       id,
			Type:     domain.TypeTrueFalse,
			Points:   p,
			ParentID: q.ID,
			Position: i,
			Answer:   domain.TextAnswer{Value: "true"},
		})
	}
	q.Points = q.SumChildPoints()
	return q
}

func TestComposite_OneOfTwo(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := readIt(5, 5)

	v := evaluate(t, r, q, domain.SubAnswers{Values: map[string]domain.Answer{
		"a": domain.TextAnswer{Value: "true"},
		"b": domain.TextAnswer{Value: "false"},
	}})

	points, ok := scoring.Score(v, q)
	if points != 5 || ok {
		t.Errorf("Score() = %d, %v; want 5, false", points, ok)
	}
}

func TestComposite_KOfN(t *testing.T) {
	r := newTestRegistry(t, nil)

	for n := 1; n <= 6; n++ {
		weights := make([]int, n)
		for i := range weights {
			weights[i] = 2
		}
		q := readIt(weights...)

		for k := 0; k <= n; k++ {
			values := make(map[string]domain.Answer, n)
			for i := 0; i < n; i++ {
				ans := "false"
				if i < k {
					ans = "true"
				}
				values[string(rune('a'+i))] = domain.TextAnswer{Value: ans}
			}

			v := evaluate(t, r, q, domain.SubAnswers{Values: values})
			points, ok := scoring.Score(v, q)
			if points != 2*k {
				t.Errorf("n=%d k=%d points = %d; want %d", n, k, points, 2*k)
			}
			if ok != (k == n) {
				t.Errorf("n=%d k=%d isCorrect = %v", n, k, ok)
			}
		}
	}
}

func TestComposite_MissingAnswerIsIncorrect(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := readIt(3, 3, 4)

	v := evaluate(t, r, q, domain.SubAnswers{Values: map[string]domain.Answer{
		"a": domain.TextAnswer{Value: "true"},
		"c": domain.TextAnswer{Value: "true"},
	}})

	if v.IsCorrect {
		t.Error("missing sub-answer should make the parent incorrect")
	}
	if v.Details["earned"] != 7 {
		t.Errorf("earned = %v; want 7", v.Details["earned"])
	}
}

func TestComposite_ZeroParentUsesChildSum(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := readIt(1, 3)
	q.Points = 0

	v := evaluate(t, r, q, domain.SubAnswers{Values: map[string]domain.Answer{
		"b": domain.TextAnswer{Value: "true"},
	}})
	if v.Fraction != 0.75 {
		t.Errorf("Fraction = %v; want 0.75", v.Fraction)
	}
}

func TestComposite_NestedIsHardError(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := readIt(2)
	q.SubQuestions[0].SubQuestions = []*domain.Question{{ID: "deep", Type: domain.TypeTrueFalse}}

	v, _ := r.Dispatch(q.Type)
	_, err := v.Evaluate(context.Background(), q, domain.SubAnswers{Values: map[string]domain.Answer{}}, nil)
	if !errors.Is(err, domain.ErrNestedComposite) {
		t.Errorf("Evaluate() error = %v; want ErrNestedComposite", err)
	}
}

func TestSemantic_EmptySkipsJudge(t *testing.T) {
	fj := &fakeJudge{judgement: &judge.Judgement{IsCorrect: true}}
	r := newTestRegistry(t, fj)
	q := &domain.Question{ID: "t", Type: domain.TypeTales, Points: 10, ValidationMethod: domain.ValidationAI}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "   "})
	if v.IsCorrect || fj.calls() != 0 {
		t.Errorf("verdict = %+v, calls = %d; want incorrect without judge call", v, fj.calls())
	}
}

func TestSemantic_ScoreBecomesFraction(t *testing.T) {
	score := 0.7
	fj := &fakeJudge{judgement: &judge.Judgement{IsCorrect: true, Score: &score, FeedbackEN: "Nice", FeedbackES: "Bien"}}
	r := newTestRegistry(t, fj)
	q := &domain.Question{ID: "t", Type: domain.TypeTales, Points: 10, ValidationMethod: domain.ValidationAI}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "Once upon a time"})
	points, ok := scoring.Score(v, q)
	if points != 7 || !ok {
		t.Errorf("Score() = %d, %v; want 7, true", points, ok)
	}
	if v.Feedback.EN != "Nice" || v.Feedback.ES != "Bien" {
		t.Errorf("Feedback = %+v", v.Feedback)
	}
}

func TestSemantic_IncorrectNeverFullPoints(t *testing.T) {
	score := 1.0
	fj := &fakeJudge{judgement: &judge.Judgement{IsCorrect: false, Score: &score}}
	r := newTestRegistry(t, fj)
	q := &domain.Question{ID: "t", Type: domain.TypeTales, Points: 10, ValidationMethod: domain.ValidationAI}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "Once upon a time"})
	points, ok := scoring.Score(v, q)
	if points != 5 || ok {
		t.Errorf("Score() = %d, %v; want 5, false", points, ok)
	}
}

func TestSemantic_AllMediaInOneCall(t *testing.T) {
	fj := &fakeJudge{judgement: &judge.Judgement{IsCorrect: false}}
	r := newTestRegistry(t, fj)
	q := &domain.Question{ID: "s", Type: domain.TypeSentenceMaker, Points: 2, ValidationMethod: domain.ValidationAI}

	media := []domain.Media{
		{MIMEType: "image/png", Data: []byte("1")},
		{MIMEType: "image/png", Data: []byte("2")},
		{MIMEType: "image/jpeg", Data: []byte("3")},
	}
	v := evaluate(t, r, q, domain.TextAnswer{}, media...)

	if fj.mediaCalls != 1 || len(fj.lastMedia) != 3 {
		t.Errorf("media calls = %d with %d files; want 1 call with 3", fj.mediaCalls, len(fj.lastMedia))
	}
	if v.IsCorrect || v.Fraction != 0 {
		t.Errorf("verdict = %+v; want incorrect", v)
	}
}

func TestSemantic_JudgeFailureIsSoft(t *testing.T) {
	failures := []error{
		domain.ErrJudgeUnavailable,
		domain.ErrJudgeTimeout,
		domain.ErrMalformedJudgeResponse,
		errors.New("unexpected"),
	}

	for _, jerr := range failures {
		fj := &fakeJudge{err: jerr}
		r := newTestRegistry(t, fj)
		q := &domain.Question{ID: "d", Type: domain.TypeDebate, Points: 8, ValidationMethod: domain.ValidationAI}

		v := evaluate(t, r, q, domain.TextAnswer{Value: "Homework should be banned because..."})
		if v.IsCorrect || !v.JudgeFailure {
			t.Errorf("%v: verdict = %+v; want soft failure", jerr, v)
		}
		if v.Feedback.EN == "" || v.Feedback.ES == "" {
			t.Errorf("%v: feedback should be bilingual", jerr)
		}
	}
}

func TestSemantic_NoJudgeIsSoft(t *testing.T) {
	r := newTestRegistry(t, nil)
	q := &domain.Question{ID: "g", Type: domain.TypeGossip, Points: 2, ValidationMethod: domain.ValidationAI}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "She said she was tired"})
	if !v.JudgeFailure {
		t.Errorf("verdict = %+v; want soft failure without judge", v)
	}
}

func TestSemantic_AutoWithReferenceSkipsJudge(t *testing.T) {
	fj := &fakeJudge{}
	r := newTestRegistry(t, fj)
	q := &domain.Question{
		ID:               "sp",
		Type:             domain.TypeSpelling,
		Points:           1,
		ValidationMethod: domain.ValidationAuto,
		Answer:           domain.TextAnswer{Value: "necessary"},
	}

	v := evaluate(t, r, q, domain.TextAnswer{Value: "Necessary"})
	if !v.IsCorrect || fj.calls() != 0 {
		t.Errorf("verdict = %+v, calls = %d; want exact match without judge", v, fj.calls())
	}
}

func TestSemanticPrompt_Structure(t *testing.T) {
	q := &domain.Question{
		ID:           "r",
		Type:         domain.TypeReportIt,
		Instructions: "Rewrite in reported speech",
		Content:      json.RawMessage(`{"sentence": "I am tired"}`),
		Answer:       domain.TextAnswer{Value: "She said she was tired."},
	}
	p := semanticPrompt(q, "She said she is tired", 0)

	for _, want := range []string{"## Reference answer", "She said she was tired.", "## Learner answer", "## Attached media files: 0"} {
		if !strings.Contains(p.User, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(p.System, "reported") || !strings.Contains(p.System, "is_correct") {
		t.Error("system prompt should describe the task and the response contract")
	}
}
