package grading

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/judge"
)

// fakeJudge is a scripted judge.Judge
type fakeJudge struct {
	mu         sync.Mutex
	judgement  *judge.Judgement
	err        error
	textCalls  int
	mediaCalls int
	lastPrompt judge.Prompt
	lastMedia  []domain.Media
}

func (f *fakeJudge) InvokeText(ctx context.Context, p judge.Prompt) (*judge.Judgement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.lastPrompt = p
	return f.judgement, f.err
}

func (f *fakeJudge) InvokeWithMedia(ctx context.Context, p judge.Prompt, media []domain.Media) (*judge.Judgement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaCalls++
	f.lastPrompt = p
	f.lastMedia = media
	return f.judgement, f.err
}

func (f *fakeJudge) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls + f.mediaCalls
}

func newTestRegistry(t *testing.T, j judge.Judge) *Registry {
	t.Helper()
	r, err := NewRegistry(j)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func evaluate(t *testing.T, r *Registry, q *domain.Question, a domain.Answer, media ...domain.Media) domain.Verdict {
	t.Helper()
	v, err := r.Dispatch(q.Type)
	if err != nil {
		t.Fatalf("Dispatch(%s) error = %v", q.Type, err)
	}
	verdict, err := v.Evaluate(context.Background(), q, a, media)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return verdict
}

func TestNewRegistry_DispatchesEveryType(t *testing.T) {
	r := newTestRegistry(t, nil)

	for _, typ := range domain.AllQuestionTypes() {
		if _, err := r.Dispatch(typ); err != nil {
			t.Errorf("Dispatch(%s) error = %v", typ, err)
		}
	}
	if got := len(r.Types()); got != len(domain.AllQuestionTypes()) {
		t.Errorf("len(Types()) = %d; want %d", got, len(domain.AllQuestionTypes()))
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	r := newTestRegistry(t, nil)

	_, err := r.Dispatch("crossword")
	if !errors.Is(err, domain.ErrUnsupportedQuestionType) {
		t.Errorf("Dispatch(crossword) error = %v; want ErrUnsupportedQuestionType", err)
	}
}

func TestBind_RejectsWrongVariant(t *testing.T) {
	r := newTestRegistry(t, nil)
	v, _ := r.Dispatch(domain.TypeUnscramble)

	q := &domain.Question{ID: "q1", Type: domain.TypeUnscramble}
	_, err := v.Evaluate(context.Background(), q, domain.TextAnswer{Value: "I am here"}, nil)
	if !errors.Is(err, domain.ErrInvalidAnswerShape) {
		t.Errorf("Evaluate() error = %v; want ErrInvalidAnswerShape", err)
	}
}
