package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

func readIt() *domain.Question {
	return &domain.Question{
		ID:               "read-it-1",
		Type:             domain.TypeReadIt,
		Stage:            domain.StageGrammar,
		Points:           10,
		ValidationMethod: domain.ValidationAuto,
		Title:            "The lost cat",
		Content:          json.RawMessage(`{"text":"Tom lost his cat on Monday."}`),
		SubQuestions: []*domain.Question{
			{ID: "read-it-1-a", Type: domain.TypeTrueFalse, Points: 5, Position: 0, Answer: domain.TextAnswer{Value: "true"}},
			{
				ID: "read-it-1-b", Type: domain.TypeMultipleChoice, Points: 5, Position: 1,
				Options:       []string{"Monday", "Friday"},
				Answer:        domain.TextAnswer{Value: "Monday"},
				Configuration: map[string]string{"shuffle": "true"},
			},
		},
	}
}

func TestQuestionStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))

	if err := store.SaveQuestion(ctx, readIt()); err != nil {
		t.Fatalf("SaveQuestion() error = %v", err)
	}

	got, err := store.GetQuestion(ctx, "read-it-1")
	if err != nil {
		t.Fatalf("GetQuestion() error = %v", err)
	}
	if got.Type != domain.TypeReadIt || got.Points != 10 || got.Title != "The lost cat" {
		t.Errorf("question = %+v", got)
	}
	if string(got.Content) != `{"text":"Tom lost his cat on Monday."}` {
		t.Errorf("Content = %s", got.Content)
	}
	if len(got.SubQuestions) != 2 {
		t.Fatalf("len(SubQuestions) = %d; want 2", len(got.SubQuestions))
	}

	b := got.SubQuestions[1]
	if b.ID != "read-it-1-b" || b.ParentID != "read-it-1" {
		t.Errorf("child = %s parent %s", b.ID, b.ParentID)
	}
	if ref, ok := b.Answer.(domain.TextAnswer); !ok || ref.Value != "Monday" {
		t.Errorf("Answer = %#v; want TextAnswer{Monday}", b.Answer)
	}
	if len(b.Options) != 2 || b.Configuration["shuffle"] != "true" {
		t.Errorf("Options = %v, Configuration = %v", b.Options, b.Configuration)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestQuestionStore_SequenceAndSetReferences(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))

	_ = store.SaveQuestion(ctx, &domain.Question{
		ID: "u1", Type: domain.TypeUnscramble, Points: 3,
		Answer: domain.SequenceAnswer{Tokens: []string{"I", "like", "tea"}},
	})
	_ = store.SaveQuestion(ctx, &domain.Question{
		ID: "t1", Type: domain.TypeTagIt, Points: 2,
		Answer: domain.SetAnswer{Items: []string{"noun", "verb"}},
	})

	u, err := store.GetQuestion(ctx, "u1")
	if err != nil {
		t.Fatalf("GetQuestion(u1) error = %v", err)
	}
	if seq, ok := u.Answer.(domain.SequenceAnswer); !ok || len(seq.Tokens) != 3 || seq.Tokens[2] != "tea" {
		t.Errorf("u1 Answer = %#v", u.Answer)
	}

	tg, _ := store.GetQuestion(ctx, "t1")
	if set, ok := tg.Answer.(domain.SetAnswer); !ok || len(set.Items) != 2 {
		t.Errorf("t1 Answer = %#v", tg.Answer)
	}
}

func TestQuestionStore_ResavePrunesChildren(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))

	q := readIt()
	_ = store.SaveQuestion(ctx, q)
	first, _ := store.GetQuestion(ctx, q.ID)

	q.SubQuestions = q.SubQuestions[1:]
	if err := store.SaveQuestion(ctx, q); err != nil {
		t.Fatalf("SaveQuestion() error = %v", err)
	}

	got, _ := store.GetQuestion(ctx, q.ID)
	if len(got.SubQuestions) != 1 || got.SubQuestions[0].ID != "read-it-1-b" {
		t.Errorf("children = %v; want [read-it-1-b]", got.ChildIDs())
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v; want %v", got.CreatedAt, first.CreatedAt)
	}
	if _, err := store.GetQuestion(ctx, "read-it-1-a"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("pruned child error = %v; want ErrQuestionNotFound", err)
	}
}

func TestQuestionStore_SaveChild(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))
	_ = store.SaveQuestion(ctx, readIt())

	child := &domain.Question{ID: "read-it-1-c", Type: domain.TypeTrueFalse, Points: 2, ParentID: "read-it-1", Position: 2}
	if err := store.SaveQuestion(ctx, child); err != nil {
		t.Fatalf("SaveQuestion(child) error = %v", err)
	}
	got, _ := store.GetQuestion(ctx, "read-it-1")
	if len(got.SubQuestions) != 3 {
		t.Errorf("len(SubQuestions) = %d; want 3", len(got.SubQuestions))
	}

	orphan := &domain.Question{ID: "x", Type: domain.TypeTrueFalse, ParentID: "missing"}
	if err := store.SaveQuestion(ctx, orphan); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("orphan error = %v; want ErrQuestionNotFound", err)
	}
}

func TestQuestionStore_UpdatePoints(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))
	_ = store.SaveQuestion(ctx, readIt())

	if err := store.UpdateQuestionPoints(ctx, "read-it-1-a", 8); err != nil {
		t.Fatalf("UpdateQuestionPoints() error = %v", err)
	}
	if err := store.UpdateCompositePoints(ctx, "read-it-1", 13); err != nil {
		t.Fatalf("UpdateCompositePoints() error = %v", err)
	}

	got, _ := store.GetQuestion(ctx, "read-it-1")
	if got.Points != 13 || got.SubQuestions[0].Points != 8 {
		t.Errorf("points = %d / %d; want 13 / 8", got.Points, got.SubQuestions[0].Points)
	}
	if err := store.UpdateCompositePoints(ctx, "missing", 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("error = %v; want ErrQuestionNotFound", err)
	}
}

func TestQuestionStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))
	_ = store.SaveQuestion(ctx, readIt())

	if err := store.DeleteQuestion(ctx, "read-it-1"); err != nil {
		t.Fatalf("DeleteQuestion() error = %v", err)
	}
	if _, err := store.GetQuestion(ctx, "read-it-1-b"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("child after delete error = %v; want ErrQuestionNotFound", err)
	}
	if err := store.DeleteQuestion(ctx, "read-it-1"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("second delete error = %v", err)
	}
}

func TestQuestionStore_ListQuestions(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore(openTestDB(t))
	_ = store.SaveQuestion(ctx, readIt())
	_ = store.SaveQuestion(ctx, &domain.Question{ID: "a-spell", Type: domain.TypeSpelling, Points: 1})

	list, err := store.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d; want 2", len(list))
	}
	if list[0].ID != "a-spell" || len(list[1].SubQuestions) != 2 {
		t.Errorf("list = %s, %s (%d children)", list[0].ID, list[1].ID, len(list[1].SubQuestions))
	}
}
