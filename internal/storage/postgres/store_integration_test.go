//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/attempt/attempttest"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/points"
	"github.com/eriker75/onenglish-sub004/internal/storage/postgres"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	return openPostgres(t, startPostgres(t))
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("onenglish"),
		tcpostgres.WithUsername("onenglish"),
		tcpostgres.WithPassword("onenglish"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return dsn
}

func openPostgres(t *testing.T, dsn string) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func readIt(children int) *domain.Question {
	return readItWithID("read-it-pg", children)
}

func readItWithID(id string, children int) *domain.Question {
	q := &domain.Question{
		ID:      id,
		Type:    domain.TypeReadIt,
		Stage:   domain.StageGrammar,
		Content: json.RawMessage(`{"text":"Anna reads every night."}`),
	}
	for i := 0; i < children; i++ {
		q.SubQuestions = append(q.SubQuestions, &domain.Question{
			ID:       q.ID + "-" + string(rune('a'+i)),
			Type:     domain.TypeTrueFalse,
			Points:   i + 1,
			Position: i,
			Answer:   domain.TextAnswer{Value: "true"},
		})
	}
	return q
}

func TestIntegration_QuestionStore(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	if err := store.SaveQuestion(ctx, readIt(3)); err != nil {
		t.Fatalf("SaveQuestion() error = %v", err)
	}

	got, err := store.GetQuestion(ctx, "read-it-pg")
	if err != nil {
		t.Fatalf("GetQuestion() error = %v", err)
	}
	if len(got.SubQuestions) != 3 || got.SubQuestions[2].ParentID != "read-it-pg" {
		t.Fatalf("children = %v", got.ChildIDs())
	}
	var content map[string]string
	if err := json.Unmarshal(got.Content, &content); err != nil || content["text"] != "Anna reads every night." {
		t.Errorf("Content = %s", got.Content)
	}
	if ref, ok := got.SubQuestions[0].Answer.(domain.TextAnswer); !ok || ref.Value != "true" {
		t.Errorf("Answer = %#v", got.SubQuestions[0].Answer)
	}

	if err := store.SaveQuestion(ctx, readIt(1)); err != nil {
		t.Fatalf("re-save error = %v", err)
	}
	got, _ = store.GetQuestion(ctx, "read-it-pg")
	if len(got.SubQuestions) != 1 {
		t.Errorf("children after prune = %v", got.ChildIDs())
	}

	if err := store.UpdateQuestionPoints(ctx, "missing", 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("UpdateQuestionPoints(missing) error = %v", err)
	}
	if err := store.DeleteQuestion(ctx, "read-it-pg"); err != nil {
		t.Fatalf("DeleteQuestion() error = %v", err)
	}
	if _, err := store.GetQuestion(ctx, "read-it-pg-a"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("child after delete error = %v", err)
	}
}

func TestIntegration_RecalculateUnderParentLock(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	_ = store.SaveQuestion(ctx, readIt(6))

	svc := points.NewService(store)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "read-it-pg-" + string(rune('a'+i))
			if err := store.UpdateQuestionPoints(ctx, id, 10); err != nil {
				t.Errorf("UpdateQuestionPoints(%s) error = %v", id, err)
				return
			}
			if err := svc.OnSubQuestionPointsChanged(ctx, "read-it-pg"); err != nil {
				t.Errorf("recalculate error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := store.GetQuestion(ctx, "read-it-pg")
	if got.Points != 60 {
		t.Errorf("Points = %d; want 60", got.Points)
	}
}

func TestIntegration_RecalculateOnSingleConnection(t *testing.T) {
	store := openPostgres(t, startPostgres(t)+"&pool_max_conns=1")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	parents := []string{"pg-parent-a", "pg-parent-b", "pg-parent-c"}
	for _, id := range parents {
		if err := store.SaveQuestion(ctx, readItWithID(id, 3)); err != nil {
			t.Fatalf("SaveQuestion(%s) error = %v", id, err)
		}
	}

	svc := points.NewService(store)
	var wg sync.WaitGroup
	for _, id := range parents {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			total, err := svc.Recalculate(ctx, id)
			if err != nil {
				t.Errorf("Recalculate(%s) error = %v", id, err)
				return
			}
			if total != 6 {
				t.Errorf("Recalculate(%s) = %d; want 6", id, total)
			}
		}(id)
	}
	wg.Wait()
}

func TestIntegration_ScoredAnswers(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for n := 1; n <= 2; n++ {
		sub := domain.SubmittedAnswer{
			ID: uuid.New(), QuestionID: "q", StudentID: "s",
			UserAnswer: json.RawMessage(`["a","b"]`), AttemptNumber: n, SubmittedAt: now,
		}
		a := &domain.ScoredAnswer{
			ID: uuid.New(), Submission: sub, QuestionID: "q", StudentID: "s",
			PointsEarned: n, MaxPoints: 2, AttemptNumber: n,
			Feedback: domain.Incorrect().Feedback, Details: map[string]any{"n": n}, ScoredAt: now,
		}
		if err := store.SaveScoredAnswer(ctx, a); err != nil {
			t.Fatalf("SaveScoredAnswer() error = %v", err)
		}
	}

	got, err := store.ListScoredAnswers(ctx, "q", "s")
	if err != nil {
		t.Fatalf("ListScoredAnswers() error = %v", err)
	}
	if len(got) != 2 || got[0].AttemptNumber != 1 || got[1].PointsEarned != 2 {
		t.Fatalf("answers = %+v", got)
	}
	if got[1].Details["n"] != float64(2) {
		t.Errorf("Details = %v", got[1].Details)
	}
}

func TestIntegration_AttemptTracker(t *testing.T) {
	store := setupPostgres(t)
	attempttest.Run(t, store.AttemptTracker())
	attempttest.RunConcurrent(t, store.AttemptTracker())
}
