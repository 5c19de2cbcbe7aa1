package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/assessment"
	"github.com/eriker75/onenglish-sub004/internal/config"
	"github.com/eriker75/onenglish-sub004/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writePacks(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "week1", "pack.yaml"), `id: week1
name: Week 1
questions: [pets, story, hometown]
`)
	writeFile(t, filepath.Join(dir, "week1", "pets.yaml"), `type: image_to_multiple_choices
points: 2
options: [cat, dog, bird]
answer: cat
max_attempts: 2
`)
	writeFile(t, filepath.Join(dir, "week1", "story.yaml"), `type: read_it
content:
  text: Ana walks to school.
sub_questions:
  - type: true_false
    points: 3
    answer: true
  - type: true_false
    points: 4
    answer: false
`)
	writeFile(t, filepath.Join(dir, "week1", "hometown.yaml"), `type: tell_me_about_it
points: 5
`)
	return dir
}

func testConfig(t *testing.T, driver string) *config.LocalConfig {
	t.Helper()
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = driver
	cfg.Storage.Path = filepath.Join(t.TempDir(), "onenglish.db")
	cfg.QuestionsPath = writePacks(t)
	for _, p := range cfg.LLM.Providers {
		p.Enabled = false
	}
	return cfg
}

func TestNew_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t, config.DriverMemory), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	n, err := app.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Seed() = %d; want 3", n)
	}

	story, err := app.Catalog.GetQuestion(ctx, "week1/story")
	if err != nil {
		t.Fatalf("GetQuestion() error = %v", err)
	}
	if story.Points != 7 {
		t.Errorf("composite points = %d; want 7", story.Points)
	}

	scored, err := app.Assessment.ValidateAnswer(ctx, assessment.Submission{
		QuestionID: "week1/pets",
		StudentID:  "s1",
		UserAnswer: json.RawMessage(`"Cat"`),
	})
	if err != nil {
		t.Fatalf("ValidateAnswer() error = %v", err)
	}
	if !scored.IsCorrect || scored.PointsEarned != 2 {
		t.Errorf("scored = %+v; want correct with 2 points", scored)
	}
}

func TestNew_NoJudgeProviderGivesSoftFailure(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t, config.DriverMemory), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if _, err := app.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	scored, err := app.Assessment.ValidateAnswer(ctx, assessment.Submission{
		QuestionID: "week1/hometown",
		StudentID:  "s1",
		UserAnswer: json.RawMessage(`"I live in Caracas."`),
	})
	if err != nil {
		t.Fatalf("ValidateAnswer() error = %v", err)
	}
	if scored.IsCorrect || !scored.JudgeFailure || scored.Feedback.EN == "" {
		t.Errorf("scored = %+v; want soft judge failure", scored)
	}
}

func TestNew_SQLiteAttemptsPersist(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.DriverSQLite)

	app, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := app.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	sub := assessment.Submission{QuestionID: "week1/pets", StudentID: "s1", UserAnswer: json.RawMessage(`"dog"`)}
	for i := 0; i < 2; i++ {
		if _, err := app.Assessment.ValidateAnswer(ctx, sub); err != nil {
			t.Fatalf("attempt %d error = %v", i+1, err)
		}
	}
	if err := app.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen the same database file; counters survive the restart
	app, err = New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer app.Close()

	_, err = app.Assessment.ValidateAnswer(ctx, sub)
	if !errors.Is(err, domain.ErrAttemptsExceeded) {
		t.Errorf("third attempt error = %v; want ErrAttemptsExceeded", err)
	}

	history, err := app.Assessment.History(ctx, "week1/pets", "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("len(history) = %d; want 2", len(history))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "mongo")
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Error("New() error = nil; want invalid config")
	}
}

func TestSeed_MissingDirectory(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.QuestionsPath = filepath.Join(t.TempDir(), "absent")

	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	n, err := app.Seed(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Seed() = %d, %v; want 0, nil", n, err)
	}
}

func TestRegisterProviders_OllamaNeedsNoKey(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.LLM.Providers["ollama"].Enabled = true
	cfg.LLM.Providers["claude"].Enabled = true // no key, skipped

	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	got := app.LLM.List()
	if len(got) != 1 || got[0] != "ollama" {
		t.Errorf("providers = %v; want [ollama]", got)
	}
}

func TestNew_SQLiteRecordsEvents(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t, config.DriverSQLite), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if app.EventLog == nil {
		t.Fatal("EventLog = nil; want sqlite event log")
	}
	if _, err := app.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	sub := assessment.Submission{QuestionID: "week1/pets", StudentID: "s1", UserAnswer: json.RawMessage(`"cat"`)}
	for i := 0; i < 3; i++ {
		app.Assessment.ValidateAnswer(ctx, sub)
	}

	scored, err := app.EventLog.Count(ctx, domain.EventAnswerScored)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	rejected, _ := app.EventLog.Count(ctx, domain.EventAttemptRejected)
	if scored != 2 || rejected != 1 {
		t.Errorf("scored, rejected = %d, %d; want 2, 1", scored, rejected)
	}
}

func TestNew_MemoryHasNoEventLog(t *testing.T) {
	app, err := New(context.Background(), testConfig(t, config.DriverMemory), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if app.EventLog != nil {
		t.Error("EventLog != nil for memory storage")
	}
}
