package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

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

func writeTestPack(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "starter", "pack.yaml"), `id: starter
name: Starter Pack
version: "1.0.0"
description: First week questions
max_attempts: 3
questions:
  - vocabulary/pets
  - grammar/lost-cat
  - speaking/hometown
`)
	writeFile(t, filepath.Join(dir, "starter", "vocabulary", "pets.yaml"), `type: image_to_multiple_choices
points: 2
title: Which animal is this?
content:
  image: cat.png
options: [cat, dog, bird]
answer: cat
`)
	writeFile(t, filepath.Join(dir, "starter", "grammar", "lost-cat.yaml"), `id: read-lost-cat
type: read_it
points: 99
content:
  text: Tom lost his cat on Monday.
sub_questions:
  - type: true_false
    points: 5
    answer: true
  - type: multiple_choice
    points: 5
    options: [Monday, Friday]
    answer: Monday
`)
	writeFile(t, filepath.Join(dir, "starter", "speaking", "hometown.yaml"), `type: tell_me_about_it
points: 4
instructions: Talk about your hometown for one minute.
configuration:
  min_words: "20"
`)
	// A directory without pack.yaml is ignored
	writeFile(t, filepath.Join(dir, "drafts", "notes.txt"), "wip")
	return dir
}

func TestLoader_LoadPack(t *testing.T) {
	l := NewLoader(writeTestPack(t))

	pack, err := l.LoadPack("starter")
	if err != nil {
		t.Fatalf("LoadPack() error = %v", err)
	}
	if pack.ID != "starter" || pack.Name != "Starter Pack" || pack.Version != "1.0.0" {
		t.Errorf("pack = %+v", pack)
	}
	if len(pack.QuestionIDs) != 3 {
		t.Errorf("len(QuestionIDs) = %d; want 3", len(pack.QuestionIDs))
	}
}

func TestLoader_LoadQuestion(t *testing.T) {
	l := NewLoader(writeTestPack(t))

	q, err := l.LoadQuestion("starter", "vocabulary/pets")
	if err != nil {
		t.Fatalf("LoadQuestion() error = %v", err)
	}
	if q.ID != "starter/vocabulary/pets" {
		t.Errorf("ID = %q; want starter/vocabulary/pets", q.ID)
	}
	if q.Stage != domain.StageVocabulary || q.ValidationMethod != domain.ValidationAuto {
		t.Errorf("Stage = %q, ValidationMethod = %q", q.Stage, q.ValidationMethod)
	}
	if q.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d; want pack default 3", q.MaxAttempts)
	}
	if ref, ok := q.Answer.(domain.TextAnswer); !ok || ref.Value != "cat" {
		t.Errorf("Answer = %#v", q.Answer)
	}
	if string(q.Content) != `{"image":"cat.png"}` {
		t.Errorf("Content = %s", q.Content)
	}
}

func TestLoader_CompositeQuestion(t *testing.T) {
	l := NewLoader(writeTestPack(t))

	q, err := l.LoadQuestion("starter", "grammar/lost-cat")
	if err != nil {
		t.Fatalf("LoadQuestion() error = %v", err)
	}
	if q.ID != "read-lost-cat" || len(q.SubQuestions) != 2 {
		t.Fatalf("question = %s with %d children", q.ID, len(q.SubQuestions))
	}
	first := q.SubQuestions[0]
	if first.ID != "read-lost-cat-1" || first.ParentID != "read-lost-cat" || first.Position != 0 {
		t.Errorf("first child = %+v", first)
	}
	if ref, ok := first.Answer.(domain.TextAnswer); !ok || ref.Value != "true" {
		t.Errorf("boolean answer = %#v; want TextAnswer{true}", first.Answer)
	}
	if first.Stage != domain.StageGrammar {
		t.Errorf("child Stage = %q; want grammar", first.Stage)
	}
}

func TestLoader_JudgeDefaults(t *testing.T) {
	l := NewLoader(writeTestPack(t))

	q, err := l.LoadQuestion("starter", "speaking/hometown")
	if err != nil {
		t.Fatalf("LoadQuestion() error = %v", err)
	}
	if q.ValidationMethod != domain.ValidationAI {
		t.Errorf("ValidationMethod = %q; want AI", q.ValidationMethod)
	}
	if q.ConfigInt("min_words", 0) != 20 {
		t.Errorf("min_words = %d; want 20", q.ConfigInt("min_words", 0))
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader(writeTestPack(t))

	qs, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(qs) != 3 {
		t.Errorf("len = %d; want 3", len(qs))
	}
}

func TestLoader_Errors(t *testing.T) {
	dir := writeTestPack(t)
	writeFile(t, filepath.Join(dir, "broken", "pack.yaml"), "questions: [bad]\n")
	writeFile(t, filepath.Join(dir, "broken", "bad.yaml"), "type: karaoke\n")
	l := NewLoader(dir)

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{"missing pack", func() error { _, err := l.LoadPack("nope"); return err }, "read pack file"},
		{"missing question", func() error { _, err := l.LoadQuestion("starter", "nope"); return err }, "read question file"},
		{"path escape", func() error { _, err := l.LoadQuestion("starter", "../starter/pack"); return err }, "invalid question slug"},
		{"unknown type", func() error { _, err := l.LoadPackQuestions("broken"); return err }, "unsupported question type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v; want containing %q", err, tt.want)
			}
		})
	}
}
