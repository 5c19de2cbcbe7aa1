package domain

import (
	"errors"
	"testing"
)

func TestAllQuestionTypes_HaveFamilyKindAndStage(t *testing.T) {
	seen := make(map[QuestionType]bool)
	for _, qt := range AllQuestionTypes() {
		if seen[qt] {
			t.Errorf("duplicate question type %q", qt)
		}
		seen[qt] = true

		if qt.Family() == "" {
			t.Errorf("%s.Family() is empty", qt)
		}
		if qt.AnswerKind() == "" {
			t.Errorf("%s.AnswerKind() is empty", qt)
		}
		if !qt.DefaultStage().Valid() {
			t.Errorf("%s.DefaultStage() = %q; want a valid stage", qt, qt.DefaultStage())
		}
	}
	if len(seen) != 21 {
		t.Errorf("len(AllQuestionTypes()) = %d; want 21", len(seen))
	}
}

func TestParseQuestionType(t *testing.T) {
	tests := []struct {
		in      string
		want    QuestionType
		wantErr bool
	}{
		{"unscramble", TypeUnscramble, false},
		{" read_it ", TypeReadIt, false},
		{"crossword", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuestionType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedQuestionType) {
					t.Errorf("ParseQuestionType(%q) error = %v; want ErrUnsupportedQuestionType", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuestionType(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseQuestionType(%q) = %q; want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuestion_SumChildPoints(t *testing.T) {
	q := &Question{
		ID:   "parent",
		Type: TypeReadIt,
		SubQuestions: []*Question{
			{ID: "a", Type: TypeTrueFalse, Points: 3},
			{ID: "b", Type: TypeTrueFalse, Points: 4},
		},
	}

	if got := q.SumChildPoints(); got != 7 {
		t.Errorf("SumChildPoints() = %d; want 7", got)
	}
	if !q.IsComposite() {
		t.Error("IsComposite() = false; want true")
	}
	if ids := q.ChildIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ChildIDs() = %v; want [a b]", ids)
	}
}

func TestQuestion_ConfigInt(t *testing.T) {
	q := &Question{Configuration: map[string]string{"max_words": " 4 ", "bad": "x"}}

	if got := q.ConfigInt("max_words", 1); got != 4 {
		t.Errorf("ConfigInt(max_words) = %d; want 4", got)
	}
	if got := q.ConfigInt("bad", 2); got != 2 {
		t.Errorf("ConfigInt(bad) = %d; want 2", got)
	}
	if got := q.ConfigInt("missing", 3); got != 3 {
		t.Errorf("ConfigInt(missing) = %d; want 3", got)
	}
}

func TestQuestion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       *Question
		wantErr error
	}{
		{
			name: "valid leaf",
			q:    &Question{ID: "q1", Type: TypeTenses, Points: 2},
		},
		{
			name:    "missing id",
			q:       &Question{Type: TypeTenses},
			wantErr: ErrInvalidQuestion,
		},
		{
			name:    "unknown type",
			q:       &Question{ID: "q1", Type: "crossword"},
			wantErr: ErrUnsupportedQuestionType,
		},
		{
			name:    "negative points",
			q:       &Question{ID: "q1", Type: TypeTenses, Points: -1},
			wantErr: ErrInvalidQuestion,
		},
		{
			name:    "composite without children",
			q:       &Question{ID: "q1", Type: TypeReadIt},
			wantErr: ErrInvalidQuestion,
		},
		{
			name: "nested composite",
			q: &Question{ID: "q1", Type: TypeReadIt, SubQuestions: []*Question{
				{ID: "q2", Type: TypeTopicBasedAudio},
			}},
			wantErr: ErrNestedComposite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v; want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsJudgeFailure(t *testing.T) {
	if !IsJudgeFailure(ErrJudgeTimeout) {
		t.Error("IsJudgeFailure(ErrJudgeTimeout) = false; want true")
	}
	if IsJudgeFailure(ErrQuestionNotFound) {
		t.Error("IsJudgeFailure(ErrQuestionNotFound) = true; want false")
	}
}
