package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuestionType is the closed set of exercise types the engine can grade
type QuestionType string

const (
	// Vocabulary
	TypeImageToMultipleChoices QuestionType = "image_to_multiple_choices"
	TypeWordbox                QuestionType = "wordbox"
	TypeSpelling               QuestionType = "spelling"
	TypeWordAssociations       QuestionType = "word_associations"

	// Grammar
	TypeUnscramble QuestionType = "unscramble"
	TypeTenses     QuestionType = "tenses"
	TypeTagIt      QuestionType = "tag_it"
	TypeReportIt   QuestionType = "report_it"
	TypeReadIt     QuestionType = "read_it"

	// Listening
	TypeWordMatch       QuestionType = "word_match"
	TypeGossip          QuestionType = "gossip"
	TypeTopicBasedAudio QuestionType = "topic_based_audio"
	TypeLyricsTraining  QuestionType = "lyrics_training"

	// Writing
	TypeSentenceMaker QuestionType = "sentence_maker"
	TypeFastTest      QuestionType = "fast_test"
	TypeTales         QuestionType = "tales"

	// Speaking
	TypeSuperbrain    QuestionType = "superbrain"
	TypeTellMeAboutIt QuestionType = "tell_me_about_it"
	TypeDebate        QuestionType = "debate"

	// Sub-question types used inside composites
	TypeTrueFalse      QuestionType = "true_false"
	TypeMultipleChoice QuestionType = "multiple_choice"
)

// AllQuestionTypes returns every supported question type in a stable order
func AllQuestionTypes() []QuestionType {
	return []QuestionType{
		TypeImageToMultipleChoices, TypeWordbox, TypeSpelling, TypeWordAssociations,
		TypeUnscramble, TypeTenses, TypeTagIt, TypeReportIt, TypeReadIt,
		TypeWordMatch, TypeGossip, TypeTopicBasedAudio, TypeLyricsTraining,
		TypeSentenceMaker, TypeFastTest, TypeTales,
		TypeSuperbrain, TypeTellMeAboutIt, TypeDebate,
		TypeTrueFalse, TypeMultipleChoice,
	}
}

// ParseQuestionType validates a raw tag
func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedQuestionType, s)
	}
	return t, nil
}

// Valid reports whether t belongs to the closed set
func (t QuestionType) Valid() bool {
	return t.Family() != ""
}

func (t QuestionType) String() string {
	return string(t)
}

// Family is the comparison strategy a question type is graded with
type Family string

const (
	FamilyExact     Family = "exact"
	FamilySequence  Family = "sequence"
	FamilySet       Family = "set"
	FamilyComposite Family = "composite"
	FamilyJudge     Family = "judge"
)

// Family returns the grading family for the type, or "" for unknown tags
func (t QuestionType) Family() Family {
	switch t {
	case TypeImageToMultipleChoices, TypeTenses, TypeFastTest, TypeLyricsTraining,
		TypeWordMatch, TypeTrueFalse, TypeMultipleChoice:
		return FamilyExact
	case TypeUnscramble:
		return FamilySequence
	case TypeTagIt, TypeWordAssociations, TypeWordbox:
		return FamilySet
	case TypeReadIt, TypeTopicBasedAudio:
		return FamilyComposite
	case TypeSpelling, TypeReportIt, TypeSentenceMaker, TypeTales,
		TypeSuperbrain, TypeTellMeAboutIt, TypeDebate, TypeGossip:
		return FamilyJudge
	}
	return ""
}

// AnswerKind identifies the Answer variant a question type accepts
type AnswerKind string

const (
	KindText     AnswerKind = "text"
	KindSequence AnswerKind = "sequence"
	KindSet      AnswerKind = "set"
	KindSub      AnswerKind = "sub_answers"
)

// AnswerKind returns the answer variant expected for the type
func (t QuestionType) AnswerKind() AnswerKind {
	switch t.Family() {
	case FamilyExact, FamilyJudge:
		return KindText
	case FamilySequence:
		return KindSequence
	case FamilySet:
		return KindSet
	case FamilyComposite:
		return KindSub
	}
	return ""
}

// DefaultStage returns the stage a type belongs to when authoring omits it
func (t QuestionType) DefaultStage() Stage {
	switch t {
	case TypeImageToMultipleChoices, TypeWordbox, TypeSpelling, TypeWordAssociations:
		return StageVocabulary
	case TypeUnscramble, TypeTenses, TypeTagIt, TypeReportIt, TypeReadIt, TypeTrueFalse:
		return StageGrammar
	case TypeWordMatch, TypeGossip, TypeTopicBasedAudio, TypeLyricsTraining, TypeMultipleChoice:
		return StageListening
	case TypeSentenceMaker, TypeFastTest, TypeTales:
		return StageWriting
	case TypeSuperbrain, TypeTellMeAboutIt, TypeDebate:
		return StageSpeaking
	}
	return ""
}

// Stage is one of the five skill categories
type Stage string

const (
	StageVocabulary Stage = "vocabulary"
	StageGrammar    Stage = "grammar"
	StageListening  Stage = "listening"
	StageWriting    Stage = "writing"
	StageSpeaking   Stage = "speaking"
)

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	switch s {
	case StageVocabulary, StageGrammar, StageListening, StageWriting, StageSpeaking:
		return true
	}
	return false
}

// ValidationMethod selects deterministic or judge-assisted grading
type ValidationMethod string

const (
	ValidationAuto ValidationMethod = "AUTO"
	ValidationAI   ValidationMethod = "AI"
)

// Question is a gradable exercise. Composite questions own an ordered list of
// sub-questions one level deep; children keep a non-owning ParentID.
type Question struct {
	ID               string            `json:"id"`
	Type             QuestionType      `json:"type"`
	Stage            Stage             `json:"stage"`
	Points           int               `json:"points"`
	ValidationMethod ValidationMethod  `json:"validation_method"`
	Title            string            `json:"title,omitempty"`
	Instructions     string            `json:"instructions,omitempty"`
	Content          json.RawMessage   `json:"content,omitempty"`
	Options          []string          `json:"options,omitempty"`
	Answer           Answer            `json:"-"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	MaxAttempts      int               `json:"max_attempts"`
	ParentID         string            `json:"parent_id,omitempty"`
	Position         int               `json:"position"`
	SubQuestions     []*Question       `json:"sub_questions,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsComposite reports whether the question aggregates sub-questions
func (q *Question) IsComposite() bool {
	return len(q.SubQuestions) > 0
}

// Clone returns a deep copy of the question and its sub-questions
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	if q.Content != nil {
		c.Content = append(json.RawMessage(nil), q.Content...)
	}
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	if q.Configuration != nil {
		c.Configuration = make(map[string]string, len(q.Configuration))
		for k, v := range q.Configuration {
			c.Configuration[k] = v
		}
	}
	if q.SubQuestions != nil {
		c.SubQuestions = make([]*Question, len(q.SubQuestions))
		for i, sub := range q.SubQuestions {
			c.SubQuestions[i] = sub.Clone()
		}
	}
	return &c
}

// ChildIDs returns sub-question ids in order
func (q *Question) ChildIDs() []string {
	ids := make([]string, len(q.SubQuestions))
	for i, c := range q.SubQuestions {
		ids[i] = c.ID
	}
	return ids
}

// SumChildPoints returns the point total of all sub-questions
func (q *Question) SumChildPoints() int {
	total := 0
	for _, c := range q.SubQuestions {
		total += c.Points
	}
	return total
}

// Child finds a sub-question by id
func (q *Question) Child(id string) (*Question, bool) {
	for _, c := range q.SubQuestions {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// ConfigInt reads an integer setting, falling back to def
func (q *Question) ConfigInt(key string, def int) int {
	if q.Configuration == nil {
		return def
	}
	v, ok := q.Configuration[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// ReferenceText returns the reference answer rendered as plain text
func (q *Question) ReferenceText() string {
	switch a := q.Answer.(type) {
	case TextAnswer:
		return a.Value
	case SequenceAnswer:
		return strings.Join(a.Tokens, " ")
	case SetAnswer:
		return strings.Join(a.Items, ", ")
	}
	return ""
}

// Validate checks structural rules that authoring must respect
func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidQuestion)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedQuestionType, q.Type)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: points must be non-negative", ErrInvalidQuestion)
	}
	if q.Stage != "" && !q.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidQuestion, q.Stage)
	}
	switch q.ValidationMethod {
	case ValidationAuto, ValidationAI, "":
	default:
		return fmt.Errorf("%w: unknown validation method %q", ErrInvalidQuestion, q.ValidationMethod)
	}
	if q.Type.Family() == FamilyComposite && !q.IsComposite() {
		return fmt.Errorf("%w: %s requires sub-questions", ErrInvalidQuestion, q.Type)
	}
	for _, c := range q.SubQuestions {
		if c.IsComposite() || c.Type.Family() == FamilyComposite {
			return fmt.Errorf("%w: %s", ErrNestedComposite, c.ID)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("sub-question %s: %w", c.ID, err)
		}
	}
	return nil
}
