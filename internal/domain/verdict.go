package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Feedback is a bilingual (English/Spanish) message for the student
type Feedback struct {
	EN string `json:"en,omitempty"`
	ES string `json:"es,omitempty"`
}

// IsEmpty reports whether no message is present in either language
func (f Feedback) IsEmpty() bool {
	return strings.TrimSpace(f.EN) == "" && strings.TrimSpace(f.ES) == ""
}

// Verdict is the ephemeral result of a validator before it becomes points
type Verdict struct {
	IsCorrect bool           `json:"is_correct"`
	Fraction  float64        `json:"fraction"`
	Feedback  Feedback       `json:"feedback"`
	Details   map[string]any `json:"details,omitempty"`

	// JudgeFailure marks verdicts recovered from a judge error
	JudgeFailure bool `json:"judge_failure,omitempty"`
}

// Correct returns a full-credit verdict
func Correct() Verdict {
	return Verdict{
		IsCorrect: true,
		Fraction:  1,
		Feedback: Feedback{
			EN: "Correct!",
			ES: "¡Correcto!",
		},
	}
}

// Incorrect returns a zero-credit verdict
func Incorrect() Verdict {
	return Verdict{
		Fraction: 0,
		Feedback: Feedback{
			EN: "Incorrect answer.",
			ES: "Respuesta incorrecta.",
		},
	}
}

// Binary returns Correct or Incorrect
func Binary(ok bool) Verdict {
	if ok {
		return Correct()
	}
	return Incorrect()
}

// Partial returns a verdict with partial credit; it is correct only at 1
func Partial(fraction float64) Verdict {
	if fraction >= 1 {
		return Correct()
	}
	v := Incorrect()
	if fraction > 0 {
		v.Fraction = fraction
		v.Feedback = Feedback{
			EN: "Partially correct.",
			ES: "Parcialmente correcto.",
		}
	}
	return v
}

// SoftFailure returns the verdict used when the judge could not grade
func SoftFailure(reason string) Verdict {
	return Verdict{
		Fraction: 0,
		Feedback: Feedback{
			EN: "We could not evaluate your answer automatically. Please try again later.",
			ES: "No pudimos evaluar tu respuesta automáticamente. Inténtalo de nuevo más tarde.",
		},
		Details:      map[string]any{"judge_error": reason},
		JudgeFailure: true,
	}
}

// WithDetail sets a diagnostic key and returns the verdict
func (v Verdict) WithDetail(key string, value any) Verdict {
	if v.Details == nil {
		v.Details = make(map[string]any)
	}
	v.Details[key] = value
	return v
}

// Media is an uploaded file attached to an answer
type Media struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// IsAudio reports whether the payload is audio
func (m Media) IsAudio() bool {
	return strings.HasPrefix(m.MIMEType, "audio/")
}

// IsImage reports whether the payload is an image
func (m Media) IsImage() bool {
	return strings.HasPrefix(m.MIMEType, "image/")
}

// SubmittedAnswer is one attempt by a student. It is never mutated after
// creation; a re-submission creates a new record.
type SubmittedAnswer struct {
	ID            uuid.UUID       `json:"id"`
	QuestionID    string          `json:"question_id"`
	StudentID     string          `json:"student_id"`
	UserAnswer    json.RawMessage `json:"user_answer"`
	AttemptNumber int             `json:"attempt_number"`
	ElapsedMs     int64           `json:"elapsed_ms"`
	MediaCount    int             `json:"media_count"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// ScoredAnswer is the persisted, immutable grading result of a submission
type ScoredAnswer struct {
	ID            uuid.UUID       `json:"id"`
	Submission    SubmittedAnswer `json:"submission"`
	QuestionID    string          `json:"question_id"`
	StudentID     string          `json:"student_id"`
	IsCorrect     bool            `json:"is_correct"`
	PointsEarned  int             `json:"points_earned"`
	MaxPoints     int             `json:"max_points"`
	AttemptNumber int             `json:"attempt_number"`
	Feedback      Feedback        `json:"feedback"`
	Details       map[string]any  `json:"details,omitempty"`
	JudgeFailure  bool            `json:"judge_failure,omitempty"`
	ScoredAt      time.Time       `json:"scored_at"`
}
