package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event type names
const (
	EventAnswerScored       = "answer.scored"
	EventAttemptRejected    = "attempt.rejected"
	EventPointsRecalculated = "question.points_recalculated"
)

// Event is something that happened in the grading engine
type Event interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the id of the question the event concerns
	AggregateID() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	QuestionID string    `json:"question_id"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType, questionID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		QuestionID: questionID,
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.QuestionID }

// AnswerScoredEvent is published after a scored answer is persisted
type AnswerScoredEvent struct {
	BaseEvent
	ScoredAnswerID uuid.UUID    `json:"scored_answer_id"`
	StudentID      string       `json:"student_id"`
	QuestionType   QuestionType `json:"question_type"`
	IsCorrect      bool         `json:"is_correct"`
	PointsEarned   int          `json:"points_earned"`
	MaxPoints      int          `json:"max_points"`
	AttemptNumber  int          `json:"attempt_number"`
	JudgeFailure   bool         `json:"judge_failure,omitempty"`
}

// NewAnswerScoredEvent creates the event for a scored answer
func NewAnswerScoredEvent(q *Question, s *ScoredAnswer) AnswerScoredEvent {
	return AnswerScoredEvent{
		BaseEvent:      NewBaseEvent(EventAnswerScored, s.QuestionID),
		ScoredAnswerID: s.ID,
		StudentID:      s.StudentID,
		QuestionType:   q.Type,
		IsCorrect:      s.IsCorrect,
		PointsEarned:   s.PointsEarned,
		MaxPoints:      s.MaxPoints,
		AttemptNumber:  s.AttemptNumber,
		JudgeFailure:   s.JudgeFailure,
	}
}

// AttemptRejectedEvent is published when a submission exceeds the budget
type AttemptRejectedEvent struct {
	BaseEvent
	StudentID   string `json:"student_id"`
	MaxAttempts int    `json:"max_attempts"`
}

// NewAttemptRejectedEvent creates the event for a rejected submission
func NewAttemptRejectedEvent(questionID, studentID string, maxAttempts int) AttemptRejectedEvent {
	return AttemptRejectedEvent{
		BaseEvent:   NewBaseEvent(EventAttemptRejected, questionID),
		StudentID:   studentID,
		MaxAttempts: maxAttempts,
	}
}

// PointsRecalculatedEvent is published when a composite total changes
type PointsRecalculatedEvent struct {
	BaseEvent
	OldPoints int `json:"old_points"`
	NewPoints int `json:"new_points"`
}

// NewPointsRecalculatedEvent creates the event for a recalculated parent
func NewPointsRecalculatedEvent(parentID string, oldPoints, newPoints int) PointsRecalculatedEvent {
	return PointsRecalculatedEvent{
		BaseEvent: NewBaseEvent(EventPointsRecalculated, parentID),
		OldPoints: oldPoints,
		NewPoints: newPoints,
	}
}

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher fans events out to in-process subscribers
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers. A nil dispatcher
// drops the event.
func (d *EventDispatcher) Publish(event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.handlers[event.EventType()] {
		h(event)
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}
