package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/google/uuid"
)

// Publisher sends a JSON body to a named queue. *Connection implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes recalculation jobs and domain events
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub, logger: slog.Default()}
}

// SetLogger replaces the producer's logger
func (p *Producer) SetLogger(l *slog.Logger) {
	p.logger = l
}

// PublishRecalcJob enqueues a recalculation of parentID
func (p *Producer) PublishRecalcJob(ctx context.Context, job *RecalcJob) error {
	if job.ParentID == "" {
		return fmt.Errorf("publish recalculation job: %w: empty parent id", domain.ErrInvalidQuestion)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, RecalcQueueName, job); err != nil {
		return fmt.Errorf("failed to publish recalculation job: %w", err)
	}

	p.logger.Info("published recalculation job",
		"job_id", job.ID,
		"parent_id", job.ParentID,
		"reason", job.Reason,
	)
	return nil
}

// PublishEvent sends a domain event to the event queue
func (p *Producer) PublishEvent(ctx context.Context, event domain.Event) error {
	if err := p.pub.PublishJSON(ctx, EventQueueName, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType(), err)
	}
	p.logger.Debug("published event",
		"event_id", event.EventID(),
		"type", event.EventType(),
		"question_id", event.AggregateID(),
	)
	return nil
}

// bridgedEvents are the event types forwarded to the event queue
var bridgedEvents = []string{domain.EventAnswerScored, domain.EventPointsRecalculated}

// Bridge forwards scored-answer and recalculation events from an in-process
// dispatcher to the event queue. Publish failures are logged and never reach
// the grader.
func (p *Producer) Bridge(d *domain.EventDispatcher, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	forward := func(event domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.PublishEvent(ctx, event); err != nil {
			p.logger.Warn("event not forwarded",
				"event_id", event.EventID(),
				"question_id", event.AggregateID(),
				"error", err,
			)
		}
	}
	for _, t := range bridgedEvents {
		d.Subscribe(t, forward)
	}
}
