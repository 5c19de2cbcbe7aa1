package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RecalcHandler processes one recalculation job
type RecalcHandler func(ctx context.Context, job *RecalcJob) error

// Recalculator recomputes a composite total. *points.Service implements it.
type Recalculator interface {
	Recalculate(ctx context.Context, parentID string) (int, error)
}

// RecalculateWith adapts a Recalculator into a RecalcHandler
func RecalculateWith(r Recalculator) RecalcHandler {
	return func(ctx context.Context, job *RecalcJob) error {
		_, err := r.Recalculate(ctx, job.ParentID)
		return err
	}
}

// Consumer drains the recalculation queue with a pool of workers
type Consumer struct {
	conn       *Connection
	handler    RecalcHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // concurrent workers
	Prefetch int           // unacknowledged deliveries per channel
	Timeout  time.Duration // per-job deadline
	Logger   *slog.Logger
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 4,
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a recalculation consumer
func NewConsumer(conn *Connection, handler RecalcHandler, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		RecalcQueueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting recalculation consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles one delivery. Malformed jobs and jobs for unknown
// parents are dropped; other failures are requeued once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var job RecalcJob
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.ParentID == "" {
		c.logger.Error("dropping malformed recalculation job",
			"worker_id", workerID,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handler(jobCtx, &job)
	duration := time.Since(start)

	switch {
	case err == nil:
		c.logger.Info("recalculation job completed",
			"worker_id", workerID,
			"job_id", job.ID,
			"parent_id", job.ParentID,
			"duration", duration,
		)
		if err := msg.Ack(false); err != nil {
			c.logger.Error("failed to ack message", "job_id", job.ID, "error", err)
		}

	case errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrNestedComposite):
		c.logger.Warn("dropping recalculation job",
			"worker_id", workerID,
			"job_id", job.ID,
			"parent_id", job.ParentID,
			"error", err,
		)
		_ = msg.Reject(false)

	default:
		requeue := !msg.Redelivered
		c.logger.Error("recalculation job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"parent_id", job.ParentID,
			"requeue", requeue,
			"error", err,
			"duration", duration,
		)
		_ = msg.Nack(false, requeue)
	}
}

// Stop cancels the workers and waits for in-flight jobs
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("recalculation consumer stopped")
}

// EventMessage is a domain event read back from the event queue
type EventMessage struct {
	domain.BaseEvent
	Body json.RawMessage `json:"-"`
}

// EventHandler handles one event read from the queue
type EventHandler func(msg *EventMessage)

// EventConsumer reads published events and dispatches them by type
type EventConsumer struct {
	conn       *Connection
	handlers   map[string][]EventHandler
	any        []EventHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewEventConsumer creates an event consumer
func NewEventConsumer(conn *Connection) *EventConsumer {
	return &EventConsumer{
		conn:     conn,
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for one event type; "" matches every type
func (ec *EventConsumer) Subscribe(eventType string, handler EventHandler) {
	ec.handlersMu.Lock()
	defer ec.handlersMu.Unlock()
	if eventType == "" {
		ec.any = append(ec.any, handler)
		return
	}
	ec.handlers[eventType] = append(ec.handlers[eventType], handler)
}

// Start begins consuming events
func (ec *EventConsumer) Start(ctx context.Context) error {
	ctx, ec.cancelFunc = context.WithCancel(ctx)

	msgs, err := ec.conn.Channel().Consume(
		EventQueueName,
		"",
		true, // auto-ack, events are informational
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	ec.wg.Add(1)
	go ec.consume(ctx, msgs)
	return nil
}

func (ec *EventConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer ec.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ec.dispatch(msg.Body)
		}
	}
}

func (ec *EventConsumer) dispatch(body []byte) {
	var m EventMessage
	if err := json.Unmarshal(body, &m.BaseEvent); err != nil {
		slog.Error("failed to unmarshal event", "error", err)
		return
	}
	m.Body = body

	ec.handlersMu.RLock()
	hs := append(append([]EventHandler(nil), ec.handlers[m.Type]...), ec.any...)
	ec.handlersMu.RUnlock()

	for _, h := range hs {
		h(&m)
	}
}

// Stop stops the event consumer
func (ec *EventConsumer) Stop() {
	if ec.cancelFunc != nil {
		ec.cancelFunc()
	}
	ec.wg.Wait()
}
