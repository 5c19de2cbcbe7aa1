package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/config"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/queue"
)

// cmdEvents follows events the daemon publishes to RabbitMQ. An optional
// argument filters by event type. "events recent" reads the daemon's
// event log instead.
func cmdEvents(args []string) error {
	if len(args) > 0 && args[0] == "recent" {
		return cmdEventsRecent(args[1:])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.URL == "" {
		return fmt.Errorf("queue.url is not set (or export RABBITMQ_URL)")
	}

	eventType := ""
	if len(args) > 0 {
		eventType = args[0]
	}

	conn, err := queue.NewConnection(cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewEventConsumer(conn)
	consumer.Subscribe(eventType, func(msg *queue.EventMessage) {
		printEvent(os.Stdout, msg)
	})
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer consumer.Stop()

	fmt.Fprintln(os.Stderr, "Following events (Ctrl+C to stop)...")
	<-ctx.Done()
	return nil
}

// cmdEventsRecent prints the latest logged events, oldest first
func cmdEventsRecent(args []string) error {
	if !isRunning() {
		return fmt.Errorf("daemon is not running (start with 'onenglish start')")
	}

	q := url.Values{"limit": {"20"}}
	if len(args) > 0 {
		q.Set("type", args[0])
	}
	var resp struct {
		Events []struct {
			Type       string          `json:"type"`
			QuestionID string          `json:"question_id"`
			Data       json.RawMessage `json:"data"`
			OccurredAt time.Time       `json:"occurred_at"`
		} `json:"events"`
	}
	if err := newClient(daemonAddr).get("/v1/events?"+q.Encode(), &resp); err != nil {
		return err
	}
	if len(resp.Events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	for i := len(resp.Events) - 1; i >= 0; i-- {
		e := resp.Events[i]
		msg := &queue.EventMessage{Body: e.Data}
		msg.Type = e.Type
		msg.QuestionID = e.QuestionID
		msg.Timestamp = e.OccurredAt
		printEvent(os.Stdout, msg)
	}
	return nil
}

func printEvent(w io.Writer, msg *queue.EventMessage) {
	ts := msg.Timestamp.Local().Format("15:04:05")
	switch msg.Type {
	case domain.EventAnswerScored:
		var e domain.AnswerScoredEvent
		if err := json.Unmarshal(msg.Body, &e); err == nil {
			mark := "✗"
			if e.IsCorrect {
				mark = "✓"
			}
			fmt.Fprintf(w, "%s %s %s %s %d/%d (attempt %d)\n",
				ts, mark, e.QuestionID, e.StudentID, e.PointsEarned, e.MaxPoints, e.AttemptNumber)
			return
		}
	case domain.EventPointsRecalculated:
		var e domain.PointsRecalculatedEvent
		if err := json.Unmarshal(msg.Body, &e); err == nil {
			fmt.Fprintf(w, "%s ↻ %s %d → %d points\n", ts, e.QuestionID, e.OldPoints, e.NewPoints)
			return
		}
	}
	fmt.Fprintf(w, "%s %s %s\n", ts, msg.Type, msg.QuestionID)
}
