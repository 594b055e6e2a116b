package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "helpdesk/internal/app/outbox"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

// PendingEvent is a claimed outbox entry with its delivery bookkeeping.
type PendingEvent struct {
	appoutbox.EventRecord
	Attempts int
}

// Queue is the claim side of the outbox store.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*PendingEvent, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker polls the outbox and publishes claimed events as CloudEvents JSON.
type Worker struct {
	Queue       Queue
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) error {
	event, err := w.Queue.Claim(ctx, w.workerID())
	if err != nil || event == nil {
		return err
	}
	payload, err := w.formatPayload(event)
	if err != nil {
		w.logFailure(event, err)
		_ = w.Queue.MarkFailed(ctx, event.ID, w.nextRetry(event.Attempts), err.Error())
		return nil
	}
	topic := w.topicFor(event.Name)
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	if err := w.Producer.Publish(ctx, topic, event.Aggregate, payload, headers); err != nil {
		w.logFailure(event, err)
		_ = w.Queue.MarkFailed(ctx, event.ID, w.nextRetry(event.Attempts), err.Error())
		return nil
	}
	return w.Queue.MarkSent(ctx, event.ID)
}

func (w *Worker) formatPayload(event *PendingEvent) ([]byte, error) {
	data := map[string]any{}
	if err := json.Unmarshal(event.Payload, &data); err != nil {
		return nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            event.Name + ".v1",
		"source":          w.source(),
		"time":            event.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	return json.Marshal(evt)
}

func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic := base + ".events.v1"
	if w.TopicPrefix != "" {
		topic = w.TopicPrefix + topic
	}
	return topic
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://helpdesk"
}

func (w *Worker) logFailure(event *PendingEvent, err error) {
	if w.Logger == nil {
		return
	}
	w.Logger.Warn("outbox publish failed", "event_id", event.ID, "event", event.Name, "error", err)
}
