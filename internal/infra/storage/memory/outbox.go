package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "helpdesk/internal/app/outbox"
	infraoutbox "helpdesk/internal/infra/outbox"
)

type outboxState string

const (
	outboxNew     outboxState = "NEW"
	outboxClaimed outboxState = "CLAIMED"
	outboxSent    outboxState = "SENT"
	outboxFailed  outboxState = "FAILED"
)

type outboxEntry struct {
	record      appoutbox.EventRecord
	state       outboxState
	attempts    int
	nextAttempt time.Time
	lastError   string
}

// OutboxQueue is the in-memory outbox. It serves both the Add side used by
// the services and the Claim side polled by the worker.
type OutboxQueue struct {
	mu      sync.Mutex
	entries []*outboxEntry
}

func NewOutboxQueue() *OutboxQueue {
	return &OutboxQueue{}
}

func (q *OutboxQueue) Add(ctx context.Context, record appoutbox.EventRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &outboxEntry{
		record:      record,
		state:       outboxNew,
		nextAttempt: time.Now().UTC(),
	})
	return nil
}

func (q *OutboxQueue) Claim(ctx context.Context, workerID string) (*infraoutbox.PendingEvent, error) {
	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.state != outboxNew && entry.state != outboxFailed {
			continue
		}
		if entry.nextAttempt.After(now) {
			continue
		}
		entry.state = outboxClaimed
		return &infraoutbox.PendingEvent{EventRecord: entry.record, Attempts: entry.attempts}, nil
	}
	return nil, nil
}

func (q *OutboxQueue) MarkSent(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry := q.findLocked(id); entry != nil {
		entry.state = outboxSent
	}
	return nil
}

func (q *OutboxQueue) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry := q.findLocked(id); entry != nil {
		entry.state = outboxFailed
		entry.attempts++
		entry.nextAttempt = next
		entry.lastError = errMsg
	}
	return nil
}

func (q *OutboxQueue) findLocked(id string) *outboxEntry {
	for _, entry := range q.entries {
		if entry.record.ID == id {
			return entry
		}
	}
	return nil
}

var (
	_ appoutbox.Outbox  = (*OutboxQueue)(nil)
	_ infraoutbox.Queue = (*OutboxQueue)(nil)
)
