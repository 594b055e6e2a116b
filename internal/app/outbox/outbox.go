package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one domain event waiting to be published.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

// NewRecord marshals a payload into an EventRecord. Aggregate is the partition
// key used when the record is eventually published.
func NewRecord(name, aggregate string, payload any, occurredAt time.Time) (EventRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventRecord{}, err
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return EventRecord{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    data,
		OccurredAt: occurredAt.UTC(),
		Aggregate:  aggregate,
	}, nil
}
