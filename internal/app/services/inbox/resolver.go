package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	domainconv "helpdesk/internal/domain/conversation"
)

// Resolver decides whether an event continues an existing conversation or
// starts a new one. The decision itself lives in the store's atomic
// OpenOrCreate; the resolver only supplies the insert-side identity.
type Resolver struct {
	Conversations domainconv.Repository
}

func (r *Resolver) Resolve(ctx context.Context, pageID, customerID string, eventTime time.Time) (*domainconv.Conversation, error) {
	if r == nil || r.Conversations == nil {
		return nil, errors.New("inbox: conversation repository required")
	}
	return r.Conversations.OpenOrCreate(ctx, domainconv.OpenOrCreateParams{
		ID:           domainconv.ID(uuid.NewString()),
		PageID:       pageID,
		CustomerID:   customerID,
		CustomerName: customerID,
		At:           eventTime,
	})
}
