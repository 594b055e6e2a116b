package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SessionWindow is the inactivity threshold after which a conversation is
// considered closed and a new inbound event starts a fresh one.
const SessionWindow = 24 * time.Hour

var (
	ErrIDRequired       = errors.New("conversation: id is required")
	ErrPageRequired     = errors.New("conversation: page id is required")
	ErrCustomerRequired = errors.New("conversation: customer id is required")
	ErrNotFound         = errors.New("conversation: not found")
	ErrTextRequired     = errors.New("conversation: message text is required")
	ErrSenderRequired   = errors.New("conversation: message sender is required")
	ErrDuplicateMessage = errors.New("conversation: duplicate message delivery")
)

type ID string

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Conversation groups the messages between one page and one external customer
// within a session window. It is never deleted; it closes by window elapse.
type Conversation struct {
	ID            ID
	PageID        string
	CustomerID    string
	CustomerName  string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// OpenAt reports whether the conversation still accepts events at the given
// instant, i.e. LastMessageAt >= at - SessionWindow.
func (c *Conversation) OpenAt(at time.Time) bool {
	return !c.LastMessageAt.Before(at.Add(-SessionWindow))
}

// Message is one inbound or outbound unit. Immutable once stored.
type Message struct {
	ID             string
	ConversationID ID
	SenderID       string
	Text           string
	Direction      Direction
	DedupeKey      string
	CreatedAt      time.Time
}

type CreateMessageParams struct {
	ID             string
	ConversationID ID
	SenderID       string
	Text           string
	Direction      Direction
	DedupeKey      string
	CreatedAt      time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(params.SenderID) == "" {
		return nil, ErrSenderRequired
	}
	if strings.TrimSpace(params.Text) == "" {
		return nil, ErrTextRequired
	}
	direction := params.Direction
	if direction != DirectionInbound && direction != DirectionOutbound {
		direction = DirectionInbound
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Text:           params.Text,
		Direction:      direction,
		DedupeKey:      params.DedupeKey,
		CreatedAt:      createdAt.UTC(),
	}, nil
}

// OpenOrCreateParams drives the atomic create-or-extend operation. ID and
// CustomerName are only used when a new conversation has to be inserted.
type OpenOrCreateParams struct {
	ID           ID
	PageID       string
	CustomerID   string
	CustomerName string
	At           time.Time
}

// Repository is the conversation half of the message store. OpenOrCreate must
// be atomic per (PageID, CustomerID): it either extends the most recent open
// conversation, advancing LastMessageAt with max-never-regress semantics, or
// inserts a new one with CreatedAt = LastMessageAt = At. Two concurrent calls
// for the same pair must not yield two open conversations.
type Repository interface {
	OpenOrCreate(ctx context.Context, params OpenOrCreateParams) (*Conversation, error)
	ByID(ctx context.Context, id ID) (*Conversation, error)
	// AdvanceLastMessageAt moves the activity marker forward, never backward.
	AdvanceLastMessageAt(ctx context.Context, id ID, at time.Time) error
	// ListByPages returns conversations for the given pages, newest activity first.
	ListByPages(ctx context.Context, pageIDs []string) ([]*Conversation, error)
}

// MessageRepository stores messages. InsertUnique returns ErrDuplicateMessage
// when a message with the same DedupeKey was already admitted.
type MessageRepository interface {
	InsertUnique(ctx context.Context, msg *Message) error
	// ListByConversation returns messages ascending by creation time.
	ListByConversation(ctx context.Context, id ID) ([]*Message, error)
	// LatestByConversation returns the newest message, or nil when none exist.
	LatestByConversation(ctx context.Context, id ID) (*Message, error)
}
