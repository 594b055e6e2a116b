package memory

import (
	"context"
	"sort"
	"sync"

	domainconv "helpdesk/internal/domain/conversation"
)

// MessageRepository stores messages in memory. Admission and the dedupe-key
// check happen under one lock, so a redelivered event can never slip in twice.
type MessageRepository struct {
	mu     sync.RWMutex
	byConv map[domainconv.ID][]*domainconv.Message
	seen   map[string]struct{}
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byConv: make(map[domainconv.ID][]*domainconv.Message),
		seen:   make(map[string]struct{}),
	}
}

func (r *MessageRepository) InsertUnique(ctx context.Context, msg *domainconv.Message) error {
	if msg == nil || msg.ID == "" {
		return domainconv.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.DedupeKey != "" {
		if _, ok := r.seen[msg.DedupeKey]; ok {
			return domainconv.ErrDuplicateMessage
		}
		r.seen[msg.DedupeKey] = struct{}{}
	}
	copied := *msg
	r.byConv[msg.ConversationID] = append(r.byConv[msg.ConversationID], &copied)
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id domainconv.ID) ([]*domainconv.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byConv[id]
	result := make([]*domainconv.Message, 0, len(stored))
	for _, msg := range stored {
		copied := *msg
		result = append(result, &copied)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MessageRepository) LatestByConversation(ctx context.Context, id domainconv.ID) (*domainconv.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domainconv.Message
	for _, msg := range r.byConv[id] {
		if latest == nil || msg.CreatedAt.After(latest.CreatedAt) {
			latest = msg
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

var _ domainconv.MessageRepository = (*MessageRepository)(nil)
