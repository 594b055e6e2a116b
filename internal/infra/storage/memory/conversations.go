package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainconv "helpdesk/internal/domain/conversation"
)

// ConversationRepository stores conversations in memory. The repository mutex
// serializes OpenOrCreate, which makes the lookup-then-create sequence atomic
// per (pageId, customerId) pair.
type ConversationRepository struct {
	mu   sync.RWMutex
	byID map[domainconv.ID]*domainconv.Conversation
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{byID: make(map[domainconv.ID]*domainconv.Conversation)}
}

func (r *ConversationRepository) OpenOrCreate(ctx context.Context, params domainconv.OpenOrCreateParams) (*domainconv.Conversation, error) {
	pageID := strings.TrimSpace(params.PageID)
	if pageID == "" {
		return nil, domainconv.ErrPageRequired
	}
	customerID := strings.TrimSpace(params.CustomerID)
	if customerID == "" {
		return nil, domainconv.ErrCustomerRequired
	}
	at := params.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if current := r.latestOpenLocked(pageID, customerID, at); current != nil {
		if at.After(current.LastMessageAt) {
			current.LastMessageAt = at
		}
		return cloneConversation(current), nil
	}

	id := params.ID
	if strings.TrimSpace(string(id)) == "" {
		return nil, domainconv.ErrIDRequired
	}
	name := strings.TrimSpace(params.CustomerName)
	if name == "" {
		name = customerID
	}
	created := &domainconv.Conversation{
		ID:            id,
		PageID:        pageID,
		CustomerID:    customerID,
		CustomerName:  name,
		CreatedAt:     at,
		LastMessageAt: at,
	}
	r.byID[id] = created
	return cloneConversation(created), nil
}

// latestOpenLocked finds the most recent conversation for the pair whose
// LastMessageAt is still within the session window of the event instant.
func (r *ConversationRepository) latestOpenLocked(pageID, customerID string, at time.Time) *domainconv.Conversation {
	cutoff := at.Add(-domainconv.SessionWindow)
	var best *domainconv.Conversation
	for _, conv := range r.byID {
		if conv.PageID != pageID || conv.CustomerID != customerID {
			continue
		}
		if conv.LastMessageAt.Before(cutoff) {
			continue
		}
		if best == nil || conv.LastMessageAt.After(best.LastMessageAt) {
			best = conv
		}
	}
	return best
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainconv.ID) (*domainconv.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conv, ok := r.byID[id]; ok {
		return cloneConversation(conv), nil
	}
	return nil, domainconv.ErrNotFound
}

func (r *ConversationRepository) AdvanceLastMessageAt(ctx context.Context, id domainconv.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainconv.ErrNotFound
	}
	at = at.UTC()
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at
	}
	return nil
}

func (r *ConversationRepository) ListByPages(ctx context.Context, pageIDs []string) ([]*domainconv.Conversation, error) {
	wanted := make(map[string]struct{}, len(pageIDs))
	for _, id := range pageIDs {
		wanted[id] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domainconv.Conversation
	for _, conv := range r.byID {
		if _, ok := wanted[conv.PageID]; !ok {
			continue
		}
		result = append(result, cloneConversation(conv))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result, nil
}

func cloneConversation(conv *domainconv.Conversation) *domainconv.Conversation {
	copied := *conv
	return &copied
}

var _ domainconv.Repository = (*ConversationRepository)(nil)
