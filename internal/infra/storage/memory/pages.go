package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainpage "helpdesk/internal/domain/page"
)

// PageRegistry stores page registrations in memory, keyed by page id.
type PageRegistry struct {
	mu     sync.RWMutex
	byPage map[string]*domainpage.Registration
}

func NewPageRegistry() *PageRegistry {
	return &PageRegistry{byPage: make(map[string]*domainpage.Registration)}
}

func (r *PageRegistry) Lookup(ctx context.Context, pageID string) (*domainpage.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.byPage[strings.TrimSpace(pageID)]; ok {
		return cloneRegistration(reg), nil
	}
	return nil, domainpage.ErrNotFound
}

func (r *PageRegistry) ByOwner(ctx context.Context, ownerUserID string) ([]*domainpage.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domainpage.Registration
	for _, reg := range r.byPage {
		if reg.OwnerUserID == ownerUserID {
			result = append(result, cloneRegistration(reg))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result, nil
}

func (r *PageRegistry) Save(ctx context.Context, reg *domainpage.Registration) error {
	if reg == nil || strings.TrimSpace(reg.PageID) == "" {
		return domainpage.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPage[reg.PageID] = cloneRegistration(reg)
	return nil
}

func (r *PageRegistry) Delete(ctx context.Context, pageID, ownerUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byPage[pageID]
	if !ok || reg.OwnerUserID != ownerUserID {
		return domainpage.ErrNotFound
	}
	delete(r.byPage, pageID)
	return nil
}

func cloneRegistration(reg *domainpage.Registration) *domainpage.Registration {
	copied := *reg
	return &copied
}

var _ domainpage.Registry = (*PageRegistry)(nil)
