package memory

import (
	"context"
	"sync"

	domainuser "helpdesk/internal/domain/user"
)

// UserRepository stores users in memory.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[domainuser.ID]*domainuser.User
	byEmail map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[domainuser.ID]*domainuser.User),
		byEmail: make(map[string]domainuser.ID),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domainuser.NormalizeEmail(email)]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	if user == nil || user.ID == "" {
		return domainuser.ErrIDRequired
	}
	emailKey := domainuser.NormalizeEmail(user.Email)
	if emailKey == "" {
		return domainuser.ErrEmailRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byEmail[emailKey]; ok && existingID != user.ID {
		return domainuser.ErrEmailAlreadyUsed
	}
	if existing, ok := r.byID[user.ID]; ok {
		oldKey := domainuser.NormalizeEmail(existing.Email)
		if oldKey != emailKey {
			delete(r.byEmail, oldKey)
		}
	}
	r.byID[user.ID] = cloneUser(user)
	r.byEmail[emailKey] = user.ID
	return nil
}

func cloneUser(user *domainuser.User) *domainuser.User {
	copied := *user
	return &copied
}

var _ domainuser.Repository = (*UserRepository)(nil)
