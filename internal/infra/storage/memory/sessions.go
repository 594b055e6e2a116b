package memory

import (
	"context"
	"sync"
	"time"

	domainauth "helpdesk/internal/domain/auth"
	domainuser "helpdesk/internal/domain/user"
)

// SessionStore keeps issued bearer sessions in memory. Expired entries are
// dropped lazily on read.
type SessionStore struct {
	mu      sync.RWMutex
	byToken map[domainauth.Token]*domainauth.Session
	Now     func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{byToken: make(map[domainauth.Token]*domainauth.Session)}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil || session.Token == "" {
		return domainauth.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.byToken[session.Token] = &copied
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byToken[token]
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.byToken, token)
		return nil, domainauth.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, session := range s.byToken {
		if session.UserID == userID {
			delete(s.byToken, token)
		}
	}
	return nil
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var _ domainauth.SessionStore = (*SessionStore)(nil)
