package memory

import (
	"context"
	"sync"

	"cognito-live-service/internal/domain"
)

// SessionStore is the in-process implementation of app.SessionStore. Aggregates
// are deep-cloned on the way in and out so the optimistic version check is the
// only way concurrent writers can interact.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.LiveSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.LiveSession)}
}

func (s *SessionStore) Insert(_ context.Context, session *domain.LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Code]; ok {
		return domain.ErrAlreadyExists
	}
	session.Version = 1
	s.sessions[session.Code] = session.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, code string) (*domain.LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Save persists the aggregate if the stored version still matches, then bumps
// the version on both the stored copy and the caller's.
func (s *SessionStore) Save(_ context.Context, session *domain.LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.Code]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != session.Version {
		return domain.ErrVersionConflict
	}
	session.Version++
	s.sessions[session.Code] = session.Clone()
	return nil
}

func (s *SessionStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	return nil
}

func (s *SessionStore) Exists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[code]
	return ok, nil
}
