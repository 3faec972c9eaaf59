package memory

import (
	"context"
	"sync"
	"time"

	"cognito-live-service/internal/domain"
)

// MatchStore is the in-process implementation of app.MatchStore. Same
// versioning contract as SessionStore; the waiting-pool lookup is a scan over
// the (small) live match set.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*domain.DuelMatch
	now     func() time.Time
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*domain.DuelMatch),
		now:     time.Now,
	}
}

func (s *MatchStore) Insert(_ context.Context, match *domain.DuelMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.MatchID]; ok {
		return domain.ErrAlreadyExists
	}
	match.Version = 1
	s.matches[match.MatchID] = match.Clone()
	return nil
}

func (s *MatchStore) Get(_ context.Context, matchID string) (*domain.DuelMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[matchID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return match.Clone(), nil
}

func (s *MatchStore) Save(_ context.Context, match *domain.DuelMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.matches[match.MatchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	if current.Version != match.Version {
		return domain.ErrVersionConflict
	}
	match.Version++
	s.matches[match.MatchID] = match.Clone()
	return nil
}

func (s *MatchStore) Delete(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
	return nil
}

func (s *MatchStore) Exists(_ context.Context, matchID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.matches[matchID]
	return ok, nil
}

func (s *MatchStore) FindWaiting(_ context.Context, quizID, excludeUserID string) (*domain.DuelMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for _, m := range s.matches {
		if m.Status != domain.MatchWaiting || m.QuizID != quizID {
			continue
		}
		if m.Player1 == nil || m.Player1.UserID == excludeUserID {
			continue
		}
		if now.After(m.ExpiresAt) {
			continue
		}
		return m.Clone(), nil
	}
	return nil, domain.ErrMatchNotFound
}

func (s *MatchStore) Expired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, m := range s.matches {
		if now.After(m.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
