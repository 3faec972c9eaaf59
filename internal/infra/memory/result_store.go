package memory

import (
	"context"
	"sync"

	"cognito-live-service/internal/domain"
)

type resultKey struct {
	userID string
	quizID string
	refID  string
}

// ResultStore is an in-memory app.ResultStore. Upserts replace in place under
// the (user, quiz, ref) key, which is what makes finalization idempotent.
type ResultStore struct {
	mu      sync.RWMutex
	records map[resultKey]domain.QuizResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[resultKey]domain.QuizResult)}
}

func (s *ResultStore) Upsert(_ context.Context, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[resultKey{result.UserID, result.QuizID, result.RefID}] = result
	return nil
}

// Records returns a snapshot of everything stored, for tests and inspection.
func (s *ResultStore) Records() []domain.QuizResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizResult, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}
