package app

import (
	"context"
	"time"

	"cognito-live-service/internal/domain"
)

// SessionStore persists LiveSession aggregates with optimistic versioning.
// Get returns an isolated copy; Save succeeds only if the stored version still
// equals the aggregate's Version, then bumps it (ErrVersionConflict otherwise).
type SessionStore interface {
	Insert(ctx context.Context, session *domain.LiveSession) error
	Get(ctx context.Context, code string) (*domain.LiveSession, error)
	Save(ctx context.Context, session *domain.LiveSession) error
	Delete(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
}

// MatchStore persists DuelMatch aggregates, same versioning contract as
// SessionStore, plus the matchmaking waiting-pool lookup and expiry scan.
type MatchStore interface {
	Insert(ctx context.Context, match *domain.DuelMatch) error
	Get(ctx context.Context, matchID string) (*domain.DuelMatch, error)
	Save(ctx context.Context, match *domain.DuelMatch) error
	Delete(ctx context.Context, matchID string) error
	Exists(ctx context.Context, matchID string) (bool, error)
	// FindWaiting returns a waiting, unexpired match for the quiz whose
	// player1 is not excludeUserID, or ErrMatchNotFound.
	FindWaiting(ctx context.Context, quizID, excludeUserID string) (*domain.DuelMatch, error)
	// Expired lists ids of unfinished matches whose ExpiresAt precedes now.
	Expired(ctx context.Context, now time.Time) ([]string, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultStore durably records per-participant outcomes. Upsert is keyed by
// (UserID, QuizID, RefID) so repeated finalization never duplicates history.
type ResultStore interface {
	Upsert(ctx context.Context, result domain.QuizResult) error
}

// Broadcaster routes events to live connections. It is advisory fan-out only:
// implementations must never be consulted for correctness, and every method is
// fire-and-forget. channel is a session code or match id.
type Broadcaster interface {
	Broadcast(channel, event string, payload any)
	SendToUser(channel, userID, event string, payload any)
	SendToHost(channel, event string, payload any)
	// Release drops all routing state for a finished channel.
	Release(channel string)
}
