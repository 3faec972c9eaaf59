package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cognito-live-service/internal/domain"
)

func waitingMatch(id, quizID, player1 string, expires time.Time) *domain.DuelMatch {
	return &domain.DuelMatch{
		MatchID:   id,
		QuizID:    quizID,
		Status:    domain.MatchWaiting,
		Player1:   &domain.DuelPlayer{UserID: player1, IsActive: true},
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	}
}

func TestMatchStoreFindWaiting(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore()
	future := time.Now().Add(time.Minute)

	_ = store.Insert(ctx, waitingMatch("M1", "quiz-1", "u1", future))
	_ = store.Insert(ctx, waitingMatch("M2", "quiz-2", "u2", future))

	// Own matches are excluded.
	if _, err := store.FindWaiting(ctx, "quiz-1", "u1"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected no self-match, got %v", err)
	}

	match, err := store.FindWaiting(ctx, "quiz-1", "u9")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if match.MatchID != "M1" {
		t.Fatalf("expected M1, got %s", match.MatchID)
	}

	// Expired and non-waiting matches are invisible.
	match.Status = domain.MatchReady
	if err := store.Save(ctx, match); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.FindWaiting(ctx, "quiz-1", "u9"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected nothing claimable, got %v", err)
	}

	_ = store.Insert(ctx, waitingMatch("M3", "quiz-1", "u3", time.Now().Add(-time.Second)))
	if _, err := store.FindWaiting(ctx, "quiz-1", "u9"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expired match must not be claimable, got %v", err)
	}
}

func TestMatchStoreVersionConflictOnClaim(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore()
	_ = store.Insert(ctx, waitingMatch("M1", "quiz-1", "u1", time.Now().Add(time.Minute)))

	a, _ := store.Get(ctx, "M1")
	b, _ := store.Get(ctx, "M1")

	a.Player2 = &domain.DuelPlayer{UserID: "u2", IsActive: true}
	a.Status = domain.MatchReady
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	b.Player2 = &domain.DuelPlayer{UserID: "u3", IsActive: true}
	b.Status = domain.MatchReady
	if err := store.Save(ctx, b); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("second claim must lose, got %v", err)
	}

	got, _ := store.Get(ctx, "M1")
	if got.Player2.UserID != "u2" {
		t.Fatalf("expected u2 kept the slot, got %s", got.Player2.UserID)
	}
}

func TestMatchStoreExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore()
	now := time.Now()

	_ = store.Insert(ctx, waitingMatch("OLD", "quiz-1", "u1", now.Add(-time.Minute)))
	_ = store.Insert(ctx, waitingMatch("NEW", "quiz-1", "u2", now.Add(time.Minute)))

	ids, err := store.Expired(ctx, now)
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != "OLD" {
		t.Fatalf("expected only OLD, got %v", ids)
	}

	if err := store.Delete(ctx, "OLD"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "OLD"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
}
