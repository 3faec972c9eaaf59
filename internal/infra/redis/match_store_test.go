package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"cognito-live-service/internal/domain"
)

func testWaitingMatch(id, quizID, player1 string, expires time.Time) *domain.DuelMatch {
	return &domain.DuelMatch{
		MatchID:   id,
		QuizID:    quizID,
		Status:    domain.MatchWaiting,
		Player1:   &domain.DuelPlayer{UserID: player1, Username: player1, IsActive: true},
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	}
}

func TestMatchStoreMaintainsWaitingPool(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewMatchStore(newClient(mr), time.Minute)
	future := time.Now().Add(time.Minute)

	if err := store.Insert(ctx, testWaitingMatch("M1", "quiz-1", "u1", future)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !mr.Exists("duel:match:M1") || !mr.Exists("duel:waiting:quiz-1") || !mr.Exists("duel:index") {
		t.Fatalf("expected match, pool and index keys")
	}

	// Own matches are excluded from pairing.
	if _, err := store.FindWaiting(ctx, "quiz-1", "u1"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected no self-match, got %v", err)
	}
	match, err := store.FindWaiting(ctx, "quiz-1", "u2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if match.MatchID != "M1" {
		t.Fatalf("expected M1, got %s", match.MatchID)
	}

	// Leaving the waiting state drops the pool entry.
	match.Player2 = &domain.DuelPlayer{UserID: "u2", IsActive: true}
	match.Status = domain.MatchReady
	if err := store.Save(ctx, match); err != nil {
		t.Fatalf("save: %v", err)
	}
	members, _ := mr.SMembers("duel:waiting:quiz-1")
	if len(members) != 0 {
		t.Fatalf("expected empty pool after claim, got %v", members)
	}
	if _, err := store.FindWaiting(ctx, "quiz-1", "u3"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("claimed match must not be claimable, got %v", err)
	}
}

func TestMatchStoreSaveIsCompareAndSwap(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewMatchStore(newClient(mr), time.Minute)

	if err := store.Insert(ctx, testWaitingMatch("M1", "quiz-1", "u1", time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("insert: %v", err)
	}

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
	if got.Player2 == nil || got.Player2.UserID != "u2" {
		t.Fatalf("expected u2 kept the slot, got %+v", got.Player2)
	}
}

func TestMatchStoreExpiredScan(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewMatchStore(newClient(mr), time.Minute)
	now := time.Now()

	_ = store.Insert(ctx, testWaitingMatch("OLD", "quiz-1", "u1", now.Add(-time.Minute)))
	_ = store.Insert(ctx, testWaitingMatch("NEW", "quiz-1", "u2", now.Add(time.Minute)))

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
	members, _ := mr.SMembers("duel:index")
	if len(members) != 1 || members[0] != "NEW" {
		t.Fatalf("expected index pruned to NEW, got %v", members)
	}
}
