package memory

import (
	"context"
	"errors"
	"testing"

	"cognito-live-service/internal/domain"
)

func TestSessionStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := &domain.LiveSession{Code: "ABC234", QuizID: "quiz-1", Status: domain.SessionWaiting}
	if err := store.Insert(ctx, session); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if session.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", session.Version)
	}
	if err := store.Insert(ctx, session); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	a, err := store.Get(ctx, "ABC234")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := store.Get(ctx, "ABC234")

	a.Status = domain.SessionActive
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("expected bumped version, got %d", a.Version)
	}

	// The stale read cannot overwrite the newer state.
	b.Status = domain.SessionCancelled
	if err := store.Save(ctx, b); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, _ := store.Get(ctx, "ABC234")
	if got.Status != domain.SessionActive {
		t.Fatalf("expected active survived, got %s", got.Status)
	}
}

func TestSessionStoreIsolatesAggregates(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := &domain.LiveSession{
		Code:         "DEF567",
		Participants: []domain.Participant{{UserID: "u1", Username: "Alice", IsActive: true}},
	}
	if err := store.Insert(ctx, session); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Mutating a returned copy leaves the stored state untouched.
	got, _ := store.Get(ctx, "DEF567")
	got.Participants[0].Score = 999

	fresh, _ := store.Get(ctx, "DEF567")
	if fresh.Participants[0].Score != 0 {
		t.Fatalf("stored aggregate was shared with caller")
	}
}

func TestSessionStoreDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, err := store.Get(ctx, "NOPE"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = store.Insert(ctx, &domain.LiveSession{Code: "GHI892"})
	ok, _ := store.Exists(ctx, "GHI892")
	if !ok {
		t.Fatalf("expected session present")
	}
	if err := store.Delete(ctx, "GHI892"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = store.Exists(ctx, "GHI892")
	if ok {
		t.Fatalf("expected session removed")
	}
}
