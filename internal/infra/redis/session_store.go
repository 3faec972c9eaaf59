package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cognito-live-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is the Redis implementation of app.SessionStore. Aggregates are
// stored as JSON under one key per session; the optimistic version check is a
// WATCH/MULTI compare-and-swap on that key, so concurrent writers race on the
// transaction and the loser gets ErrVersionConflict.
//
// The key TTL is sliding garbage collection only; lifecycle expiry is the
// state machine's business.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Insert(ctx context.Context, session *domain.LiveSession) error {
	session.Version = 1
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(session.Code), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, code string) (*domain.LiveSession, error) {
	raw, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session domain.LiveSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", code, err)
	}
	return &session, nil
}

func (s *SessionStore) Save(ctx context.Context, session *domain.LiveSession) error {
	key := s.key(session.Code)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var current domain.LiveSession
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("unmarshal session %s: %w", session.Code, err)
		}
		if current.Version != session.Version {
			return domain.ErrVersionConflict
		}

		next := session.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		return err
	}
	session.Version++
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, code string) error {
	return s.client.Del(ctx, s.key(code)).Err()
}

func (s *SessionStore) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(code)).Result()
	return n > 0, err
}

func (s *SessionStore) key(code string) string {
	return "live:session:" + code
}
