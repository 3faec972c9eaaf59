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

// MatchStore is the Redis implementation of app.MatchStore. Match aggregates
// use the same WATCH/MULTI compare-and-swap as sessions. Two auxiliary
// structures back the matchmaker:
//
//	duel:waiting:{quizID} — set of matchIDs open for pairing
//	duel:index            — set of all live matchIDs, for the expiry scan
//
// Both are advisory lookups; the version check on the match key is what makes
// the player2 claim atomic.
type MatchStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewMatchStore(client *redis.Client, ttl time.Duration) *MatchStore {
	return &MatchStore{client: client, ttl: ttl, now: time.Now}
}

func (s *MatchStore) Insert(ctx context.Context, match *domain.DuelMatch) error {
	match.Version = 1
	data, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("marshal match: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(match.MatchID), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.indexKey(), match.MatchID)
	if match.Status == domain.MatchWaiting {
		pipe.SAdd(ctx, s.poolKey(match.QuizID), match.MatchID)
		pipe.Expire(ctx, s.poolKey(match.QuizID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *MatchStore) Get(ctx context.Context, matchID string) (*domain.DuelMatch, error) {
	raw, err := s.client.Get(ctx, s.key(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	var match domain.DuelMatch
	if err := json.Unmarshal(raw, &match); err != nil {
		return nil, fmt.Errorf("unmarshal match %s: %w", matchID, err)
	}
	return &match, nil
}

func (s *MatchStore) Save(ctx context.Context, match *domain.DuelMatch) error {
	key := s.key(match.MatchID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		var current domain.DuelMatch
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("unmarshal match %s: %w", match.MatchID, err)
		}
		if current.Version != match.Version {
			return domain.ErrVersionConflict
		}

		next := match.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal match: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if next.Status != domain.MatchWaiting {
				pipe.SRem(ctx, s.poolKey(next.QuizID), next.MatchID)
			}
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
	match.Version++
	return nil
}

func (s *MatchStore) Delete(ctx context.Context, matchID string) error {
	match, err := s.Get(ctx, matchID)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(matchID))
	pipe.SRem(ctx, s.indexKey(), matchID)
	if err == nil {
		pipe.SRem(ctx, s.poolKey(match.QuizID), matchID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *MatchStore) Exists(ctx context.Context, matchID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(matchID)).Result()
	return n > 0, err
}

// FindWaiting returns a claimable waiting match from the pool for the quiz,
// cleaning out entries that have expired or moved on.
func (s *MatchStore) FindWaiting(ctx context.Context, quizID, excludeUserID string) (*domain.DuelMatch, error) {
	ids, err := s.client.SMembers(ctx, s.poolKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, id := range ids {
		match, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrMatchNotFound) {
			_ = s.client.SRem(ctx, s.poolKey(quizID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if match.Status != domain.MatchWaiting || now.After(match.ExpiresAt) {
			_ = s.client.SRem(ctx, s.poolKey(quizID), id).Err()
			continue
		}
		if match.Player1 == nil || match.Player1.UserID == excludeUserID {
			continue
		}
		return match, nil
	}
	return nil, domain.ErrMatchNotFound
}

// Expired lists ids of matches past their expiry. Index entries whose keys
// were garbage-collected by the key TTL are pruned as a side effect.
func (s *MatchStore) Expired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	var expired []string
	for _, id := range ids {
		match, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrMatchNotFound) {
			_ = s.client.SRem(ctx, s.indexKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if now.After(match.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (s *MatchStore) key(matchID string) string {
	return "duel:match:" + matchID
}

func (s *MatchStore) poolKey(quizID string) string {
	return "duel:waiting:" + quizID
}

func (s *MatchStore) indexKey() string {
	return "duel:index"
}
