package app

import (
	"context"
	"errors"
	"time"

	"cognito-live-service/internal/domain"
)

const (
	maxUpdateAttempts   = 5
	initialRetryBackoff = 10 * time.Millisecond
)

// aggregateStore is the slice of SessionStore/MatchStore the retry loop needs.
type aggregateStore[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Save(ctx context.Context, aggregate T) error
}

// updateWithRetry runs the optimistic-concurrency discipline shared by both
// state machines: read the latest aggregate, mutate in memory, save
// conditioned on the version being unchanged, and on conflict re-read and
// retry with exponential backoff. Exhausting the attempts surfaces
// ErrConcurrentUpdate to the caller; a dropped answer or join would corrupt
// scores, so conflicts are reported, never swallowed.
//
// mutate may return errSkipSave to abort without persisting (the aggregate
// read is still returned), which keeps read-validate-bail paths on the same
// code path as real mutations.
func updateWithRetry[T any](ctx context.Context, store aggregateStore[T], key string, mutate func(T) error) (T, error) {
	var zero T
	backoff := initialRetryBackoff
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		agg, err := store.Get(ctx, key)
		if err != nil {
			return zero, err
		}
		if err := mutate(agg); err != nil {
			if errors.Is(err, errSkipSave) {
				return agg, nil
			}
			return zero, err
		}
		err = store.Save(ctx, agg)
		if err == nil {
			return agg, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return zero, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		backoff *= 2
	}
	return zero, domain.ErrConcurrentUpdate
}

// errSkipSave aborts an update without persisting. Internal to the retry loop.
var errSkipSave = errors.New("skip save")
