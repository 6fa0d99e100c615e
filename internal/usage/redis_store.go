package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	recordKeyPrefix = "usage:"
	streamKey       = "usage:stream"

	// Retention window for a usage accumulator, refreshed on every merge.
	DefaultTTL = 24 * time.Hour

	// Optimistic transaction retries before giving up on a contended key.
	maxMergeRetries = 8

	// Upper bound on the live-tail backlog; with no consumer connected
	// the oldest entries are dropped rather than growing the list
	// forever. Delivery is at-most-once anyway.
	streamMaxLen = 1000
)

// RedisStore implements Store on a TTL-capable Redis cache. All calls
// run through a circuit breaker so a dead backend fails fast instead of
// piling up connections.
type RedisStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	settings := gobreaker.Settings{
		Name:        "usage-redis",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &RedisStore{
		rdb:     rdb,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	var record *Record
	err := s.guard(func() error {
		var r Record
		err := s.rdb.Get(ctx, recordKeyPrefix+key).Scan(&r)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		record = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *RedisStore) MergeUpsert(ctx context.Context, event *Event) (*Record, error) {
	cacheKey := recordKeyPrefix + event.Key()

	var merged *Record
	txf := func(tx *redis.Tx) error {
		var existing *Record
		var r Record
		err := tx.Get(ctx, cacheKey).Scan(&r)
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			existing = &r
		}

		merged = mergeRecord(existing, event)

		// The write only lands if no other ingest touched the key
		// between the Get above and here.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, merged, s.ttl)
			return nil
		})
		return err
	}

	err := s.guard(func() error {
		for i := 0; i < maxMergeRetries; i++ {
			err := s.rdb.Watch(ctx, txf, cacheKey)
			if err == nil {
				return nil
			}
			if errors.Is(err, redis.TxFailedErr) {
				continue
			}
			return err
		}
		return fmt.Errorf("merge contention exhausted %d retries", maxMergeRetries)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]*Record, error) {
	var records []*Record
	err := s.guard(func() error {
		iter := s.rdb.Scan(ctx, 0, recordKeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			if key == streamKey {
				continue
			}
			var r Record
			err := s.rdb.Get(ctx, key).Scan(&r)
			if errors.Is(err, redis.Nil) {
				// Expired between scan and read.
				continue
			}
			if err != nil {
				return err
			}
			records = append(records, &r)
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *RedisStore) Publish(ctx context.Context, record *Record) error {
	return s.guard(func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, streamKey, record)
			pipe.LTrim(ctx, streamKey, 0, streamMaxLen-1)
			return nil
		})
		return err
	})
}

func (s *RedisStore) Consume(ctx context.Context) (*Record, error) {
	// BRPOP in short slices so cancellation releases the wait promptly
	// and without side effects. Consume failures are not routed through
	// the breaker: a long wait is indistinguishable from a slow backend.
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.rdb.BRPop(ctx, 2*time.Second, streamKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		var r Record
		if err := r.UnmarshalBinary([]byte(res[1])); err != nil {
			return nil, fmt.Errorf("%w: decoding queued record: %v", ErrStoreUnavailable, err)
		}
		return &r, nil
	}
}

// guard runs op through the circuit breaker and normalizes any failure,
// breaker-open included, into ErrStoreUnavailable.
func (s *RedisStore) guard(op func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// mergeRecord folds an event into an existing record: counters add,
// identifying fields take the incoming values. A nil existing record
// yields the event as-is.
func mergeRecord(existing *Record, e *Event) *Record {
	merged := &Record{
		SubscriptionID:   e.SubscriptionID,
		DeploymentID:     e.DeploymentID,
		Model:            e.Model,
		ObjectType:       e.ObjectType,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		ImageTokens:      e.ImageTokens,
	}
	if existing != nil {
		merged.PromptTokens += existing.PromptTokens
		merged.CompletionTokens += existing.CompletionTokens
		merged.TotalTokens += existing.TotalTokens
		merged.ImageTokens += existing.ImageTokens
	}
	return merged
}
