package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session records in Redis.
const DefaultRedisPrefix = "authcore:sessions"

// RedisRepository stores each Record as a binary blob under <prefix>:<userID>.
// Records expire after TTL without writes; zero disables expiry.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisRepository returns a repository over client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) key(userID string) string {
	return r.prefix + ":" + userID
}

func (r *RedisRepository) Find(ctx context.Context, userID string) (*Record, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode session record %q: %w", userID, err)
	}
	return rec, nil
}

// Mutate applies fn under WATCH on the record key and commits the result in a
// MULTI/EXEC block. A concurrent write to the key aborts the transaction and
// the read-modify-write is retried.
func (r *RedisRepository) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	key := r.key(userID)

	// abort holds errors that must not be retried or rewrapped.
	var abort error
	txf := func(tx *redis.Tx) error {
		var current *Record
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		default:
			if current, err = Decode(data); err != nil {
				abort = fmt.Errorf("decode session record %q: %w", userID, err)
				return abort
			}
		}

		next, err := fn(current)
		if err != nil {
			abort = err
			return err
		}
		if next == nil {
			return nil
		}
		next.UserID = userID
		encoded, err := Encode(next)
		if err != nil {
			abort = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		abort = nil
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case abort != nil:
			return abort
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrBackendUnavailable):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %s", ErrConflict, userID)
}
