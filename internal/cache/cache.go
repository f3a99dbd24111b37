package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAbsent is returned for keys that were never written and for keys whose TTL elapsed.
	// The two cases are indistinguishable.
	ErrAbsent = errors.New("cache entry absent")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("cache backend unavailable")
)

const maxWatchRetries = 4

// Redis is the ephemeral keyed cache. Every key is namespaced under prefix.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a cache over client. An empty prefix defaults to "aa".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "aa"
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
	}
}

func (c *Redis) key(key string) string {
	return c.prefix + ":" + key
}

// Put overwrites any value under key and sets its expiry to ttl from now.
func (c *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if err := c.redis.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PutIfAbsent writes value only when key holds nothing. It reports whether the write happened.
func (c *Redis) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("cache ttl must be positive")
	}
	ok, err := c.redis.SetNX(ctx, c.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Get returns the live value under key or ErrAbsent.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteIfEqual removes key only while it still holds value, so a caller cannot remove an
// entry that a concurrent writer has since replaced.
func (c *Redis) DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	return c.CompareAndDelete(ctx, key, func(current []byte) bool {
		return bytes.Equal(current, value)
	})
}

// CompareAndDelete reads key and, when match returns true, deletes it in the same optimistic
// transaction. It returns ErrAbsent when the key holds no value, and (false, nil) when match
// rejected the value. Concurrent callers racing on one key see at most one successful delete.
func (c *Redis) CompareAndDelete(ctx context.Context, key string, match func([]byte) bool) (bool, error) {
	fullKey := c.key(key)

	for i := 0; i < maxWatchRetries; i++ {
		var deleted bool

		err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, fullKey).Bytes()
			if err != nil {
				return err
			}
			if !match(data) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, fullKey)
				return nil
			})
			if err != nil {
				return err
			}
			deleted = true
			return nil
		}, fullKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrAbsent
			}
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return deleted, nil
	}

	return false, fmt.Errorf("%w: too much contention on key", ErrUnavailable)
}
