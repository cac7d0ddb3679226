package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "storefront:idem:"

// RedisStore keeps entries as JSON values. Expiry is left to Redis TTLs, so Entry.Expires is
// informational here.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps client. The cart's Redis client is shared when the cart backend is redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	ttl = ttlOrDefault(ttl)
	pending := pendingEntry(fingerprint, now, ttl)
	data, err := json.Marshal(pending)
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: encode entry: %w", err)
	}
	id := redisKeyPrefix + hashKey(key)

	// A held key can expire between SETNX and GET; one retry covers that.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, id, data, ttl).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if created {
			return Claim{Outcome: Proceed, Entry: pending}, nil
		}
		existing, err := getEntry(ctx, s.client, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Claim{}, err
		}
		return existing.claimExisting(fingerprint)
	}
	return Claim{Outcome: InFlight, Entry: pending}, nil
}

// Complete checks the held fingerprint and writes the finished entry under WATCH.
func (s *RedisStore) Complete(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("idempotency: encode entry: %w", err)
	}
	id := redisKeyPrefix + hashKey(key)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := getEntry(ctx, tx, id)
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case existing.Fingerprint != entry.Fingerprint:
			return ErrFingerprintMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, id, data, ttlOrDefault(ttl))
			return nil
		})
		return err
	}, id)
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return err
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+hashKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getEntry(ctx context.Context, c stringGetter, id string) (Entry, error) {
	data, err := c.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return e, nil
}
