package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations backs the revocation set with Redis key TTLs, so the
// blacklist is shared across replicas and pruning is delegated to Redis
// expiry.
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocations wraps an existing client. A nil clock means
// time.Now.
func NewRedisRevocations(client *redis.Client, prefix string, now func() time.Time) *RedisRevocations {
	if prefix == "" {
		prefix = "revoked:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRevocations{client: client, prefix: prefix, now: now}
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, r.prefix+tokenID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
