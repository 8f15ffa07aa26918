package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimTTL bounds how long a run's claims outlive a crashed worker
const ClaimTTL = 6 * time.Hour

// RedisClaimSet is the claim set of one run shared by every process working on it
type RedisClaimSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClaimSet creates the claim set of a run
func NewRedisClaimSet(client *redis.Client, importID uuid.UUID) *RedisClaimSet {
	return &RedisClaimSet{
		client: client,
		prefix: fmt.Sprintf("catalog:import:%s:claims:", importID),
		ttl:    ClaimTTL,
	}
}

// Claim reserves every key or none. Keys taken before a conflict are given back.
func (s *RedisClaimSet) Claim(ctx context.Context, keys ...string) (string, error) {
	taken := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := s.client.SetNX(ctx, s.prefix+key, 1, s.ttl).Result()
		if err != nil {
			_ = s.Release(ctx, taken...)
			return "", fmt.Errorf("failed to claim %s: %w", key, err)
		}
		if !ok {
			if err := s.Release(ctx, taken...); err != nil {
				return "", err
			}
			return key, nil
		}
		taken = append(taken, key)
	}
	return "", nil
}

// Release gives keys back to the set
func (s *RedisClaimSet) Release(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.prefix + key
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to release claims: %w", err)
	}
	return nil
}
