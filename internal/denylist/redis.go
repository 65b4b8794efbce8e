package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per revoked id, expiring with the token.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "denylist"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(jti string) string {
	return s.prefix + ":" + jti
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyJTI
	}
	n, err := s.rdb.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Revoke(ctx context.Context, jti, tokenType string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired; the token can never verify again.
		return nil
	}
	if err := s.rdb.Set(ctx, s.key(jti), tokenType, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
