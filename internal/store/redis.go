// redis.go -- go-redis backed session store.
//
// Sessions are stored as JSON with a TTL matching session expiry, so Redis
// drops stale sessions on its own.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix namespaces session keys in a shared Redis.
const sessionKeyPrefix = "malauth:session:"

// NewRedisClient parses redisURL, connects, and pings to verify connectivity.
// Call once at startup; the returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisSessionStore keeps sessions in Redis.
type RedisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore wraps an existing client. The caller owns rdb and closes it.
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// SetSession stores sess under key, expiring after ttl.
func (s *RedisSessionStore) SetSession(ctx context.Context, key string, sess Session, ttl time.Duration) error {
	if ttl <= 0 {
		// SET with zero TTL means no expiry, not immediate expiry.
		return fmt.Errorf("caching session: non-positive ttl %v", ttl)
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by key. Returns ErrCacheMiss if absent or expired.
func (s *RedisSessionStore) GetSession(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session. Deleting a missing key is not an error.
func (s *RedisSessionStore) DeleteSession(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
