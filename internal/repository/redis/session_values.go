package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

// SessionValues implements port.RequestValues over a Redis hash keyed by the
// browser session id. Writes refresh the session TTL; an unavailable or
// expired session simply reports not found.
type SessionValues struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSessionValues binds request values to the session identified by sid.
func NewSessionValues(client *redis.Client, prefix, sid string, ttl time.Duration) *SessionValues {
	key := sid
	if prefix != "" {
		key = fmt.Sprintf("%s:%s", prefix, sid)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionValues{client: client, key: key, ttl: ttl}
}

// Get reads the named value from the session hash.
func (s *SessionValues) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis read session value: %w", err)
	}
	return []byte(raw), true, nil
}

// Set writes the named value and slides the session expiry.
func (s *SessionValues) Set(ctx context.Context, key string, value []byte) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, key, value)
	pipe.Expire(ctx, s.key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write session value: %w", err)
	}
	return nil
}

// Delete removes the named value from the session hash.
func (s *SessionValues) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("redis delete session value: %w", err)
	}
	return nil
}

var _ port.RequestValues = (*SessionValues)(nil)
