package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

// incrementScript bumps the counter and sets the expiry only when the key has
// none, in one atomic step. Later increments within the window never extend
// it.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("TTL", KEYS[1]) < 0 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// CounterConfig defines configuration for the fixed-window counter limiter.
type CounterConfig struct {
	KeyPrefix         string
	Window            time.Duration
	IssueMaxAttempts  int
	VerifyMaxAttempts int
}

// RateLimitRepository persists per-IP abuse counters in Redis.
type RateLimitRepository struct {
	client *redis.Client
	cfg    CounterConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg CounterConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordEvent atomically increments the counter for the IP and purpose,
// starting a fresh expiry window only when the counter did not exist.
func (r *RateLimitRepository) RecordEvent(ctx context.Context, ip string, purpose port.RateLimitPurpose) error {
	if ip == "" {
		return errors.New("ip is required")
	}

	window := r.cfg.Window
	if window <= 0 {
		window = time.Hour
	}

	if err := incrementScript.Run(ctx, r.client, []string{r.key(ip, purpose)}, int64(window.Seconds())).Err(); err != nil {
		return fmt.Errorf("redis increment rate counter: %w", err)
	}

	return nil
}

// IsBlocked reports whether the counter for the IP and purpose has reached
// the configured maximum. A missing counter is never blocked.
func (r *RateLimitRepository) IsBlocked(ctx context.Context, ip string, purpose port.RateLimitPurpose) (bool, error) {
	if ip == "" {
		return false, nil
	}

	raw, err := r.client.Get(ctx, r.key(ip, purpose)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis read rate counter: %w", err)
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("parse rate counter: %w", err)
	}

	return count >= r.max(purpose), nil
}

func (r *RateLimitRepository) max(purpose port.RateLimitPurpose) int {
	switch purpose {
	case port.PurposeIssue:
		if r.cfg.IssueMaxAttempts > 0 {
			return r.cfg.IssueMaxAttempts
		}
		return 5
	default:
		if r.cfg.VerifyMaxAttempts > 0 {
			return r.cfg.VerifyMaxAttempts
		}
		return 10
	}
}

func (r *RateLimitRepository) key(ip string, purpose port.RateLimitPurpose) string {
	if r.cfg.KeyPrefix == "" {
		return fmt.Sprintf("%s-%s", purpose, ip)
	}
	return fmt.Sprintf("%s:%s-%s", r.cfg.KeyPrefix, purpose, ip)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
