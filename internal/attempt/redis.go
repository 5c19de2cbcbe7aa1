package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript compares and increments in one round trip. It returns -1
// when the budget is spent.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if max > 0 and current >= max then
	return -1
end
local n = redis.call('INCR', KEYS[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return n
`)

// RedisTracker keeps counts in Redis so several daemons share one budget
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds connection settings for the Redis tracker
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // default: onenglish:attempts
	TTL      time.Duration // zero keeps counts forever
}

// NewRedisTracker connects to Redis and verifies the connection
func NewRedisTracker(ctx context.Context, cfg RedisConfig) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisTrackerWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisTrackerWithClient wraps an existing client
func NewRedisTrackerWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "onenglish:attempts"
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

// key length-prefixes the student id so ids containing ':' cannot collide.
func (t *RedisTracker) key(studentID, questionID string) string {
	return fmt.Sprintf("%s:%d:%s:%s", t.prefix, len(studentID), studentID, questionID)
}

func (t *RedisTracker) Reserve(ctx context.Context, studentID, questionID string, maxAttempts int) (int, error) {
	n, err := reserveScript.Run(ctx, t.client,
		[]string{t.key(studentID, questionID)},
		maxAttempts, t.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reserve attempt: %w", err)
	}
	if n < 0 {
		return 0, Exceeded(studentID, questionID, maxAttempts)
	}
	return n, nil
}

func (t *RedisTracker) Count(ctx context.Context, studentID, questionID string) (int, error) {
	n, err := t.client.Get(ctx, t.key(studentID, questionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

// Close closes the Redis client
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
