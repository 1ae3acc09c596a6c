package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AttemptLimiter throttles pickup code submissions per order. Every submission reserves an
// attempt before the code is compared, so concurrent guesses cannot overrun the budget.
type AttemptLimiter interface {
	// Reserve counts one attempt and reports whether it fits in the order's budget.
	Reserve(ctx context.Context, orderID uuid.UUID) (bool, error)
	// Release hands back a reservation whose attempt did not end in a wrong code.
	Release(ctx context.Context, orderID uuid.UUID) error
	// Reset clears the counter after a successful completion.
	Reset(ctx context.Context, orderID uuid.UUID) error
}

type noopAttemptLimiter struct{}

func (noopAttemptLimiter) Reserve(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (noopAttemptLimiter) Release(context.Context, uuid.UUID) error         { return nil }
func (noopAttemptLimiter) Reset(context.Context, uuid.UUID) error           { return nil }

// NoopAttemptLimiter never blocks.
func NoopAttemptLimiter() AttemptLimiter {
	return noopAttemptLimiter{}
}

// KEYS[1] counter, ARGV[1] window ms, ARGV[2] max attempts. Returns {allowed, count}.
var reserveAttemptScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[2]) then
  return {0, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {1, current}
`)

var releaseAttemptScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisAttemptLimiter keeps a fixed-window counter per order in Redis. Redis errors fail
// open: the code check itself still gates completion.
type RedisAttemptLimiter struct {
	client      redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

func NewRedisAttemptLimiter(client redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *RedisAttemptLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "settlement:pickup_attempts"
	}
	return &RedisAttemptLimiter{
		client:      client,
		prefix:      trimmedPrefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (r *RedisAttemptLimiter) key(orderID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", r.prefix, orderID)
}

func (r *RedisAttemptLimiter) enabled() bool {
	return r != nil && r.client != nil && r.maxAttempts > 0 && r.window > 0
}

func (r *RedisAttemptLimiter) Reserve(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if !r.enabled() {
		return true, nil
	}
	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	raw, err := reserveAttemptScript.Run(ctx, r.client, []string{r.key(orderID)}, windowMs, r.maxAttempts).Result()
	if err != nil {
		zap.L().Warn("pickup attempt reserve failed", zap.Error(err), zap.String("order_id", orderID.String()))
		return true, nil
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return true, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	allowed, _ := values[0].(int64)
	if allowed == 0 {
		count, _ := values[1].(int64)
		zap.L().Warn("pickup code attempts exhausted", zap.String("order_id", orderID.String()), zap.Int64("attempts", count))
		return false, nil
	}
	return true, nil
}

func (r *RedisAttemptLimiter) Release(ctx context.Context, orderID uuid.UUID) error {
	if !r.enabled() {
		return nil
	}
	if err := releaseAttemptScript.Run(ctx, r.client, []string{r.key(orderID)}).Err(); err != nil {
		zap.L().Warn("pickup attempt release failed", zap.Error(err), zap.String("order_id", orderID.String()))
	}
	return nil
}

func (r *RedisAttemptLimiter) Reset(ctx context.Context, orderID uuid.UUID) error {
	if !r.enabled() {
		return nil
	}
	if err := r.client.Del(ctx, r.key(orderID)).Err(); err != nil {
		zap.L().Warn("pickup attempt reset failed", zap.Error(err), zap.String("order_id", orderID.String()))
	}
	return nil
}
