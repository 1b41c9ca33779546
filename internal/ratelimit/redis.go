package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "famchat:rl:msg:"

// Redis is a fixed-window limiter shared by every famchat instance using the
// same Redis. It fails open when Redis is unreachable.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	log    *zerolog.Logger
}

// NewRedis creates a limiter backed by client.
func NewRedis(client *redis.Client, limit int, size time.Duration, logger *zerolog.Logger) *Redis {
	if size <= 0 {
		size = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Redis{client: client, limit: limit, window: size, log: logger}
}

// Allow increments the counter for key, starting the window on first use.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	if r.limit <= 0 {
		return true
	}
	k := redisKeyPrefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		r.log.Warn().Err(err).Str("key", k).Msg("ratelimit incr failed, allowing")
		return true
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", k).Msg("ratelimit expire failed, allowing")
			// A key without TTL would block the user forever.
			r.client.Del(ctx, k)
			return true
		}
	}
	return int(count) <= r.limit
}

// Remaining returns how many sends key has left in the current window.
func (r *Redis) Remaining(ctx context.Context, key string) int {
	if r.limit <= 0 {
		return 0
	}
	count, err := r.client.Get(ctx, redisKeyPrefix+key).Int()
	if err == redis.Nil {
		return r.limit
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("ratelimit get failed")
		return r.limit
	}
	return max(r.limit-count, 0)
}
