// Package redis keeps typing presence in Redis. Each conversation gets a
// sorted set of user ids scored by the time they last signalled; reads only
// look at the recent window, so a flag abandoned by a crashed client goes
// stale on its own instead of showing as typing forever.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis provides typing presence in Redis.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

const typingPrefix = "typing"

// DefaultTypingTTL is how long a typing signal counts as current. The UI
// refreshes the flag every couple of seconds while composing, so anything
// older than this came from a client that stopped or vanished.
const DefaultTypingTTL = 10 * time.Second

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. A non-positive ttl falls back to DefaultTypingTTL.
func Connect(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Redis{
		cli: cli,
		ttl: ttl,
	}, nil
}

func typingKey(conversationID string) string {
	return fmt.Sprintf("%s:%s", typingPrefix, conversationID)
}

// SetTyping upserts the user's flag for the conversation. A true flag scores
// the member with the current time; false removes it. The key expires a
// while after the last signal so idle conversations leave nothing behind.
func (r *Redis) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := typingKey(conversationID)

	if !isTyping {
		if err := r.cli.ZRem(ctx, key, userID).Err(); err != nil {
			return fmt.Errorf("zrem: %w", err)
		}
		return nil
	}

	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: userID,
		})
		pipe.Expire(ctx, key, 2*r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// TypingUserIDs returns the users whose typing signal is newer than the
// staleness cutoff, pruning everything older as a side effect.
func (r *Redis) TypingUserIDs(ctx context.Context, conversationID string) ([]string, error) {
	key := typingKey(conversationID)
	cutoff := time.Now().Add(-r.ttl).UnixNano()

	if err := r.cli.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return nil, fmt.Errorf("zremrangebyscore: %w", err)
	}

	vals, err := r.cli.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}
	return vals, nil
}
