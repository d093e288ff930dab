package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceMirror reflects per-user connection liveness into a ZSET
// per user, scored by last check-in time. Entries age out of the live
// window when their gateway stops refreshing them, so a crashed process
// cannot pin a user online.
type RedisPresenceMirror struct {
	rdb *redis.Client
}

func NewRedisPresenceMirror(rdb *redis.Client) *RedisPresenceMirror {
	return &RedisPresenceMirror{rdb: rdb}
}

func (p *RedisPresenceMirror) key(userID string) string {
	return "presence:" + userID
}

// CheckIn adds/updates the connection with the current timestamp and
// bounds the whole set's lifetime so idle users do not leak memory.
func (p *RedisPresenceMirror) CheckIn(
	ctx context.Context,
	userID, connID string,
	ttl time.Duration,
) error {
	key := p.key(userID)
	now := time.Now().Unix()
	if err := p.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: connID,
	}).Err(); err != nil {
		return err
	}
	return p.rdb.Expire(ctx, key, ttl*2).Err()
}

func (p *RedisPresenceMirror) CheckOut(ctx context.Context, userID, connID string) error {
	return p.rdb.ZRem(ctx, p.key(userID), connID).Err()
}

// LiveConnections returns connections that checked in within the last 30
// seconds, trimming stale members first.
func (p *RedisPresenceMirror) LiveConnections(ctx context.Context, userID string) ([]string, error) {
	key := p.key(userID)
	threshold := time.Now().Add(-30 * time.Second).Unix()
	p.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10))
	return p.rdb.ZRange(ctx, key, 0, -1).Result()
}
