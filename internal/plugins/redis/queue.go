package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroadcastQueue carries post-commit broadcast jobs on one stream per
// channel (XADD / XREADGROUP). Streams are capped so channels nobody is
// listening to do not grow without bound.
type RedisBroadcastQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBroadcastQueue(rdb *redis.Client, log *slog.Logger) *RedisBroadcastQueue {
	return &RedisBroadcastQueue{rdb: rdb, log: log}
}

func (q *RedisBroadcastQueue) streamKey(channel string) string {
	return "stream:" + channel
}

func (q *RedisBroadcastQueue) Publish(ctx context.Context, channel string, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey(channel),
		MaxLen: 1000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

func (q *RedisBroadcastQueue) Subscribe(
	ctx context.Context,
	channel string,
	group string,
	handler func(ctx context.Context, entryID string, data []byte) error,
) error {
	topic := q.streamKey(channel)
	err := q.rdb.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	consumerName := uuid.NewString()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    group,
					Consumer: consumerName,
					Streams:  []string{topic, ">"},
					Count:    16,
					Block:    2 * time.Second,
				}).Result()
				if err != nil {
					if err != redis.Nil && ctx.Err() == nil {
						q.log.Error("queue - subscribe - stream read error", "stream", topic, "err", err)
					}
					continue
				}
				for _, stream := range res {
					for _, msg := range stream.Messages {
						raw, ok := msg.Values["data"].(string)
						if !ok {
							continue
						}
						if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
							q.log.Error("queue - subscribe - handler error", "stream", topic, "entry_id", msg.ID, "err", err)
						}
					}
				}
			}
		}
	}()
	return nil
}

func (q *RedisBroadcastQueue) Ack(ctx context.Context, channel, group, entryID string) error {
	return q.rdb.XAck(ctx, q.streamKey(channel), group, entryID).Err()
}

func (q *RedisBroadcastQueue) DeleteEntry(ctx context.Context, channel, entryID string) error {
	return q.rdb.XDel(ctx, q.streamKey(channel), entryID).Err()
}

func (q *RedisBroadcastQueue) DeleteStream(ctx context.Context, channel string) error {
	return q.rdb.Del(ctx, q.streamKey(channel)).Err()
}
