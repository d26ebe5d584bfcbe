package broker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexorch/apex/apexerr"
)

// RedisBroker implements MessageBroker over a go-redis client, mirroring
// FluxForge store/redis.go's direct *redis.Client usage (no intervening
// abstraction layer for single-command calls).
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.RPush(ctx, queue, payload).Err(); err != nil {
		return apexerr.Wrap(apexerr.BrokerUnavailable, "redis rpush failed", err).WithContext("queue", queue)
	}
	return nil
}

func (b *RedisBroker) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := b.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apexerr.New(apexerr.Timeout, "blocking pop timed out").WithContext("queue", queue)
	}
	if err != nil {
		return nil, apexerr.Wrap(apexerr.BrokerUnavailable, "redis blpop failed", err).WithContext("queue", queue)
	}
	// BLPop returns [queue_name, value]; index 1 is the payload.
	if len(res) < 2 {
		return nil, apexerr.New(apexerr.Internal, "unexpected blpop reply shape")
	}
	return []byte(res[1]), nil
}
