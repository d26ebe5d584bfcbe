package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexorch/apex/apexerr"
)

// RedisBackend implements Backend over go-redis, grounded on FluxForge
// store/redis.go's direct *redis.Client usage. Tag membership is
// tracked with a Redis Set per tag (SADD on write, SMEMBERS+DEL sweep
// on DeleteByTag), avoiding a full key-space SCAN for invalidation.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBackend) tagSetKey(tag string) string {
	return b.keyPrefix + ":tag:" + tag
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.keyPrefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		b.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apexerr.Wrap(apexerr.Internal, "redis get failed", err)
	}
	b.hits.Add(1)
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.SetWithTags(ctx, key, value, ttl, nil)
}

func (b *RedisBackend) SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	fullKey := b.keyPrefix + ":" + key
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, fullKey, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, b.tagSetKey(tag), fullKey)
		if ttl > 0 {
			pipe.Expire(ctx, b.tagSetKey(tag), ttl+time.Hour) // outlive members so stale refs are still sweepable
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apexerr.Wrap(apexerr.Internal, "redis set failed", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.keyPrefix+":"+key).Err(); err != nil {
		return apexerr.Wrap(apexerr.Internal, "redis delete failed", err)
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.keyPrefix+":"+key).Result()
	if err != nil {
		return false, apexerr.Wrap(apexerr.Internal, "redis exists failed", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Stats(ctx context.Context) (BackendStats, error) {
	// DBSize counts the whole selected DB, not just this prefix, but is
	// the only O(1) cardinality signal go-redis exposes without a SCAN.
	n, err := b.client.DBSize(ctx).Result()
	if err != nil {
		return BackendStats{}, apexerr.Wrap(apexerr.Internal, "redis dbsize failed", err)
	}
	return BackendStats{Hits: b.hits.Load(), Misses: b.misses.Load(), Entries: int(n)}, nil
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.keyPrefix+":*", 500).Result()
		if err != nil {
			return apexerr.Wrap(apexerr.Internal, "redis scan failed", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return apexerr.Wrap(apexerr.Internal, "redis del failed", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (b *RedisBackend) DeleteByTag(ctx context.Context, tag string) error {
	setKey := b.tagSetKey(tag)
	members, err := b.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return apexerr.Wrap(apexerr.Internal, "redis smembers failed", err)
	}
	if len(members) > 0 {
		if err := b.client.Del(ctx, members...).Err(); err != nil {
			return apexerr.Wrap(apexerr.Internal, "redis del (tag sweep) failed", err)
		}
	}
	return b.client.Del(ctx, setKey).Err()
}
