package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisValuePrefix = "kv:"
	redisIndexKey    = "kv:index"
)

// RedisKV implements KV on Redis. Values live under "kv:<key>" and every key
// is also a member of a sorted set scored 0, so range scans use the set's
// lexicographic ordering.
type RedisKV struct {
	rdb *Client
	ttl time.Duration // 0 keeps values forever
}

// NewRedisKV creates a Redis-backed KV. Values expire after ttl when it is
// positive; index members of expired values are dropped lazily on scan.
func NewRedisKV(rdb *Client, ttl time.Duration) *RedisKV {
	return &RedisKV{rdb: rdb, ttl: ttl}
}

func (s *RedisKV) Commit(ctx context.Context, entries ...Entry) error {
	_, err := s.rdb.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, redisValuePrefix+e.Key, e.Value, s.ttl)
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: 0, Member: e.Key})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rdb.Get(ctx, redisValuePrefix+key)
}

func (s *RedisKV) List(ctx context.Context, sel Selector, opts ListOptions) ([]Entry, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if sel.Prefix != "" {
		rng.Min = "[" + sel.Prefix
	}
	if upper := sel.upperBound(); upper != "" {
		rng.Max = "(" + upper
	}
	if opts.Limit > 0 {
		rng.Count = int64(opts.Limit)
	}

	var (
		keys []string
		err  error
	)
	if opts.Reverse {
		keys, err = s.rdb.Redis().ZRevRangeByLex(ctx, redisIndexKey, rng).Result()
	} else {
		keys, err = s.rdb.Redis().ZRangeByLex(ctx, redisIndexKey, rng).Result()
	}
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	valueKeys := make([]string, len(keys))
	for i, k := range keys {
		valueKeys[i] = redisValuePrefix + k
	}
	values, err := s.rdb.Redis().MGet(ctx, valueKeys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(keys))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		out = append(out, Entry{Key: keys[i], Value: []byte(str)})
	}

	if len(expired) > 0 {
		if err := s.rdb.Redis().ZRem(ctx, redisIndexKey, expired...).Err(); err != nil {
			log.Printf("[STORE] failed to drop %d expired index members: %v", len(expired), err)
		}
	}
	return out, nil
}

func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.rdb.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]any, len(keys))
		for i, k := range keys {
			pipe.Del(ctx, redisValuePrefix+k)
			members[i] = k
		}
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	return err
}

func (s *RedisKV) Ping(ctx context.Context) error {
	return s.rdb.Redis().Ping(ctx).Err()
}

func (s *RedisKV) Close() error {
	err := s.rdb.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
