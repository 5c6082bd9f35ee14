package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
)

const defaultRedisChannel = "courier:state"

// redisBackend stores the state document as a string key and the dedup map as a hash. Every
// state write is announced on a pub/sub channel so other processes' watchers follow along.
type redisBackend struct {
	rdb     *redis.Client
	channel string
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redisBackend, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return newRedisBackend(rdb, cfg.Channel), nil
}

func newRedisBackend(rdb *redis.Client, channel string) *redisBackend {
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &redisBackend{rdb: rdb, channel: channel}
}

// NewRedis wraps a connected client. An empty channel uses the default.
func NewRedis(rdb *redis.Client, channel string, logger *zap.Logger) *Store {
	return newStore(newRedisBackend(rdb, channel), logger)
}

func (r *redisBackend) name() string { return "redis" }

func (r *redisBackend) loadState(ctx context.Context) ([]byte, error) {
	doc, err := r.rdb.Get(ctx, stateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return doc, err
}

func (r *redisBackend) saveState(ctx context.Context, doc []byte) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, stateKey, doc, 0)
		pipe.Publish(ctx, r.channel, stateKey)
		return nil
	})
	return err
}

func (r *redisBackend) hasKey(ctx context.Context, key string) (bool, error) {
	return r.rdb.HExists(ctx, sentMapKey, key).Result()
}

func (r *redisBackend) putKeys(ctx context.Context, entries map[string]int64, overwrite bool) error {
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, at := range entries {
			if overwrite {
				pipe.HSet(ctx, sentMapKey, k, at)
			} else {
				pipe.HSetNX(ctx, sentMapKey, k, at)
			}
		}
		return nil
	})
	return err
}

func (r *redisBackend) sentMap(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, sentMapKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		at, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", k, err)
		}
		out[k] = at
	}
	return out, nil
}

func (r *redisBackend) clearKeys(ctx context.Context) error {
	return r.rdb.Del(ctx, sentMapKey).Err()
}

func (r *redisBackend) changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	// Wait for the subscription to be confirmed so no publish after Watch returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		close(ch)
		return ch
	}
	msgs := pubsub.Channel()

	go func() {
		defer close(ch)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}

func (r *redisBackend) close() error {
	return r.rdb.Close()
}
