package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares per-key generations across processes and survives restarts.
// With a TTL, idle generation keys expire; readers then observe gen=0 and
// entries stamped with an older generation self-heal on read.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisConfig struct {
	Client      redis.UniversalClient
	Namespace   string        // should match kvcache Options.Namespace
	TTL         time.Duration // 0 disables expiry
	CloseClient bool          // set true only if the store exclusively owns the client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("genstore: nil redis client")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("genstore: namespace is required")
	}
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse %s: %w", storageKey, err)
	}
	return u, nil
}

// Bump increments the generation. With a TTL, INCR and EXPIRE go out in one
// pipelined round-trip.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.key(storageKey)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
