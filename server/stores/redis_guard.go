package stores

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"github.com/redis/go-redis/v9"
)

const (
	defaultGuardPrefix = "ghsync:sync:"
	defaultGuardTTL    = time.Minute
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisRunGuard admits one run per user across every process sharing the
// redis instance. A held lock is extended until released, so a crashed
// holder frees it after the TTL.
type RedisRunGuard struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisRunGuard(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisRunGuard {
	if prefix == "" {
		prefix = defaultGuardPrefix
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRunGuard{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (g *RedisRunGuard) key(userID model.UserId) string {
	return g.prefix + userID.String()
}

func (g *RedisRunGuard) Acquire(ctx context.Context, userID model.UserId) (func(), error) {
	key := g.key(userID)
	value := uuid.New().String()
	ok, err := g.rdb.SetNX(ctx, key, value, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, server.ErrSyncInProgress
	}
	g.logger.Debug("acquired run lock", "key", key)

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.extend(key, value, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, g.rdb, []string{key}, value).Int64()
			if err != nil {
				g.logger.Warn("failed to release run lock", "key", key, "error", err)
				return
			}
			if n == 0 {
				g.logger.Warn("run lock was no longer held", "key", key)
			}
		})
	}, nil
}

func (g *RedisRunGuard) extend(key, value string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), g.ttl/3)
			n, err := extendScript.Run(ctx, g.rdb, []string{key}, value, g.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				g.logger.Warn("failed to extend run lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				g.logger.Warn("run lock lost", "key", key)
				return
			}
		}
	}
}

func (g *RedisRunGuard) Running(ctx context.Context, userID model.UserId) (bool, error) {
	err := g.rdb.Get(ctx, g.key(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ server.RunGuard = (*RedisRunGuard)(nil)
