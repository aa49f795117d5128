package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fredpottier/factgov/internal/platform/logger"
)

// unlockScript releases a lease only when the caller still holds it.
var unlockScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// KeyLock is a Redis-leased lock scoped to a conflict key, used to
// serialize Propose calls on the same key across service replicas.
type KeyLock struct {
	log      *logger.Logger
	rdb      *goredis.Client
	leaseTTL time.Duration
	prefix   string
}

func NewKeyLock(addr string, log *logger.Logger) (*KeyLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &KeyLock{
		log:      log.With("client", "RedisKeyLock"),
		rdb:      rdb,
		leaseTTL: 15 * time.Second,
		prefix:   "factgov:keylock:",
	}, nil
}

func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("redis key lock not initialized")
	}
	redisKey := l.prefix + key
	token := uuid.New().String()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire key lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("key lock release failed (lease will expire)", "key", key, "error", err)
		}
	}
	return unlock, nil
}

func (l *KeyLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
