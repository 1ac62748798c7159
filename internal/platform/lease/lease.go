package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// Lease is a best-effort, TTL-bounded mutual exclusion across processes.
type Lease interface {
	// Acquire returns ok=false without error when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLease struct {
	rdb    goredis.UniversalClient
	prefix string
	log    *logger.Logger
}

func NewRedisLease(rdb goredis.UniversalClient, log *logger.Logger) *RedisLease {
	return &RedisLease{
		rdb:    rdb,
		prefix: "ratebench:lease:",
		log:    log.With("service", "RedisLease"),
	}
}

// Dial connects to addr and verifies it with a ping.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Release with a fresh context so a canceled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{fullKey}, token).Err(); err != nil && err != goredis.Nil {
			l.log.Warn("lease release failed", "key", key, "error", err)
		}
	}
	return release, true, nil
}

// Local always grants the lease; used when no Redis is configured.
type Local struct{}

func (Local) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
