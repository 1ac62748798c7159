package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

func setupLease(t *testing.T) (*RedisLease, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLease(rdb, logger.Nop()), mr
}

func TestRedisLeaseExclusive(t *testing.T) {
	l, mr := setupLease(t)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("ratebench:lease:worker"))

	_, ok, err = l.Acquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("ratebench:lease:worker"))

	_, ok, err = l.Acquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseExpires(t *testing.T) {
	l, mr := setupLease(t)
	ctx := context.Background()

	staleRelease, ok, err := l.Acquire(ctx, "worker", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = l.Acquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder must not free the new holder's lease.
	staleRelease()
	assert.True(t, mr.Exists("ratebench:lease:worker"))
}

func TestLocalAlwaysGrants(t *testing.T) {
	release, ok, err := Local{}.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
