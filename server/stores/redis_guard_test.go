package stores

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("GHSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis tests: GHSYNC_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisRunGuard(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	guard := NewRedisRunGuard(rdb, "ghsync-test:"+uuid.NewString()+":", 300*time.Millisecond, nil)
	user := model.UserId("42")

	release, err := guard.Acquire(ctx, user)
	require.NoError(t, err)

	running, err := guard.Running(ctx, user)
	require.NoError(t, err)
	assert.True(t, running)

	_, err = guard.Acquire(ctx, user)
	assert.ErrorIs(t, err, server.ErrSyncInProgress)

	// The lock outlives its TTL while held.
	time.Sleep(600 * time.Millisecond)
	running, err = guard.Running(ctx, user)
	require.NoError(t, err)
	assert.True(t, running)

	release()
	release()
	running, err = guard.Running(ctx, user)
	require.NoError(t, err)
	assert.False(t, running)

	release2, err := guard.Acquire(ctx, user)
	require.NoError(t, err)
	release2()
}

func TestRedisRunGuardSeparatesUsers(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	guard := NewRedisRunGuard(rdb, "ghsync-test:"+uuid.NewString()+":", time.Second, nil)

	r1, err := guard.Acquire(ctx, "1")
	require.NoError(t, err)
	defer r1()
	r2, err := guard.Acquire(ctx, "2")
	require.NoError(t, err)
	defer r2()
}
