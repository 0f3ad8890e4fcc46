package window

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisHitFixedWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	t.Run("allows up to limit, denies past it", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			res, err := store.Hit(ctx, "general:ip1:anonymous", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "hit %d", i)
			assert.Equal(t, i, res.Used)
			assert.Equal(t, 3-i, res.Remaining)
		}

		res, err := store.Hit(ctx, "general:ip1:anonymous", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 4, res.Used)
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("later hits keep the original window end", func(t *testing.T) {
		_, err := store.Hit(ctx, "api:ip2:anonymous", 10, time.Minute)
		require.NoError(t, err)
		first := mr.TTL("edgegate:window:api:ip2:anonymous")

		mr.FastForward(10 * time.Second)
		_, err = store.Hit(ctx, "api:ip2:anonymous", 10, time.Minute)
		require.NoError(t, err)

		second := mr.TTL("edgegate:window:api:ip2:anonymous")
		assert.Equal(t, first-10*time.Second, second)
	})

	t.Run("window resets after the key expires", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := store.Hit(ctx, "auth:ip3:anonymous", 2, time.Minute)
			require.NoError(t, err)
		}
		res, err := store.Hit(ctx, "auth:ip3:anonymous", 2, time.Minute)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		mr.FastForward(time.Minute + time.Second)

		res, err = store.Hit(ctx, "auth:ip3:anonymous", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Used)
	})
}

func TestRedisReset(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	for i := 0; i < 2; i++ {
		_, err := store.Hit(ctx, "general:ip4:anonymous", 2, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, store.Reset(ctx, "general:ip4:anonymous"))

	res, err := store.Hit(ctx, "general:ip4:anonymous", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Used)
}

func TestRedisHitStoreError(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	mr.Close()

	_, err := store.Hit(ctx, "general:ip5:anonymous", 3, time.Minute)
	assert.Error(t, err)
}

func TestRedisKeyPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisStore(rdb, WithPrefix("gw:windows:"))
	_, err := store.Hit(ctx, "general:ip6:anonymous", 3, time.Minute)
	require.NoError(t, err)

	assert.True(t, mr.Exists("gw:windows:general:ip6:anonymous"))
}
