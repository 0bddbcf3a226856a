package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/redis"
	"github.com/aussiebroadwan/authz/internal/authz/store/storetest"
)

func newTestStore(t *testing.T, maxValueSize int) store.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := redis.NewStoreWithClient(client, "test:", maxValueSize)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := redis.NewStoreWithClient(client, "authz:", 0)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Namespace("abc@app1").Put(ctx, "appData", []byte("{}")))
	require.Equal(t, "{}", mr.HGet("authz:ns:abc@app1", "appData"))

	require.NoError(t, s.Namespace("abc@app1").DeleteAll(ctx))
	require.False(t, mr.Exists("authz:ns:abc@app1"))
}

func TestNewStoreRequiresAddr(t *testing.T) {
	_, err := redis.NewStore(context.Background(), redis.Config{})
	require.Error(t, err)
}

func TestNewStoreConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := redis.NewStore(context.Background(), redis.Config{Addr: mr.Addr(), KeyPrefix: "x:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
}
