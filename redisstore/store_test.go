package redisstore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/FilipeJohansson/roomsocket"
)

var _ roomsocket.KeyStore = (*Store)(nil)

func setupStore(t *testing.T, options ...Option) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	t.Cleanup(func() {
		if container != nil {
			_ = container.Terminate(context.Background())
		}
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := Connect(ctx, endpoint, "", 0, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RegisterLookupRemove(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "a", "key-a"))
	require.NoError(t, store.Register(ctx, "b", "key-b"))
	require.NoError(t, store.Register(ctx, "a", "key-a2"))

	keys, err := store.Lookup(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "key-a2", "b": "key-b"}, keys)

	require.NoError(t, store.Remove(ctx, "a"))
	keys, err = store.Lookup(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "key-b"}, keys)
}

func TestStore_LookupEmpty(t *testing.T) {
	store := setupStore(t)

	keys, err := store.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_ClearOnlyTouchesItsKey(t *testing.T) {
	store := setupStore(t, WithKey("test:keys"))
	ctx := context.Background()

	require.NoError(t, store.client.Set(ctx, "unrelated", "v", 0).Err())
	require.NoError(t, store.Register(ctx, "a", "key-a"))
	require.NoError(t, store.Clear(ctx))

	keys, err := store.Lookup(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, keys)

	v, err := store.client.Get(ctx, "unrelated").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestNew_DefaultKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Equal(t, defaultKey, New(client).key)
	assert.Equal(t, "custom", New(client, WithKey("custom")).key)
	assert.Equal(t, defaultKey, New(client, WithKey("")).key)
}
