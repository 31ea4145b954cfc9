package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bombadil/exerciser/internal/configtypes"
	"github.com/bombadil/exerciser/internal/common/logger"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	log, err := logger.NewDefault()
	require.NoError(t, err)

	cfg := &configtypes.RedisConfig{Addr: mr.Addr()}
	client, err := NewClient(cfg, log.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient_NilConfig(t *testing.T) {
	log, err := logger.NewDefault()
	require.NoError(t, err)

	client, err := NewClient(nil, log.Logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis config is required")
	assert.Nil(t, client)
}

func TestNewClient_NilLogger(t *testing.T) {
	cfg := &configtypes.RedisConfig{Addr: "localhost:6379"}
	client, err := NewClient(cfg, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
	assert.Nil(t, client)
}

func TestNewClient_UnreachableAddr(t *testing.T) {
	log, err := logger.NewDefault()
	require.NoError(t, err)

	cfg := &configtypes.RedisConfig{Addr: "127.0.0.1:1"}
	client, err := NewClient(cfg, log.Logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
	assert.Nil(t, client)
}

func TestClient_SetNX(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	acquired, err := client.SetNX(ctx, "test:lock", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = client.SetNX(ctx, "test:lock", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestClient_HSetWithExpireAndHGetAll(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	key := ProgressKey("https://example.com", "run-1")
	err := client.HSetWithExpire(ctx, key, time.Minute, "17", "2", "42", "8")
	require.NoError(t, err)

	all, err := client.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"17": "2", "42": "8"}, all)

	ttl := mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestClient_KeysMatchesGroupPattern(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.HSetWithExpire(ctx, ProgressKey("grp-a", "run-1"), time.Minute, "1", "1"))
	require.NoError(t, client.HSetWithExpire(ctx, ProgressKey("grp-a", "run-2"), time.Minute, "1", "1"))
	require.NoError(t, client.HSetWithExpire(ctx, ProgressKey("grp-b", "run-1"), time.Minute, "1", "1"))

	keys, err := client.Keys(ctx, ProgressPattern("grp-a"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestClient_Del(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	key := ProgressKey("grp", "run-1")
	require.NoError(t, client.HSetWithExpire(ctx, key, time.Minute, "1", "1"))
	require.NoError(t, client.Del(ctx, key))

	all, err := client.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClient_HealthCheck(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.HealthCheck(context.Background()))
}
