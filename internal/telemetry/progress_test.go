package telemetry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/bombadil/exerciser/internal/common/logger"
	bombadilredis "github.com/bombadil/exerciser/internal/common/redis"
	"github.com/bombadil/exerciser/internal/configtypes"
)

func newTestRedisClient(t *testing.T) *bombadilredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)

	log, err := logger.NewDefault()
	require.NoError(t, err)

	client, err := bombadilredis.NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, log.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestProgressSink_PublishAndPeers(t *testing.T) {
	client := newTestRedisClient(t)
	log, err := logger.NewDefault()
	require.NoError(t, err)
	ctx := context.Background()

	a := NewProgressSink(client, "https://example.com", "run-a", log.Logger)
	b := NewProgressSink(client, "https://example.com", "run-b", log.Logger)

	require.NoError(t, a.Publish(ctx, 10, 1))
	require.NoError(t, b.Publish(ctx, 25, 2))

	peers, err := a.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	total := 0
	for _, p := range peers {
		total += p.CoverageEdges
	}
	require.Equal(t, 35, total)
}

func TestProgressSink_CloseRemovesOwnEntry(t *testing.T) {
	client := newTestRedisClient(t)
	log, err := logger.NewDefault()
	require.NoError(t, err)
	ctx := context.Background()

	s := NewProgressSink(client, "grp", "run-1", log.Logger)
	require.NoError(t, s.Publish(ctx, 1, 0))
	require.NoError(t, s.Close(ctx))

	peers, err := s.Peers(ctx)
	require.NoError(t, err)
	require.Empty(t, peers)
}
