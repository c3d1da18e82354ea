package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentgraph/agentgraph/graph"
)

func redisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(NewRedis(client), zaptest.NewLogger(t)), mr
}

func TestRedis_RoundTrip(t *testing.T) {
	s, _ := redisStore(t)
	ctx := context.Background()
	cfg := memCfg(graph.MemStore, "summary", graph.ScopeSession)

	require.NoError(t, s.Store(ctx, testIdentity, cfg, map[string]any{"verdict": "ok", "score": 0.9}))

	value, ok, err := s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	got, isMap := value.(map[string]any)
	require.True(t, isMap, "values round-trip through JSON")
	assert.Equal(t, "ok", got["verdict"])

	require.NoError(t, s.Delete(ctx, testIdentity, cfg))
	_, ok, err = s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_TTL(t *testing.T) {
	s, mr := redisStore(t)
	ctx := context.Background()

	cfg := memCfg(graph.MemStore, "ephemeral", graph.ScopeGlobal)
	cfg.TTL = graph.Duration(30 * time.Second)
	require.NoError(t, s.Store(ctx, testIdentity, cfg, "short-lived"))

	_, ok, err := s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ClearRun(t *testing.T) {
	s, _ := redisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "a", graph.ScopeWorkflow), 1))
	require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "b", graph.ScopeWorkflow), 2))
	require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "keep", graph.ScopeUser), 3))

	require.NoError(t, s.ClearRun(ctx, "run-1"))

	_, ok, _ := s.Retrieve(ctx, testIdentity, memCfg(graph.MemRetrieve, "a", graph.ScopeWorkflow))
	assert.False(t, ok)
	_, ok, _ = s.Retrieve(ctx, testIdentity, memCfg(graph.MemRetrieve, "keep", graph.ScopeUser))
	assert.True(t, ok)
}

func TestRedis_RoleACL(t *testing.T) {
	s, _ := redisStore(t)
	ctx := context.Background()

	cfg := memCfg(graph.MemStore, "secret", graph.ScopeGlobal)
	cfg.Role = "admin"
	cfg.ReadRoles = []string{"admin"}
	cfg.WriteRoles = []string{"admin"}
	require.NoError(t, s.Store(ctx, testIdentity, cfg, "classified"))

	reader := memCfg(graph.MemRetrieve, "secret", graph.ScopeGlobal)
	reader.Role = "guest"
	_, _, err := s.Retrieve(ctx, testIdentity, reader)
	require.Error(t, err, "role lists survive serialization")
}
