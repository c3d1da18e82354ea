package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

var testIdentity = Identity{RunID: "run-1", SessionID: "sess-1", UserID: "user-1"}

func memCfg(op graph.MemoryOperation, key string, scope graph.MemoryScope) *graph.MemoryConfig {
	return &graph.MemoryConfig{Operation: op, Key: key, Scope: scope}
}

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	ctx := context.Background()
	cfg := memCfg(graph.MemStore, "summary", graph.ScopeWorkflow)

	require.NoError(t, s.Store(ctx, testIdentity, cfg, "first draft"))

	value, ok, err := s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first draft", value)

	require.NoError(t, s.Update(ctx, testIdentity, cfg, "second draft"))
	value, _, _ = s.Retrieve(ctx, testIdentity, cfg)
	assert.Equal(t, "second draft", value)

	require.NoError(t, s.Delete(ctx, testIdentity, cfg))
	_, ok, err = s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ScopesDoNotCollide(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	ctx := context.Background()

	for _, scope := range []graph.MemoryScope{
		graph.ScopeWorkflow, graph.ScopeSession, graph.ScopeUser, graph.ScopeGlobal,
	} {
		require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "k", scope), string(scope)))
	}

	for _, scope := range []graph.MemoryScope{
		graph.ScopeWorkflow, graph.ScopeSession, graph.ScopeUser, graph.ScopeGlobal,
	} {
		value, ok, err := s.Retrieve(ctx, testIdentity, memCfg(graph.MemRetrieve, "k", scope))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, string(scope), value)
	}

	// A different run sees its own workflow namespace but shares the rest.
	other := Identity{RunID: "run-2", SessionID: "sess-1", UserID: "user-1"}
	_, ok, err := s.Retrieve(ctx, other, memCfg(graph.MemRetrieve, "k", graph.ScopeWorkflow))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = s.Retrieve(ctx, other, memCfg(graph.MemRetrieve, "k", graph.ScopeSession))
	assert.True(t, ok)
}

func TestStore_RoleACL(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	ctx := context.Background()

	writer := memCfg(graph.MemStore, "secret", graph.ScopeGlobal)
	writer.Role = "admin"
	writer.ReadRoles = []string{"admin", "auditor"}
	writer.WriteRoles = []string{"admin"}
	require.NoError(t, s.Store(ctx, testIdentity, writer, "classified"))

	// Allowed reader.
	reader := memCfg(graph.MemRetrieve, "secret", graph.ScopeGlobal)
	reader.Role = "auditor"
	value, ok, err := s.Retrieve(ctx, testIdentity, reader)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "classified", value)

	// Unlisted role cannot read.
	reader.Role = "intern"
	_, _, err = s.Retrieve(ctx, testIdentity, reader)
	require.Error(t, err)
	assert.Equal(t, types.ErrAccessDenied, types.GetErrorCode(err))

	// Unlisted role cannot update, delete or overwrite.
	intern := memCfg(graph.MemUpdate, "secret", graph.ScopeGlobal)
	intern.Role = "intern"
	err = s.Update(ctx, testIdentity, intern, "defaced")
	assert.Equal(t, types.ErrAccessDenied, types.GetErrorCode(err))
	err = s.Delete(ctx, testIdentity, intern)
	assert.Equal(t, types.ErrAccessDenied, types.GetErrorCode(err))
	err = s.Store(ctx, testIdentity, intern, "overwritten")
	assert.Equal(t, types.ErrAccessDenied, types.GetErrorCode(err))
}

func TestStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	backend := NewInMemory().WithClock(func() time.Time { return now })
	s := NewStore(backend, zaptest.NewLogger(t))
	ctx := context.Background()

	cfg := memCfg(graph.MemStore, "ephemeral", graph.ScopeGlobal)
	cfg.TTL = graph.Duration(time.Minute)
	require.NoError(t, s.Store(ctx, testIdentity, cfg, "short-lived"))

	_, ok, err := s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, err = s.Retrieve(ctx, testIdentity, cfg)
	require.NoError(t, err)
	assert.False(t, ok, "entry is gone at exactly the TTL boundary")
}

func TestStore_UpdateMissingEntryFails(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	err := s.Update(context.Background(), testIdentity, memCfg(graph.MemUpdate, "ghost", graph.ScopeGlobal), "x")
	require.Error(t, err)
}

func TestStore_DeleteMissingEntryIsNoop(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	assert.NoError(t, s.Delete(context.Background(), testIdentity, memCfg(graph.MemDelete, "ghost", graph.ScopeGlobal)))
}

func TestStore_ClearRun(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "scratch", graph.ScopeWorkflow), "x"))
	require.NoError(t, s.Store(ctx, testIdentity, memCfg(graph.MemStore, "profile", graph.ScopeUser), "y"))

	require.NoError(t, s.ClearRun(ctx, "run-1"))

	_, ok, _ := s.Retrieve(ctx, testIdentity, memCfg(graph.MemRetrieve, "scratch", graph.ScopeWorkflow))
	assert.False(t, ok, "workflow scope is cleared with the run")
	_, ok, _ = s.Retrieve(ctx, testIdentity, memCfg(graph.MemRetrieve, "profile", graph.ScopeUser))
	assert.True(t, ok, "user scope survives the run")
}

func TestStore_MissingIdentity(t *testing.T) {
	s := NewStore(NewInMemory(), zaptest.NewLogger(t))
	err := s.Store(context.Background(), Identity{}, memCfg(graph.MemStore, "k", graph.ScopeWorkflow), "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrGraphConfigInvalid, types.GetErrorCode(err))
}
