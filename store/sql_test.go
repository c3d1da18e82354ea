package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentgraph/agentgraph/engine"
	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

func openStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func sampleSnapshot(id string) engine.Snapshot {
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	return engine.Snapshot{
		ID:        id,
		SessionID: "sess-1",
		GraphName: "pipeline",
		Status:    engine.StatusCompleted,
		StartedAt: started,
		EndedAt:   started.Add(30 * time.Second),
		Context:   map[string]any{"content": "done", "confidence": 0.9},
		Visited: []engine.Visit{
			{NodeID: "draft", Kind: graph.KindAgent, At: started},
			{NodeID: "guard", Kind: graph.KindGuardrail, At: started.Add(time.Second)},
		},
	}
}

func TestSQLStore_SaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleSnapshot("run-1")))

	got, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Context["content"])
	require.Len(t, got.Visited, 2)
	assert.Equal(t, "draft", got.Visited[0].NodeID)
	assert.Equal(t, graph.KindGuardrail, got.Visited[1].Kind)
}

func TestSQLStore_SaveIsUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	snapshot := sampleSnapshot("run-1")
	require.NoError(t, s.SaveRun(ctx, snapshot))
	snapshot.Status = engine.StatusFailed
	snapshot.FailureCode = types.ErrGuardrailBlocked
	require.NoError(t, s.SaveRun(ctx, snapshot))

	got, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailed, got.Status)
	assert.Equal(t, types.ErrGuardrailBlocked, got.FailureCode)
}

func TestSQLStore_LoadMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadRun(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
}

func TestSQLStore_ListRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := sampleSnapshot("run-1")
	second := sampleSnapshot("run-2")
	second.StartedAt = first.StartedAt.Add(time.Second)
	other := sampleSnapshot("run-3")
	other.SessionID = "sess-2"

	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))
	require.NoError(t, s.SaveRun(ctx, other))

	runs, err := s.ListRuns(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")

	all, err := s.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
