package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_SetGet(t *testing.T) {
	ectx := NewExecutionContext(map[string]any{KeyContent: "hello"})

	v, ok := ectx.Get(KeyContent)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	ectx.Set(KeyConfidence, 0.9)
	f, ok := ectx.GetFloat(KeyConfidence)
	require.True(t, ok)
	assert.Equal(t, 0.9, f)

	_, ok = ectx.Get("missing")
	assert.False(t, ok)

	ectx.Delete(KeyContent)
	_, ok = ectx.Get(KeyContent)
	assert.False(t, ok)
}

func TestExecutionContext_SnapshotIsolation(t *testing.T) {
	ectx := NewExecutionContext(map[string]any{"a": 1})

	snap := ectx.Snapshot()
	ectx.Set("b", 2)

	assert.Len(t, snap, 1, "snapshot must not see later writes")
	assert.Equal(t, 2, ectx.Len())
}

func TestExecutionContext_SeedCopied(t *testing.T) {
	seed := map[string]any{"a": 1}
	ectx := NewExecutionContext(seed)
	seed["b"] = 2

	assert.Equal(t, 1, ectx.Len(), "caller mutations must not leak in")
}

func TestExecutionContext_ConcurrentWrites(t *testing.T) {
	ectx := NewExecutionContext(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ectx.Set(KeyContent, n)
				ectx.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	_, ok := ectx.Get(KeyContent)
	assert.True(t, ok)
}

func TestExecutionContext_MarkBlocked(t *testing.T) {
	ectx := NewExecutionContext(nil)
	ectx.MarkBlocked("policy violation")

	blocked, ok := ectx.Get(KeyBlocked)
	require.True(t, ok)
	assert.Equal(t, true, blocked)

	msg, ok := ectx.GetString(KeyBlockMessage)
	require.True(t, ok)
	assert.Equal(t, "policy violation", msg)
}

func TestCoerceFloat(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want float64
		ok   bool
	}{
		{0.5, 0.5, true},
		{3, 3, true},
		{int64(7), 7, true},
		{"2.5", 2.5, true},
		{"abc", 0, false},
		{[]string{"x"}, 0, false},
	} {
		got, ok := CoerceFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "input %v", tt.in)
		}
	}
}
