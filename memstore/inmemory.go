package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentgraph/agentgraph/graph"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time // zero means no expiry
}

// InMemory is the default backend: a mutex-guarded map with lazy TTL
// expiry. Expired entries are dropped on read.
type InMemory struct {
	entries map[string]memoryEntry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemory creates an in-process backend.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (m *InMemory) WithClock(now func() time.Time) *InMemory {
	m.now = now
	return m
}

func (m *InMemory) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	stored, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !stored.expiresAt.IsZero() && !m.now().Before(stored.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, nil
	}
	entry := stored.entry
	return &entry, nil
}

func (m *InMemory) Set(ctx context.Context, key string, entry *Entry, ttl graph.Duration) error {
	stored := memoryEntry{entry: *entry}
	if d := ttl.Std(); d > 0 {
		stored.expiresAt = m.now().Add(d)
	}
	m.mu.Lock()
	m.entries[key] = stored
	m.mu.Unlock()
	return nil
}

func (m *InMemory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *InMemory) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}
