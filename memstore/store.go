package memstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// Entry is one stored value with its access lists. Empty role lists mean
// unrestricted.
type Entry struct {
	Value      any      `json:"value"`
	ReadRoles  []string `json:"read_roles,omitempty"`
	WriteRoles []string `json:"write_roles,omitempty"`
}

// Backend persists entries. Implementations handle TTL expiry themselves;
// an expired entry must behave exactly like a missing one.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl graph.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Identity carries the ids that anchor each memory scope for a run.
type Identity struct {
	RunID     string
	SessionID string
	UserID    string
}

// Store is the scope- and role-aware facade over a backend.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// NewStore creates a memory store over the given backend.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger.With(zap.String("component", "memstore"))}
}

// namespacedKey prefixes the key with its scope's namespace so runs,
// sessions and users never collide. Workflow is the default scope.
func namespacedKey(scope graph.MemoryScope, ids Identity, key string) (string, error) {
	switch scope {
	case graph.ScopeWorkflow, "":
		if ids.RunID == "" {
			return "", types.NewError(types.ErrGraphConfigInvalid, "workflow scope requires a run id")
		}
		return fmt.Sprintf("workflow:%s:%s", ids.RunID, key), nil
	case graph.ScopeSession:
		if ids.SessionID == "" {
			return "", types.NewError(types.ErrGraphConfigInvalid, "session scope requires a session id")
		}
		return fmt.Sprintf("session:%s:%s", ids.SessionID, key), nil
	case graph.ScopeUser:
		if ids.UserID == "" {
			return "", types.NewError(types.ErrGraphConfigInvalid, "user scope requires a user id")
		}
		return fmt.Sprintf("user:%s:%s", ids.UserID, key), nil
	case graph.ScopeGlobal:
		return "global:" + key, nil
	default:
		return "", types.Errorf(types.ErrGraphConfigInvalid, "unknown memory scope %q", scope)
	}
}

// Store writes a value under the node's key. Overwriting an entry that
// restricts writes requires an allowed role.
func (s *Store) Store(ctx context.Context, ids Identity, cfg *graph.MemoryConfig, value any) error {
	key, err := namespacedKey(cfg.Scope, ids, cfg.Key)
	if err != nil {
		return err
	}

	existing, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil && !roleAllowed(existing.WriteRoles, cfg.Role) {
		return accessDenied(cfg, "write")
	}

	entry := &Entry{Value: value, ReadRoles: cfg.ReadRoles, WriteRoles: cfg.WriteRoles}
	if err := s.backend.Set(ctx, key, entry, cfg.TTL); err != nil {
		return err
	}
	s.logger.Debug("stored memory entry", zap.String("key", key), zap.String("scope", string(cfg.Scope)))
	return nil
}

// Retrieve reads the value under the node's key. ok is false when the entry
// is missing or expired.
func (s *Store) Retrieve(ctx context.Context, ids Identity, cfg *graph.MemoryConfig) (any, bool, error) {
	key, err := namespacedKey(cfg.Scope, ids, cfg.Key)
	if err != nil {
		return nil, false, err
	}

	entry, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	if !roleAllowed(entry.ReadRoles, cfg.Role) {
		return nil, false, accessDenied(cfg, "read")
	}
	return entry.Value, true, nil
}

// Update replaces the value of an existing entry, keeping its access lists
// and refreshing its TTL. Updating a missing entry fails rather than
// silently creating one.
func (s *Store) Update(ctx context.Context, ids Identity, cfg *graph.MemoryConfig, value any) error {
	key, err := namespacedKey(cfg.Scope, ids, cfg.Key)
	if err != nil {
		return err
	}

	entry, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return types.Errorf(types.ErrInternal, "memory key %q not found", cfg.Key)
	}
	if !roleAllowed(entry.WriteRoles, cfg.Role) {
		return accessDenied(cfg, "write")
	}

	entry.Value = value
	return s.backend.Set(ctx, key, entry, cfg.TTL)
}

// Delete removes the entry under the node's key. Deleting a missing entry
// is a no-op.
func (s *Store) Delete(ctx context.Context, ids Identity, cfg *graph.MemoryConfig) error {
	key, err := namespacedKey(cfg.Scope, ids, cfg.Key)
	if err != nil {
		return err
	}

	entry, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if !roleAllowed(entry.WriteRoles, cfg.Role) {
		return accessDenied(cfg, "delete")
	}
	return s.backend.Delete(ctx, key)
}

// ClearRun drops every workflow-scoped entry of a run. Session, user and
// global entries survive the run.
func (s *Store) ClearRun(ctx context.Context, runID string) error {
	return s.backend.DeletePrefix(ctx, fmt.Sprintf("workflow:%s:", runID))
}

func roleAllowed(roles []string, role string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func accessDenied(cfg *graph.MemoryConfig, op string) error {
	return types.Errorf(types.ErrAccessDenied,
		"role %q may not %s memory key %q", cfg.Role, op, cfg.Key)
}
