package types

import (
	"strconv"
	"sync"
	"time"
)

// Well-known execution context fields. Nodes may read and write arbitrary
// custom fields; these are the ones the built-in node kinds agree on.
const (
	KeyContent       = "content"
	KeyConfidence    = "confidence"
	KeyTopic         = "topic"
	KeyUserIntent    = "user_intent"
	KeyAgentResponse = "agent_response"
	KeyBlocked       = "blocked"
	KeyBlockMessage  = "block_message"
)

// ExecutionContext is the mutable, run-scoped bag of named values that flows
// through a single run. It is owned by exactly one run and is never shared
// across runs except through the memory store. Sibling branches of a fan-out
// may write concurrently, so all access goes through the mutex.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewExecutionContext creates an execution context seeded with the given
// initial values. The map is copied; the caller keeps ownership of its copy.
func NewExecutionContext(initial map[string]any) *ExecutionContext {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &ExecutionContext{values: values}
}

// Set stores a value under the given field.
func (c *ExecutionContext) Set(field string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[field] = value
}

// Get retrieves a value by field name.
func (c *ExecutionContext) Get(field string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[field]
	return v, ok
}

// Delete removes a field.
func (c *ExecutionContext) Delete(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, field)
}

// GetString retrieves a field coerced to string. Non-string scalar values
// are formatted; missing fields report ok=false.
func (c *ExecutionContext) GetString(field string) (string, bool) {
	v, ok := c.Get(field)
	if !ok {
		return "", false
	}
	return CoerceString(v)
}

// GetFloat retrieves a field coerced to float64. Non-coercible values
// report ok=false.
func (c *ExecutionContext) GetFloat(field string) (float64, bool) {
	v, ok := c.Get(field)
	if !ok {
		return 0, false
	}
	return CoerceFloat(v)
}

// Snapshot returns a shallow copy of all current values. The copy is safe to
// read without further locking and is what gets forwarded to agents and
// returned on status queries.
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Merge writes every entry of values into the context, overwriting existing
// fields. Last writer wins.
func (c *ExecutionContext) Merge(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}

// Len returns the number of fields currently set.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// MarkBlocked records a guardrail block on the context.
func (c *ExecutionContext) MarkBlocked(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[KeyBlocked] = true
	c.values[KeyBlockMessage] = message
}

// CoerceString converts a scalar value to its string form.
func CoerceString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case time.Duration:
		return s.String(), true
	default:
		return "", false
	}
}

// CoerceFloat converts a numeric or numeric-string value to float64.
func CoerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
