package route

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// Selector picks handoff targets. It keeps the per-node round-robin cursors
// and the per-target in-flight counters that the load_balanced strategy
// reads; both survive across runs, so rotation continues where the previous
// run left off.
type Selector struct {
	rr       map[string]int
	inflight map[string]int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewSelector creates a handoff selector.
func NewSelector(logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		rr:       make(map[string]int),
		inflight: make(map[string]int),
		logger:   logger.With(zap.String("component", "handoff_selector")),
	}
}

// Select resolves the handoff target for one dispatch of the given node.
// ok=false means no target qualified and the node's fallback applies.
// The manual strategy never reaches Select; the engine routes it to a human
// gate directly.
func (s *Selector) Select(nodeID string, cfg *graph.HandoffConfig, ectx *types.ExecutionContext) (string, bool) {
	if len(cfg.Targets) == 0 {
		return "", false
	}

	switch cfg.Strategy {
	case graph.HandoffRoundRobin:
		return s.roundRobin(nodeID, cfg.Targets), true

	case graph.HandoffLoadBalance:
		return s.leastLoaded(cfg.Targets), true

	case graph.HandoffExpertise:
		return s.bestQualified(cfg.Targets, ectx, true)

	case graph.HandoffConditional:
		return s.bestQualified(cfg.Targets, ectx, false)

	default:
		return "", false
	}
}

// Acquire records a dispatch to target, for load-balanced selection.
func (s *Selector) Acquire(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[target]++
}

// Release records completion of a dispatch to target.
func (s *Selector) Release(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[target] > 0 {
		s.inflight[target]--
	}
}

// InFlight returns the current in-flight count for a target.
func (s *Selector) InFlight(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[target]
}

// roundRobin advances the node's cursor on every dispatch regardless of
// outcome.
func (s *Selector) roundRobin(nodeID string, targets []graph.HandoffTarget) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.rr[nodeID] % len(targets)
	s.rr[nodeID]++
	return targets[idx].Target
}

// leastLoaded picks the target with the lowest in-flight count; ties go to
// the higher declared weight, then declaration order.
func (s *Selector) leastLoaded(targets []graph.HandoffTarget) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := 0
	for i := 1; i < len(targets); i++ {
		cur, chosen := s.inflight[targets[i].Target], s.inflight[targets[best].Target]
		if cur < chosen || (cur == chosen && targets[i].Weight > targets[best].Weight) {
			best = i
		}
	}
	return targets[best].Target
}

// bestQualified evaluates each target's conditions against the context.
// With byWeight set (expertise_based) the highest-weighted satisfying
// target wins; otherwise (conditional) the first satisfying target wins.
// Targets without conditions always qualify.
func (s *Selector) bestQualified(targets []graph.HandoffTarget, ectx *types.ExecutionContext, byWeight bool) (string, bool) {
	best := -1
	for i, t := range targets {
		if !types.EvaluateAll(t.Conditions, ectx) {
			continue
		}
		if !byWeight {
			return t.Target, true
		}
		if best == -1 || t.Weight > targets[best].Weight {
			best = i
		}
	}
	if best == -1 {
		return "", false
	}
	return targets[best].Target, true
}
