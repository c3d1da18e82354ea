package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/guardrail"
	"github.com/agentgraph/agentgraph/invoke"
	"github.com/agentgraph/agentgraph/memstore"
	"github.com/agentgraph/agentgraph/monitor"
	"github.com/agentgraph/agentgraph/route"
	"github.com/agentgraph/agentgraph/types"
)

var tracer = otel.Tracer("github.com/agentgraph/agentgraph/engine")

// KeyHandoffContext is where a non-full handoff publishes the context
// subset it forwards; KeyHumanInput is the default human gate output field.
const (
	KeyHandoffContext = "handoff_context"
	KeyHumanInput     = "human_input"
)

// target is one place execution continues after a node. edge is nil for
// action targets that have no matching edge (the engine synthesizes the
// continuation); synthesized targets bypass join readiness.
type target struct {
	node string
	edge *graph.Edge
}

// runState is the per-run scheduler state. The wave loop owns it; only the
// hop counter and handoff release list see concurrent access from within a
// wave.
type runState struct {
	g         *graph.Graph
	enforcer  *guardrail.Enforcer
	activated map[string]bool
	fired     map[graph.Edge]bool
	hops      int
	releases  map[string][]string
	mu        sync.Mutex
}

// execute drives one run to a terminal state. Each wave runs every ready
// node concurrently; firing edges determine the next wave.
func (e *Engine) execute(run *Run, g *graph.Graph) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run panicked", zap.String("run_id", run.ID), zap.Any("panic", r))
			e.terminate(run, StatusFailed, types.ErrInternal, "internal panic")
		}
	}()

	ctx, span := tracer.Start(run.ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("graph.name", g.Name),
	))
	defer span.End()

	st := &runState{
		g:         g,
		enforcer:  guardrail.NewEnforcer(e.logger),
		activated: make(map[string]bool),
		fired:     make(map[graph.Edge]bool),
		releases:  make(map[string][]string),
	}
	// Handoff acquisitions whose target never activated (an unsatisfied
	// join, or the run terminating first) would otherwise pin the
	// selector's in-flight counts forever.
	defer func() {
		st.mu.Lock()
		for _, pending := range st.releases {
			for _, t := range pending {
				e.selector.Release(t)
			}
		}
		st.releases = make(map[string][]string)
		st.mu.Unlock()
	}()

	frontier := g.Entries()
	for _, id := range frontier {
		st.activated[id] = true
	}

	for len(frontier) > 0 {
		if run.Status().Terminal() {
			return
		}

		var next []target
		var nextMu sync.Mutex
		eg, waveCtx := errgroup.WithContext(ctx)
		for _, nodeID := range frontier {
			nodeID := nodeID
			eg.Go(func() error {
				targets, err := e.executeNode(waveCtx, run, st, nodeID)
				if err != nil {
					return err
				}
				nextMu.Lock()
				next = append(next, targets...)
				nextMu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			code := types.GetErrorCode(err)
			if code == "" {
				code = types.ErrInternal
			}
			e.terminate(run, StatusFailed, code, err.Error())
			return
		}

		frontier = st.advance(next)
	}

	e.terminate(run, StatusCompleted, "", "")
}

// advance marks fired edges and returns the nodes that became ready: every
// activated source feeding the node has fired at least one edge into it.
// Fired flags are consumed on activation so loop iterations need fresh
// firings.
func (st *runState) advance(targets []target) []string {
	direct := make(map[string]bool)
	var candidates []string
	seen := make(map[string]bool)
	for _, t := range targets {
		if t.edge != nil {
			st.fired[*t.edge] = true
		} else {
			direct[t.node] = true
		}
		if !seen[t.node] {
			seen[t.node] = true
			candidates = append(candidates, t.node)
		}
	}

	var ready []string
	for _, id := range candidates {
		if !direct[id] && !st.ready(id) {
			continue
		}
		ready = append(ready, id)
		st.activated[id] = true
		for _, edge := range st.g.Incoming(id) {
			delete(st.fired, edge)
		}
	}
	return ready
}

func (st *runState) ready(id string) bool {
	// Group incoming edges by source; each activated source must have
	// fired at least one of its edges into this node.
	satisfied := make(map[string]bool)
	required := make(map[string]bool)
	for _, edge := range st.g.Incoming(id) {
		if !st.activated[edge.From] {
			continue
		}
		required[edge.From] = true
		if st.fired[edge] {
			satisfied[edge.From] = true
		}
	}
	for from := range required {
		if !satisfied[from] {
			return false
		}
	}
	return true
}

// executeNode dispatches one node activation and returns where execution
// continues.
func (e *Engine) executeNode(ctx context.Context, run *Run, st *runState, nodeID string) ([]target, error) {
	st.mu.Lock()
	st.hops++
	hops := st.hops
	pendingReleases := st.releases[nodeID]
	delete(st.releases, nodeID)
	st.mu.Unlock()

	for _, t := range pendingReleases {
		defer e.selector.Release(t)
	}

	if hops > e.maxHops {
		return nil, types.Errorf(types.ErrMaxHopsExceeded,
			"run exceeded the %d-hop budget", e.maxHops).WithNode(nodeID)
	}

	node, ok := st.g.Node(nodeID)
	if !ok {
		return nil, types.Errorf(types.ErrGraphConfigInvalid, "node %q vanished", nodeID)
	}

	run.recordVisit(nodeID, node.Kind)
	if e.metrics != nil {
		e.metrics.NodeVisited(string(node.Kind))
	}
	e.logger.Debug("node activated",
		zap.String("run_id", run.ID),
		zap.String("node_id", nodeID),
		zap.String("kind", string(node.Kind)),
	)

	ctx, span := tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("node.kind", string(node.Kind)),
	))
	defer span.End()

	switch cfg := node.Config.(type) {
	case *graph.AgentConfig:
		return e.runAgent(ctx, run, st, nodeID, cfg)
	case *graph.DecisionConfig:
		return e.runDecision(run, st, nodeID, cfg)
	case *graph.HandoffConfig:
		return e.runHandoff(ctx, run, st, nodeID, cfg)
	case *graph.AggregatorConfig:
		return e.runAggregator(ctx, run, st, nodeID, cfg)
	case *graph.GuardrailConfig:
		return e.runGuardrail(run, st, nodeID, cfg)
	case *graph.HumanConfig:
		return e.runHuman(ctx, run, st, nodeID, cfg)
	case *graph.MemoryConfig:
		return e.runMemory(ctx, run, st, nodeID, cfg)
	case *graph.MonitorConfig:
		return e.runMonitor(run, st, nodeID, cfg)
	default:
		return nil, types.Errorf(types.ErrGraphConfigInvalid, "unsupported config %T", cfg).WithNode(nodeID)
	}
}

func (e *Engine) runAgent(ctx context.Context, run *Run, st *runState, nodeID string, cfg *graph.AgentConfig) ([]target, error) {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt, _ = run.Context.GetString(types.KeyContent)
	}

	resp, err := e.invoker.Invoke(ctx, invoke.Request{
		AgentID: cfg.AgentID,
		Prompt:  prompt,
		Context: run.Context.Snapshot(),
		Timeout: cfg.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.AgentLatency(cfg.AgentID, time.Duration(resp.LatencyMs)*time.Millisecond)
	}

	field := cfg.OutputField
	if field == "" {
		field = types.KeyAgentResponse
	}
	run.Context.Set(field, resp.Output)
	run.Context.Set(types.KeyContent, resp.Output)
	run.Context.Set(types.KeyConfidence, resp.Confidence)
	return allOutgoing(st, nodeID), nil
}

func (e *Engine) runDecision(run *Run, st *runState, nodeID string, cfg *graph.DecisionConfig) ([]target, error) {
	var out []target
	for _, action := range route.EvaluateDecision(cfg, run.Context) {
		if action.Kind == graph.ActionEndWorkflow {
			// Ends the whole run, not just this branch; sibling fan-out
			// work is cancelled.
			e.terminate(run, StatusCompleted, "", "")
			return nil, nil
		}
		out = append(out, e.resolveTarget(st, nodeID, action.Target)...)
	}
	return out, nil
}

func (e *Engine) runHandoff(ctx context.Context, run *Run, st *runState, nodeID string, cfg *graph.HandoffConfig) ([]target, error) {
	var chosen string
	if cfg.Strategy == graph.HandoffManual {
		// Manual handoffs are a human choice over the declared targets.
		choices := make([]string, len(cfg.Targets))
		for i, t := range cfg.Targets {
			choices[i] = t.Target
		}
		run.setWaiting(true)
		decision, err := e.gate.Wait(ctx, run.ID, nodeID, &graph.HumanConfig{
			InputType: graph.InputChoice,
			Prompt:    "select a handoff target",
			Choices:   choices,
			Timeout:   cfg.Timeout,
		})
		run.setWaiting(false)
		if err != nil {
			if types.GetErrorCode(err) == types.ErrHumanTimeout && cfg.Fallback != nil {
				return e.applyFallback(run, st, nodeID, cfg.Fallback)
			}
			return nil, err
		}
		chosen = decision.Value
	} else {
		selected, ok := e.selector.Select(nodeID, cfg, run.Context)
		if !ok {
			if cfg.Fallback != nil {
				return e.applyFallback(run, st, nodeID, cfg.Fallback)
			}
			e.logger.Warn("handoff found no qualifying target, ending branch",
				zap.String("run_id", run.ID),
				zap.String("node_id", nodeID),
			)
			return nil, nil
		}
		chosen = selected
	}

	if cfg.ContextMode != "" && cfg.ContextMode != graph.ContextFull {
		forwarded := route.ForwardContext(cfg, run.Context, nil)
		run.Context.Set(KeyHandoffContext, forwarded)
	}

	e.selector.Acquire(chosen)
	st.mu.Lock()
	st.releases[chosen] = append(st.releases[chosen], chosen)
	st.mu.Unlock()

	return e.resolveTarget(st, nodeID, chosen), nil
}

func (e *Engine) applyFallback(run *Run, st *runState, nodeID string, fb *graph.HandoffFallback) ([]target, error) {
	if fb.Action.Kind == graph.ActionEndWorkflow {
		e.terminate(run, StatusCompleted, "", "")
		return nil, nil
	}
	return e.resolveTarget(st, nodeID, fb.Action.Target), nil
}

func (e *Engine) runAggregator(ctx context.Context, run *Run, st *runState, nodeID string, cfg *graph.AggregatorConfig) ([]target, error) {
	result, err := e.aggregator.Run(ctx, nodeID, cfg, run.Context)
	if err != nil {
		return nil, err
	}
	run.Context.Set(types.KeyContent, result.Output)
	run.Context.Set(types.KeyConfidence, result.Confidence)
	run.Context.Set("aggregate_method", string(result.Method))
	return allOutgoing(st, nodeID), nil
}

func (e *Engine) runGuardrail(run *Run, st *runState, nodeID string, cfg *graph.GuardrailConfig) ([]target, error) {
	outcome := st.enforcer.Check(nodeID, cfg, run.Context)

	if e.metrics != nil {
		for _, v := range outcome.Violations {
			e.metrics.GuardrailViolation(string(v.Severity))
		}
	}

	if outcome.Blocked {
		message := outcome.BlockMessage
		if message == "" {
			message = "content blocked by guardrail"
		}
		return nil, types.NewError(types.ErrGuardrailBlocked, message).WithNode(nodeID)
	}

	if esc := outcome.Escalation; esc != nil {
		switch esc.Action {
		case graph.EscalateStopWorkflow:
			e.terminate(run, StatusCancelled, types.ErrRunCancelled, "guardrail escalation stopped the workflow")
			return nil, nil
		case graph.EscalateNotifyHuman, graph.EscalateSupervisor:
			if esc.Target != "" {
				return e.resolveTarget(st, nodeID, esc.Target), nil
			}
		}
	}

	return allOutgoing(st, nodeID), nil
}

func (e *Engine) runHuman(ctx context.Context, run *Run, st *runState, nodeID string, cfg *graph.HumanConfig) ([]target, error) {
	run.setWaiting(true)
	start := time.Now()
	decision, err := e.gate.Wait(ctx, run.ID, nodeID, cfg)
	run.setWaiting(false)
	if e.metrics != nil {
		e.metrics.HumanWait(time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if decision.Fallback {
		return e.resolveTarget(st, nodeID, decision.Target), nil
	}

	field := cfg.OutputField
	if field == "" {
		field = KeyHumanInput
	}
	run.Context.Set(field, decision.Value)
	return allOutgoing(st, nodeID), nil
}

func (e *Engine) runMemory(ctx context.Context, run *Run, st *runState, nodeID string, cfg *graph.MemoryConfig) ([]target, error) {
	ids := memstore.Identity{RunID: run.ID, SessionID: run.SessionID, UserID: run.UserID}
	field := cfg.ValueField
	if field == "" {
		field = cfg.Key
	}

	var err error
	switch cfg.Operation {
	case graph.MemStore:
		value, ok := run.Context.Get(field)
		if !ok {
			e.logger.Warn("memory store skipped, field missing",
				zap.String("node_id", nodeID),
				zap.String("field", field),
			)
			break
		}
		err = e.memory.Store(ctx, ids, cfg, value)

	case graph.MemUpdate:
		value, ok := run.Context.Get(field)
		if !ok {
			break
		}
		err = e.memory.Update(ctx, ids, cfg, value)

	case graph.MemRetrieve:
		var value any
		var found bool
		value, found, err = e.memory.Retrieve(ctx, ids, cfg)
		if err == nil && found {
			run.Context.Set(field, value)
		}

	case graph.MemDelete:
		err = e.memory.Delete(ctx, ids, cfg)

	default:
		err = types.Errorf(types.ErrGraphConfigInvalid, "unknown memory operation %q", cfg.Operation)
	}
	if err != nil {
		if ne, ok := err.(*types.Error); ok && ne.NodeID == "" {
			err = ne.WithNode(nodeID)
		}
		return nil, err
	}
	return allOutgoing(st, nodeID), nil
}

func (e *Engine) runMonitor(run *Run, st *runState, nodeID string, cfg *graph.MonitorConfig) ([]target, error) {
	cfgCopy := *cfg
	go e.monitor.Watch(run.ctx, run.ID, nodeID, &cfgCopy, e.probeFor(run),
		func(reason string) {
			e.terminate(run, StatusCancelled, types.ErrRunCancelled, reason)
		},
		func(b monitor.Breach) {
			if e.metrics != nil {
				e.metrics.AlertFired(string(b.Action))
			}
		})
	return allOutgoing(st, nodeID), nil
}

// resolveTarget maps an action target to continuation points: outgoing
// edges whose destination or port name matches, or a synthesized
// continuation when the target node exists with no connecting edge. A
// target that names nothing ends the branch with a warning.
func (e *Engine) resolveTarget(st *runState, nodeID, targetID string) []target {
	if targetID == "" {
		return allOutgoing(st, nodeID)
	}

	edges := st.g.Outgoing(nodeID)
	var out []target
	for i := range edges {
		if edges[i].To == targetID || edges[i].Port == targetID {
			out = append(out, target{node: edges[i].To, edge: &edges[i]})
		}
	}
	if len(out) > 0 {
		return out
	}

	if _, ok := st.g.Node(targetID); ok {
		return []target{{node: targetID}}
	}

	e.logger.Warn("routing target does not exist, ending branch",
		zap.String("node_id", nodeID),
		zap.String("target", targetID),
	)
	return nil
}

func allOutgoing(st *runState, nodeID string) []target {
	edges := st.g.Outgoing(nodeID)
	out := make([]target, len(edges))
	for i := range edges {
		out[i] = target{node: edges[i].To, edge: &edges[i]}
	}
	return out
}
