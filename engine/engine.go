package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/aggregate"
	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/human"
	"github.com/agentgraph/agentgraph/invoke"
	"github.com/agentgraph/agentgraph/memstore"
	"github.com/agentgraph/agentgraph/monitor"
	"github.com/agentgraph/agentgraph/route"
	"github.com/agentgraph/agentgraph/types"
)

// defaultMaxHops bounds node activations per run so cyclic graphs always
// terminate.
const defaultMaxHops = 256

// TraceStore persists terminal runs. Implementations must be safe for
// concurrent use; a failed save is logged and does not affect the run.
type TraceStore interface {
	SaveRun(ctx context.Context, snapshot Snapshot) error
	LoadRun(ctx context.Context, runID string) (*Snapshot, error)
}

// Options wires the engine's collaborators. Invoker is required; everything
// else has a working default.
type Options struct {
	// Invoker calls agent runtimes. Required.
	Invoker *invoke.Registry
	// Memory backs memory nodes. Defaults to an in-process store.
	Memory *memstore.Store
	// Monitor runs monitor nodes. Defaults to one with no channels.
	Monitor *monitor.Monitor
	// Metrics receives engine counters. Optional.
	Metrics *monitor.Collector
	// Traces persists terminal runs. Optional.
	Traces TraceStore
	// Judge backs the ai_judge aggregation method. Optional.
	Judge aggregate.JudgeFunc
	// MaxHops bounds node activations per run. Defaults to 256.
	MaxHops int
	Logger  *zap.Logger
}

// Engine executes orchestration graphs and owns the run registry.
type Engine struct {
	invoker    *invoke.Registry
	selector   *route.Selector
	gate       *human.Gate
	memory     *memstore.Store
	monitor    *monitor.Monitor
	metrics    *monitor.Collector
	aggregator *aggregate.Aggregator
	traces     TraceStore
	maxHops    int
	logger     *zap.Logger

	runs   map[string]*Run
	runsMu sync.RWMutex
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Invoker == nil {
		return nil, types.NewError(types.ErrGraphConfigInvalid, "engine requires an invoker registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	memory := opts.Memory
	if memory == nil {
		memory = memstore.NewStore(memstore.NewInMemory(), logger)
	}
	mon := opts.Monitor
	if mon == nil {
		mon = monitor.New(logger)
	}
	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	agg := aggregate.New(opts.Invoker, logger)
	if opts.Judge != nil {
		agg = agg.WithJudge(opts.Judge)
	}

	return &Engine{
		invoker:    opts.Invoker,
		selector:   route.NewSelector(logger),
		gate:       human.NewGate(logger),
		memory:     memory,
		monitor:    mon,
		metrics:    opts.Metrics,
		aggregator: agg,
		traces:     opts.Traces,
		maxHops:    maxHops,
		logger:     logger.With(zap.String("component", "engine")),
		runs:       make(map[string]*Run),
	}, nil
}

// StartOptions parameterize one run.
type StartOptions struct {
	// Input seeds the execution context.
	Input map[string]any
	// SessionID anchors session-scoped memory. Defaults to the run id.
	SessionID string
	// UserID anchors user-scoped memory.
	UserID string
}

// StartRun validates the graph, registers a new run and begins executing it
// asynchronously. The returned run is live; watch Done() or poll
// GetRunStatus for the terminal state.
func (e *Engine) StartRun(ctx context.Context, g *graph.Graph, opts StartOptions) (*Run, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = runID
	}
	run := newRun(runID, sessionID, opts.UserID, g.Name, opts.Input)

	e.runsMu.Lock()
	e.runs[runID] = run
	e.runsMu.Unlock()

	e.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("graph", g.Name),
		zap.Int("nodes", g.Len()),
	)

	go e.execute(run, g)
	return run, nil
}

// GetRunStatus returns the current snapshot of a run.
func (e *Engine) GetRunStatus(runID string) (Snapshot, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return Snapshot{}, err
	}
	return run.Snapshot(), nil
}

// ListRuns snapshots every known run, newest first by start time.
func (e *Engine) ListRuns() []Snapshot {
	e.runsMu.RLock()
	runs := make([]*Run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.runsMu.RUnlock()

	out := make([]Snapshot, len(runs))
	for i, r := range runs {
		out[i] = r.Snapshot()
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartedAt.After(out[j-1].StartedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ResumeHuman delivers input to a run parked at a human gate.
func (e *Engine) ResumeHuman(runID, nodeID, value string) error {
	if _, err := e.getRun(runID); err != nil {
		return err
	}
	return e.gate.Resume(runID, nodeID, value)
}

// PendingInputs lists outstanding human input requests across runs.
func (e *Engine) PendingInputs() []human.Request {
	return e.gate.Pending()
}

// CancelRun stops a run. In-flight node work is cancelled, parked human
// gates are released, and workflow-scoped memory is dropped. Cancelling a
// terminal run is a no-op.
func (e *Engine) CancelRun(runID string) error {
	run, err := e.getRun(runID)
	if err != nil {
		return err
	}
	e.terminate(run, StatusCancelled, types.ErrRunCancelled, "cancelled by caller")
	return nil
}

func (e *Engine) getRun(runID string) (*Run, error) {
	e.runsMu.RLock()
	run, ok := e.runs[runID]
	e.runsMu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrRunNotFound, "run %q not found", runID)
	}
	return run, nil
}

// terminate moves a run to a terminal state exactly once and performs
// end-of-run cleanup.
func (e *Engine) terminate(run *Run, status Status, code types.ErrorCode, reason string) {
	if !run.finish(status, code, reason) {
		return
	}

	e.gate.CancelRun(run.ID)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.memory.ClearRun(cleanupCtx, run.ID); err != nil {
		e.logger.Warn("workflow memory cleanup failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.RunCompleted(string(status))
	}

	snapshot := run.Snapshot()
	if e.traces != nil {
		if err := e.traces.SaveRun(cleanupCtx, snapshot); err != nil {
			e.logger.Warn("run trace persistence failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	e.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.String("failure_code", string(code)),
		zap.Duration("elapsed", run.elapsed()),
		zap.Int("nodes_visited", len(snapshot.Visited)),
	)
}

// probeFor exposes run metrics to monitor nodes: any numeric context field
// by name, plus the built-ins elapsed_ms and nodes_visited.
func (e *Engine) probeFor(run *Run) monitor.Probe {
	return func(name string) (float64, bool) {
		switch name {
		case "elapsed_ms":
			return float64(run.elapsed().Milliseconds()), true
		case "nodes_visited":
			return float64(len(run.visitedNodes())), true
		default:
			return run.Context.GetFloat(name)
		}
	}
}
