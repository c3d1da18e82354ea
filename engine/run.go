package engine

import (
	"context"
	"sync"
	"time"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// Status is the run lifecycle state.
type Status string

const (
	StatusRunning      Status = "running"
	StatusWaitingHuman Status = "waiting_human"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Visit records one node activation.
type Visit struct {
	NodeID string         `json:"node_id"`
	Kind   graph.NodeKind `json:"kind"`
	At     time.Time      `json:"at"`
}

// Run is one execution of a graph.
type Run struct {
	ID        string
	SessionID string
	UserID    string
	GraphName string

	Context *types.ExecutionContext

	status        Status
	waitingGates  int
	visited       []Visit
	startedAt     time.Time
	endedAt       time.Time
	failureCode   types.ErrorCode
	failureReason string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// Snapshot is the externally visible state of a run.
type Snapshot struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	GraphName     string          `json:"graph_name"`
	Status        Status          `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at,omitempty"`
	FailureCode   types.ErrorCode `json:"failure_code,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Context       map[string]any  `json:"context"`
	Visited       []Visit         `json:"visited"`
}

func newRun(id, sessionID, userID, graphName string, input map[string]any) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	return &Run{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		GraphName: graphName,
		Context:   types.NewExecutionContext(input),
		status:    StatusRunning,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Done is closed when the run reaches a terminal status.
func (r *Run) Done() <-chan struct{} { return r.done }

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Snapshot captures the run state for callers.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	visited := make([]Visit, len(r.visited))
	copy(visited, r.visited)
	return Snapshot{
		ID:            r.ID,
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		GraphName:     r.GraphName,
		Status:        r.status,
		StartedAt:     r.startedAt,
		EndedAt:       r.endedAt,
		FailureCode:   r.failureCode,
		FailureReason: r.failureReason,
		Context:       r.Context.Snapshot(),
		Visited:       visited,
	}
}

func (r *Run) recordVisit(nodeID string, kind graph.NodeKind) {
	r.mu.Lock()
	r.visited = append(r.visited, Visit{NodeID: nodeID, Kind: kind, At: time.Now()})
	r.mu.Unlock()
}

// visitedNodes returns the activation trace node ids, in order.
func (r *Run) visitedNodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.visited))
	for i, v := range r.visited {
		out[i] = v.NodeID
	}
	return out
}

func (r *Run) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.endedAt.IsZero() {
		return r.endedAt.Sub(r.startedAt)
	}
	return time.Since(r.startedAt)
}

// setWaiting tracks how many branches are parked at gates; the run is
// waiting_human while any gate is outstanding. Terminal states win.
func (r *Run) setWaiting(waiting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if waiting {
		r.waitingGates++
	} else if r.waitingGates > 0 {
		r.waitingGates--
	}
	if r.status.Terminal() {
		return
	}
	if r.waitingGates > 0 {
		r.status = StatusWaitingHuman
	} else {
		r.status = StatusRunning
	}
}

// finish moves the run to a terminal status. The first terminal transition
// wins; later ones are ignored.
func (r *Run) finish(status Status, code types.ErrorCode, reason string) bool {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return false
	}
	r.status = status
	r.failureCode = code
	r.failureReason = reason
	r.endedAt = time.Now()
	r.mu.Unlock()

	r.cancel()
	close(r.done)
	return true
}
