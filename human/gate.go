package human

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// Request describes one pending human input.
type Request struct {
	RunID       string               `json:"run_id"`
	NodeID      string               `json:"node_id"`
	InputType   graph.HumanInputType `json:"input_type"`
	Prompt      string               `json:"prompt"`
	Choices     []string             `json:"choices,omitempty"`
	RequestedAt time.Time            `json:"requested_at"`
}

// Decision is what a Wait returns when the branch resumes.
type Decision struct {
	// Value is the human's input, or the node's default on timeout.
	Value string
	// TimedOut is true when the timeout policy resolved the gate.
	TimedOut bool
	// Fallback means the branch should continue at Target instead of the
	// node's normal outgoing edges.
	Fallback bool
	Target   string
}

type pendingInput struct {
	req  Request
	cfg  *graph.HumanConfig
	ch   chan string
	done chan struct{}
}

// Gate manages pending human inputs across runs. Waits block on a
// per-request channel; Resume validates and delivers the value; cancelling
// a run releases every gate the run holds.
type Gate struct {
	pending map[string]*pendingInput
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewGate creates a human input gate.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		pending: make(map[string]*pendingInput),
		logger:  logger.With(zap.String("component", "human_gate")),
	}
}

func gateKey(runID, nodeID string) string { return runID + "/" + nodeID }

// Wait parks the calling branch until the gate resolves. Resolution is one
// of: a Resume with valid input, the node's timeout policy, or run
// cancellation. The timeout never fires before the configured duration
// elapses.
func (g *Gate) Wait(ctx context.Context, runID, nodeID string, cfg *graph.HumanConfig) (*Decision, error) {
	key := gateKey(runID, nodeID)
	p := &pendingInput{
		req: Request{
			RunID:       runID,
			NodeID:      nodeID,
			InputType:   cfg.InputType,
			Prompt:      cfg.Prompt,
			Choices:     cfg.Choices,
			RequestedAt: time.Now(),
		},
		cfg:  cfg,
		ch:   make(chan string, 1),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	if _, exists := g.pending[key]; exists {
		g.mu.Unlock()
		return nil, types.Errorf(types.ErrInternal, "human gate %s already pending", key).WithNode(nodeID)
	}
	g.pending[key] = p
	g.mu.Unlock()
	defer g.remove(key)

	g.logger.Info("waiting for human input",
		zap.String("run_id", runID),
		zap.String("node_id", nodeID),
		zap.String("input_type", string(cfg.InputType)),
	)

	var timeout <-chan time.Time
	if d := cfg.Timeout.Std(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case value := <-p.ch:
		return &Decision{Value: value}, nil

	case <-p.done:
		return nil, types.NewError(types.ErrRunCancelled, "run cancelled while waiting for human input").WithNode(nodeID)

	case <-ctx.Done():
		return nil, types.NewError(types.ErrRunCancelled, "run cancelled while waiting for human input").
			WithNode(nodeID).WithCause(ctx.Err())

	case <-timeout:
		return g.resolveTimeout(runID, nodeID, cfg)
	}
}

func (g *Gate) resolveTimeout(runID, nodeID string, cfg *graph.HumanConfig) (*Decision, error) {
	g.logger.Warn("human input timed out",
		zap.String("run_id", runID),
		zap.String("node_id", nodeID),
		zap.String("timeout_action", string(cfg.TimeoutAction)),
	)

	switch cfg.TimeoutAction {
	case graph.TimeoutContinue:
		value, _ := types.CoerceString(cfg.DefaultValue)
		return &Decision{Value: value, TimedOut: true}, nil
	case graph.TimeoutFallback:
		return &Decision{TimedOut: true, Fallback: true, Target: cfg.FallbackTarget}, nil
	default: // end_workflow
		return nil, types.Errorf(types.ErrHumanTimeout,
			"human input at %q timed out after %s", nodeID, cfg.Timeout.Std()).WithNode(nodeID)
	}
}

// Resume delivers input to a pending gate. Invalid input leaves the gate
// pending so the caller can retry.
func (g *Gate) Resume(runID, nodeID, value string) error {
	key := gateKey(runID, nodeID)

	g.mu.Lock()
	p, ok := g.pending[key]
	g.mu.Unlock()
	if !ok {
		return types.Errorf(types.ErrRunNotFound, "no pending human input for %s", key)
	}

	if err := validate(p.cfg, value); err != nil {
		return err
	}

	select {
	case p.ch <- value:
		g.logger.Info("human input received",
			zap.String("run_id", runID),
			zap.String("node_id", nodeID),
		)
		return nil
	default:
		return types.Errorf(types.ErrInternal, "gate %s already resolved", key)
	}
}

// Pending lists every outstanding input request, across runs.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p.req)
	}
	return out
}

// CancelRun releases every gate the run holds; their Waits return
// RUN_CANCELLED.
func (g *Gate) CancelRun(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, p := range g.pending {
		if p.req.RunID == runID {
			close(p.done)
			delete(g.pending, key)
		}
	}
}

func (g *Gate) remove(key string) {
	g.mu.Lock()
	delete(g.pending, key)
	g.mu.Unlock()
}

// validate checks the input against the node's declared type and rules.
func validate(cfg *graph.HumanConfig, value string) error {
	if cfg.InputType == graph.InputChoice || cfg.InputType == graph.InputApproval {
		choices := cfg.Choices
		if len(choices) == 0 && cfg.InputType == graph.InputApproval {
			choices = []string{"approve", "reject"}
		}
		for _, c := range choices {
			if value == c {
				return nil
			}
		}
		return types.Errorf(types.ErrInvalidResponse, "%q is not one of the allowed choices %v", value, choices)
	}

	rules := cfg.Validation
	if rules == nil {
		return nil
	}
	if rules.MinLength > 0 && len(value) < rules.MinLength {
		return types.Errorf(types.ErrInvalidResponse, "input shorter than %d characters", rules.MinLength)
	}
	if rules.MaxLength > 0 && len(value) > rules.MaxLength {
		return types.Errorf(types.ErrInvalidResponse, "input longer than %d characters", rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			return types.Errorf(types.ErrGraphConfigInvalid, "invalid validation pattern %q", rules.Pattern).WithCause(err)
		}
		if !re.MatchString(value) {
			return types.NewError(types.ErrInvalidResponse, fmt.Sprintf("input does not match pattern %q", rules.Pattern))
		}
	}
	return nil
}
