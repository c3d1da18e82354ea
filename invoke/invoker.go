package invoke

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/types"
)

// Request carries one agent invocation.
type Request struct {
	// AgentID names the agent runtime to call.
	AgentID string
	// Prompt is the instruction forwarded to the agent.
	Prompt string
	// Context is a snapshot of the execution context visible to the agent.
	Context map[string]any
	// Timeout bounds the call. Zero means the registry default.
	Timeout time.Duration
}

// Invoker calls one agent runtime. Implementations must honor context
// cancellation; the registry enforces the deadline around them regardless.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*types.AgentResponse, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, req Request) (*types.AgentResponse, error)

// Invoke implements Invoker.
func (f Func) Invoke(ctx context.Context, req Request) (*types.AgentResponse, error) {
	return f(ctx, req)
}

// Registry maps agent ids to their invokers and wraps every call with
// timeout enforcement, latency measurement and error classification. A call
// never blocks past its deadline and never panics into the caller; all
// failures surface as structured errors the calling node decides how to
// handle.
type Registry struct {
	invokers       map[string]Invoker
	defaultTimeout time.Duration
	logger         *zap.Logger
	mu             sync.RWMutex
}

// NewRegistry creates an invoker registry.
func NewRegistry(defaultTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Registry{
		invokers:       make(map[string]Invoker),
		defaultTimeout: defaultTimeout,
		logger:         logger.With(zap.String("component", "invoke_registry")),
	}
}

// Register binds an agent id to an invoker, replacing any previous binding.
func (r *Registry) Register(agentID string, invoker Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[agentID] = invoker
	r.logger.Info("registered agent", zap.String("agent_id", agentID))
}

// RegisterFunc binds an agent id to a plain function.
func (r *Registry) RegisterFunc(agentID string, fn Func) {
	r.Register(agentID, fn)
}

// Agents returns the registered agent ids.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.invokers))
	for id := range r.invokers {
		out = append(out, id)
	}
	return out
}

// Invoke calls the agent bound to req.AgentID. The call is bounded by
// req.Timeout (or the registry default); on expiry it returns AGENT_TIMEOUT
// rather than blocking. An unknown agent or transport failure is
// AGENT_UNREACHABLE; a nil or empty response is INVALID_AGENT_RESPONSE.
func (r *Registry) Invoke(ctx context.Context, req Request) (*types.AgentResponse, error) {
	r.mu.RLock()
	invoker, ok := r.invokers[req.AgentID]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrAgentUnreachable, "agent %q is not registered", req.AgentID)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := invoker.Invoke(callCtx, req)
	latency := time.Since(start)

	if err != nil {
		return nil, r.classify(req.AgentID, timeout, err)
	}
	if resp == nil || resp.Output == "" {
		return nil, types.Errorf(types.ErrInvalidResponse, "agent %q returned an empty response", req.AgentID)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return nil, types.Errorf(types.ErrInvalidResponse,
			"agent %q reported confidence %v outside [0,1]", req.AgentID, resp.Confidence)
	}

	resp.AgentID = req.AgentID
	resp.LatencyMs = latency.Milliseconds()

	r.logger.Debug("agent invoked",
		zap.String("agent_id", req.AgentID),
		zap.Duration("latency", latency),
		zap.Float64("confidence", resp.Confidence),
	)
	return resp, nil
}

func (r *Registry) classify(agentID string, timeout time.Duration, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.Errorf(types.ErrAgentTimeout, "agent %q timed out after %s", agentID, timeout).WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrRunCancelled, "invocation cancelled").WithCause(err)
	case types.GetErrorCode(err) != "":
		return err
	default:
		return types.Errorf(types.ErrAgentUnreachable, "agent %q call failed", agentID).WithCause(err)
	}
}
