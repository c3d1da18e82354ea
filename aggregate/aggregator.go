package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/invoke"
	"github.com/agentgraph/agentgraph/types"
)

// Caller invokes one agent. *invoke.Registry satisfies it.
type Caller interface {
	Invoke(ctx context.Context, req invoke.Request) (*types.AgentResponse, error)
}

// JudgeFunc picks a winner for the ai_judge method. The prompt comes from
// the node config; responses are the collected inputs.
type JudgeFunc func(ctx context.Context, prompt string, responses []types.AgentResponse) (*Result, error)

// Result is the reduced output of an aggregator node.
type Result struct {
	// Output is the winning response text (format-dependent).
	Output string
	// Confidence is the aggregate confidence of the result.
	Confidence float64
	// Method that produced the result. May differ from the configured
	// method when a fallback applied (consensus without agreement reduces
	// via best_confidence).
	Method graph.AggregationMethod
	// Responses are the inputs that survived collection, in arrival order.
	Responses []types.AgentResponse
	// Breakdown carries per-method detail (vote counts, cluster sizes).
	Breakdown map[string]any
}

// Aggregator fans out to the configured input agents and reduces what comes
// back. It is stateless across runs; all per-run state lives on the stack of
// Run.
type Aggregator struct {
	caller         Caller
	judge          JudgeFunc
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New creates an aggregator that invokes agents through caller.
func New(caller Caller, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		caller:         caller,
		defaultTimeout: 60 * time.Second,
		logger:         logger.With(zap.String("component", "aggregator")),
	}
}

// WithJudge installs the external judge used by the ai_judge method.
// Without one, ai_judge reduces via best_confidence.
func (a *Aggregator) WithJudge(judge JudgeFunc) *Aggregator {
	a.judge = judge
	return a
}

// Run collects responses from every configured input and reduces them.
// Failure to reach the minimum input count is INSUFFICIENT_RESPONSES.
func (a *Aggregator) Run(ctx context.Context, nodeID string, cfg *graph.AggregatorConfig, ectx *types.ExecutionContext) (*Result, error) {
	responses, err := a.collect(ctx, nodeID, cfg, ectx)
	if err != nil {
		return nil, err
	}

	result, err := a.reduce(ctx, cfg, responses)
	if err != nil {
		return nil, err
	}
	result.Output = formatOutput(cfg.OutputFormat, result)
	return result, nil
}

// minimumInputs resolves the effective quorum: require_all_inputs and an
// unset minimum both mean every configured input.
func minimumInputs(cfg *graph.AggregatorConfig) int {
	if cfg.RequireAllInputs || cfg.MinimumInputs <= 0 {
		return len(cfg.Inputs)
	}
	if cfg.MinimumInputs > len(cfg.Inputs) {
		return len(cfg.Inputs)
	}
	return cfg.MinimumInputs
}

type arrival struct {
	agentID  string
	required bool
	resp     *types.AgentResponse
	err      error
}

// collect invokes every input concurrently and returns once the quorum is
// met and all required agents have answered, or once every call has
// resolved. Stragglers are cancelled on early completion.
func (a *Aggregator) collect(ctx context.Context, nodeID string, cfg *graph.AggregatorConfig, ectx *types.ExecutionContext) ([]types.AgentResponse, error) {
	if len(cfg.Inputs) == 0 {
		return nil, types.NewError(types.ErrGraphConfigInvalid, "aggregator has no inputs").WithNode(nodeID)
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt, _ := ectx.GetString(types.KeyContent)
	snapshot := ectx.Snapshot()

	arrivals := make(chan arrival, len(cfg.Inputs))
	g, gctx := errgroup.WithContext(callCtx)
	for _, in := range cfg.Inputs {
		in := in
		g.Go(func() error {
			resp, err := a.caller.Invoke(gctx, invoke.Request{
				AgentID: in.AgentID,
				Prompt:  prompt,
				Context: snapshot,
			})
			arrivals <- arrival{agentID: in.AgentID, required: in.Required, resp: resp, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait() // workers never return errors
		close(arrivals)
	}()

	quorum := minimumInputs(cfg)
	pendingRequired := make(map[string]struct{})
	for _, in := range cfg.Inputs {
		if in.Required {
			pendingRequired[in.AgentID] = struct{}{}
		}
	}

	var responses []types.AgentResponse
	for got := range arrivals {
		if got.err != nil {
			a.logger.Warn("aggregator input failed",
				zap.String("node_id", nodeID),
				zap.String("agent_id", got.agentID),
				zap.Error(got.err),
			)
			if got.required {
				// A required agent failing means the quorum can never
				// complete; fail fast instead of waiting out the deadline.
				return nil, types.Errorf(types.ErrInsufficientResponses,
					"required agent %q failed", got.agentID).WithNode(nodeID).WithCause(got.err)
			}
			continue
		}
		responses = append(responses, *got.resp)
		delete(pendingRequired, got.agentID)

		if len(responses) >= quorum && len(pendingRequired) == 0 {
			cancel()
			a.logger.Debug("aggregator quorum reached",
				zap.String("node_id", nodeID),
				zap.Int("responses", len(responses)),
				zap.Int("quorum", quorum),
			)
			return responses, nil
		}
	}

	if len(responses) < quorum {
		return nil, types.Errorf(types.ErrInsufficientResponses,
			"received %d of %d responses, need %d", len(responses), len(cfg.Inputs), quorum).WithNode(nodeID)
	}
	return responses, nil
}
