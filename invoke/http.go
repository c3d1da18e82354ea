package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/types"
)

// HTTPInvoker calls a hosted agent runtime over HTTP. The wire contract is
// a JSON POST of {agent_id, prompt, context} answered with
// {output, confidence}. Timeouts and cancellation ride on the request
// context supplied by the registry.
type HTTPInvoker struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type httpRequest struct {
	AgentID string         `json:"agent_id"`
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
}

type httpResponse struct {
	Output     string  `json:"output"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewHTTPInvoker creates an invoker for the given endpoint. A nil client
// falls back to http.DefaultClient; per-call deadlines come from the
// request context.
func NewHTTPInvoker(endpoint string, client *http.Client, logger *zap.Logger) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPInvoker{
		endpoint: endpoint,
		client:   client,
		logger:   logger.With(zap.String("component", "http_invoker")),
	}
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) (*types.AgentResponse, error) {
	body, err := json.Marshal(httpRequest{
		AgentID: req.AgentID,
		Prompt:  req.Prompt,
		Context: req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		// Preserve deadline errors so the registry classifies them as
		// timeouts rather than transport failures.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Errorf(types.ErrAgentUnreachable,
			"agent endpoint %s returned status %d", h.endpoint, resp.StatusCode)
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrInvalidResponse, "malformed agent payload").WithCause(err)
	}
	if out.Error != "" {
		return nil, types.Errorf(types.ErrInvalidResponse, "agent error: %s", out.Error)
	}

	return &types.AgentResponse{Output: out.Output, Confidence: out.Confidence}, nil
}
