package invoke

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentgraph/agentgraph/types"
)

func echoAgent(output string, confidence float64) Func {
	return func(ctx context.Context, req Request) (*types.AgentResponse, error) {
		return &types.AgentResponse{Output: output, Confidence: confidence}, nil
	}
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.RegisterFunc("echo", echoAgent("hello", 0.8))

	resp, err := r.Invoke(context.Background(), Request{AgentID: "echo", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Output)
	assert.Equal(t, "echo", resp.AgentID)
	assert.Equal(t, 0.8, resp.Confidence)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(0))
}

func TestRegistry_Invoke_Unregistered(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))

	_, err := r.Invoke(context.Background(), Request{AgentID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnreachable, types.GetErrorCode(err))
}

func TestRegistry_Invoke_Timeout(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.RegisterFunc("slow", func(ctx context.Context, req Request) (*types.AgentResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := r.Invoke(context.Background(), Request{AgentID: "slow", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentTimeout, types.GetErrorCode(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must not block past the deadline")
}

func TestRegistry_Invoke_EmptyResponse(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.RegisterFunc("empty", echoAgent("", 0))

	_, err := r.Invoke(context.Background(), Request{AgentID: "empty"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidResponse, types.GetErrorCode(err))
}

func TestRegistry_Invoke_ConfidenceOutOfRange(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.RegisterFunc("overconfident", echoAgent("sure", 1.5))

	_, err := r.Invoke(context.Background(), Request{AgentID: "overconfident"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidResponse, types.GetErrorCode(err))
}

func TestRegistry_Invoke_TransportError(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.RegisterFunc("down", func(ctx context.Context, req Request) (*types.AgentResponse, error) {
		return nil, errors.New("connection refused")
	})

	_, err := r.Invoke(context.Background(), Request{AgentID: "down"})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnreachable, types.GetErrorCode(err))
}

func TestRateLimited_WaitsForToken(t *testing.T) {
	inner := echoAgent("ok", 0.5)
	// 1 rps with burst 1: the second call must wait roughly a second, far
	// longer than the 50ms deadline we give it.
	limited := NewRateLimited(inner, 1, 1)

	_, err := limited.Invoke(context.Background(), Request{AgentID: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Invoke(ctx, Request{AgentID: "a"})
	require.Error(t, err)
}

func TestHTTPInvoker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output": "remote answer", "confidence": 0.7}`))
	}))
	defer srv.Close()

	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.Register("remote", NewHTTPInvoker(srv.URL, srv.Client(), zaptest.NewLogger(t)))

	resp, err := r.Invoke(context.Background(), Request{AgentID: "remote", Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "remote answer", resp.Output)
	assert.Equal(t, 0.7, resp.Confidence)
}

func TestHTTPInvoker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, srv.Client(), zaptest.NewLogger(t))
	_, err := inv.Invoke(context.Background(), Request{AgentID: "remote"})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnreachable, types.GetErrorCode(err))
}

func TestHTTPInvoker_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output": `))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, srv.Client(), zaptest.NewLogger(t))
	_, err := inv.Invoke(context.Background(), Request{AgentID: "remote"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidResponse, types.GetErrorCode(err))
}
