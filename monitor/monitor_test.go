package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentgraph/agentgraph/graph"
)

type captureChannel struct {
	alerts []Alert
	mu     sync.Mutex
}

func (c *captureChannel) Send(_ context.Context, alert Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, alert)
	c.mu.Unlock()
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func f(v float64) *float64 { return &v }

func staticProbe(values map[string]float64) Probe {
	return func(name string) (float64, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestEvaluate(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	metrics := []graph.MetricSpec{
		{Name: "confidence", Min: f(0.5), Action: graph.MetricAlert},
		{Name: "elapsed_ms", Max: f(1000), Action: graph.MetricStop},
		{Name: "unknown_metric", Max: f(1)},
	}

	breaches := m.Evaluate(metrics, staticProbe(map[string]float64{
		"confidence": 0.3,
		"elapsed_ms": 250,
	}))
	require.Len(t, breaches, 1, "in-range metrics and unresolvable metrics do not breach")
	assert.Equal(t, "confidence", breaches[0].Metric)
	assert.Equal(t, "min 0.5", breaches[0].Threshold)

	breaches = m.Evaluate(metrics, staticProbe(map[string]float64{
		"confidence": 0.9,
		"elapsed_ms": 5000,
	}))
	require.Len(t, breaches, 1)
	assert.Equal(t, graph.MetricStop, breaches[0].Action)
}

func TestEvaluate_BoundaryIsNotABreach(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	metrics := []graph.MetricSpec{{Name: "v", Min: f(0.5), Max: f(1.0)}}

	assert.Empty(t, m.Evaluate(metrics, staticProbe(map[string]float64{"v": 0.5})))
	assert.Empty(t, m.Evaluate(metrics, staticProbe(map[string]float64{"v": 1.0})))
}

func TestWatch_StopAction(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	capture := &captureChannel{}
	m.RegisterChannel("ops", capture)

	cfg := &graph.MonitorConfig{
		Metrics:           []graph.MetricSpec{{Name: "errors", Max: f(0), Action: graph.MetricStop}},
		Channels:          []string{"ops"},
		ReportingInterval: graph.Duration(10 * time.Millisecond),
	}

	var stopReason string
	done := make(chan struct{})
	go func() {
		m.Watch(context.Background(), "run-1", "mon", cfg,
			staticProbe(map[string]float64{"errors": 3}),
			func(reason string) { stopReason = reason },
			nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on a stop_workflow breach")
	}
	assert.Contains(t, stopReason, "errors")
	assert.GreaterOrEqual(t, capture.count(), 1, "the alert still goes out before the stop")
}

func TestWatch_EscalateAndCancel(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	cfg := &graph.MonitorConfig{
		Metrics:           []graph.MetricSpec{{Name: "lag", Max: f(10), Action: graph.MetricEscalate}},
		ReportingInterval: graph.Duration(10 * time.Millisecond),
	}

	var escalations int
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, "run-1", "mon", cfg,
			staticProbe(map[string]float64{"lag": 50}),
			nil,
			func(Breach) { mu.Lock(); escalations++; mu.Unlock() })
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return escalations >= 2
	}, 2*time.Second, 5*time.Millisecond, "escalation does not end the watch")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not exit on context cancellation")
	}
}

func TestDispatch_DefaultsToAllChannels(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	a, b := &captureChannel{}, &captureChannel{}
	m.RegisterChannel("a", a)
	m.RegisterChannel("b", b)

	m.dispatch(context.Background(), nil, Alert{ID: "x"})
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	m.dispatch(context.Background(), []string{"b", "missing"}, Alert{ID: "y"})
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, b.count())
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestWebhookChannel(t *testing.T) {
	received := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, decodeJSON(r, &alert))
		received <- alert
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, zaptest.NewLogger(t))
	ch.Send(context.Background(), Alert{ID: "a-1", Metric: "lag", Value: 9})

	select {
	case alert := <-received:
		assert.Equal(t, "a-1", alert.ID)
		assert.Equal(t, "lag", alert.Metric)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RunCompleted("completed")
	c.RunCompleted("completed")
	c.RunCompleted("failed")
	c.NodeVisited("agent")
	c.GuardrailViolation("high")
	c.AgentLatency("writer", 120*time.Millisecond)
	c.AlertFired("alert")
	c.HumanWait(3 * time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.nodeVisitsTotal.WithLabelValues("agent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.guardrailViolations.WithLabelValues("high")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}
