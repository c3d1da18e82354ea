package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
)

// Probe reads the current value of a named metric. The engine backs it
// with execution-context fields plus the built-ins elapsed_ms and
// nodes_visited.
type Probe func(name string) (float64, bool)

// Alert is one threshold breach notification.
type Alert struct {
	ID        string             `json:"id"`
	RunID     string             `json:"run_id"`
	NodeID    string             `json:"node_id"`
	Metric    string             `json:"metric"`
	Value     float64            `json:"value"`
	Threshold string             `json:"threshold"`
	Action    graph.MetricAction `json:"action"`
	At        time.Time          `json:"at"`
}

// AlertChannel delivers alerts. Delivery is fire-and-forget: failures are
// the channel's problem to log, never the run's.
type AlertChannel interface {
	Send(ctx context.Context, alert Alert)
}

// Breach is one threshold violation found in a sample.
type Breach struct {
	Metric    string
	Value     float64
	Threshold string
	Action    graph.MetricAction
}

// Monitor owns the alert channels and runs monitor-node watch loops.
type Monitor struct {
	channels map[string]AlertChannel
	logger   *zap.Logger
	mu       sync.RWMutex
}

// New creates a monitor.
func New(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		channels: make(map[string]AlertChannel),
		logger:   logger.With(zap.String("component", "monitor")),
	}
}

// RegisterChannel binds a named alert channel.
func (m *Monitor) RegisterChannel(name string, ch AlertChannel) {
	m.mu.Lock()
	m.channels[name] = ch
	m.mu.Unlock()
}

// Evaluate samples every declared metric once and returns the breaches, in
// metric order. Metrics the probe cannot resolve are skipped.
func (m *Monitor) Evaluate(metrics []graph.MetricSpec, probe Probe) []Breach {
	var breaches []Breach
	for _, spec := range metrics {
		value, ok := probe(spec.Name)
		if !ok {
			continue
		}
		if spec.Min != nil && value < *spec.Min {
			breaches = append(breaches, Breach{
				Metric: spec.Name, Value: value, Action: spec.Action,
				Threshold: fmt.Sprintf("min %v", *spec.Min),
			})
			continue
		}
		if spec.Max != nil && value > *spec.Max {
			breaches = append(breaches, Breach{
				Metric: spec.Name, Value: value, Action: spec.Action,
				Threshold: fmt.Sprintf("max %v", *spec.Max),
			})
		}
	}
	return breaches
}

// Watch samples the node's metrics on its reporting interval until ctx is
// cancelled or a stop_workflow breach fires. stop aborts the run; escalate
// routes to escalate, which the engine maps to a human gate.
func (m *Monitor) Watch(ctx context.Context, runID, nodeID string, cfg *graph.MonitorConfig, probe Probe, stop func(reason string), escalate func(Breach)) {
	interval := cfg.ReportingInterval.Std()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("monitor watching",
		zap.String("run_id", runID),
		zap.String("node_id", nodeID),
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.handle(ctx, runID, nodeID, cfg, m.Evaluate(cfg.Metrics, probe), stop, escalate) {
				return
			}
		}
	}
}

// handle dispatches breaches; reports true when the watch should end.
func (m *Monitor) handle(ctx context.Context, runID, nodeID string, cfg *graph.MonitorConfig, breaches []Breach, stop func(string), escalate func(Breach)) bool {
	for _, b := range breaches {
		alert := Alert{
			ID:        uuid.NewString(),
			RunID:     runID,
			NodeID:    nodeID,
			Metric:    b.Metric,
			Value:     b.Value,
			Threshold: b.Threshold,
			Action:    b.Action,
			At:        time.Now(),
		}
		m.dispatch(ctx, cfg.Channels, alert)

		switch b.Action {
		case graph.MetricStop:
			if stop != nil {
				stop(fmt.Sprintf("metric %s breached %s with %v", b.Metric, b.Threshold, b.Value))
			}
			return true
		case graph.MetricEscalate:
			if escalate != nil {
				escalate(b)
			}
		}
	}
	return false
}

func (m *Monitor) dispatch(ctx context.Context, names []string, alert Alert) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := names
	if len(targets) == 0 {
		targets = make([]string, 0, len(m.channels))
		for name := range m.channels {
			targets = append(targets, name)
		}
	}
	for _, name := range targets {
		ch, ok := m.channels[name]
		if !ok {
			m.logger.Warn("unknown alert channel", zap.String("channel", name))
			continue
		}
		ch.Send(ctx, alert)
	}
}
