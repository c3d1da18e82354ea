package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes engine counters to Prometheus.
type Collector struct {
	runsTotal           *prometheus.CounterVec
	nodeVisitsTotal     *prometheus.CounterVec
	agentLatencySeconds *prometheus.HistogramVec
	guardrailViolations *prometheus.CounterVec
	alertsTotal         *prometheus.CounterVec
	humanWaitSeconds    prometheus.Histogram
}

// NewCollector creates and registers the engine metrics. Pass
// prometheus.DefaultRegisterer outside tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "runs_total",
			Help:      "Completed workflow runs by terminal status.",
		}, []string{"status"}),
		nodeVisitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "node_visits_total",
			Help:      "Node activations by node kind.",
		}, []string{"kind"}),
		agentLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Name:      "agent_latency_seconds",
			Help:      "Agent invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent_id"}),
		guardrailViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "guardrail_violations_total",
			Help:      "Guardrail rule violations by severity.",
		}, []string{"severity"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "alerts_total",
			Help:      "Monitor alerts by action.",
		}, []string{"action"}),
		humanWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Name:      "human_wait_seconds",
			Help:      "Time branches spend parked at human gates.",
			Buckets:   []float64{1, 5, 15, 60, 300, 1800, 7200},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.runsTotal,
			c.nodeVisitsTotal,
			c.agentLatencySeconds,
			c.guardrailViolations,
			c.alertsTotal,
			c.humanWaitSeconds,
		)
	}
	return c
}

func (c *Collector) RunCompleted(status string) {
	c.runsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) NodeVisited(kind string) {
	c.nodeVisitsTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) AgentLatency(agentID string, d time.Duration) {
	c.agentLatencySeconds.WithLabelValues(agentID).Observe(d.Seconds())
}

func (c *Collector) GuardrailViolation(severity string) {
	c.guardrailViolations.WithLabelValues(severity).Inc()
}

func (c *Collector) AlertFired(action string) {
	c.alertsTotal.WithLabelValues(action).Inc()
}

func (c *Collector) HumanWait(d time.Duration) {
	c.humanWaitSeconds.Observe(d.Seconds())
}
