// Package agentgraph provides a top-level convenience entry point for
// assembling an orchestration runtime with minimal boilerplate.
//
// Usage:
//
//	import "github.com/agentgraph/agentgraph"
//
//	rt, err := agentgraph.New(
//	    agentgraph.WithAgent("researcher", researchFn),
//	    agentgraph.WithAgent("writer", writeFn),
//	)
//	defer rt.Close(ctx)
//	run, err := rt.Engine.StartRun(ctx, g, engine.StartOptions{Input: input})
//
// This is a thin wrapper over the engine, invoke, memstore, monitor and
// store packages; applications needing finer control wire those directly.
package agentgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/aggregate"
	"github.com/agentgraph/agentgraph/config"
	"github.com/agentgraph/agentgraph/engine"
	"github.com/agentgraph/agentgraph/internal/telemetry"
	"github.com/agentgraph/agentgraph/invoke"
	"github.com/agentgraph/agentgraph/memstore"
	"github.com/agentgraph/agentgraph/monitor"
	"github.com/agentgraph/agentgraph/store"
)

// Runtime bundles a ready engine with the resources it owns. Close releases
// them.
type Runtime struct {
	Engine *engine.Engine
	Config *config.Config
	Logger *zap.Logger

	providers *telemetry.Providers
	redis     *redis.Client
}

type options struct {
	cfg        *config.Config
	logger     *zap.Logger
	agents     map[string]invoke.Invoker
	judge      aggregate.JudgeFunc
	metricsReg prometheus.Registerer
	traceStore engine.TraceStore
}

// Option configures the runtime created by [New].
type Option func(*options)

// WithConfig supplies a resolved configuration. Defaults to
// [config.Default].
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger overrides the logger built from the log configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAgent registers an in-process agent function. Code-registered agents
// take precedence over configured HTTP endpoints with the same id.
func WithAgent(id string, fn invoke.Func) Option {
	return func(o *options) { o.agents[id] = fn }
}

// WithInvoker registers a custom invoker for one agent id.
func WithInvoker(id string, inv invoke.Invoker) Option {
	return func(o *options) { o.agents[id] = inv }
}

// WithJudge supplies the judge backing ai_judge aggregation.
func WithJudge(judge aggregate.JudgeFunc) Option {
	return func(o *options) { o.judge = judge }
}

// WithMetricsRegistry registers the engine's Prometheus collectors on reg.
// Without it the collectors exist but are not exported.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.metricsReg = reg }
}

// WithTraceStore overrides the trace store the configuration would open.
func WithTraceStore(ts engine.TraceStore) Option {
	return func(o *options) { o.traceStore = ts }
}

// New assembles a runtime from the configuration: agent registry, memory
// backend, monitor channels, optional trace persistence and telemetry.
func New(opts ...Option) (*Runtime, error) {
	o := &options{agents: make(map[string]invoke.Invoker)}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	logger := o.logger
	if logger == nil {
		logger = cfg.Log.BuildLogger()
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	registry := invoke.NewRegistry(cfg.Engine.AgentTimeout, logger)
	for id, ep := range cfg.Agents {
		client := &http.Client{Timeout: ep.Timeout}
		var inv invoke.Invoker = invoke.NewHTTPInvoker(ep.URL, client, logger)
		if ep.RPS > 0 {
			inv = invoke.NewRateLimited(inv, ep.RPS, ep.Burst)
		}
		registry.Register(id, inv)
	}
	for id, inv := range o.agents {
		registry.Register(id, inv)
	}

	var redisClient *redis.Client
	var backend memstore.Backend
	switch cfg.Memory.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Memory.Redis.Addr,
			Password:     cfg.Memory.Redis.Password,
			DB:           cfg.Memory.Redis.DB,
			PoolSize:     cfg.Memory.Redis.PoolSize,
			MinIdleConns: cfg.Memory.Redis.MinIdleConns,
		})
		backend = memstore.NewRedis(redisClient)
	default:
		backend = memstore.NewInMemory()
	}

	mon := monitor.New(logger)
	mon.RegisterChannel("log", monitor.NewLogChannel(logger))
	for i, url := range cfg.Alerts.Webhooks {
		mon.RegisterChannel(fmt.Sprintf("webhook_%d", i), monitor.NewWebhookChannel(url, logger))
	}

	traces := o.traceStore
	if traces == nil && cfg.Trace.Enabled {
		ts, err := store.Open(cfg.Trace.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open trace store: %w", err)
		}
		traces = ts
	}

	eng, err := engine.New(engine.Options{
		Invoker: registry,
		Memory:  memstore.NewStore(backend, logger),
		Monitor: mon,
		Metrics: monitor.NewCollector(o.metricsReg),
		Traces:  traces,
		Judge:   o.judge,
		MaxHops: cfg.Engine.MaxHops,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Engine:    eng,
		Config:    cfg,
		Logger:    logger,
		providers: providers,
		redis:     redisClient,
	}, nil
}

// Close flushes telemetry and releases the runtime's connections.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.providers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
