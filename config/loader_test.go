package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 256, cfg.Engine.MaxHops)
	assert.Equal(t, 60*time.Second, cfg.Engine.AgentTimeout)
	assert.Equal(t, "memory", cfg.Memory.Backend)
	assert.False(t, cfg.Trace.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: console
engine:
  max_hops: 64
  agent_timeout: 15s
memory:
  backend: redis
  redis:
    addr: redis.internal:6379
agents:
  researcher:
    url: http://agents.internal/researcher
    rps: 5
    burst: 10
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Engine.MaxHops)
	assert.Equal(t, 15*time.Second, cfg.Engine.AgentTimeout)
	assert.Equal(t, "redis", cfg.Memory.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Memory.Redis.Addr)
	require.Contains(t, cfg.Agents, "researcher")
	assert.Equal(t, 5.0, cfg.Agents["researcher"].RPS)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	t.Setenv("AGENTGRAPH_LOG_LEVEL", "error")
	t.Setenv("AGENTGRAPH_ENGINE_MAX_HOPS", "32")
	t.Setenv("AGENTGRAPH_ENGINE_AGENT_TIMEOUT", "90s")
	t.Setenv("AGENTGRAPH_ALERTS_WEBHOOKS", "http://a.example/hook, http://b.example/hook")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 32, cfg.Engine.MaxHops)
	assert.Equal(t, 90*time.Second, cfg.Engine.AgentTimeout)
	assert.Equal(t, []string{"http://a.example/hook", "http://b.example/hook"}, cfg.Alerts.Webhooks)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/agentgraph.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Engine.MaxHops)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero max hops", func(c *Config) { c.Engine.MaxHops = 0 }, "max_hops"},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "dynamo" }, "memory.backend"},
		{"redis without addr", func(c *Config) {
			c.Memory.Backend = "redis"
			c.Memory.Redis.Addr = ""
		}, "redis.addr"},
		{"trace without path", func(c *Config) {
			c.Trace.Enabled = true
			c.Trace.Path = ""
		}, "trace.path"},
		{"sample rate out of range", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
		{"agent without url", func(c *Config) {
			c.Agents = map[string]AgentEndpoint{"a": {}}
		}, "agents.a.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if len(c.Agents) == 0 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	logger := LogConfig{Level: "debug", Format: "json"}.BuildLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	quiet := LogConfig{Level: "error", Format: "console"}.BuildLogger()
	require.NotNil(t, quiet)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))
}
