package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full agentgraph runtime configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Trace     TraceConfig     `yaml:"trace" env:"TRACE"`
	Alerts    AlertConfig     `yaml:"alerts" env:"ALERTS"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Agents maps agent ids to invocation endpoints. Only settable via
	// YAML; there is no sane env encoding for the map.
	Agents map[string]AgentEndpoint `yaml:"agents" env:"-"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// MaxHops bounds node activations per run before the run fails.
	MaxHops int `yaml:"max_hops" env:"MAX_HOPS"`
	// AgentTimeout is the default per-invocation timeout when a node
	// does not declare its own.
	AgentTimeout time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT"`
}

// MemoryConfig selects the shared-memory backend.
type MemoryConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend" env:"BACKEND"`
	Redis   RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig connects the Redis memory backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// TraceConfig controls run-trace persistence.
type TraceConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path is the sqlite database file, or ":memory:".
	Path string `yaml:"path" env:"PATH"`
}

// AlertConfig lists monitor alert sinks.
type AlertConfig struct {
	// Webhooks receive alert JSON by POST.
	Webhooks []string `yaml:"webhooks" env:"WEBHOOKS"`
}

// TelemetryConfig controls the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// LogConfig shapes the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// AgentEndpoint describes how to reach one agent runtime over HTTP.
type AgentEndpoint struct {
	URL string `yaml:"url"`
	// RPS and Burst enable rate limiting when RPS > 0.
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	Timeout time.Duration `yaml:"timeout"`
}

// Loader resolves a Config from defaults, a YAML file and the environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTGRAPH env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTGRAPH"}
}

// WithConfigPath sets the YAML file to overlay. A missing file is not an
// error; defaults and env apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after resolution.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then YAML file,
// then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", l.configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string lists
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.MaxHops <= 0 {
		errs = append(errs, "engine.max_hops must be positive")
	}
	if c.Engine.AgentTimeout <= 0 {
		errs = append(errs, "engine.agent_timeout must be positive")
	}
	switch c.Memory.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("memory.backend %q is not memory or redis", c.Memory.Backend))
	}
	if c.Memory.Backend == "redis" && c.Memory.Redis.Addr == "" {
		errs = append(errs, "memory.redis.addr is required for the redis backend")
	}
	if c.Trace.Enabled && c.Trace.Path == "" {
		errs = append(errs, "trace.path is required when tracing is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be within [0, 1]")
	}
	for id, ep := range c.Agents {
		if ep.URL == "" {
			errs = append(errs, fmt.Sprintf("agents.%s.url is required", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
