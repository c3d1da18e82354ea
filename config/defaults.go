package config

import "time"

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Engine: EngineConfig{
			MaxHops:      256,
			AgentTimeout: 60 * time.Second,
		},
		Memory: MemoryConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				MinIdleConns: 2,
			},
		},
		Trace: TraceConfig{
			Enabled: false,
			Path:    "agentgraph.db",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "agentgraph",
			SampleRate:   0.1,
		},
	}
}
