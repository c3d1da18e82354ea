// Package config loads the agentgraph runtime configuration.
//
// Values are resolved defaults-first, then overlaid from an optional YAML
// file, then from environment variables:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentgraph.yaml").
//	    WithEnvPrefix("AGENTGRAPH").
//	    Load()
//
// Environment keys follow the struct layout, e.g. AGENTGRAPH_LOG_LEVEL or
// AGENTGRAPH_MEMORY_REDIS_ADDR.
package config
