package route

import (
	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// CustomContextFunc implements a node-specific context preservation policy
// for ContextCustom handoffs.
type CustomContextFunc func(cfg *graph.HandoffConfig, snapshot map[string]any) map[string]any

// ForwardContext computes the subset of the execution context that travels
// with a handoff, per the node's preservation policy. full passes
// everything; key_points keeps only the declared key fields; summary keeps
// the key fields (or everything when none are declared) with string values
// truncated by the compression ratio; custom applies the supplied function,
// falling back to full when none is registered.
func ForwardContext(cfg *graph.HandoffConfig, ectx *types.ExecutionContext, custom CustomContextFunc) map[string]any {
	snapshot := ectx.Snapshot()

	mode := cfg.ContextMode
	if mode == "" {
		mode = graph.ContextFull
	}

	switch mode {
	case graph.ContextKeyPoints:
		return pickFields(snapshot, cfg.KeyFields)

	case graph.ContextSummary:
		subset := snapshot
		if len(cfg.KeyFields) > 0 {
			subset = pickFields(snapshot, cfg.KeyFields)
		}
		return compressStrings(subset, cfg.CompressionRatio)

	case graph.ContextCustom:
		if custom != nil {
			return custom(cfg, snapshot)
		}
		return snapshot

	default:
		return snapshot
	}
}

func pickFields(snapshot map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := snapshot[f]; ok {
			out[f] = v
		}
	}
	return out
}

// compressStrings truncates string values to ratio of their rune length.
// A ratio outside (0,1) leaves values untouched.
func compressStrings(values map[string]any, ratio float64) map[string]any {
	if ratio <= 0 || ratio >= 1 {
		return values
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			runes := []rune(s)
			keep := int(float64(len(runes)) * ratio)
			if keep < len(runes) {
				out[k] = string(runes[:keep])
				continue
			}
		}
		out[k] = v
	}
	return out
}
