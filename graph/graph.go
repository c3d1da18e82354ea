package graph

import (
	"fmt"

	"github.com/agentgraph/agentgraph/types"
)

// Position is editor-supplied layout metadata. The engine ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one step in the orchestration graph.
type Node struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     NodeKind  `json:"kind" yaml:"kind"`
	Config   NodeConfig `json:"-" yaml:"-"`
	Position *Position `json:"position,omitempty" yaml:"position,omitempty"`
}

// Edge is a directed edge between two nodes. Port optionally names the
// source node's output port ("true", "false", "input-2", ...) so fan-out
// branches can be distinguished.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Port string `json:"port,omitempty" yaml:"port,omitempty"`
}

// Graph is the orchestration graph. Cycles are permitted structurally (for
// retry loops); the engine bounds each run with a maximum hop count instead.
type Graph struct {
	Name        string
	Description string

	nodes map[string]*Node
	order []string
	out   map[string][]Edge
	in    map[string][]Edge
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
}

// AddNode adds a node to the graph. Node ids must be unique.
func (g *Graph) AddNode(node *Node) error {
	if node == nil || node.ID == "" {
		return types.NewError(types.ErrGraphConfigInvalid, "node id is required")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return types.Errorf(types.ErrGraphConfigInvalid, "duplicate node id %q", node.ID)
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

// AddEdge adds a directed edge.
func (g *Graph) AddEdge(edge Edge) {
	g.out[edge.From] = append(g.out[edge.From], edge)
	g.in[edge.To] = append(g.in[edge.To], edge)
}

// Node retrieves a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Outgoing returns the outgoing edges of a node.
func (g *Graph) Outgoing(id string) []Edge {
	return g.out[id]
}

// Incoming returns the incoming edges of a node.
func (g *Graph) Incoming(id string) []Edge {
	return g.in[id]
}

// Nodes returns all node ids in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Entries returns the entry nodes: nodes with no incoming edges, in
// insertion order.
func (g *Graph) Entries() []string {
	var entries []string
	for _, id := range g.order {
		if len(g.in[id]) == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

// Validate checks structural invariants before execution: every edge must
// reference existing nodes, every node must carry a config matching its
// kind, and at least one entry node must exist. A failed validation is a
// GRAPH_CONFIG_INVALID error naming the offending node or edge.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return types.NewError(types.ErrGraphConfigInvalid, "graph has no nodes")
	}

	for _, id := range g.order {
		node := g.nodes[id]
		if !knownKind(node.Kind) {
			return types.Errorf(types.ErrGraphConfigInvalid, "unknown node kind %q", node.Kind).WithNode(id)
		}
		if node.Config == nil {
			return types.NewError(types.ErrGraphConfigInvalid, "node has no config").WithNode(id)
		}
		if node.Config.Kind() != node.Kind {
			return types.Errorf(types.ErrGraphConfigInvalid,
				"config kind %q does not match node kind %q", node.Config.Kind(), node.Kind).WithNode(id)
		}
		if err := validateConfig(node); err != nil {
			return err
		}
	}

	for from, edges := range g.out {
		if _, ok := g.nodes[from]; !ok {
			return types.Errorf(types.ErrGraphConfigInvalid, "edge from unknown node %q", from)
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				return types.Errorf(types.ErrGraphConfigInvalid,
					"edge %s -> %s references unknown node", e.From, e.To).WithNode(e.From)
			}
		}
	}

	if len(g.Entries()) == 0 {
		return types.NewError(types.ErrGraphConfigInvalid, "graph has no entry node (every node has incoming edges)")
	}
	return nil
}

func knownKind(k NodeKind) bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// validateConfig applies light per-kind sanity checks. Deeper semantic
// problems (unreachable targets, empty rule sets) degrade gracefully at
// execution time instead.
func validateConfig(node *Node) error {
	invalid := func(format string, args ...any) error {
		return types.Errorf(types.ErrGraphConfigInvalid, format, args...).WithNode(node.ID)
	}

	switch cfg := node.Config.(type) {
	case *AgentConfig:
		if cfg.AgentID == "" {
			return invalid("agent node requires agent_id")
		}
	case *DecisionConfig:
		if len(cfg.Conditions) == 0 && cfg.DefaultAction.Kind == "" {
			return invalid("decision node requires conditions or a default action")
		}
	case *HandoffConfig:
		if cfg.Strategy != HandoffManual && len(cfg.Targets) == 0 {
			return invalid("handoff node requires targets")
		}
	case *AggregatorConfig:
		if len(cfg.Inputs) == 0 {
			return invalid("aggregator node requires inputs")
		}
		if cfg.MinimumInputs > len(cfg.Inputs) {
			return invalid("minimum_inputs %d exceeds input count %d", cfg.MinimumInputs, len(cfg.Inputs))
		}
	case *MemoryConfig:
		if cfg.Operation == "" || cfg.Key == "" {
			return invalid("memory node requires operation and key")
		}
	case *MonitorConfig:
		if len(cfg.Metrics) == 0 {
			return invalid("monitor node requires at least one metric")
		}
	}
	return nil
}

// String implements fmt.Stringer for debug logging.
func (g *Graph) String() string {
	edges := 0
	for _, es := range g.out {
		edges += len(es)
	}
	return fmt.Sprintf("graph %q (%d nodes, %d edges)", g.Name, len(g.nodes), edges)
}
