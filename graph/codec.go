package graph

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentgraph/agentgraph/types"
)

// Definition is the serializable graph document produced by the external
// editor. Only the shape matters: nodes with an id, kind and per-kind
// config, plus directed edges with optional output ports.
type Definition struct {
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges       []Edge           `json:"edges" yaml:"edges"`
}

// NodeDefinition is one node of a graph document. Config is decoded into
// the kind's concrete config type during Build.
type NodeDefinition struct {
	ID       string          `json:"id" yaml:"id"`
	Kind     NodeKind        `json:"kind" yaml:"kind"`
	Config   json.RawMessage `json:"config,omitempty" yaml:"-"`
	Position *Position       `json:"position,omitempty" yaml:"position,omitempty"`

	// yamlConfig holds the raw config node when the document was YAML.
	yamlConfig *yaml.Node
}

// UnmarshalYAML captures the config subtree for per-kind decoding.
func (d *NodeDefinition) UnmarshalYAML(value *yaml.Node) error {
	// yaml.v3 only populates yaml.Node fields declared by value; a
	// *yaml.Node field is left zero, so capture by value and take the
	// address afterwards.
	var raw struct {
		ID       string    `yaml:"id"`
		Kind     NodeKind  `yaml:"kind"`
		Config   yaml.Node `yaml:"config"`
		Position *Position `yaml:"position"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d.ID = raw.ID
	d.Kind = raw.Kind
	d.Position = raw.Position
	if !raw.Config.IsZero() {
		d.yamlConfig = &raw.Config
	}
	return nil
}

// ParseJSON decodes a JSON graph document and builds a validated graph.
func ParseJSON(data []byte) (*Graph, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrGraphConfigInvalid, "malformed graph document").WithCause(err)
	}
	return def.Build()
}

// ParseYAML decodes a YAML graph document and builds a validated graph.
func ParseYAML(data []byte) (*Graph, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrGraphConfigInvalid, "malformed graph document").WithCause(err)
	}
	return def.Build()
}

// Build materializes the definition into a validated Graph, decoding each
// node's config into the tagged union.
func (def *Definition) Build() (*Graph, error) {
	g := New(def.Name)
	g.Description = def.Description

	for i := range def.Nodes {
		nd := &def.Nodes[i]
		cfg, err := nd.decodeConfig()
		if err != nil {
			return nil, err
		}
		node := &Node{ID: nd.ID, Kind: nd.Kind, Config: cfg, Position: nd.Position}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, e := range def.Edges {
		g.AddEdge(e)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (d *NodeDefinition) decodeConfig() (NodeConfig, error) {
	cfg, err := emptyConfig(d.Kind)
	if err != nil {
		return nil, types.Errorf(types.ErrGraphConfigInvalid, "unknown node kind %q", d.Kind).WithNode(d.ID)
	}

	switch {
	case d.yamlConfig != nil:
		err = d.yamlConfig.Decode(cfg)
	case len(d.Config) > 0:
		err = json.Unmarshal(d.Config, cfg)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrGraphConfigInvalid, "invalid %s config", d.Kind).
			WithNode(d.ID).WithCause(err)
	}
	return cfg, nil
}

// emptyConfig returns a zero config value for the kind, ready to decode into.
func emptyConfig(kind NodeKind) (NodeConfig, error) {
	switch kind {
	case KindAgent:
		return &AgentConfig{}, nil
	case KindDecision:
		return &DecisionConfig{}, nil
	case KindHandoff:
		return &HandoffConfig{}, nil
	case KindAggregator:
		return &AggregatorConfig{}, nil
	case KindGuardrail:
		return &GuardrailConfig{}, nil
	case KindHuman:
		return &HumanConfig{}, nil
	case KindMemory:
		return &MemoryConfig{}, nil
	case KindMonitor:
		return &MonitorConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

// MarshalDefinition serializes a graph back into a JSON document, the
// inverse of ParseJSON. Used when persisting edited graphs.
func MarshalDefinition(g *Graph) ([]byte, error) {
	def := Definition{Name: g.Name, Description: g.Description}

	for _, id := range g.Nodes() {
		node, _ := g.Node(id)
		raw, err := json.Marshal(node.Config)
		if err != nil {
			return nil, fmt.Errorf("marshal config of node %s: %w", id, err)
		}
		def.Nodes = append(def.Nodes, NodeDefinition{
			ID:       node.ID,
			Kind:     node.Kind,
			Config:   raw,
			Position: node.Position,
		})
		def.Edges = append(def.Edges, g.Outgoing(id)...)
	}
	return json.MarshalIndent(def, "", "  ")
}
