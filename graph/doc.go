// Package graph defines the orchestration graph: nodes, directed edges with
// output ports, and the per-kind node configuration union. Graphs are
// produced externally (typically by a visual editor), loaded read-only at
// run start, and validated structurally before execution.
package graph
