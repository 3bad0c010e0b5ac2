// Package visualization renders a graph snapshot as a Mermaid flowchart or
// an ASCII tree, the same two formats the teacher's workflow visualizer
// offers, adapted to render ExecutionNodes instead of static workflow
// definitions.
package visualization

import (
	"github.com/smilemakc/degflow/internal/domain"
)

// Snapshot is the read-only view a Renderer draws from: a node set and the
// id of its root, the same shape Graph.Snapshot/Graph.RootID hand back.
type Snapshot struct {
	RootID string
	Nodes  map[string]domain.ExecutionNode
}

// Renderer converts a Snapshot into a renderable directed-graph text form:
// nodes keyed by id, edges parent to child, label set to the node's tool
// name, color set from its status.
type Renderer interface {
	Render(snap Snapshot) (string, error)
	Format() string
}

// RenderOptions holds renderer settings. MermaidRenderer reads Direction
// from DefaultRenderOptions; neither renderer accepts caller options.
type RenderOptions struct {
	// UseColor records whether ANSI color is wanted. ASCIIRenderer does not
	// read it: it colors its output only when stdout is a terminal.
	UseColor bool
	// Direction sets the flowchart direction (Mermaid renderer only).
	// Valid values: "TB", "LR", "RL", "BT".
	Direction string
}

// DefaultRenderOptions mirrors the teacher's visualizer defaults: color
// on, top-to-bottom flow.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{UseColor: true, Direction: "TB"}
}
