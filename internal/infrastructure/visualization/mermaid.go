package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/degflow/internal/domain"
)

// MermaidRenderer renders a graph snapshot as a Mermaid flowchart.
type MermaidRenderer struct{}

// NewMermaidRenderer creates a new Mermaid renderer.
func NewMermaidRenderer() *MermaidRenderer { return &MermaidRenderer{} }

// Format returns the format identifier.
func (r *MermaidRenderer) Format() string { return "mermaid" }

// Render converts snap into Mermaid flowchart syntax: one box per node
// (tool name as label), one arrow per parent->child edge, and a classDef
// per status coloring every node currently in it.
func (r *MermaidRenderer) Render(snap Snapshot) (string, error) {
	if len(snap.Nodes) == 0 {
		return "", fmt.Errorf("snapshot has no nodes")
	}

	opts := DefaultRenderOptions()
	var sb strings.Builder

	sb.WriteString("flowchart ")
	sb.WriteString(opts.Direction)
	sb.WriteString("\n")

	ids := sortedIDs(snap.Nodes)
	for _, id := range ids {
		node := snap.Nodes[id]
		sb.WriteString("    ")
		sb.WriteString(r.renderNode(node))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	for _, id := range ids {
		node := snap.Nodes[id]
		for _, cid := range node.Children {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", id, cid))
		}
	}

	sb.WriteString(r.renderStatusStyles())
	sb.WriteString("\n")
	sb.WriteString(r.applyStatusClasses(snap.Nodes, ids))

	return sb.String(), nil
}

func (r *MermaidRenderer) renderNode(node domain.ExecutionNode) string {
	label := strings.ReplaceAll(node.Action.ToolName, `"`, `&quot;`)
	if label == "" {
		label = node.ID
	}
	return fmt.Sprintf(`%s["%s"]`, node.ID, label)
}

func (r *MermaidRenderer) renderStatusStyles() string {
	var sb strings.Builder
	sb.WriteString("\n    %% status styles\n")
	sb.WriteString("    classDef success fill:#DFF7E3,stroke:#34A853,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef failed fill:#FFD9D9,stroke:#EA4335,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef running fill:#FFF3C2,stroke:#F7931A,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef pruned fill:#E6E6E6,stroke:#9AA0A6,stroke-width:2px,color:#000\n")
	return sb.String()
}

func (r *MermaidRenderer) applyStatusClasses(nodes map[string]domain.ExecutionNode, ids []string) string {
	byClass := make(map[string][]string)
	for _, id := range ids {
		class := mermaidClassFor(nodes[id].Status)
		if class == "" {
			continue
		}
		byClass[class] = append(byClass[class], id)
	}

	var sb strings.Builder
	for _, class := range []string{"success", "failed", "running", "pruned"} {
		nodeIDs := byClass[class]
		if len(nodeIDs) == 0 {
			continue
		}
		sb.WriteString("    class " + strings.Join(nodeIDs, ",") + " " + class + "\n")
	}
	return sb.String()
}

func mermaidClassFor(status domain.NodeStatus) string {
	switch status {
	case domain.NodeStatusSuccess:
		return "success"
	case domain.NodeStatusFailed:
		return "failed"
	case domain.NodeStatusRunning:
		return "running"
	case domain.NodeStatusPruned, domain.NodeStatusSkipped:
		return "pruned"
	default:
		return ""
	}
}

func sortedIDs(nodes map[string]domain.ExecutionNode) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
