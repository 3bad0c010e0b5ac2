package deg

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/degflow/internal/domain"
)

// refPattern matches ${node_id.field} references used for node output
// substitution.
var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// refTarget is one ${node_id.field} reference parsed out of a string.
type refTarget struct {
	raw    string
	nodeID string
	field  string
}

func parseRefs(s string) []refTarget {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	refs := make([]refTarget, 0, len(matches))
	for _, m := range matches {
		parts := strings.SplitN(m[1], ".", 2)
		ref := refTarget{raw: m[0], nodeID: parts[0]}
		if len(parts) == 2 {
			ref.field = parts[1]
		}
		refs = append(refs, ref)
	}
	return refs
}

// resolveReferences resolves every ${node_id.field} reference in s against
// nodes, requiring the referenced node to be SUCCESS with a non-nil
// resolved_output. It returns the substituted string and the list of node
// ids any reference named but could not resolve.
func resolveReferences(s string, nodes map[string]*domain.ExecutionNode) (string, []string) {
	var unresolved []string
	refs := parseRefs(s)
	out := s
	for _, ref := range refs {
		node, ok := nodes[ref.nodeID]
		if !ok || node.Status != domain.NodeStatusSuccess || node.ResolvedOutput == nil {
			unresolved = append(unresolved, ref.nodeID)
			continue
		}
		out = strings.ReplaceAll(out, ref.raw, *node.ResolvedOutput)
	}
	return out, unresolved
}

// preconditionSatisfied reports whether a node's required_precondition
// expression is satisfied: every referenced node must resolve, and if a
// boolean expression remains after substitution it must evaluate true.
// An empty precondition is always satisfied.
func preconditionSatisfied(precondition string, nodes map[string]*domain.ExecutionNode) (bool, error) {
	if strings.TrimSpace(precondition) == "" {
		return true, nil
	}

	substituted, unresolved := resolveReferences(precondition, nodes)
	if len(unresolved) > 0 {
		return false, nil
	}

	if !strings.ContainsAny(substituted, "<>=!&|") {
		return true, nil
	}

	program, err := expr.Compile(substituted, expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("precondition %q: %w", precondition, err)
	}
	result, err := expr.Run(program, map[string]any{})
	if err != nil {
		return false, fmt.Errorf("precondition %q: %w", precondition, err)
	}
	ok, _ := result.(bool)
	return ok, nil
}
