package domain

import "fmt"

// ValidationError reports that a value failed validation at a specific
// field path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Field, e.Reason)
}

// Kind identifies a Decision Model type for validation and schema export.
type Kind string

const (
	KindTaskGoal       Kind = "TaskGoal"
	KindDecisionAction Kind = "DecisionAction"
	KindExecutionNode  Kind = "ExecutionNode"
	KindWebObservation Kind = "WebObservation"
)

// Validate dispatches to the Validate method of the given entity, matching
// it against kind. It exists so callers that only have an `any` (e.g. a
// freshly unmarshaled LM response) can still go through one validation
// entry point.
func Validate(entity any, kind Kind) *ValidationError {
	switch kind {
	case KindTaskGoal:
		g, ok := entity.(TaskGoal)
		if !ok {
			return &ValidationError{Field: "$", Reason: "expected TaskGoal"}
		}
		return g.Validate()
	case KindDecisionAction:
		a, ok := entity.(DecisionAction)
		if !ok {
			return &ValidationError{Field: "$", Reason: "expected DecisionAction"}
		}
		return a.Validate(nil)
	case KindExecutionNode:
		n, ok := entity.(ExecutionNode)
		if !ok {
			return &ValidationError{Field: "$", Reason: "expected ExecutionNode"}
		}
		return n.Validate(nil)
	default:
		return &ValidationError{Field: "$", Reason: "unknown kind: " + string(kind)}
	}
}

// SchemaOf returns a hand-assembled JSON Schema document for kind, used by
// the Planner as an LM output constraint. It is a plain map so it marshals
// straight through encoding/json without pulling in a schema-generation
// dependency (see DESIGN.md for why a hand-assembled map, not a
// reflection-based generator, is used here).
func SchemaOf(kind Kind) map[string]any {
	switch kind {
	case KindExecutionNode:
		return executionNodeSchema()
	case KindDecisionAction:
		return decisionActionSchema()
	default:
		return map[string]any{"type": "object"}
	}
}

func decisionActionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool_name":          map[string]any{"type": "string"},
			"arguments":          map[string]any{"type": "object"},
			"max_attempts":       map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"timeout_seconds":    map[string]any{"type": "integer", "minimum": 1},
			"wait_after":         map[string]any{"type": "string"},
			"reasoning":          map[string]any{"type": "string"},
			"confidence":         map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"expected_outcome":   map[string]any{"type": "string"},
			"on_failure":         map[string]any{"type": "string", "enum": []string{"RE_EVALUATE", "ABORT", "SKIP", "RETRY_ONLY"}},
		},
		"required": []string{"tool_name", "arguments", "on_failure"},
	}
}

func executionNodeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":                      map[string]any{"type": "string"},
			"parent_id":               map[string]any{"type": "string"},
			"priority":                map[string]any{"type": "integer"},
			"action":                  decisionActionSchema(),
			"required_precondition":   map[string]any{"type": "string"},
			"expected_cost_units":     map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"id", "action"},
	}
}
