package domain

// ExecutionNode is a vertex of the Dynamic Execution Graph. JSON tags match
// the schema the Planner constrains model output against, so a model
// response decodes straight into this type.
type ExecutionNode struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id,omitempty"` // empty for root
	Children []string `json:"children,omitempty"`

	Priority int            `json:"priority"` // lower = earlier
	Action   DecisionAction `json:"action"`
	Status   NodeStatus     `json:"status,omitempty"`

	FailureReason        string          `json:"failure_reason,omitempty"`
	RequiredPrecondition string          `json:"required_precondition,omitempty"` // may reference ${node_id.field}
	ExpectedCostUnits    int             `json:"expected_cost_units,omitempty"`
	LastObservation      *WebObservation `json:"last_observation,omitempty"`
	ResolvedOutput       *string         `json:"resolved_output,omitempty"` // set only on SUCCESS, immutable thereafter

	// InsertionSeq is assigned by the graph at add_node time and used to
	// break priority ties in insertion order.
	InsertionSeq int `json:"-"`
}

// Validate checks an ExecutionNode's own structural invariants. goal, if
// non-nil, is used to validate the embedded action's tool name.
func (n ExecutionNode) Validate(goal *TaskGoal) *ValidationError {
	if n.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if n.ExpectedCostUnits < 0 {
		return &ValidationError{Field: "expected_cost_units", Reason: "must be non-negative"}
	}
	if n.Status != "" && !n.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "unrecognized status: " + n.Status.String()}
	}
	if err := n.Action.Validate(goal); err != nil {
		err.Field = "action." + err.Field
		return err
	}
	return nil
}

// Clone returns a deep copy of n, suitable for Event Bus / snapshot export
// (the graph is single-writer; readers only ever see clones).
func (n ExecutionNode) Clone() ExecutionNode {
	clone := n
	if n.Children != nil {
		clone.Children = append([]string(nil), n.Children...)
	}
	if n.ResolvedOutput != nil {
		v := *n.ResolvedOutput
		clone.ResolvedOutput = &v
	}
	if n.LastObservation != nil {
		obs := *n.LastObservation
		if n.LastObservation.Elements != nil {
			obs.Elements = append([]KeyElement(nil), n.LastObservation.Elements...)
		}
		if n.LastObservation.Feedback != nil {
			fb := *n.LastObservation.Feedback
			obs.Feedback = &fb
		}
		clone.LastObservation = &obs
	}
	return clone
}
