package domain

import (
	"time"
)

// TaskGoal is the immutable record of one submitted task.
type TaskGoal struct {
	TaskID             string
	Description        string
	Deadline           *time.Time // optional UTC deadline
	StepBudgetSeconds  int        // per-step time budget, positive
	RequiredData       map[string]string
	Persona            string
	Environment        string
	AllowedActions     []string
	PriorityLevel      int // 1 (highest) .. 10 (lowest)
}

// Validate checks the structural invariants of a TaskGoal: a non-empty task
// id and description, a positive step budget, a non-empty allowed-action
// list with no duplicates, and a priority level within [1, 10].
func (g TaskGoal) Validate() *ValidationError {
	if g.TaskID == "" {
		return &ValidationError{Field: "task_id", Reason: "must not be empty"}
	}
	if g.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if g.StepBudgetSeconds <= 0 {
		return &ValidationError{Field: "step_budget_seconds", Reason: "must be positive"}
	}
	if len(g.AllowedActions) == 0 {
		return &ValidationError{Field: "allowed_actions", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(g.AllowedActions))
	for _, a := range g.AllowedActions {
		if _, ok := seen[a]; ok {
			return &ValidationError{Field: "allowed_actions", Reason: "duplicate tool name: " + a}
		}
		seen[a] = struct{}{}
	}
	if g.PriorityLevel < 1 || g.PriorityLevel > 10 {
		return &ValidationError{Field: "priority_level", Reason: "must be between 1 and 10"}
	}
	return nil
}

// AllowsTool reports whether name is in the goal's allowed-action list.
func (g TaskGoal) AllowsTool(name string) bool {
	for _, a := range g.AllowedActions {
		if a == name {
			return true
		}
	}
	return false
}
