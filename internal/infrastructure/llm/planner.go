// Package llm holds the language-model client the Planner uses to produce
// and correct execution nodes, plus a scripted Mock for tests.
package llm

import (
	"context"

	"github.com/smilemakc/degflow/internal/domain"
)

// PlanRequest is the structured prompt context handed to the model: the
// task goal, the latest environment observation, and (for a correction
// call) the node that just failed and why.
type PlanRequest struct {
	Goal           domain.TaskGoal
	Observation    *domain.WebObservation
	FailedNode     *domain.ExecutionNode
	FailureReason  string
	ClarifyPrior   string // set on the one-shot clarification retry
	Schema         map[string]any
}

// PlanResponse is the model's raw structured output: a list of candidate
// nodes plus the raw text the model returned, kept for logging.
type PlanResponse struct {
	Nodes   []domain.ExecutionNode
	RawText string
}

// Planner is the collaborator contract the core consumes to turn a goal
// (or a failure) into one or more ExecutionNodes. Implementations must
// return model output already decoded into domain.ExecutionNode; schema
// enforcement happens at the call site via the request's Schema field.
type Planner interface {
	Complete(ctx context.Context, req PlanRequest) (PlanResponse, error)
}
