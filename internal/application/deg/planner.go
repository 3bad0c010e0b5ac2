package deg

import (
	"context"
	"fmt"

	"github.com/smilemakc/degflow/internal/domain"
	degerrors "github.com/smilemakc/degflow/internal/domain/errors"
	"github.com/smilemakc/degflow/internal/infrastructure/llm"
)

// Planner turns a task goal into its initial node (or nodes) and turns a
// failed node plus its feedback into a correction subplan, both backed by
// an llm.Planner client. A validation failure gets exactly one
// clarification retry before surfacing as a PlannerError.
type Planner struct {
	client llm.Planner
}

// NewPlanner builds a Planner around client.
func NewPlanner(client llm.Planner) *Planner {
	return &Planner{client: client}
}

// Plan produces the nodes to seed a fresh graph for goal.
func (p *Planner) Plan(ctx context.Context, goal domain.TaskGoal) ([]domain.ExecutionNode, error) {
	req := llm.PlanRequest{Goal: goal, Schema: domain.SchemaOf(domain.KindExecutionNode)}
	return p.completeWithRetry(ctx, goal, req)
}

// Correct produces a correction subplan for a node that just failed, given
// the observation that accompanied the failure.
func (p *Planner) Correct(ctx context.Context, goal domain.TaskGoal, failed domain.ExecutionNode, obs *domain.WebObservation) ([]domain.ExecutionNode, error) {
	req := llm.PlanRequest{
		Goal:          goal,
		Observation:   obs,
		FailedNode:    &failed,
		FailureReason: failed.FailureReason,
		Schema:        domain.SchemaOf(domain.KindExecutionNode),
	}
	return p.completeWithRetry(ctx, goal, req)
}

func (p *Planner) completeWithRetry(ctx context.Context, goal domain.TaskGoal, req llm.PlanRequest) ([]domain.ExecutionNode, error) {
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, &degerrors.PlannerError{TaskID: goal.TaskID, Message: "model call failed", Cause: err}
	}

	if verr := validateNodes(resp.Nodes, goal); verr != nil {
		req.ClarifyPrior = verr.Error()
		resp, err = p.client.Complete(ctx, req)
		if err != nil {
			return nil, &degerrors.PlannerError{TaskID: goal.TaskID, Message: "model call failed on clarification retry", Cause: err}
		}
		if verr := validateNodes(resp.Nodes, goal); verr != nil {
			return nil, &degerrors.PlannerError{TaskID: goal.TaskID, Message: "model output failed validation after clarification retry", Cause: verr}
		}
	}

	return dedupeNodes(resp.Nodes), nil
}

func validateNodes(nodes []domain.ExecutionNode, goal domain.TaskGoal) error {
	if len(nodes) == 0 {
		return fmt.Errorf("planner returned zero nodes")
	}
	for _, n := range dedupeNodes(nodes) {
		if verr := n.Validate(&goal); verr != nil {
			return verr
		}
	}
	return nil
}

// dedupeNodes drops a node whose ID already appeared earlier in the slice,
// so the first occurrence in array order wins when the model repeats an id.
func dedupeNodes(nodes []domain.ExecutionNode) []domain.ExecutionNode {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]domain.ExecutionNode, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}
