package deg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/degflow/internal/domain"
	degerrors "github.com/smilemakc/degflow/internal/domain/errors"
	"github.com/smilemakc/degflow/internal/infrastructure/llm"
)

func validNode(id string) domain.ExecutionNode {
	return domain.ExecutionNode{
		ID: id,
		Action: domain.DecisionAction{
			ToolName:       "navigate_to",
			Arguments:      map[string]any{"url": "https://example.com"},
			MaxAttempts:    2,
			TimeoutSeconds: 5,
			Confidence:     0.8,
			OnFailure:      domain.OnFailureReEvaluate,
		},
	}
}

func TestPlanner_Plan_ValidFirstTry(t *testing.T) {
	client := llm.NewMock(llm.PlanResponse{Nodes: []domain.ExecutionNode{validNode("n1")}})
	p := NewPlanner(client)

	nodes, err := p.Plan(context.Background(), *testGoal())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.Equal(t, 1, client.CallCount())
}

func TestPlanner_Plan_ClarificationRetrySucceeds(t *testing.T) {
	invalid := domain.ExecutionNode{ID: "bad", Action: domain.DecisionAction{ToolName: "not_allowed"}}
	client := llm.NewMock(
		llm.PlanResponse{Nodes: []domain.ExecutionNode{invalid}},
		llm.PlanResponse{Nodes: []domain.ExecutionNode{validNode("n1")}},
	)
	p := NewPlanner(client)

	nodes, err := p.Plan(context.Background(), *testGoal())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.Equal(t, 2, client.CallCount())
}

func TestPlanner_Plan_ExhaustsRetryReturnsPlannerError(t *testing.T) {
	invalid := domain.ExecutionNode{ID: "bad", Action: domain.DecisionAction{ToolName: "not_allowed"}}
	client := llm.NewMock(
		llm.PlanResponse{Nodes: []domain.ExecutionNode{invalid}},
		llm.PlanResponse{Nodes: []domain.ExecutionNode{invalid}},
	)
	p := NewPlanner(client)

	_, err := p.Plan(context.Background(), *testGoal())
	require.Error(t, err)
	var perr *degerrors.PlannerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, client.CallCount())
}

func TestPlanner_Plan_ZeroNodesIsInvalid(t *testing.T) {
	client := llm.NewMock(llm.PlanResponse{}, llm.PlanResponse{})
	p := NewPlanner(client)

	_, err := p.Plan(context.Background(), *testGoal())
	require.Error(t, err)
}

func TestPlanner_Plan_DedupesDuplicateIDsByArrayOrder(t *testing.T) {
	first := validNode("n1")
	first.Action.Reasoning = "first"
	second := validNode("n1")
	second.Action.Reasoning = "second"

	client := llm.NewMock(llm.PlanResponse{Nodes: []domain.ExecutionNode{first, second}})
	p := NewPlanner(client)

	nodes, err := p.Plan(context.Background(), *testGoal())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "first", nodes[0].Action.Reasoning)
}

func TestPlanner_Correct_PassesFailedNodeContext(t *testing.T) {
	client := llm.NewMock(llm.PlanResponse{Nodes: []domain.ExecutionNode{validNode("fix1")}})
	p := NewPlanner(client)

	failed := validNode("n1")
	failed.Status = domain.NodeStatusFailed
	failed.FailureReason = "stale dom"

	nodes, err := p.Correct(context.Background(), *testGoal(), failed, &domain.WebObservation{URL: "https://example.com"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "fix1", nodes[0].ID)
}
