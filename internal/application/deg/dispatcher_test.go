package deg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/degflow/internal/application/tools"
	"github.com/smilemakc/degflow/internal/domain"
)

func retryAction(tool string, maxAttempts, timeoutSeconds int) domain.DecisionAction {
	return domain.DecisionAction{
		ToolName:       tool,
		Arguments:      map[string]any{},
		MaxAttempts:    maxAttempts,
		TimeoutSeconds: timeoutSeconds,
		Confidence:     0.9,
		OnFailure:      domain.OnFailureReEvaluate,
	}
}

func TestDispatcher_SucceedsFirstTry(t *testing.T) {
	tool := tools.NewMock(tools.ScriptedResponse{
		Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess},
	})
	reg := tools.NewRegistry()
	reg.Register("navigate_to", tool)
	d := NewDispatcher(reg)

	_, feedback := d.Dispatch(context.Background(), retryAction("navigate_to", 3, 5), nil, nil, nil)
	assert.Equal(t, domain.ActionStatusSuccess, feedback.Status)
	assert.Equal(t, 1, tool.CallCount())
}

func TestDispatcher_RetriesTransientThenSucceeds(t *testing.T) {
	tool := tools.NewMock(
		tools.ScriptedResponse{Feedback: domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_NET"}},
		tools.ScriptedResponse{Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess}},
	)
	reg := tools.NewRegistry()
	reg.Register("navigate_to", tool)
	d := NewDispatcher(reg)

	_, feedback := d.Dispatch(context.Background(), retryAction("navigate_to", 3, 5), nil, nil, nil)
	assert.Equal(t, domain.ActionStatusSuccess, feedback.Status)
	assert.Equal(t, 2, tool.CallCount())
}

func TestDispatcher_NonTransientFailureStopsImmediately(t *testing.T) {
	tool := tools.NewMock(
		tools.ScriptedResponse{Feedback: domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_BAD_ARG"}},
		tools.ScriptedResponse{Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess}},
	)
	reg := tools.NewRegistry()
	reg.Register("navigate_to", tool)
	d := NewDispatcher(reg)

	_, feedback := d.Dispatch(context.Background(), retryAction("navigate_to", 3, 5), nil, nil, nil)
	assert.Equal(t, domain.ActionStatusFailed, feedback.Status)
	assert.Equal(t, "E_BAD_ARG", feedback.Code)
	assert.Equal(t, 1, tool.CallCount(), "non-transient codes must not be retried")
}

func TestDispatcher_ExhaustsMaxAttempts(t *testing.T) {
	tool := tools.NewMock(tools.ScriptedResponse{
		Feedback: domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_TIMEOUT"},
	})
	reg := tools.NewRegistry()
	reg.Register("navigate_to", tool)
	d := NewDispatcher(reg)

	_, feedback := d.Dispatch(context.Background(), retryAction("navigate_to", 3, 5), nil, nil, nil)
	assert.Equal(t, domain.ActionStatusFailed, feedback.Status)
	assert.Equal(t, 3, tool.CallCount())
}

func TestDispatcher_UnknownToolReturnsFeedback(t *testing.T) {
	reg := tools.NewRegistry()
	d := NewDispatcher(reg)

	_, feedback := d.Dispatch(context.Background(), retryAction("ghost_tool", 1, 5), nil, nil, nil)
	assert.Equal(t, domain.ActionStatusFailed, feedback.Status)
	assert.Equal(t, "E_TOOL_UNKNOWN", feedback.Code)
}

func TestDispatcher_CancellationStopsBeforeAttempt(t *testing.T) {
	tool := tools.NewMock(tools.ScriptedResponse{
		Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess},
	})
	reg := tools.NewRegistry()
	reg.Register("navigate_to", tool)
	d := NewDispatcher(reg)

	cancelled := func() bool { return true }
	_, feedback := d.Dispatch(context.Background(), retryAction("navigate_to", 3, 5), nil, nil, cancelled)
	assert.Equal(t, "E_CANCELLED", feedback.Code)
	assert.Equal(t, 0, tool.CallCount())
}

func TestDispatcher_PerAttemptTimeoutReportsTimeout(t *testing.T) {
	tool := tools.NewMock(tools.ScriptedResponse{
		Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess},
		Delay:    200 * time.Millisecond,
	})
	reg := tools.NewRegistry()
	reg.Register("wait", tool)
	d := NewDispatcher(reg)

	action := retryAction("wait", 1, 0)
	action.TimeoutSeconds = 1
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, feedback := d.Dispatch(ctx, action, nil, nil, nil)
	assert.Equal(t, domain.ActionStatusTimeout, feedback.Status)
}

func TestDispatcher_ResolvesTemplateArguments(t *testing.T) {
	resolved := "https://example.com/next"
	nodes := map[string]*domain.ExecutionNode{
		"n1": {ID: "n1", Status: domain.NodeStatusSuccess, ResolvedOutput: &resolved},
	}

	var capturedArgs map[string]any
	tool := captureArgsTool{capture: &capturedArgs}
	reg := tools.NewRegistry()
	reg.Register("click_element", &tool)
	d := NewDispatcher(reg)

	action := retryAction("click_element", 1, 5)
	action.Arguments = map[string]any{"href": "${n1.output}"}

	_, feedback := d.Dispatch(context.Background(), action, nodes, nil, nil)
	require.Equal(t, domain.ActionStatusSuccess, feedback.Status)
	assert.Equal(t, resolved, capturedArgs["href"])
}

func TestDispatcher_UnresolvedReferenceFailsFast(t *testing.T) {
	nodes := map[string]*domain.ExecutionNode{
		"n1": {ID: "n1", Status: domain.NodeStatusPending},
	}
	tool := tools.NewMock(tools.ScriptedResponse{Feedback: domain.ActionFeedback{Status: domain.ActionStatusSuccess}})
	reg := tools.NewRegistry()
	reg.Register("click_element", tool)
	d := NewDispatcher(reg)

	action := retryAction("click_element", 1, 5)
	action.Arguments = map[string]any{"href": "${n1.output}"}

	_, feedback := d.Dispatch(context.Background(), action, nodes, nil, nil)
	assert.Equal(t, "E_UNRESOLVED_REF", feedback.Code)
	assert.Equal(t, 0, tool.CallCount())
}

type captureArgsTool struct {
	capture *map[string]any
}

func (c *captureArgsTool) Invoke(_ context.Context, args map[string]any, _ *tools.CallContext) (domain.WebObservation, domain.ActionFeedback) {
	*c.capture = args
	return domain.WebObservation{}, domain.ActionFeedback{Status: domain.ActionStatusSuccess}
}

func TestProjectOutput_ExtractDataJoinsElements(t *testing.T) {
	obs := domain.WebObservation{
		Elements: []domain.KeyElement{{InnerText: "a"}, {InnerText: "b"}},
	}
	assert.Equal(t, "a\nb", ProjectOutput(tools.ExtractData, obs))
}

func TestProjectOutput_DefaultFallsBackToURL(t *testing.T) {
	obs := domain.WebObservation{URL: "https://example.com"}
	assert.Equal(t, "https://example.com", ProjectOutput(tools.NavigateTo, obs))
}
