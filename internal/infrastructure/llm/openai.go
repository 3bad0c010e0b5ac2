package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/degflow/internal/domain"
)

// OpenAIPlanner calls the OpenAI chat-completions API with a JSON-schema
// response format, the same response_format-via-map-then-unmarshal trick
// used to bolt structured output onto openai.ChatCompletionRequest.
type OpenAIPlanner struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIPlanner builds an OpenAIPlanner. model defaults to "gpt-4o" and
// timeout to 60s if zero.
func NewOpenAIPlanner(apiKey, model string, timeout time.Duration) *OpenAIPlanner {
	if model == "" {
		model = "gpt-4o"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIPlanner{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

func (p *OpenAIPlanner) Complete(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	responseFormat, err := buildResponseFormat(req.Schema)
	if err != nil {
		return PlanResponse{}, fmt.Errorf("building response format: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:          p.model,
		Temperature:    0.2,
		ResponseFormat: responseFormat,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Goal)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return PlanResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return PlanResponse{}, fmt.Errorf("openai returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	nodes, err := decodeNodes(content)
	if err != nil {
		return PlanResponse{RawText: content}, err
	}
	return PlanResponse{Nodes: nodes, RawText: content}, nil
}

func buildResponseFormat(schema map[string]any) (*openai.ChatCompletionResponseFormat, error) {
	if schema == nil {
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}, nil
	}

	raw, err := json.Marshal(map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "execution_plan",
			"strict": true,
			"schema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"execution_plan": map[string]any{"type": "array", "items": schema}},
				"required":   []string{"execution_plan"},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var format openai.ChatCompletionResponseFormat
	if err := json.Unmarshal(raw, &format); err != nil {
		return nil, err
	}
	return &format, nil
}

// decodeNodes unmarshals the model's {"execution_plan": [...]} payload. A
// single node object (no wrapping array) is also accepted, matching what
// some models return under json_object mode instead of the stricter schema.
func decodeNodes(content string) ([]domain.ExecutionNode, error) {
	var wrapped struct {
		ExecutionPlan []domain.ExecutionNode `json:"execution_plan"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.ExecutionPlan) > 0 {
		return wrapped.ExecutionPlan, nil
	}

	var single domain.ExecutionNode
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.ID != "" {
		return []domain.ExecutionNode{single}, nil
	}

	return nil, fmt.Errorf("could not decode execution nodes from model output: %s", content)
}

func systemPrompt(goal domain.TaskGoal) string {
	return fmt.Sprintf(
		"You plan web-automation steps for a browser agent. Only use tools from this allowed list: %s. "+
			"Respond with a JSON object matching the required schema, nothing else.",
		strings.Join(goal.AllowedActions, ", "),
	)
}

func userPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal.Description)
	if req.Observation != nil {
		fmt.Fprintf(&b, "Current URL: %s\nHTTP status: %d\n", req.Observation.URL, req.Observation.HTTPStatus)
	}
	if req.FailedNode != nil {
		fmt.Fprintf(&b, "Correcting failure at node %s (%s): %s\n", req.FailedNode.ID, req.FailedNode.Action.ToolName, req.FailureReason)
	}
	if req.ClarifyPrior != "" {
		fmt.Fprintf(&b, "Your previous response was rejected: %s\nTry again, strictly matching the schema.\n", req.ClarifyPrior)
	}
	return b.String()
}
