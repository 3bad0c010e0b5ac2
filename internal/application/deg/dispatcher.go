package deg

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smilemakc/degflow/internal/application/tools"
	"github.com/smilemakc/degflow/internal/domain"
	degerrors "github.com/smilemakc/degflow/internal/domain/errors"
)

// retryBaseDelay and retryMaxDelay implement an exponential backoff,
// 250ms × 2^(attempt-1) capped at 4s.
const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

// Dispatcher implements dispatch(action, context) -> (observation,
// feedback): template resolution against prior SUCCESS nodes, a hard
// per-attempt timeout, and exponential-backoff retry over the
// transient error set. It is stateless between calls except for the
// browser session handle carried in CallContext.
type Dispatcher struct {
	registry *tools.Registry
}

// NewDispatcher creates a Dispatcher backed by registry.
func NewDispatcher(registry *tools.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch resolves action.Arguments' ${node_id.field} templates against
// nodes, then invokes the named tool with up to action.MaxAttempts
// attempts, retrying only feedback in the transient code set. callCtx is
// passed straight through to the tool.
func (d *Dispatcher) Dispatch(ctx context.Context, action domain.DecisionAction, nodes map[string]*domain.ExecutionNode, callCtx *tools.CallContext, cancelled func() bool) (domain.WebObservation, domain.ActionFeedback) {
	tool, ok := d.registry.Lookup(action.ToolName)
	if !ok {
		return domain.WebObservation{Timestamp: time.Now().UTC()},
			domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_TOOL_UNKNOWN", Message: "no tool registered: " + action.ToolName}
	}

	resolvedArgs, unresolvedPath, err := resolveArguments(action.Arguments, nodes)
	if err != nil || unresolvedPath != "" {
		msg := unresolvedPath
		if err != nil {
			msg = err.Error()
		}
		return domain.WebObservation{Timestamp: time.Now().UTC()},
			domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_UNRESOLVED_REF", Message: msg}
	}

	var lastObs domain.WebObservation
	var lastFeedback domain.ActionFeedback

	for attempt := 1; attempt <= action.MaxAttempts; attempt++ {
		if cancelled != nil && cancelled() {
			return lastObs, domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_CANCELLED", Message: "task cancelled before dispatch attempt"}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(action.TimeoutSeconds)*time.Second)
		obs, feedback := tool.Invoke(attemptCtx, resolvedArgs, callCtx)
		cancel()

		log.Debug().
			Str("tool_name", action.ToolName).
			Int("attempt", attempt).
			Str("status", string(feedback.Status)).
			Str("code", feedback.Code).
			Msgf("dispatch attempt %d/%d", attempt, action.MaxAttempts)

		lastObs, lastFeedback = obs, feedback

		if feedback.Status == domain.ActionStatusSuccess {
			return obs, feedback
		}

		if attempt == action.MaxAttempts || !degerrors.IsTransientCode(feedback.Code) {
			break
		}

		delay := backoffDelay(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastObs, domain.ActionFeedback{Status: domain.ActionStatusFailed, Code: "E_TIMEOUT", Message: "context cancelled during backoff"}
		}
	}

	if lastFeedback.Status != domain.ActionStatusSuccess {
		log.Warn().
			Str("tool_name", action.ToolName).
			Str("code", lastFeedback.Code).
			Msg("dispatch exhausted retries")
	}

	return lastObs, lastFeedback
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// resolveArguments resolves every string argument's ${node_id.field}
// templates against nodes. It returns the unresolved reference path (for
// the E_UNRESOLVED_REF feedback message) if any argument references a
// node that is not SUCCESS with a resolved output.
func resolveArguments(args map[string]any, nodes map[string]*domain.ExecutionNode) (map[string]any, string, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		resolved, unresolved := resolveReferences(s, nodes)
		if len(unresolved) > 0 {
			return nil, strings.Join(unresolved, ","), nil
		}
		out[k] = resolved
	}
	return out, "", nil
}

// ProjectOutput computes resolved_output for a SUCCESS node per a
// tool-specific convention: extract_data joins matched elements' text,
// take_screenshot yields the absolute path it wrote to, everything else
// falls back to the post-action URL.
func ProjectOutput(toolName string, obs domain.WebObservation) string {
	switch toolName {
	case tools.ExtractData:
		texts := make([]string, 0, len(obs.Elements))
		for _, el := range obs.Elements {
			texts = append(texts, el.InnerText)
		}
		return strings.Join(texts, "\n")
	case tools.TakeScreenshot:
		return obs.ScreenshotPath
	default:
		return obs.URL
	}
}
