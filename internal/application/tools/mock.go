package tools

import (
	"context"
	"sync"
	"time"

	"github.com/smilemakc/degflow/internal/domain"
)

// ScriptedResponse is one canned (observation, feedback) pair a Mock
// returns on a successive call, optionally after sleeping Delay — used
// to simulate a tool that hangs past its timeout or that fails
// transiently before succeeding.
type ScriptedResponse struct {
	Observation domain.WebObservation
	Feedback    domain.ActionFeedback
	Delay       time.Duration
}

// Mock is a Tool whose responses are scripted in advance, for
// deterministic scenario tests. Calls beyond the scripted list repeat
// the last entry.
type Mock struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	calls     int
}

// NewMock builds a Mock that returns responses in order.
func NewMock(responses ...ScriptedResponse) *Mock {
	return &Mock{responses: responses}
}

// CallCount returns how many times Invoke has been called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) Invoke(ctx context.Context, _ map[string]any, _ *CallContext) (domain.WebObservation, domain.ActionFeedback) {
	m.mu.Lock()
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	resp := m.responses[idx]
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return domain.WebObservation{Timestamp: time.Now().UTC()},
				domain.ActionFeedback{Status: domain.ActionStatusTimeout, Code: "E_TIMEOUT", Message: ctx.Err().Error()}
		}
	}
	return resp.Observation, resp.Feedback
}
