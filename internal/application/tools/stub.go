package tools

import (
	"context"
	"time"

	"github.com/smilemakc/degflow/internal/domain"
	"github.com/smilemakc/degflow/internal/infrastructure/pathbuilder"
)

// Stub is a no-op Tool implementation: it reports SUCCESS with a
// plausible-looking observation for every tool name, without driving a
// real browser. It lets the dispatcher and loop be exercised end to end
// in environments with no browser automation backend wired in.
type Stub struct {
	ToolName string
	Paths    *pathbuilder.Builder
}

// NewStubRegistry builds a Registry where every name in AllToolNames maps
// to a Stub for that name.
func NewStubRegistry() *Registry {
	paths := pathbuilder.New("")
	reg := NewRegistry()
	for _, name := range AllToolNames {
		reg.Register(name, &Stub{ToolName: name, Paths: paths})
	}
	return reg
}

func (s *Stub) Invoke(_ context.Context, args map[string]any, callCtx *CallContext) (domain.WebObservation, domain.ActionFeedback) {
	obs := domain.WebObservation{
		Timestamp:     time.Now().UTC(),
		URL:           stringArg(args, "url", "https://stub.local"),
		HTTPStatus:    200,
		LoadLatencyMS: 1,
		BrowserHealth: "ok",
	}

	feedback := domain.ActionFeedback{Status: domain.ActionStatusSuccess}

	switch s.ToolName {
	case TakeScreenshot:
		obs.ScreenshotExists = true
		paths := s.Paths
		if paths == nil {
			paths = pathbuilder.New("")
		}
		obs.ScreenshotPath = paths.ScreenshotPath(stringArg(args, "task_topic", "screenshot"))
	case ExtractData:
		obs.Elements = []domain.KeyElement{{ElementID: "el-1", Tag: "span", InnerText: "stub-value"}}
	}

	_ = callCtx
	return obs, feedback
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
