// Package tools holds the tool interface the Dispatcher invokes and a
// registry of named implementations, plus the Stub and Mock
// implementations used to exercise the engine without a real browser
// driver.
package tools

import (
	"context"

	"github.com/smilemakc/degflow/internal/domain"
)

// Tool is the collaborator contract consumed by the Dispatcher: given
// resolved arguments and a call context, it performs one browser or OS
// action and reports a fresh observation plus outcome feedback.
type Tool interface {
	Invoke(ctx context.Context, args map[string]any, callCtx *CallContext) (domain.WebObservation, domain.ActionFeedback)
}

// CallContext carries what a tool needs beyond its own arguments: the
// task id and the browser session handle (opaque to the core).
type CallContext struct {
	TaskID         string
	BrowserSession any
}

// The browser-automation tool names the core can dispatch.
const (
	NavigateTo          = "navigate_to"
	ClickElement        = "click_element"
	ClickNth            = "click_nth"
	TypeText            = "type_text"
	Scroll              = "scroll"
	Wait                = "wait"
	WaitFor             = "wait_for"
	ExtractData         = "extract_data"
	GetElementAttribute = "get_element_attribute"
	TakeScreenshot      = "take_screenshot"
	FindLinkByText      = "find_link_by_text"
	OpenNotepad         = "open_notepad"
)

// AllToolNames lists every tool name the registry can be asked to hold,
// used to pre-seed a Stub registry for tests and local runs.
var AllToolNames = []string{
	NavigateTo, ClickElement, ClickNth, TypeText, Scroll, Wait, WaitFor,
	ExtractData, GetElementAttribute, TakeScreenshot, FindLinkByText, OpenNotepad,
}

// Registry maps a tool name to its implementation.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register installs impl under name, overwriting any prior registration.
func (r *Registry) Register(name string, impl Tool) {
	r.tools[name] = impl
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}
