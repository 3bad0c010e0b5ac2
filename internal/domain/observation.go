package domain

import "time"

// BoundingBox is an axis-aligned bounding box in page coordinates.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// KeyElement is a read-only snapshot of a page element, produced by the tool
// layer. The core never mutates a KeyElement after it is observed.
type KeyElement struct {
	ElementID  string
	Tag        string
	Selector   string // XPath
	InnerText  string
	Visible    bool
	Clickable  bool
	Box        BoundingBox
	PurposeHint string
}

// ActionFeedback describes the outcome of the last dispatched action.
type ActionFeedback struct {
	Status  ActionStatus
	Code    string // e.g. E_NET, E_TIMEOUT, E_BAD_ARG
	Message string
}

// WebObservation is the most recent environment snapshot produced after a
// dispatch attempt.
type WebObservation struct {
	Timestamp        time.Time
	URL              string
	HTTPStatus       int
	LoadLatencyMS    int64
	Authenticated    bool
	Elements         []KeyElement
	ScreenshotExists bool
	ScreenshotPath   string // absolute path, set only when ScreenshotExists
	Feedback         *ActionFeedback
	MemoryContext    string
	BrowserHealth    string
}
