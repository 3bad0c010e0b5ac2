package websocket

import "time"

// Event names recognized on the task stream. Unknown events are ignored by
// both sides, so new ones can be added without breaking older clients.
const (
	EventNodeUpdate = "node_update"
	EventTaskUpdate = "task_update"
	EventLog        = "log"
	EventBrowserURL = "browser_url"
	EventPong       = "pong"
)

// Command types (client -> server)
const (
	CmdJoinTask = "join_task"
	CmdLeave    = "leave"
	CmdPing     = "ping"
)

// WSEvent is the generic envelope pushed to subscribers of a task. Data
// holds whatever payload Event names: a node snapshot for node_update, a
// task snapshot for task_update, a LogEntry for log, or {"url": ...} for
// browser_url.
type WSEvent struct {
	Event     string      `json:"event"`
	TaskID    string      `json:"task_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewWSEvent builds an event envelope stamped with the current time.
func NewWSEvent(event, taskID string, data interface{}) *WSEvent {
	return &WSEvent{
		Event:     event,
		TaskID:    taskID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// WSCommand is a message sent by the client to the server.
type WSCommand struct {
	Action string `json:"action"`
	TaskID string `json:"task_id,omitempty"`
}

// WSResponse acknowledges a WSCommand.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse builds an acknowledgement for a successful command.
func NewSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{Type: responseType, Success: true, Message: message}
}

// NewErrorResponse builds an acknowledgement for a failed command.
func NewErrorResponse(responseType, errMsg string) *WSResponse {
	return &WSResponse{Type: responseType, Success: false, Error: errMsg}
}
