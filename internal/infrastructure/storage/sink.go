package storage

import (
	"context"
	"log/slog"

	"github.com/smilemakc/degflow/internal/domain"
)

// LoggingSink adapts a LogStore into a deg.EventSink: NodeUpdate/TaskUpdate
// are no-ops (the graph itself is never persisted), Log appends to store
// and falls back to the process logger on a write failure rather than
// losing the entry.
type LoggingSink struct {
	store  LogStore
	logger *slog.Logger
}

// NewLoggingSink wraps store. logger may be nil, in which case
// slog.Default() is used for write-failure fallback messages.
func NewLoggingSink(store LogStore, logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{store: store, logger: logger}
}

func (s *LoggingSink) NodeUpdate(string, domain.ExecutionNode) {}
func (s *LoggingSink) TaskUpdate(string, domain.TaskStatus)    {}

// Log persists entry, logging (not failing) on a store write error since
// audit persistence must never block the Decision Loop.
func (s *LoggingSink) Log(entry domain.LogEntry) {
	if err := s.store.Append(context.Background(), entry); err != nil {
		s.logger.Error("log store append failed", "task_id", entry.TaskID,
			"origin_node_id", entry.OriginNodeID, "severity", string(entry.Severity),
			"message", entry.Message, "error", err)
	}
}
