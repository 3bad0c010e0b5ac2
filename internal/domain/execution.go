package domain

import "time"

// TaskExecution is the aggregate root for one running or finished task.
type TaskExecution struct {
	TaskID     string
	Goal       TaskGoal
	Nodes      map[string]*ExecutionNode
	RootNodeID string
	Status     TaskStatus
	StartedAt  time.Time
	EndedAt    *time.Time
}

// NewTaskExecution creates an idle TaskExecution for goal.
func NewTaskExecution(goal TaskGoal) *TaskExecution {
	return &TaskExecution{
		TaskID: goal.TaskID,
		Goal:   goal,
		Nodes:  make(map[string]*ExecutionNode),
		Status: TaskStatusIdle,
	}
}

// Snapshot returns a deep copy of the execution, safe to hand to an Event
// Bus subscriber or serialize; the original is never mutated by a reader.
func (e *TaskExecution) Snapshot() TaskExecution {
	clone := *e
	clone.Nodes = make(map[string]*ExecutionNode, len(e.Nodes))
	for id, n := range e.Nodes {
		nc := n.Clone()
		clone.Nodes[id] = &nc
	}
	if e.EndedAt != nil {
		t := *e.EndedAt
		clone.EndedAt = &t
	}
	return clone
}

// LogEntry is an ordered trace record emitted by the loop and dispatcher.
type LogEntry struct {
	ID            string
	Timestamp     time.Time
	Severity      LogSeverity
	Message       string
	OriginNodeID  string // optional
	TaskID        string
}
