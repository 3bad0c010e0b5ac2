package deg

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smilemakc/degflow/internal/application/tools"
	"github.com/smilemakc/degflow/internal/domain"
	degerrors "github.com/smilemakc/degflow/internal/domain/errors"
	"github.com/smilemakc/degflow/internal/infrastructure/tracing"
)

// DefaultCorrectionBudget is the number of RE_EVALUATE correction rounds a
// task is allowed before the loop forces the offending subtree to ABORT.
const DefaultCorrectionBudget = 3

// minWallClock floors a task's computed wall-clock budget so a tiny goal
// (few nodes, short step budget) still gets a workable window.
const minWallClock = 30 * time.Second

// EventSink receives the loop's observable state transitions. Nil-safe:
// NewLoop installs a no-op sink when none is given.
type EventSink interface {
	NodeUpdate(taskID string, node domain.ExecutionNode)
	TaskUpdate(taskID string, status domain.TaskStatus)
	Log(entry domain.LogEntry)
}

type noopSink struct{}

func (noopSink) NodeUpdate(string, domain.ExecutionNode) {}
func (noopSink) TaskUpdate(string, domain.TaskStatus)    {}
func (noopSink) Log(domain.LogEntry)                     {}

// MultiSink fans a single Loop's events out to every sink in the slice,
// in order, so a server can both broadcast to the Event Bus and persist
// to a LogStore without the Loop knowing about either concern directly.
type MultiSink []EventSink

func (m MultiSink) NodeUpdate(taskID string, node domain.ExecutionNode) {
	for _, s := range m {
		s.NodeUpdate(taskID, node)
	}
}

func (m MultiSink) TaskUpdate(taskID string, status domain.TaskStatus) {
	for _, s := range m {
		s.TaskUpdate(taskID, status)
	}
}

func (m MultiSink) Log(entry domain.LogEntry) {
	for _, s := range m {
		s.Log(entry)
	}
}

// Loop drives one task's graph from its initial plan to a terminal status,
// cycling through scheduling and dispatch until no node is runnable.
type Loop struct {
	taskID     string
	goal       domain.TaskGoal
	graph      *Graph
	planner    *Planner
	dispatcher *Dispatcher
	callCtx    *tools.CallContext
	sink       EventSink

	correctionBudget int
	correctionRounds int
	cancelled        atomic.Bool
	forceFinalize    atomic.Bool
}

// NewLoop builds a Loop for goal. sink may be nil.
func NewLoop(goal domain.TaskGoal, planner *Planner, dispatcher *Dispatcher, callCtx *tools.CallContext, sink EventSink) *Loop {
	if sink == nil {
		sink = noopSink{}
	}
	return &Loop{
		taskID:           goal.TaskID,
		goal:             goal,
		graph:            NewGraph(&goal),
		planner:          planner,
		dispatcher:       dispatcher,
		callCtx:          callCtx,
		sink:             sink,
		correctionBudget: DefaultCorrectionBudget,
	}
}

// Cancel requests cooperative cancellation; the loop observes it between
// scheduling and dispatch, and the dispatcher observes it between retry
// attempts.
func (l *Loop) Cancel() {
	l.cancelled.Store(true)
}

func (l *Loop) isCancelled() bool {
	return l.cancelled.Load()
}

// Graph exposes the loop's graph for read-only inspection (Snapshot,
// NodeCount) by a Task Registry entry while the loop is running.
func (l *Loop) Graph() *Graph {
	return l.graph
}

// Run executes INITIALIZING, then alternates SCHEDULING and DISPATCHING
// until no node is runnable, then FINALIZING. It returns the task's
// terminal status and, for wall-clock, cancellation, initial-planning and
// dispatch-error terminations, a descriptive error. Exhausting the
// correction budget returns no error: the offending subtree is pruned and
// scheduling continues.
func (l *Loop) Run(ctx context.Context) (domain.TaskStatus, error) {
	l.sink.TaskUpdate(l.taskID, domain.TaskStatusRunning)

	planCtx, planSpan := tracing.StartPlanSpan(ctx, l.taskID, "initial")
	nodes, err := l.planner.Plan(planCtx, l.goal)
	tracing.EndWithOutcome(planSpan, string(domain.TaskStatusRunning), err)
	if err != nil {
		l.sink.Log(l.logEntry(domain.LogSeverityError, "initial planning failed: "+err.Error(), ""))
		l.sink.TaskUpdate(l.taskID, domain.TaskStatusFailed)
		return domain.TaskStatusFailed, err
	}
	if err := l.seedGraph(nodes); err != nil {
		l.sink.TaskUpdate(l.taskID, domain.TaskStatusFailed)
		return domain.TaskStatusFailed, err
	}

	budget := time.Duration(l.goal.StepBudgetSeconds*l.graph.NodeCount()) * time.Second
	if budget < minWallClock {
		budget = minWallClock
	}
	wallCtx, cancel := context.WithDeadline(ctx, time.Now().Add(budget))
	defer cancel()

	for {
		if l.isCancelled() {
			status := domain.TaskStatusCancelled
			l.sink.TaskUpdate(l.taskID, status)
			return status, &degerrors.CancelledError{TaskID: l.taskID}
		}
		if l.forceFinalize.Load() {
			return l.finalize()
		}
		select {
		case <-wallCtx.Done():
			status := domain.TaskStatusFailed
			l.sink.TaskUpdate(l.taskID, status)
			return status, &degerrors.WallClockExceededError{TaskID: l.taskID, Budget: budget.String()}
		default:
		}

		next, ok := l.graph.NextRunnable()
		if !ok {
			return l.finalize()
		}

		if err := l.dispatchNode(wallCtx, next); err != nil {
			l.sink.Log(l.logEntry(domain.LogSeverityError, "dispatch error: "+err.Error(), next.ID))
			status := domain.TaskStatusFailed
			l.sink.TaskUpdate(l.taskID, status)
			return status, err
		}
	}
}

// seedGraph adds the Planner's initial nodes to an empty graph: the first
// becomes the root. Every subsequent node honors its own ParentID when the
// model set one; an empty ParentID defaults to the root, not to whichever
// node happened to be seeded immediately before it.
func (l *Loop) seedGraph(nodes []domain.ExecutionNode) error {
	var rootID string
	for i, n := range nodes {
		parent := n.ParentID
		if i == 0 {
			parent = ""
		} else if parent == "" {
			parent = rootID
		}

		id, err := l.graph.AddNode(n, parent)
		if err != nil {
			return err
		}
		if i == 0 {
			rootID = id
		}
	}
	return nil
}

func (l *Loop) dispatchNode(ctx context.Context, node domain.ExecutionNode) error {
	if err := l.graph.Mark(node.ID, domain.NodeStatusRunning, "", nil, nil); err != nil {
		return err
	}
	running, _ := l.graph.Get(node.ID)
	l.sink.NodeUpdate(l.taskID, running)

	nodePtrs := l.nodePointers()
	spanCtx, span := tracing.StartNodeSpan(ctx, l.taskID, node.ID, node.Action.ToolName)
	obs, feedback := l.dispatcher.Dispatch(spanCtx, node.Action, nodePtrs, l.callCtx, l.isCancelled)
	tracing.EndWithOutcome(span, string(feedback.Status), nil)

	if feedback.Status == domain.ActionStatusSuccess {
		output := ProjectOutput(node.Action.ToolName, obs)
		if err := l.graph.Mark(node.ID, domain.NodeStatusSuccess, "", &output, &obs); err != nil {
			return err
		}
		updated, _ := l.graph.Get(node.ID)
		l.sink.NodeUpdate(l.taskID, updated)
		l.sink.Log(l.logEntry(domain.LogSeveritySuccess, "node succeeded", node.ID))
		return nil
	}

	if err := l.graph.Mark(node.ID, domain.NodeStatusFailed, feedback.Message, nil, &obs); err != nil {
		return err
	}
	failed, _ := l.graph.Get(node.ID)
	l.sink.NodeUpdate(l.taskID, failed)
	l.sink.Log(l.logEntry(domain.LogSeverityError, "node failed ["+feedback.Code+"]: "+feedback.Message, node.ID))

	switch node.Action.OnFailure {
	case domain.OnFailureReEvaluate:
		return l.correct(ctx, failed, obs)
	case domain.OnFailureRetryOnly:
		// RETRY_ONLY has already exhausted its attempts inside the
		// dispatcher; there is no further recovery path, so the task
		// stops rather than letting unrelated branches keep scheduling.
		l.forceFinalize.Store(true)
	}
	return nil
}

// correct requests a correction subplan for a RE_EVALUATE failure and
// grafts it under the failed node. Exhausting the correction-round budget
// is treated like an ABORT on the offending subtree: the rest of the graph
// keeps scheduling. A Planner error, by contrast, has no recovery path at
// all and stops the whole task.
func (l *Loop) correct(ctx context.Context, failed domain.ExecutionNode, obs domain.WebObservation) error {
	if l.correctionRounds >= l.correctionBudget {
		budgetErr := &degerrors.CorrectionBudgetExceededError{TaskID: l.taskID, Budget: l.correctionBudget}
		l.sink.Log(l.logEntry(domain.LogSeverityWarning, budgetErr.Error(), failed.ID))
		return l.graph.Prune(failed.ID)
	}
	l.correctionRounds++

	planCtx, planSpan := tracing.StartPlanSpan(ctx, l.taskID, "correction")
	correctionNodes, err := l.planner.Correct(planCtx, l.goal, failed, &obs)
	tracing.EndWithOutcome(planSpan, "correction", err)
	if err != nil {
		l.sink.Log(l.logEntry(domain.LogSeverityError, "correction planning failed: "+err.Error(), failed.ID))
		l.forceFinalize.Store(true)
		return nil
	}

	ids, err := l.graph.InjectCorrection(failed.ID, correctionNodes)
	if err != nil {
		return err
	}
	for _, id := range ids {
		n, _ := l.graph.Get(id)
		l.sink.NodeUpdate(l.taskID, n)
	}
	return nil
}

func (l *Loop) nodePointers() map[string]*domain.ExecutionNode {
	snapshot := l.graph.Snapshot()
	out := make(map[string]*domain.ExecutionNode, len(snapshot))
	for id, n := range snapshot {
		node := n
		out[id] = &node
	}
	return out
}

// finalize reports completed when at least one node is SUCCESS and every
// FAILED node has a SUCCESS child (a grafted correction that ran through);
// otherwise failed.
func (l *Loop) finalize() (domain.TaskStatus, error) {
	status := domain.TaskStatusFailed
	if l.graph.HasSuccessNode() {
		status = domain.TaskStatusCompleted
	}
	snap := l.graph.Snapshot()
	for _, n := range snap {
		if n.Status == domain.NodeStatusFailed && !hasSuccessChild(n, snap) {
			status = domain.TaskStatusFailed
		}
	}
	l.sink.TaskUpdate(l.taskID, status)
	return status, nil
}

func hasSuccessChild(n domain.ExecutionNode, nodes map[string]domain.ExecutionNode) bool {
	for _, cid := range n.Children {
		if nodes[cid].Status == domain.NodeStatusSuccess {
			return true
		}
	}
	return false
}

func (l *Loop) logEntry(severity domain.LogSeverity, message, nodeID string) domain.LogEntry {
	return domain.LogEntry{
		Timestamp:    time.Now().UTC(),
		Severity:     severity,
		Message:      message,
		OriginNodeID: nodeID,
		TaskID:       l.taskID,
	}
}
