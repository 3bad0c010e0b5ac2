// Package registry implements the Task Registry: it owns the set of tasks
// a server process knows about, spawning one Decision Loop goroutine per
// created task and answering create/get/list/stop against an xsync
// concurrent map instead of a mutex-guarded plain map, since every
// operation here is a lock-free point lookup or an insert under
// concurrent reads from the REST/WebSocket layers.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/smilemakc/degflow/internal/application/deg"
	"github.com/smilemakc/degflow/internal/application/tools"
	"github.com/smilemakc/degflow/internal/domain"
)

// CreateOptions carries the caller-supplied knobs for a new task, layered
// onto TaskGoal's required fields.
type CreateOptions struct {
	Deadline          *time.Time
	StepBudgetSeconds int
	RequiredData      map[string]string
	Persona           string
	Environment       string
	AllowedActions    []string
	PriorityLevel     int
}

// entry is one task's registry record: its immutable goal, its running
// Loop, and the terminal outcome once Run returns.
type entry struct {
	mu        sync.RWMutex
	goal      domain.TaskGoal
	loop      *deg.Loop
	startedAt time.Time
	endedAt   *time.Time
	status    domain.TaskStatus
	runErr    error
}

// Registry creates, tracks, and stops tasks. Each Create spawns a Decision
// Loop goroutine; the registry itself never blocks on one.
type Registry struct {
	entries *xsync.MapOf[string, *entry]

	newPlanner    func() *deg.Planner
	newDispatcher func() *deg.Dispatcher
	newCallCtx    func(taskID string) *tools.CallContext
	sink          deg.EventSink
	onCreate      func(taskID string) (stop func())
}

// New builds a Registry. newPlanner/newDispatcher are factories so every
// task gets its own Planner/Dispatcher pair (a fresh LM client timeout
// budget, a fresh tool registry handle); sink may be nil. onCreate, if
// non-nil, runs once per created task (typically subscribing a WebSocket
// bridge to its event stream) and its returned stop func runs once the
// task's Loop.Run returns, tying the bridge's lifetime to the task's.
func New(newPlanner func() *deg.Planner, newDispatcher func() *deg.Dispatcher, newCallCtx func(taskID string) *tools.CallContext, sink deg.EventSink, onCreate func(taskID string) (stop func())) *Registry {
	return &Registry{
		entries:       xsync.NewMapOf[string, *entry](),
		newPlanner:    newPlanner,
		newDispatcher: newDispatcher,
		newCallCtx:    newCallCtx,
		sink:          sink,
		onCreate:      onCreate,
	}
}

// Create validates a new TaskGoal built from description and opts, seeds a
// Decision Loop for it, and returns its task id immediately; the loop runs
// to completion in its own goroutine.
func (r *Registry) Create(description string, opts CreateOptions) (string, error) {
	goal := domain.TaskGoal{
		TaskID:            uuid.New().String(),
		Description:       description,
		Deadline:          opts.Deadline,
		StepBudgetSeconds: opts.StepBudgetSeconds,
		RequiredData:      opts.RequiredData,
		Persona:           opts.Persona,
		Environment:       opts.Environment,
		AllowedActions:    opts.AllowedActions,
		PriorityLevel:     opts.PriorityLevel,
	}
	if goal.StepBudgetSeconds == 0 {
		goal.StepBudgetSeconds = 30
	}
	if goal.PriorityLevel == 0 {
		goal.PriorityLevel = 5
	}
	if verr := goal.Validate(); verr != nil {
		return "", fmt.Errorf("invalid task goal: %s: %s", verr.Field, verr.Reason)
	}

	loop := deg.NewLoop(goal, r.newPlanner(), r.newDispatcher(), r.newCallCtx(goal.TaskID), r.sink)
	e := &entry{goal: goal, loop: loop, startedAt: time.Now().UTC(), status: domain.TaskStatusRunning}
	r.entries.Store(goal.TaskID, e)

	var stop func()
	if r.onCreate != nil {
		stop = r.onCreate(goal.TaskID)
	}

	go r.run(e, stop)

	return goal.TaskID, nil
}

func (r *Registry) run(e *entry, stop func()) {
	status, err := e.loop.Run(context.Background())

	e.mu.Lock()
	e.status = status
	e.runErr = err
	now := time.Now().UTC()
	e.endedAt = &now
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Execution is the read-only view Get/List return; it never exposes the
// Loop or Graph pointer so callers can't mutate registry state directly.
type Execution struct {
	TaskID    string
	Goal      domain.TaskGoal
	Status    domain.TaskStatus
	StartedAt time.Time
	EndedAt   *time.Time
	Error     string
	Graph     map[string]domain.ExecutionNode
	RootID    string
}

// Get returns the current snapshot of taskID, or false if it is unknown.
func (r *Registry) Get(taskID string) (Execution, bool) {
	e, ok := r.entries.Load(taskID)
	if !ok {
		return Execution{}, false
	}
	return r.snapshot(e), true
}

func (r *Registry) snapshot(e *entry) Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	exec := Execution{
		TaskID:    e.goal.TaskID,
		Goal:      e.goal,
		Status:    e.status,
		StartedAt: e.startedAt,
		EndedAt:   e.endedAt,
		Graph:     e.loop.Graph().Snapshot(),
		RootID:    e.loop.Graph().RootID(),
	}
	if e.runErr != nil {
		exec.Error = e.runErr.Error()
	}
	return exec
}

// List returns every known task, most recently started first.
func (r *Registry) List() []Execution {
	out := make([]Execution, 0)
	r.entries.Range(func(_ string, e *entry) bool {
		out = append(out, r.snapshot(e))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Stop requests cooperative cancellation of taskID's Decision Loop. It
// returns false if taskID is unknown.
func (r *Registry) Stop(taskID string) bool {
	e, ok := r.entries.Load(taskID)
	if !ok {
		return false
	}
	e.loop.Cancel()
	return true
}
