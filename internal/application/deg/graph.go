// Package deg implements the Dynamic Execution Graph engine: the graph
// itself (this file), the Planner, the Tool Dispatcher, and the Decision
// Loop that drives one task from its initial plan to a terminal state.
package deg

import (
	"sort"
	"sync"

	"github.com/smilemakc/degflow/internal/domain"
)

// Graph owns one task's node collection and enforces its structural
// invariants: forest shape, RUNNING only while dispatch is in flight,
// ABORT pruning descendants, resolved_output set only on SUCCESS and
// thereafter immutable. It is single-writer: only the Decision Loop that
// owns it calls the mutating methods; everyone else reads through
// Snapshot.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*domain.ExecutionNode
	rootID     string
	insertSeq  int
	goal       *domain.TaskGoal
}

// NewGraph creates an empty graph for goal, used to validate each node's
// action against the goal's allowed tool list.
func NewGraph(goal *domain.TaskGoal) *Graph {
	return &Graph{
		nodes: make(map[string]*domain.ExecutionNode),
		goal:  goal,
	}
}

// AddNode appends node as a child of parentID (or as the root when
// parentID is empty), preserving ascending-priority order among its new
// siblings. It fails with ErrCodeParentMissing / ErrCodeRootExists per
// spec.
func (g *Graph) AddNode(node domain.ExecutionNode, parentID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if parentID == "" {
		if g.rootID != "" {
			return "", domain.NewDomainError(domain.ErrCodeRootExists, "a root node already exists", nil)
		}
	} else if _, ok := g.nodes[parentID]; !ok {
		return "", domain.NewDomainError(domain.ErrCodeParentMissing, "parent node not found: "+parentID, nil)
	}

	if err := node.Validate(g.goal); err != nil {
		return "", domain.NewDomainError(domain.ErrCodeValidationFailed, err.Error(), nil)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return "", domain.NewDomainError(domain.ErrCodeInvalidInput, "node id already exists: "+node.ID, nil)
	}

	// parentID is authoritative: the caller (Loop.seedGraph, InjectCorrection)
	// resolves a node's own ParentID against its insertion anchor before
	// calling AddNode, so any ParentID already set on node is discarded here.
	node.ParentID = parentID
	if node.Status == "" {
		node.Status = domain.NodeStatusPending
	}
	node.InsertionSeq = g.insertSeq
	g.insertSeq++

	stored := node
	g.nodes[node.ID] = &stored

	if parentID == "" {
		g.rootID = node.ID
		return node.ID, nil
	}

	parent := g.nodes[parentID]
	parent.Children = insertByPriority(parent.Children, g.nodes, node.ID)
	return node.ID, nil
}

func insertByPriority(children []string, nodes map[string]*domain.ExecutionNode, newID string) []string {
	newNode := nodes[newID]
	idx := sort.Search(len(children), func(i int) bool {
		other := nodes[children[i]]
		if other.Priority != newNode.Priority {
			return other.Priority > newNode.Priority
		}
		return other.InsertionSeq > newNode.InsertionSeq
	})
	children = append(children, "")
	copy(children[idx+1:], children[idx:])
	children[idx] = newID
	return children
}

// Get returns a clone of the node with id, or false if it does not exist.
func (g *Graph) Get(nodeID string) (domain.ExecutionNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return domain.ExecutionNode{}, false
	}
	return node.Clone(), true
}

// Children returns clones of nodeID's children in priority order.
func (g *Graph) Children(nodeID string) []domain.ExecutionNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil
	}
	out := make([]domain.ExecutionNode, 0, len(node.Children))
	for _, cid := range node.Children {
		out = append(out, g.nodes[cid].Clone())
	}
	return out
}

// RootID returns the id of the root node, or "" if none has been added.
func (g *Graph) RootID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootID
}

// NextRunnable implements the deterministic priority-biased depth-first
// selection: walk from the root, recursing into the children of SUCCESS
// and FAILED nodes in priority order, returning the first PENDING node whose precondition
// resolves. Ties are broken by insertion order, already encoded by
// Children's storage order.
func (g *Graph) NextRunnable() (domain.ExecutionNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.rootID == "" {
		return domain.ExecutionNode{}, false
	}
	id, ok := g.nextRunnableFrom(g.rootID)
	if !ok {
		return domain.ExecutionNode{}, false
	}
	return g.nodes[id].Clone(), true
}

func (g *Graph) nextRunnableFrom(nodeID string) (string, bool) {
	node := g.nodes[nodeID]

	if node.Status == domain.NodeStatusPending {
		satisfied, err := preconditionSatisfied(node.RequiredPrecondition, g.nodes)
		if err == nil && satisfied {
			return nodeID, true
		}
	}

	// A node's children are only eligible once the node itself is
	// SUCCESS or FAILED. Under ABORT or SKIP a FAILED node's descendants
	// are already PRUNED or SKIPPED; under RE_EVALUATE this is what lets a
	// grafted correction subplan (and after it the original PENDING
	// children) run. A PENDING-but-not-ready, RUNNING, PRUNED or SKIPPED
	// node blocks its whole subtree.
	if node.Status != domain.NodeStatusSuccess && node.Status != domain.NodeStatusFailed {
		return "", false
	}

	for _, cid := range node.Children {
		if id, ok := g.nextRunnableFrom(cid); ok {
			return id, true
		}
	}
	return "", false
}

// Mark sets nodeID's status and applies the failure-policy fan-out when
// status is FAILED: ABORT prunes descendants, SKIP marks them SKIPPED,
// RE_EVALUATE/RETRY_ONLY leave them PENDING for the loop to handle.
func (g *Graph) Mark(nodeID string, status domain.NodeStatus, reason string, output *string, observation *domain.WebObservation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[nodeID]
	if !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "node not found: "+nodeID, nil)
	}
	if !status.IsValid() {
		return domain.NewDomainError(domain.ErrCodeInvalidTransition, "unrecognized status: "+status.String(), nil)
	}

	node.Status = status
	if reason != "" {
		node.FailureReason = reason
	}
	if status == domain.NodeStatusSuccess && output != nil && node.ResolvedOutput == nil {
		node.ResolvedOutput = output
	}
	if observation != nil {
		node.LastObservation = observation
	}

	if status == domain.NodeStatusFailed {
		switch node.Action.OnFailure {
		case domain.OnFailureAbort:
			g.pruneLocked(nodeID)
		case domain.OnFailureSkip:
			g.skipDescendants(nodeID)
		}
	}
	return nil
}

func (g *Graph) skipDescendants(nodeID string) {
	node := g.nodes[nodeID]
	for _, cid := range node.Children {
		child := g.nodes[cid]
		child.Status = domain.NodeStatusSkipped
		g.skipDescendants(cid)
	}
}

// Prune sets every descendant of nodeID to PRUNED, leaving nodeID's own
// status untouched. Idempotent.
func (g *Graph) Prune(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[nodeID]; !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "node not found: "+nodeID, nil)
	}
	g.pruneLocked(nodeID)
	return nil
}

func (g *Graph) pruneLocked(nodeID string) {
	node := g.nodes[nodeID]
	for _, cid := range node.Children {
		child := g.nodes[cid]
		child.Status = domain.NodeStatusPruned
		g.pruneLocked(cid)
	}
}

// InjectCorrection grafts a correction subplan under afterNodeID. Each
// node is reparented so the first becomes a direct child of afterNodeID,
// and every injected node receives a priority strictly less than any
// existing PENDING sibling at that level, guaranteeing the correction
// runs before the original continuation.
func (g *Graph) InjectCorrection(afterNodeID string, nodes []domain.ExecutionNode) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	after, ok := g.nodes[afterNodeID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "node not found: "+afterNodeID, nil)
	}
	if after.Status != domain.NodeStatusFailed && after.Status != domain.NodeStatusSuccess {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidTransition,
			"correction target must be FAILED or SUCCESS-but-needs-follow-up, got "+after.Status.String(), nil)
	}

	minPending := minPendingPriority(after.Children, g.nodes)
	correctionPriority := minPending - 1

	ids := make([]string, 0, len(nodes))
	var parent string
	for i, n := range nodes {
		if n.ParentID == "" {
			if i == 0 {
				parent = afterNodeID
			} else {
				parent = ids[i-1]
			}
		} else {
			parent = n.ParentID
		}

		n.Status = domain.NodeStatusPending
		n.Priority = correctionPriority
		n.ParentID = parent
		if err := n.Validate(g.goal); err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeValidationFailed, err.Error(), nil)
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "node id already exists: "+n.ID, nil)
		}

		n.InsertionSeq = g.insertSeq
		g.insertSeq++
		stored := n
		g.nodes[n.ID] = &stored

		parentNode := g.nodes[parent]
		parentNode.Children = insertByPriority(parentNode.Children, g.nodes, n.ID)
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func minPendingPriority(childIDs []string, nodes map[string]*domain.ExecutionNode) int {
	min := 0
	found := false
	for _, cid := range childIDs {
		child := nodes[cid]
		if child.Status != domain.NodeStatusPending {
			continue
		}
		if !found || child.Priority < min {
			min = child.Priority
			found = true
		}
	}
	if !found {
		return 0
	}
	return min
}

// Snapshot returns a deep copy of the full node set, keyed by node id,
// suitable for handing to the Event Bus or serializing. The root id is
// not included; RootID returns it.
func (g *Graph) Snapshot() map[string]domain.ExecutionNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]domain.ExecutionNode, len(g.nodes))
	for id, n := range g.nodes {
		out[id] = n.Clone()
	}
	return out
}

// HasFailedNode reports whether any node in the graph is FAILED.
func (g *Graph) HasFailedNode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Status == domain.NodeStatusFailed {
			return true
		}
	}
	return false
}

// HasSuccessNode reports whether any node in the graph is SUCCESS.
func (g *Graph) HasSuccessNode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Status == domain.NodeStatusSuccess {
			return true
		}
	}
	return false
}

// NodeCount returns the number of nodes currently in the graph, used by
// the loop to size the wall-clock budget (goal.step_budget × |nodes|).
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
