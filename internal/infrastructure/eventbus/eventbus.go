// Package eventbus fans a task's Decision Loop events out to any number of
// subscribers (the websocket hub, the Task Registry, a CLI watcher) without
// the loop itself knowing who's listening.
package eventbus

import (
	"strconv"
	"sync"
	"time"

	"github.com/smilemakc/degflow/internal/domain"
)

// EventType names the kind of payload an Event carries.
type EventType string

const (
	EventNodeUpdate EventType = "node_update"
	EventTaskUpdate EventType = "task_update"
	EventLog        EventType = "log"
	EventBrowserURL EventType = "browser_url"
)

// Event is the envelope pushed to every subscriber of a task.
type Event struct {
	Type      EventType
	TaskID    string
	Timestamp time.Time
	Node      *domain.ExecutionNode // set for EventNodeUpdate
	Status    domain.TaskStatus     // set for EventTaskUpdate
	LogEntry  *domain.LogEntry      // set for EventLog
	URL       string                // set for EventBrowserURL
}

// queueCapacity bounds each subscription's pending-event backlog. A subscriber
// that falls this far behind starts losing superseded node_update events
// instead of the bus blocking; only events that are never dropped (see
// evictForRoom) can take the backlog past this bound.
const queueCapacity = 256

// subscription is one subscriber's bounded, mutex-guarded backlog. A slice
// is used instead of a channel because the overflow policy needs random-
// access removal (evict a specific stale node_update), which a channel
// cannot do.
type subscription struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
}

func newSubscription() *subscription {
	return &subscription{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	if len(s.queue) >= queueCapacity && !s.evictForRoom(ev) {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// evictForRoom makes room for an incoming event at capacity and reports
// whether the incoming event should be queued. A terminal event
// (node_update whose node has reached a terminal status, any
// task_update, any log) is never dropped. It first tries to evict an
// existing queued node_update for the same node id if that update is
// itself non-terminal; failing that, it evicts the oldest non-terminal
// node_update in the queue, of any node. If every queued event is
// terminal nothing is evicted: an incoming non-terminal node_update is
// dropped instead (false), and any other incoming event is queued past
// capacity (true).
func (s *subscription) evictForRoom(incoming Event) bool {
	if incoming.Type == EventNodeUpdate && incoming.Node != nil {
		for i, q := range s.queue {
			if q.Type == EventNodeUpdate && q.Node != nil &&
				q.Node.ID == incoming.Node.ID && !q.Node.Status.IsTerminal() {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				return true
			}
		}
	}

	for i, q := range s.queue {
		if q.Type == EventNodeUpdate && q.Node != nil && !q.Node.Status.IsTerminal() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}

	// Nothing droppable. This only happens once every queued event is
	// terminal, which a caught-up subscriber reading at normal speed
	// never sees.
	return incoming.Type != EventNodeUpdate || (incoming.Node != nil && incoming.Node.Status.IsTerminal())
}

// forward drains the queue into out until unsubscribed, blocking on notify
// between drains so it never busy-polls.
func (s *subscription) forward() {
	for {
		select {
		case <-s.done:
			close(s.out)
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- ev:
			case <-s.done:
				close(s.out)
				return
			}
		}
	}
}

// Bus implements deg.EventSink and re-publishes every call to each
// subscriber currently joined to that task.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscription // taskID -> subscriberID -> subscription
	seq  int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[string]*subscription)}
}

// Subscribe joins taskID's event stream. The returned channel closes once
// unsubscribe is called; events arrive in publish order except where the
// overflow policy has coalesced a superseded node_update away.
func (b *Bus) Subscribe(taskID string) (id string, events <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	subID := "sub-" + strconv.Itoa(b.seq)
	sub := newSubscription()
	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[string]*subscription)
	}
	b.subs[taskID][subID] = sub
	b.mu.Unlock()

	go sub.forward()

	return subID, sub.out, func() {
		b.mu.Lock()
		if byID, ok := b.subs[taskID]; ok {
			delete(byID, subID)
			if len(byID) == 0 {
				delete(b.subs, taskID)
			}
		}
		b.mu.Unlock()
		close(sub.done)
	}
}

func (b *Bus) publish(taskID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[taskID] {
		sub.push(ev)
	}
}

// NodeUpdate implements deg.EventSink.
func (b *Bus) NodeUpdate(taskID string, node domain.ExecutionNode) {
	n := node
	b.publish(taskID, Event{Type: EventNodeUpdate, TaskID: taskID, Timestamp: time.Now().UTC(), Node: &n})
}

// TaskUpdate implements deg.EventSink.
func (b *Bus) TaskUpdate(taskID string, status domain.TaskStatus) {
	b.publish(taskID, Event{Type: EventTaskUpdate, TaskID: taskID, Timestamp: time.Now().UTC(), Status: status})
}

// Log implements deg.EventSink.
func (b *Bus) Log(entry domain.LogEntry) {
	e := entry
	b.publish(entry.TaskID, Event{Type: EventLog, TaskID: entry.TaskID, Timestamp: time.Now().UTC(), LogEntry: &e})
}

// BrowserURL publishes a browser_url event, raised by a tool invocation
// rather than the loop itself, so it isn't part of the EventSink interface.
func (b *Bus) BrowserURL(taskID, url string) {
	b.publish(taskID, Event{Type: EventBrowserURL, TaskID: taskID, Timestamp: time.Now().UTC(), URL: url})
}
