package websocket

import (
	"log/slog"
	"sync"
)

// Broadcaster is implemented by anything the Event Bus can push task
// events through. A Redis-backed adapter could implement the same
// interface for horizontal scaling without changing call sites.
type Broadcaster interface {
	Broadcast(taskID string, event *WSEvent)
}

// broadcastMsg is a message queued for the hub's dispatch loop.
type broadcastMsg struct {
	taskID string
	event  *WSEvent
}

// Hub fans events out to every client subscribed to a task. One Hub
// serves a whole server process; clients join and leave tasks freely
// over their connection's lifetime.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byTaskID map[string]map[*Client]bool

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byTaskID:   make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main event loop. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	h.logger.Debug("websocket client registered",
		"client_id", client.id,
		"total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	client.subs.mu.RLock()
	for taskID := range client.subs.tasks {
		if clients, ok := h.byTaskID[taskID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byTaskID, taskID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug("websocket client unregistered",
		"client_id", client.id,
		"total_clients", len(h.clients))
}

// Broadcast queues event for delivery to every client joined to taskID.
// Implements Broadcaster.
func (h *Hub) Broadcast(taskID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{taskID: taskID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.byTaskID[msg.taskID]
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn("websocket client buffer full, dropping event",
				"client_id", client.id,
				"event", msg.event.Event)
		}
	}
}

// Join subscribes client to taskID's event stream.
func (h *Hub) Join(client *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	client.subs.tasks[taskID] = true
	if h.byTaskID[taskID] == nil {
		h.byTaskID[taskID] = make(map[*Client]bool)
	}
	h.byTaskID[taskID][client] = true

	h.logger.Debug("websocket client joined task",
		"client_id", client.id,
		"task_id", taskID)
}

// Leave unsubscribes client from taskID's event stream.
func (h *Hub) Leave(client *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	delete(client.subs.tasks, taskID)
	if clients, ok := h.byTaskID[taskID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byTaskID, taskID)
		}
	}

	h.logger.Debug("websocket client left task",
		"client_id", client.id,
		"task_id", taskID)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
