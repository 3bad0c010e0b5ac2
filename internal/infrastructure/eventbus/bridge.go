package eventbus

import (
	"github.com/smilemakc/degflow/internal/infrastructure/websocket"
)

// BridgeToBroadcaster subscribes to taskID on b and forwards every event to
// target (normally a *websocket.Hub) as a WSEvent, until the returned
// unsubscribe func is called, so the caller can tear it down once a task
// reaches a terminal status.
func BridgeToBroadcaster(b *Bus, taskID string, target websocket.Broadcaster) (stop func()) {
	_, events, unsubscribe := b.Subscribe(taskID)

	go func() {
		for ev := range events {
			target.Broadcast(taskID, toWSEvent(ev))
		}
	}()

	return unsubscribe
}

func toWSEvent(ev Event) *websocket.WSEvent {
	var data interface{}
	switch ev.Type {
	case EventNodeUpdate:
		data = ev.Node
	case EventTaskUpdate:
		data = map[string]string{"status": string(ev.Status)}
	case EventLog:
		data = ev.LogEntry
	case EventBrowserURL:
		data = map[string]string{"url": ev.URL}
	}
	return &websocket.WSEvent{
		Event:     string(ev.Type),
		TaskID:    ev.TaskID,
		Data:      data,
		Timestamp: ev.Timestamp,
	}
}
