package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Size of the send channel buffer.
	sendBufferSize = 64
)

// Subscriptions tracks which tasks a client has joined.
type Subscriptions struct {
	tasks map[string]bool
	mu    sync.RWMutex
}

// NewSubscriptions creates an empty Subscriptions set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{tasks: make(map[string]bool)}
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *WSEvent

	id     string
	userID string
	subs   *Subscriptions
}

// NewClient creates a new Client instance. userID is the identity
// established during the upgrade handshake (see Authenticator); it may be
// "anonymous" when auth is disabled.
func NewClient(id, userID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *WSEvent, sendBufferSize),
		id:     id,
		userID: userID,
		subs:   NewSubscriptions(),
	}
}

// readPump pumps commands from the WebSocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket unexpected close",
					"client_id", c.id,
					"error", err)
			}
			break
		}

		var cmd WSCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendResponse(NewErrorResponse("error", "invalid command format"))
			continue
		}

		c.handleCommand(&cmd)
	}
}

// writePump pumps events from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches a command received from the client. Unknown
// actions get an error response rather than closing the connection, so a
// client on a newer protocol version can probe for support.
func (c *Client) handleCommand(cmd *WSCommand) {
	switch cmd.Action {
	case CmdJoinTask:
		c.handleJoinTask(cmd)
	case CmdLeave:
		c.handleLeave(cmd)
	case CmdPing:
		c.sendResponse(NewSuccessResponse(EventPong, "pong"))
	default:
		c.sendResponse(NewErrorResponse("error", "unknown action: "+cmd.Action))
	}
}

func (c *Client) handleJoinTask(cmd *WSCommand) {
	if cmd.TaskID == "" {
		c.sendResponse(NewErrorResponse(CmdJoinTask, "task_id required"))
		return
	}

	c.hub.Join(c, cmd.TaskID)
	c.sendResponse(NewSuccessResponse(CmdJoinTask, "joined task: "+cmd.TaskID))
}

func (c *Client) handleLeave(cmd *WSCommand) {
	if cmd.TaskID == "" {
		c.sendResponse(NewErrorResponse(CmdLeave, "task_id required"))
		return
	}

	c.hub.Leave(c, cmd.TaskID)
	c.sendResponse(NewSuccessResponse(CmdLeave, "left task: "+cmd.TaskID))
}

// sendResponse sends an acknowledgement to the client.
func (c *Client) sendResponse(resp *WSResponse) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.writeJSON(resp)
}

// writeJSON writes a JSON message to the WebSocket connection.
func (c *Client) writeJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}
