package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Message is the JSON envelope used in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageHandler receives decoded client messages and disconnects.
type MessageHandler interface {
	OnMessage(c *Client, msg Message)
	OnClose(c *Client)
}

// Client is a middleman between the websocket connection and the hub.
// One client is one channel: its ID keys the session registry.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// ID identifies the channel for the lifetime of the connection.
	ID string

	// OwnerID is set when the channel was opened with a valid token.
	OwnerID string

	// Buffered channel of outbound messages. Never closed; see done.
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, id, ownerID string) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		ID:      id,
		OwnerID: ownerID,
		Send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Enqueue blocks until the message is queued or the client disconnects.
func (c *Client) Enqueue(msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// TryEnqueue drops the message when the send buffer is full.
func (c *Client) TryEnqueue(msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// Emit marshals an event envelope and queues it.
func (c *Client) Emit(event string, data interface{}) bool {
	payload, err := Encode(event, data)
	if err != nil {
		return false
	}
	return c.Enqueue(payload)
}

// Encode builds the wire form of one server event.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: raw})
}

// readPump pumps messages from the websocket connection to the handler.
func (c *Client) readPump(handler MessageHandler) {
	defer func() {
		c.markClosed()
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.stopped:
		}
		c.Conn.Close()
		handler.OnClose(c)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"channel_id": c.ID, "error": err.Error()})
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.Emit("error", map[string]string{"message": "Malformed message", "reason": "invalid_request"})
			continue
		}
		handler.OnMessage(c, msg)
	}
}

// writePump pumps messages from the send queue to the websocket connection.
// Each message is its own text frame so clients can parse frames independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.markClosed()
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.markClosed()
				return
			}
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
