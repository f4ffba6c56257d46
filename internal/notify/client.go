package notify

import (
	"sync"

	"charity-auction/utils"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one websocket subscriber of an auction room
type Client struct {
	ID          string
	AuctionID   string
	Conn        *websocket.Conn
	Send        chan []byte   // Channel for outgoing messages
	RateLimiter *rate.Limiter // Limits inbound messages
	closed      bool
	mu          sync.Mutex // protects closed and Send
}

// trySend queues a message without blocking. It returns false when the
// client is closed or its buffer is full.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// ReadMessages listens for incoming messages from the client
func (c *Client) ReadMessages(handleMessage func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		utils.Debug("websocket reader closed", map[string]any{"client_id": c.ID, "auction_id": c.AuctionID})
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			utils.Debug("websocket read failed", map[string]any{"client_id": c.ID, "error": err.Error()})
			return
		}
		handleMessage(c, message)
	}
}

// WriteMessages sends queued messages to the client until it is closed
func (c *Client) WriteMessages() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			utils.Debug("websocket write failed", map[string]any{"client_id": c.ID, "error": err.Error()})
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// close stops the writer. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
