package notify

import (
	"charity-auction/utils"
	"encoding/json"
)

// Event types pushed to subscribers
const (
	EventAuctionBidUpdate = "auctionBidUpdate"
	EventAuctionUpdated   = "auctionUpdated"
	EventPong             = "pong"
	EventError            = "error"
)

// Event is the envelope of every outbound message
type Event struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Message is an inbound client frame
type Message struct {
	Type string `json:"type"`
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// handleMessage answers inbound frames. Subscribers are read-only, so only
// keepalive pings are understood.
func (h *Hub) handleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		utils.Warn("websocket rate limit exceeded", map[string]any{"client_id": client.ID})
		h.reply(client, Event{Type: EventError, Message: "Rate limit exceeded"})
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		h.reply(client, Event{Type: EventError, Message: "Invalid message format"})
		return
	}

	switch msg.Type {
	case "ping":
		h.reply(client, Event{Type: EventPong, AuctionID: client.AuctionID})
	default:
		h.reply(client, Event{Type: EventError, Message: "Unknown message type"})
	}
}

func (h *Hub) reply(client *Client, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}
	if !client.trySend(message) {
		h.leave(client)
	}
}
