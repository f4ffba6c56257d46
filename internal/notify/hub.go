package notify

import (
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const defaultSendBuffer = 16

// HubConfig tunes the per-client limits of a Hub
type HubConfig struct {
	MessagesPerSecond float64
	Burst             int
	SendBuffer        int
}

// Hub pushes auction updates to websocket subscribers grouped by auction
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
	cfg      HubConfig
}

// NewHub creates an empty Hub
func NewHub(cfg HubConfig) *Hub {
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

// HandleAuctionSocket upgrades the request and subscribes the connection to
// the auction named by the auction_id path parameter.
func (h *Hub) HandleAuctionSocket(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if auctionID == "" {
		utils.JSONError(c, http.StatusBadRequest, errors.New("empty auction ID"), "missing auction ID")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("HandleAuctionSocket: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	client := &Client{
		ID:          utils.GenerateID(),
		AuctionID:   auctionID,
		Conn:        conn,
		Send:        make(chan []byte, h.cfg.SendBuffer),
		RateLimiter: rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.Burst),
	}
	h.join(client)

	go client.ReadMessages(h.handleMessage, h.leave)
	go client.WriteMessages()
}

// Subscribers returns how many clients listen to an auction
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// NotifyAuctionUpdate broadcasts the full bid list of an auction
func (h *Hub) NotifyAuctionUpdate(_ context.Context, auctionID string, bids []models.Bid) {
	h.broadcast(auctionID, Event{Type: EventAuctionBidUpdate, AuctionID: auctionID, Data: bids})
}

// NotifyAuctionEnded broadcasts the final state of an auction
func (h *Hub) NotifyAuctionEnded(_ context.Context, auction models.Auction) {
	h.broadcast(auction.AuctionID, Event{Type: EventAuctionUpdated, AuctionID: auction.AuctionID, Data: auction})
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, room := range rooms {
		for client := range room {
			client.close()
		}
	}
}

func (h *Hub) join(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.AuctionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[client.AuctionID] = room
	}
	room[client] = struct{}{}
	utils.Debug("websocket client joined", map[string]any{"client_id": client.ID, "auction_id": client.AuctionID})
}

func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[client.AuctionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.AuctionID)
		}
	}
	h.mu.Unlock()
	client.close()
}

// broadcast never blocks. Clients whose buffer is full are dropped.
func (h *Hub) broadcast(auctionID string, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		utils.Error("broadcast: could not encode event", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[auctionID]))
	for client := range h.rooms[auctionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(message) {
			utils.Warn("broadcast: dropping slow websocket client", map[string]any{"client_id": client.ID, "auction_id": auctionID})
			h.leave(client)
		}
	}
}
