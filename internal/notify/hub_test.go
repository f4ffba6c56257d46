package notify

import (
	"charity-auction/internal/models"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/auctions/:auction_id", hub.HandleAuctionSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestHubBroadcastsToAuctionRoom(t *testing.T) {
	hub := NewHub(HubConfig{})
	base := newHubServer(t, hub)

	watcher := dial(t, base+"/ws/auctions/a1")
	other := dial(t, base+"/ws/auctions/a2")
	require.Eventually(t, func() bool {
		return hub.Subscribers("a1") == 1 && hub.Subscribers("a2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.NotifyAuctionUpdate(context.Background(), "a1", []models.Bid{
		{BidID: "b1", AuctionID: "a1", UserID: "u1", Amount: decimal.NewFromInt(110)},
	})

	event := readEvent(t, watcher)
	require.Equal(t, EventAuctionBidUpdate, event["type"])
	require.Equal(t, "a1", event["auction_id"])
	bids := event["data"].([]any)
	require.Len(t, bids, 1)
	require.Equal(t, "110", bids[0].(map[string]any)["amount"])

	// a2 must not see a1 traffic
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestHubAuctionEnded(t *testing.T) {
	hub := NewHub(HubConfig{})
	base := newHubServer(t, hub)

	conn := dial(t, base+"/ws/auctions/a1")
	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyAuctionEnded(context.Background(), models.Auction{AuctionID: "a1", Status: models.AuctionEnded, WinnerID: "u2"})

	event := readEvent(t, conn)
	require.Equal(t, EventAuctionUpdated, event["type"])
	data := event["data"].(map[string]any)
	require.Equal(t, "ended", data["status"])
	require.Equal(t, "u2", data["winner_id"])
}

func TestHubInboundMessages(t *testing.T) {
	hub := NewHub(HubConfig{MessagesPerSecond: 1, Burst: 2})
	base := newHubServer(t, hub)
	conn := dial(t, base+"/ws/auctions/a1")

	tests := []struct {
		name     string
		message  string
		wantType string
		wantMsg  string
	}{
		{name: "ping", message: `{"type":"ping"}`, wantType: EventPong},
		{name: "unknown_type", message: `{"type":"bid"}`, wantType: EventError, wantMsg: "Unknown message type"},
		{name: "rate_limited", message: `{"type":"ping"}`, wantType: EventError, wantMsg: "Rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.message)))
			event := readEvent(t, conn)
			require.Equal(t, tt.wantType, event["type"])
			if tt.wantMsg != "" {
				require.Equal(t, tt.wantMsg, event["message"])
			}
		})
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub(HubConfig{})
	base := newHubServer(t, hub)

	conn := dial(t, base+"/ws/auctions/a1")
	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 0 }, 2*time.Second, 10*time.Millisecond)

	// broadcasting to an empty room is a no-op
	hub.NotifyAuctionUpdate(context.Background(), "a1", nil)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(HubConfig{})
	base := newHubServer(t, hub)

	conn := dial(t, base+"/ws/auctions/a1")
	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	require.Equal(t, 0, hub.Subscribers("a1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
