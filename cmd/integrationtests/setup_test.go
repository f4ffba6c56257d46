package integrationtests

import (
	bidding "charity-auction/internal/biddingService"
	model "charity-auction/internal/models"
	"charity-auction/internal/notify"
	"charity-auction/internal/repository"
	"charity-auction/internal/server"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// testEnv is a router backed by an in-memory repository and a websocket hub
type testEnv struct {
	router  *gin.Engine
	repo    *repository.MemoryRepo
	hub     *notify.Hub
	service *bidding.BiddingService
}

// SetupTestEnv initializes the router and seeds the repo with auctions.
func SetupTestEnv(t *testing.T, auctions ...model.Auction) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, auction := range auctions {
		if _, err := repo.CreateAuction(context.Background(), auction); err != nil {
			t.Fatalf("failed to seed auction %s: %v", auction.AuctionID, err)
		}
	}

	hub := notify.NewHub(notify.HubConfig{MessagesPerSecond: 50, Burst: 50})
	t.Cleanup(hub.Close)

	service := bidding.NewBiddingService(repo, bidding.WithNotifier(hub))
	return &testEnv{
		router:  server.SetupRouter(service, hub, repo),
		repo:    repo,
		hub:     hub,
		service: service,
	}
}

// NewAuction returns an active auction open for auto-bidding
func NewAuction(id string, price, increment int64) model.Auction {
	return model.Auction{
		AuctionID:         id,
		Title:             "Lot " + id,
		NGOID:             "ngo-" + id,
		StartingPrice:     decimal.NewFromInt(price),
		CurrentPrice:      decimal.NewFromInt(price),
		BidIncrement:      decimal.NewFromInt(increment),
		Status:            model.AuctionActive,
		EnableAutoBidding: true,
	}
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}
