package helpers

import (
	model "charity-auction/internal/models"
	"time"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
//
// Amounts carry no binding tags: decimal.Decimal is a struct and the
// validator cannot compare it, so positivity is checked by the service.
type PlaceBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	UserID    string          `json:"user_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type EnableAutoBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	UserID    string          `json:"user_id" binding:"required"`
	MaxAmount decimal.Decimal `json:"max_amount"`
}

type DisableAutoBidRequest struct {
	AuctionID string `json:"auction_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsAutoBid bool            `json:"is_auto_bid"`
	CreatedAt string          `json:"created_at"`
}

type AutoBidResponse struct {
	AutoBidID  string          `json:"auto_bid_id"`
	AuctionID  string          `json:"auction_id"`
	UserID     string          `json:"user_id"`
	MaxAmount  decimal.Decimal `json:"max_amount"`
	IsActive   bool            `json:"is_active"`
	StopReason string          `json:"stop_reason,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

type AuctionResponse struct {
	AuctionID    string          `json:"auction_id"`
	Title        string          `json:"title"`
	Status       string          `json:"status"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalBids    int64           `json:"total_bids"`
	WinnerID     string          `json:"winner_id,omitempty"`
	EndDate      string          `json:"end_date,omitempty"`
}

// NewBidResponse converts a stored bid into its API shape
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		AuctionID: bid.AuctionID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		IsAutoBid: bid.IsAutoBid,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewAutoBidResponse converts a stored auto-bid into its API shape
func NewAutoBidResponse(ab model.AutoBid) AutoBidResponse {
	return AutoBidResponse{
		AutoBidID:  ab.AutoBidID,
		AuctionID:  ab.AuctionID,
		UserID:     ab.UserID,
		MaxAmount:  ab.MaxAmount,
		IsActive:   ab.IsActive,
		StopReason: string(ab.StopReason),
		UpdatedAt:  ab.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewAuctionResponse converts an auction into its API shape
func NewAuctionResponse(a model.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:    a.AuctionID,
		Title:        a.Title,
		Status:       string(a.Status),
		CurrentPrice: a.CurrentPrice,
		TotalBids:    a.TotalBids,
		WinnerID:     a.WinnerID,
	}
	if !a.EndDate.IsZero() {
		resp.EndDate = a.EndDate.UTC().Format(time.RFC3339)
	}
	return resp
}
