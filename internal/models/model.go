package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionDraft   AuctionStatus = "draft"
	AuctionPending AuctionStatus = "pending"
	AuctionActive  AuctionStatus = "active"
	AuctionEnded   AuctionStatus = "ended"
)

// StopReason records why an auto-bid stopped bidding
type StopReason string

const (
	StopReasonNone         StopReason = ""
	StopReasonMaxAmount    StopReason = "max-amount"
	StopReasonManual       StopReason = "manual"
	StopReasonAuctionEnded StopReason = "auction-ended"
)

// User represents a participant in the auction
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Auction is a listed charity item and its live bidding state
type Auction struct {
	AuctionID         string          `json:"auction_id"`
	Title             string          `json:"title"`
	NGOID             string          `json:"ngo_id"`
	StartingPrice     decimal.Decimal `json:"starting_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	BidIncrement      decimal.Decimal `json:"bid_increment"`
	Status            AuctionStatus   `json:"status"`
	TotalBids         int64           `json:"total_bids"`
	LeaderID          string          `json:"leader_id,omitempty"`
	WinnerID          string          `json:"winner_id,omitempty"`
	EnableAutoBidding bool            `json:"enable_auto_bidding"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AmountPlaces is the number of decimal places money is stored with
const AmountPlaces = 2

// FitsAmountPlaces reports whether d can be stored without rounding
func FitsAmountPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountPlaces))
}

// CheckPricing rejects a configuration under which a bid could not raise
// the price.
func (a Auction) CheckPricing() error {
	if !a.BidIncrement.IsPositive() {
		return fmt.Errorf("bid increment %s is not positive", a.BidIncrement)
	}
	if a.StartingPrice.IsNegative() || a.CurrentPrice.IsNegative() {
		return fmt.Errorf("negative price (starting %s, current %s)", a.StartingPrice, a.CurrentPrice)
	}
	for _, d := range []decimal.Decimal{a.StartingPrice, a.CurrentPrice, a.BidIncrement} {
		if !FitsAmountPlaces(d) {
			return fmt.Errorf("amount %s has more than %d decimal places", d, AmountPlaces)
		}
	}
	return nil
}

// MinimumNextBid is the lowest amount the auction accepts next
func (a Auction) MinimumNextBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.BidIncrement)
}

// IsOpenAt reports whether the auction accepts bids at the given instant.
// A zero EndDate means the auction has no scheduled close.
func (a Auction) IsOpenAt(now time.Time) bool {
	if a.Status != AuctionActive {
		return false
	}
	return a.EndDate.IsZero() || now.Before(a.EndDate)
}

// Bid represents a user's bid on an auction. Bids are never modified.
type Bid struct {
	BidID     string          `json:"bid_id" gorm:"primaryKey;type:varchar(64)"`
	AuctionID string          `json:"auction_id" gorm:"type:varchar(64);index;not null"`
	UserID    string          `json:"user_id" gorm:"type:varchar(64);index;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	IsAutoBid bool            `json:"is_auto_bid" gorm:"not null;default:false"`
	CreatedAt time.Time       `json:"created_at" gorm:"precision:6"`
}

// AutoBid is a standing instruction to outbid others up to MaxAmount
type AutoBid struct {
	AutoBidID  string          `json:"auto_bid_id" gorm:"primaryKey;type:varchar(64)"`
	UserID     string          `json:"user_id" gorm:"type:varchar(64);uniqueIndex:idx_auto_bid_user_auction;not null"`
	AuctionID  string          `json:"auction_id" gorm:"type:varchar(64);uniqueIndex:idx_auto_bid_user_auction;index;not null"`
	MaxAmount  decimal.Decimal `json:"max_amount" gorm:"type:decimal(20,2);not null"`
	IsActive   bool            `json:"is_active" gorm:"index;not null"`
	StopReason StopReason      `json:"stop_reason,omitempty" gorm:"type:varchar(32)"`
	CreatedAt  time.Time       `json:"created_at" gorm:"precision:6"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TransactionType distinguishes money flowing to or from an NGO
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Transaction is the ledger handoff produced when an auction closes
type Transaction struct {
	TransactionID string          `json:"transaction_id" gorm:"primaryKey;type:varchar(64)"`
	NGOID         string          `json:"ngo_id" gorm:"column:ngo_id;type:varchar(64);index;not null"`
	AuctionID     string          `json:"auction_id" gorm:"type:varchar(64);index"`
	Type          TransactionType `json:"type" gorm:"type:varchar(16);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}
