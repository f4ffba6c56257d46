package repository

import (
	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionDB defines the storage interface the bidding engine depends on
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	// AdvanceAuction appends bid and moves the auction price to bid.Amount in
	// one step, only if the stored price still equals expectedPrice.
	AdvanceAuction(ctx context.Context, bid model.Bid, expectedPrice decimal.Decimal) (model.Auction, error)
	EndAuction(ctx context.Context, auctionID string, endedAt time.Time) (model.Auction, error)

	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)

	UpsertAutoBid(ctx context.Context, autoBid model.AutoBid) (model.AutoBid, error)
	GetAutoBid(ctx context.Context, userID, auctionID string) (model.AutoBid, error)
	ListActiveAutoBids(ctx context.Context, auctionID string) ([]model.AutoBid, error)
	ListAllActiveAutoBids(ctx context.Context) ([]model.AutoBid, error)
	DeactivateAutoBid(ctx context.Context, userID, auctionID string, reason model.StopReason) error

	RecordTransaction(ctx context.Context, txn model.Transaction) error
	Health(ctx context.Context) map[string]string
}

type autoBidKey struct {
	userID    string
	auctionID string
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Auction   // key: auctionID -> value: auction
	bids         map[string][]model.Bid     // key: auctionID -> value: bids in insertion order
	userAuctions map[string][]string        // key: userID -> value: auctionIDs the user has bid on
	autoBids     map[autoBidKey]model.AutoBid
	transactions []model.Transaction
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		bids:         make(map[string][]model.Bid),
		userAuctions: make(map[string][]string),
		autoBids:     make(map[autoBidKey]model.AutoBid),
	}
}

// CreateAuction stores an auction, replacing any auction with the same ID
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) (model.Auction, error) {
	if err := validateAuction(auction); err != nil {
		return model.Auction{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = now
	}
	auction.UpdatedAt = now
	r.auctions[auction.AuctionID] = auction
	return auction, nil
}

// validateAuction rejects auctions the bidding engine cannot price
func validateAuction(auction model.Auction) error {
	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if err := auction.CheckPricing(); err != nil {
		return fmt.Errorf("create auction %s: %w - %v", auction.AuctionID, biddingerrors.ErrInvalidAuction, err)
	}
	return nil
}

// GetAuction returns a single auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListAuctionsByStatus returns auctions in the given status ordered by end
// date. Open-ended auctions come last.
func (r *MemoryRepo) ListAuctionsByStatus(_ context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions := make([]model.Auction, 0)
	for _, a := range r.auctions {
		if a.Status == status {
			auctions = append(auctions, a)
		}
	}
	sort.Slice(auctions, func(i, j int) bool {
		ei, ej := auctions[i].EndDate, auctions[j].EndDate
		if ei.IsZero() != ej.IsZero() {
			return ej.IsZero()
		}
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return auctions[i].AuctionID < auctions[j].AuctionID
	})
	return auctions, nil
}

// AdvanceAuction records a bid and advances the auction price atomically
func (r *MemoryRepo) AdvanceAuction(_ context.Context, bid model.Bid, expectedPrice decimal.Decimal) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[bid.AuctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("advance auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status != model.AuctionActive {
		return model.Auction{}, fmt.Errorf("advance auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotActive)
	}
	if !auction.CurrentPrice.Equal(expectedPrice) {
		return model.Auction{}, fmt.Errorf("advance auction %s: expected price %s, found %s: %w",
			bid.AuctionID, expectedPrice, auction.CurrentPrice, biddingerrors.ErrPriceConflict)
	}

	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	r.trackUserAuction(bid.UserID, bid.AuctionID)

	auction.CurrentPrice = bid.Amount
	auction.TotalBids++
	auction.LeaderID = bid.UserID
	auction.UpdatedAt = bid.CreatedAt
	r.auctions[auction.AuctionID] = auction

	return auction, nil
}

func (r *MemoryRepo) trackUserAuction(userID, auctionID string) {
	for _, id := range r.userAuctions[userID] {
		if id == auctionID {
			return
		}
	}
	r.userAuctions[userID] = append(r.userAuctions[userID], auctionID)
}

// EndAuction closes an auction and freezes its winner
func (r *MemoryRepo) EndAuction(_ context.Context, auctionID string, endedAt time.Time) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("end auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status == model.AuctionEnded {
		return model.Auction{}, fmt.Errorf("end auction %s: %w", auctionID, biddingerrors.ErrAuctionEnded)
	}

	auction.Status = model.AuctionEnded
	auction.EndDate = endedAt
	auction.WinnerID = auction.LeaderID
	auction.UpdatedAt = endedAt
	r.auctions[auctionID] = auction
	return auction, nil
}

// GetBidsByAuction returns all bids for an auction, newest first
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	out := make([]model.Bid, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		out = append(out, bids[i])
	}
	return out, nil
}

// GetWinningBid returns the highest bid for an auction.
// Equal amounts go to the earliest bid, then to the first inserted.
func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(_ context.Context, userID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.userAuctions[userID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if auction, exists := r.auctions[id]; exists {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

// UpsertAutoBid creates or replaces the auto-bid of a user on an auction.
// The ID and creation time of an existing row are preserved.
func (r *MemoryRepo) UpsertAutoBid(_ context.Context, autoBid model.AutoBid) (model.AutoBid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := autoBidKey{userID: autoBid.UserID, auctionID: autoBid.AuctionID}
	now := time.Now().UTC()
	if existing, ok := r.autoBids[key]; ok {
		autoBid.AutoBidID = existing.AutoBidID
		autoBid.CreatedAt = existing.CreatedAt
	} else if autoBid.CreatedAt.IsZero() {
		autoBid.CreatedAt = now
	}
	autoBid.UpdatedAt = now
	r.autoBids[key] = autoBid
	return autoBid, nil
}

// GetAutoBid returns the auto-bid of a user on an auction
func (r *MemoryRepo) GetAutoBid(_ context.Context, userID, auctionID string) (model.AutoBid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	autoBid, ok := r.autoBids[autoBidKey{userID: userID, auctionID: auctionID}]
	if !ok {
		return model.AutoBid{}, fmt.Errorf("get auto-bid of user %s on auction %s: %w", userID, auctionID, biddingerrors.ErrAutoBidNotFound)
	}
	return autoBid, nil
}

// ListActiveAutoBids returns the active auto-bids of an auction, richest first
func (r *MemoryRepo) ListActiveAutoBids(_ context.Context, auctionID string) ([]model.AutoBid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]model.AutoBid, 0)
	for _, ab := range r.autoBids {
		if ab.IsActive && ab.AuctionID == auctionID {
			active = append(active, ab)
		}
	}
	sortAutoBids(active)
	return active, nil
}

// ListAllActiveAutoBids returns every active auto-bid grouped by auction, richest first
func (r *MemoryRepo) ListAllActiveAutoBids(_ context.Context) ([]model.AutoBid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]model.AutoBid, 0)
	for _, ab := range r.autoBids {
		if ab.IsActive {
			active = append(active, ab)
		}
	}
	sortAutoBids(active)
	return active, nil
}

func sortAutoBids(autoBids []model.AutoBid) {
	sort.SliceStable(autoBids, func(i, j int) bool {
		a, b := autoBids[i], autoBids[j]
		if a.AuctionID != b.AuctionID {
			return a.AuctionID < b.AuctionID
		}
		if !a.MaxAmount.Equal(b.MaxAmount) {
			return a.MaxAmount.GreaterThan(b.MaxAmount)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.UserID < b.UserID
	})
}

// DeactivateAutoBid stops an auto-bid and records the reason
func (r *MemoryRepo) DeactivateAutoBid(_ context.Context, userID, auctionID string, reason model.StopReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := autoBidKey{userID: userID, auctionID: auctionID}
	autoBid, ok := r.autoBids[key]
	if !ok {
		return fmt.Errorf("deactivate auto-bid of user %s on auction %s: %w", userID, auctionID, biddingerrors.ErrAutoBidNotFound)
	}
	autoBid.IsActive = false
	autoBid.StopReason = reason
	autoBid.UpdatedAt = time.Now().UTC()
	r.autoBids[key] = autoBid
	return nil
}

// RecordTransaction appends a ledger transaction
func (r *MemoryRepo) RecordTransaction(_ context.Context, txn model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, txn)
	return nil
}

// Transactions returns a copy of the recorded transactions. This method is intended for tests only.
func (r *MemoryRepo) Transactions() []model.Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Transaction(nil), r.transactions...)
}

// Health reports the size of the in-memory store
func (r *MemoryRepo) Health(_ context.Context) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bidCount := 0
	for _, bids := range r.bids {
		bidCount += len(bids)
	}
	return map[string]string{
		"status":    "up",
		"store":     "memory",
		"auctions":  strconv.Itoa(len(r.auctions)),
		"bids":      strconv.Itoa(bidCount),
		"auto_bids": strconv.Itoa(len(r.autoBids)),
	}
}
