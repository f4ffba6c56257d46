package bidding

import (
	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/models"
	"charity-auction/internal/repository"
	"charity-auction/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
)

// DefaultMaxCascadeRounds bounds a single cascade run
const DefaultMaxCascadeRounds = 1000

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	notifier  Notifier
	clock     clock.Clock
	locks     *auctionLocks
	maxRounds int
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithNotifier sets where bid list and auction state updates are pushed
func WithNotifier(n Notifier) Option {
	return func(s *BiddingService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clock.Clock) Option {
	return func(s *BiddingService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMaxCascadeRounds bounds how many rounds a cascade may run
func WithMaxCascadeRounds(rounds int) Option {
	return func(s *BiddingService) {
		if rounds > 0 {
			s.maxRounds = rounds
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:      repo,
		notifier:  noopNotifier{},
		clock:     clock.NewClock(),
		locks:     newAuctionLocks(),
		maxRounds: DefaultMaxCascadeRounds,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates and records a manual bid, then lets standing auto-bids respond.
//
// When the bid is stored but the cascade fails, the accepted bid is returned
// together with an error wrapping biddingerrors.ErrCascadeIncomplete.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (models.Bid, error) {
	if err := validateBidInput(auctionID, userID, amount); err != nil {
		return models.Bid{}, err
	}

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: waiting for auction %s: %w", auctionID, err)
	}
	defer release()

	auction, err := s.loadOpenAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, err
	}

	minimum := auction.MinimumNextBid()
	if amount.LessThan(minimum) {
		return models.Bid{}, fmt.Errorf("service: %w - bid must be at least %s", biddingerrors.ErrBidTooLow, minimum)
	}

	bid := s.newBid(auctionID, userID, amount, false)
	if _, err := s.repo.AdvanceAuction(ctx, bid, auction.CurrentPrice); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, userID, err)
	}

	_, cascadeErr := s.resolve(ctx, auctionID)
	s.notifyBids(ctx, auctionID)

	if cascadeErr != nil {
		utils.Warn("PlaceBid: auto-bid cascade incomplete", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bid.BidID,
			"error":      cascadeErr.Error(),
		})
		return bid, fmt.Errorf("service: %w: %w", biddingerrors.ErrCascadeIncomplete, cascadeErr)
	}

	return bid, nil
}

// validateBidInput checks request fields before any storage access
func validateBidInput(auctionID, userID string, amount decimal.Decimal) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !models.FitsAmountPlaces(amount) {
		return fmt.Errorf("service: %w - amount %s has more than %d decimal places", biddingerrors.ErrInvalidBid, amount, models.AmountPlaces)
	}
	return nil
}

// loadOpenAuction fetches an auction and checks it currently accepts bids
func (s *BiddingService) loadOpenAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if err := auction.CheckPricing(); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w - auction %s: %v", biddingerrors.ErrInvalidAuction, auctionID, err)
	}
	if auction.Status != models.AuctionActive {
		return models.Auction{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, auctionID, auction.Status)
	}
	if !auction.IsOpenAt(s.now()) {
		return models.Auction{}, fmt.Errorf("service: %w - auction %s closed at %s", biddingerrors.ErrAuctionEnded, auctionID, auction.EndDate)
	}
	return auction, nil
}

// currentLeader returns the bidder of the highest bid, or "" when nobody has bid
func (s *BiddingService) currentLeader(ctx context.Context, auctionID string) (string, error) {
	winning, err := s.repo.GetWinningBid(ctx, auctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("service: failed to find leader of auction %s: %w", auctionID, err)
	}
	return winning.UserID, nil
}

func (s *BiddingService) newBid(auctionID, userID string, amount decimal.Decimal, auto bool) models.Bid {
	return models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		IsAutoBid: auto,
		CreatedAt: s.now(),
	}
}

func (s *BiddingService) now() time.Time {
	return s.clock.Now().UTC()
}

// GetBidsForAuction returns all bids for a specific auction, newest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid for a specific auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

// GetAuctionsByUser returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	return auctions, nil
}
