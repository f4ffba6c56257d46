package bidding

import (
	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// EnableAutoBid creates or re-arms the auto-bid of a user on an auction and
// immediately lets it contest the current leader. The returned auto-bid
// reflects the state after that first cascade, so it may already be inactive.
func (s *BiddingService) EnableAutoBid(ctx context.Context, auctionID, userID string, maxAmount decimal.Decimal) (models.AutoBid, error) {
	if auctionID == "" || userID == "" {
		return models.AutoBid{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAutoBid)
	}
	if !maxAmount.IsPositive() {
		return models.AutoBid{}, fmt.Errorf("service: %w - non-positive max amount", biddingerrors.ErrInvalidAutoBid)
	}
	if !models.FitsAmountPlaces(maxAmount) {
		return models.AutoBid{}, fmt.Errorf("service: %w - max amount %s has more than %d decimal places", biddingerrors.ErrInvalidAutoBid, maxAmount, models.AmountPlaces)
	}

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return models.AutoBid{}, fmt.Errorf("service: waiting for auction %s: %w", auctionID, err)
	}
	defer release()

	auction, err := s.loadOpenAuction(ctx, auctionID)
	if err != nil {
		return models.AutoBid{}, err
	}
	if !auction.EnableAutoBidding {
		return models.AutoBid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrAutoBidNotAllowed, auctionID)
	}

	autoBid := models.AutoBid{
		AutoBidID:  utils.GenerateID(),
		UserID:     userID,
		AuctionID:  auctionID,
		MaxAmount:  maxAmount,
		IsActive:   true,
		StopReason: models.StopReasonNone,
		CreatedAt:  s.now(),
	}
	stored, err := s.repo.UpsertAutoBid(ctx, autoBid)
	if err != nil {
		return models.AutoBid{}, fmt.Errorf("service: failed to save auto-bid of user %s on auction %s: %w", userID, auctionID, err)
	}

	if _, err := s.resolve(ctx, auctionID); err != nil {
		return stored, fmt.Errorf("service: %w: %w", biddingerrors.ErrCascadeIncomplete, err)
	}

	current, err := s.repo.GetAutoBid(ctx, userID, auctionID)
	if err != nil {
		return stored, fmt.Errorf("service: failed to reload auto-bid of user %s: %w", userID, err)
	}
	return current, nil
}

// DisableAutoBid stops the auto-bid of a user on an auction. No bid is placed.
func (s *BiddingService) DisableAutoBid(ctx context.Context, auctionID, userID string) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAutoBid)
	}

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("service: waiting for auction %s: %w", auctionID, err)
	}
	defer release()

	if err := s.repo.DeactivateAutoBid(ctx, userID, auctionID, models.StopReasonManual); err != nil {
		return fmt.Errorf("service: failed to disable auto-bid of user %s on auction %s: %w", userID, auctionID, err)
	}
	return nil
}

// GetAutoBidStatus returns the auto-bid of a user on an auction
func (s *BiddingService) GetAutoBidStatus(ctx context.Context, auctionID, userID string) (models.AutoBid, error) {
	if auctionID == "" || userID == "" {
		return models.AutoBid{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAutoBid)
	}

	autoBid, err := s.repo.GetAutoBid(ctx, userID, auctionID)
	if err != nil {
		return models.AutoBid{}, fmt.Errorf("service: failed to get auto-bid of user %s on auction %s: %w", userID, auctionID, err)
	}
	return autoBid, nil
}
