package bidding

import (
	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"fmt"
)

// EndAuction closes an auction, retires its auto-bids and hands the
// collected amount to the beneficiary NGO as a credit transaction.
func (s *BiddingService) EndAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: waiting for auction %s: %w", auctionID, err)
	}
	defer release()

	return s.endAuctionLocked(ctx, auctionID)
}

func (s *BiddingService) endAuctionLocked(ctx context.Context, auctionID string) (models.Auction, error) {
	ended, err := s.repo.EndAuction(ctx, auctionID, s.now())
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to end auction %s: %w", auctionID, err)
	}

	autoBids, err := s.repo.ListActiveAutoBids(ctx, auctionID)
	if err != nil {
		utils.Warn("EndAuction: could not list auto-bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
	for _, ab := range autoBids {
		if err := s.repo.DeactivateAutoBid(ctx, ab.UserID, auctionID, models.StopReasonAuctionEnded); err != nil {
			utils.Warn("EndAuction: could not stop auto-bid", map[string]any{
				"auction_id": auctionID,
				"user_id":    ab.UserID,
				"error":      err.Error(),
			})
		}
	}

	s.notifier.NotifyAuctionEnded(ctx, ended)

	if err := s.creditBeneficiary(ctx, ended); err != nil {
		return ended, err
	}

	utils.Info("auction ended", map[string]any{
		"auction_id":  ended.AuctionID,
		"winner_id":   ended.WinnerID,
		"final_price": ended.CurrentPrice.String(),
		"total_bids":  ended.TotalBids,
	})
	return ended, nil
}

// creditBeneficiary records the ledger handoff for a sold auction.
// Auctions without bids or without an NGO produce no transaction.
func (s *BiddingService) creditBeneficiary(ctx context.Context, auction models.Auction) error {
	if auction.TotalBids == 0 || auction.NGOID == "" || !auction.CurrentPrice.IsPositive() {
		return nil
	}

	winner := auction.WinnerID
	if winner == "" {
		winner = "Unknown"
	}

	txn := models.Transaction{
		TransactionID: utils.GenerateID(),
		NGOID:         auction.NGOID,
		AuctionID:     auction.AuctionID,
		Type:          models.TransactionCredit,
		Amount:        auction.CurrentPrice,
		Reference:     "Auction: " + auction.Title,
		Description:   "Auction funds collected - Winner: " + winner,
		CreatedAt:     s.now(),
	}
	if err := s.repo.RecordTransaction(ctx, txn); err != nil {
		return fmt.Errorf("service: auction %s ended but credit was not recorded: %w", auction.AuctionID, err)
	}
	return nil
}
