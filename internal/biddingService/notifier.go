package bidding

import (
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
)

// Notifier receives auction updates. Implementations must not block the
// caller and must not report delivery failures back.
type Notifier interface {
	NotifyAuctionUpdate(ctx context.Context, auctionID string, bids []models.Bid)
	NotifyAuctionEnded(ctx context.Context, auction models.Auction)
}

type noopNotifier struct{}

func (noopNotifier) NotifyAuctionUpdate(context.Context, string, []models.Bid) {}
func (noopNotifier) NotifyAuctionEnded(context.Context, models.Auction)        {}

// notifyBids pushes the latest full bid list of an auction
func (s *BiddingService) notifyBids(ctx context.Context, auctionID string) {
	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		utils.Warn("notifyBids: could not load bids", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}
	s.notifier.NotifyAuctionUpdate(ctx, auctionID, bids)
}
