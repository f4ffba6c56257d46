package bidding

import (
	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var errRoundLimit = errors.New("cascade round limit reached")

// cascadeResult summarises one cascade run
type cascadeResult struct {
	Rounds      int
	Placed      int
	Deactivated int
	Conflicts   int
}

// resolve lets active auto-bids of an auction outbid each other until none
// can respond. Each round works on a fresh snapshot of the auction, its
// leader and its active auto-bids. The caller must hold the auction lock.
func (s *BiddingService) resolve(ctx context.Context, auctionID string) (cascadeResult, error) {
	var res cascadeResult

	for res.Rounds < s.maxRounds {
		res.Rounds++

		progressed, err := s.cascadeRound(ctx, auctionID, &res)
		if err != nil {
			return res, err
		}
		if !progressed {
			utils.Debug("cascade reached fixed point", map[string]any{
				"auction_id":  auctionID,
				"rounds":      res.Rounds,
				"placed":      res.Placed,
				"deactivated": res.Deactivated,
			})
			return res, nil
		}
	}

	utils.Warn("cascade stopped before fixed point", map[string]any{
		"auction_id": auctionID,
		"rounds":     res.Rounds,
		"placed":     res.Placed,
	})
	return res, fmt.Errorf("auction %s: %w after %d rounds", auctionID, errRoundLimit, res.Rounds)
}

// cascadeRound places at most one auto-bid. It reports whether the auction
// moved, in which case another round is needed.
func (s *BiddingService) cascadeRound(ctx context.Context, auctionID string, res *cascadeResult) (bool, error) {
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("cascade: failed to load auction %s: %w", auctionID, err)
	}
	if !auction.IsOpenAt(s.now()) {
		return false, nil
	}
	if err := auction.CheckPricing(); err != nil {
		return false, fmt.Errorf("cascade: %w - auction %s: %v", biddingerrors.ErrInvalidAuction, auctionID, err)
	}

	leader, err := s.currentLeader(ctx, auctionID)
	if err != nil {
		return false, err
	}

	autoBids, err := s.repo.ListActiveAutoBids(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("cascade: failed to list auto-bids of auction %s: %w", auctionID, err)
	}

	required := auction.MinimumNextBid()
	for _, ab := range autoBids {
		if ab.UserID != leader && ab.MaxAmount.GreaterThanOrEqual(required) {
			amount := decimal.Min(ab.MaxAmount, required)
			placed, err := s.placeAutoBid(ctx, auction, ab, amount)
			if errors.Is(err, biddingerrors.ErrPriceConflict) {
				res.Conflicts++
				return true, nil
			}
			if err != nil {
				return false, err
			}
			res.Placed++
			if placed.exhausted {
				res.Deactivated++
			}
			s.notifyBids(ctx, auctionID)
			return true, nil
		}

		if ab.MaxAmount.LessThan(required) {
			if err := s.repo.DeactivateAutoBid(ctx, ab.UserID, auctionID, models.StopReasonMaxAmount); err != nil {
				return false, fmt.Errorf("cascade: failed to stop auto-bid of user %s: %w", ab.UserID, err)
			}
			res.Deactivated++
		}
	}

	return false, nil
}

type autoBidPlacement struct {
	auction   models.Auction
	bid       models.Bid
	exhausted bool
}

// placeAutoBid bids amount on behalf of an auto-bid and retires it when the
// ceiling has been reached.
func (s *BiddingService) placeAutoBid(ctx context.Context, auction models.Auction, ab models.AutoBid, amount decimal.Decimal) (autoBidPlacement, error) {
	bid := s.newBid(auction.AuctionID, ab.UserID, amount, true)
	updated, err := s.repo.AdvanceAuction(ctx, bid, auction.CurrentPrice)
	if err != nil {
		return autoBidPlacement{}, fmt.Errorf("auto-bid of user %s on auction %s: %w", ab.UserID, auction.AuctionID, err)
	}

	placement := autoBidPlacement{auction: updated, bid: bid}
	if amount.Equal(ab.MaxAmount) {
		if err := s.repo.DeactivateAutoBid(ctx, ab.UserID, auction.AuctionID, models.StopReasonMaxAmount); err != nil {
			return placement, fmt.Errorf("auto-bid of user %s reached its ceiling but could not be stopped: %w", ab.UserID, err)
		}
		placement.exhausted = true
	}

	utils.Debug("auto-bid placed", map[string]any{
		"auction_id": auction.AuctionID,
		"user_id":    ab.UserID,
		"amount":     amount.String(),
		"exhausted":  placement.exhausted,
	})
	return placement, nil
}
