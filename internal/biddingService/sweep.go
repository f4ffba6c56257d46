package bidding

import (
	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"errors"
	"fmt"
	"sync"

	"code.cloudfoundry.org/workpool"
	"github.com/shopspring/decimal"
)

// SweepReport counts what one sweep tick changed
type SweepReport struct {
	AuctionsClosed int
	AuctionsSwept  int
	BidsPlaced     int
	Deactivated    int
	Failed         int
}

// Changed reports whether the tick mutated any state
func (r SweepReport) Changed() bool {
	return r.AuctionsClosed > 0 || r.BidsPlaced > 0 || r.Deactivated > 0
}

type sweepGroup struct {
	auctionID string
	autoBids  []models.AutoBid
}

// SweepTick runs one background convergence pass: expired auctions are
// closed, then every active auto-bid gets at most one step. Auctions are
// swept concurrently on pool and a failure in one never affects another.
// A nil pool sweeps auctions one after the other.
func (s *BiddingService) SweepTick(ctx context.Context, pool *workpool.WorkPool) (SweepReport, error) {
	var report SweepReport

	closed, err := s.closeExpiredAuctions(ctx)
	report.AuctionsClosed = closed
	if err != nil {
		utils.Warn("SweepTick: closing expired auctions failed", map[string]any{"error": err.Error()})
	}

	autoBids, err := s.repo.ListAllActiveAutoBids(ctx)
	if err != nil {
		return report, fmt.Errorf("sweep: failed to list active auto-bids: %w", err)
	}

	groups := groupByAuction(autoBids)
	wg := &sync.WaitGroup{}
	lock := &sync.Mutex{}

	wg.Add(len(groups))
	for _, group := range groups {
		group := group
		work := func() {
			defer wg.Done()
			outcome, err := s.sweepAuction(ctx, group.auctionID, group.autoBids)

			lock.Lock()
			defer lock.Unlock()
			report.AuctionsSwept++
			report.BidsPlaced += outcome.placed
			report.Deactivated += outcome.deactivated
			if err != nil {
				report.Failed++
				utils.Error("SweepTick: auction sweep failed", map[string]any{
					"auction_id": group.auctionID,
					"error":      err.Error(),
				})
			}
		}
		if pool == nil {
			work()
		} else {
			pool.Submit(work)
		}
	}
	wg.Wait()

	return report, nil
}

func groupByAuction(autoBids []models.AutoBid) []sweepGroup {
	index := make(map[string]int)
	groups := make([]sweepGroup, 0)
	for _, ab := range autoBids {
		i, ok := index[ab.AuctionID]
		if !ok {
			i = len(groups)
			index[ab.AuctionID] = i
			groups = append(groups, sweepGroup{auctionID: ab.AuctionID})
		}
		groups[i].autoBids = append(groups[i].autoBids, ab)
	}
	return groups
}

type sweepOutcome struct {
	placed      int
	deactivated int
}

// sweepAuction gives each listed auto-bid of one auction a single step
func (s *BiddingService) sweepAuction(ctx context.Context, auctionID string, autoBids []models.AutoBid) (sweepOutcome, error) {
	var outcome sweepOutcome

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return outcome, fmt.Errorf("sweep: waiting for auction %s: %w", auctionID, err)
	}
	defer release()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrAuctionNotFound) {
		return outcome, fmt.Errorf("sweep: failed to load auction %s: %w", auctionID, err)
	}
	if err != nil || !auction.IsOpenAt(s.now()) {
		for _, ab := range autoBids {
			if err := s.repo.DeactivateAutoBid(ctx, ab.UserID, auctionID, models.StopReasonAuctionEnded); err != nil {
				return outcome, fmt.Errorf("sweep: failed to stop auto-bid of user %s: %w", ab.UserID, err)
			}
			outcome.deactivated++
		}
		return outcome, nil
	}
	if err := auction.CheckPricing(); err != nil {
		return outcome, fmt.Errorf("sweep: %w - auction %s: %v", biddingerrors.ErrInvalidAuction, auctionID, err)
	}

	for _, listed := range autoBids {
		// the row may have been disabled or re-armed since it was listed
		ab, err := s.repo.GetAutoBid(ctx, listed.UserID, auctionID)
		if err != nil {
			return outcome, fmt.Errorf("sweep: failed to reload auto-bid of user %s: %w", listed.UserID, err)
		}
		if !ab.IsActive {
			continue
		}

		leader, err := s.currentLeader(ctx, auctionID)
		if err != nil {
			return outcome, err
		}
		if leader == ab.UserID {
			continue
		}

		required := auction.MinimumNextBid()
		if ab.MaxAmount.LessThan(required) {
			if err := s.repo.DeactivateAutoBid(ctx, ab.UserID, auctionID, models.StopReasonMaxAmount); err != nil {
				return outcome, fmt.Errorf("sweep: failed to stop auto-bid of user %s: %w", ab.UserID, err)
			}
			outcome.deactivated++
			continue
		}

		placed, err := s.placeAutoBid(ctx, auction, ab, decimal.Min(ab.MaxAmount, required))
		if err != nil {
			if outcome.placed > 0 {
				s.notifyBids(ctx, auctionID)
			}
			return outcome, fmt.Errorf("sweep: %w", err)
		}
		auction = placed.auction
		outcome.placed++
		if placed.exhausted {
			outcome.deactivated++
		}
	}

	if outcome.placed > 0 {
		s.notifyBids(ctx, auctionID)
	}
	return outcome, nil
}

// closeExpiredAuctions ends every active auction whose end date has passed
func (s *BiddingService) closeExpiredAuctions(ctx context.Context) (int, error) {
	active, err := s.repo.ListAuctionsByStatus(ctx, models.AuctionActive)
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list active auctions: %w", err)
	}

	now := s.now()
	closed := 0
	var errs []error
	for _, auction := range active {
		if auction.EndDate.IsZero() || now.Before(auction.EndDate) {
			continue
		}
		if _, err := s.EndAuction(ctx, auction.AuctionID); err != nil {
			if errors.Is(err, biddingerrors.ErrAuctionEnded) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}
