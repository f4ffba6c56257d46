package main

import (
	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
	"context"
	"errors"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
)

// prepopulateAuctions adds sample auctions unless they already exist
func prepopulateAuctions(ctx context.Context, repo repository.AuctionDB, clk clock.Clock) error {
	now := clk.Now().UTC()
	auctions := []model.Auction{
		{AuctionID: "auction1", Title: "Signed football shirt", NGOID: "ngo1", StartingPrice: decimal.NewFromInt(100), BidIncrement: decimal.NewFromInt(10), EndDate: now.Add(24 * time.Hour)},
		{AuctionID: "auction2", Title: "Weekend cabin stay", NGOID: "ngo2", StartingPrice: decimal.NewFromInt(200), BidIncrement: decimal.NewFromInt(25), EndDate: now.Add(72 * time.Hour)},
		{AuctionID: "auction3", Title: "Painting by local artist", NGOID: "ngo1", StartingPrice: decimal.NewFromInt(150), BidIncrement: decimal.NewFromInt(5)},
	}

	for _, auction := range auctions {
		_, err := repo.GetAuction(ctx, auction.AuctionID)
		if err == nil {
			continue
		}
		if !errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return err
		}

		auction.CurrentPrice = auction.StartingPrice
		auction.Status = model.AuctionActive
		auction.EnableAutoBidding = true
		auction.StartDate = now
		if _, err := repo.CreateAuction(ctx, auction); err != nil {
			return err
		}
	}
	return nil
}
