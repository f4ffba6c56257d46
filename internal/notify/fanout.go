package notify

import (
	"charity-auction/internal/models"
	"context"
)

// Sink is anything that consumes auction events
type Sink interface {
	NotifyAuctionUpdate(ctx context.Context, auctionID string, bids []models.Bid)
	NotifyAuctionEnded(ctx context.Context, auction models.Auction)
}

// Fanout forwards every event to each of its sinks in order
type Fanout []Sink

func (f Fanout) NotifyAuctionUpdate(ctx context.Context, auctionID string, bids []models.Bid) {
	for _, sink := range f {
		sink.NotifyAuctionUpdate(ctx, auctionID, bids)
	}
}

func (f Fanout) NotifyAuctionEnded(ctx context.Context, auction models.Auction) {
	for _, sink := range f {
		sink.NotifyAuctionEnded(ctx, auction)
	}
}
