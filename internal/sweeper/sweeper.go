package sweeper

import (
	bidding "charity-auction/internal/biddingService"
	"charity-auction/utils"
	"context"
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/workpool"
)

// Engine is the part of the bidding service the sweeper drives
type Engine interface {
	SweepTick(ctx context.Context, pool *workpool.WorkPool) (bidding.SweepReport, error)
}

// Sweeper runs a sweep tick on a fixed interval. It implements ifrit.Runner:
// a signal stops the loop once the tick in progress has finished.
type Sweeper struct {
	engine   Engine
	clock    clock.Clock
	interval time.Duration
	workers  int
}

func New(engine Engine, clk clock.Clock, interval time.Duration, workers int) *Sweeper {
	return &Sweeper{
		engine:   engine,
		clock:    clk,
		interval: interval,
		workers:  workers,
	}
}

func (s *Sweeper) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	pool, err := workpool.NewWorkPool(s.workers)
	if err != nil {
		return fmt.Errorf("sweeper: creating work pool: %w", err)
	}
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("sweeper started", map[string]any{"interval": s.interval.String(), "workers": s.workers})
	close(ready)

	for {
		select {
		case sig := <-signals:
			utils.Info("sweeper stopping", map[string]any{"signal": sig.String()})
			return nil
		case <-ticker.C():
			s.tick(ctx, pool)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, pool *workpool.WorkPool) {
	start := s.clock.Now()
	report, err := s.engine.SweepTick(ctx, pool)
	if err != nil {
		utils.Error("sweep tick failed", map[string]any{"error": err.Error()})
		return
	}

	fields := map[string]any{
		"auctions_closed": report.AuctionsClosed,
		"auctions_swept":  report.AuctionsSwept,
		"bids_placed":     report.BidsPlaced,
		"deactivated":     report.Deactivated,
		"failed":          report.Failed,
		"duration":        s.clock.Since(start).String(),
	}
	if report.Changed() || report.Failed > 0 {
		utils.Info("sweep tick", fields)
		return
	}
	utils.Debug("sweep tick", fields)
}
