package main

import (
	bidding "charity-auction/internal/biddingService"
	"charity-auction/internal/config"
	"charity-auction/internal/notify"
	"charity-auction/internal/repository"
	"charity-auction/internal/server"
	"charity-auction/internal/sweeper"
	"charity-auction/utils"
	"context"
	"fmt"
	"os"

	"code.cloudfoundry.org/clock"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
	"github.com/tedsuo/ifrit/sigmon"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("Failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.Server.LogLevel); err != nil {
		utils.Fatal("Failed to set log level", map[string]any{"error": err.Error()})
	}

	ctx := context.Background()
	clk := clock.NewClock()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("Failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}
	defer closeStore()

	if cfg.Store.SeedDemo {
		if err := prepopulateAuctions(ctx, repo, clk); err != nil {
			utils.Fatal("Failed to seed demo auctions", map[string]any{"error": err.Error()})
		}
	}

	hub := notify.NewHub(notify.HubConfig{
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
	})
	defer hub.Close()

	sinks := notify.Fanout{hub}
	if cfg.Webhook.URL != "" {
		webhook := notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout)
		defer webhook.Close()
		sinks = append(sinks, webhook)
	}

	biddingSvc := bidding.NewBiddingService(repo,
		bidding.WithNotifier(sinks),
		bidding.WithClock(clk),
		bidding.WithMaxCascadeRounds(cfg.Bidding.MaxCascadeRounds),
	)

	router := server.SetupRouter(biddingSvc, hub, repo)

	members := grouper.Members{
		{Name: "sweeper", Runner: sweeper.New(biddingSvc, clk, cfg.Sweep.Interval, cfg.Sweep.Workers)},
		{Name: "http", Runner: http_server.New(cfg.Addr(), router)},
	}
	process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members)))

	utils.Info("Charity auction server started", map[string]any{
		"addr":  cfg.Addr(),
		"store": cfg.Store.Driver,
	})

	if err := <-process.Wait(); err != nil {
		utils.Error("Server exited with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	utils.Info("Server stopped", nil)
}

// openStore returns the configured auction store and a function releasing it
func openStore(ctx context.Context, cfg *config.Config) (repository.AuctionDB, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreMySQL:
		db, err := repository.OpenMySQL(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.NewGormRepo(db)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StorePostgres:
		repo, err := repository.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StoreMemory:
		return repository.NewMemoryRepo(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
