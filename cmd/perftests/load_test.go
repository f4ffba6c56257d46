package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bidding "charity-auction/internal/biddingService"
	model "charity-auction/internal/models"
	repository "charity-auction/internal/repository"

	"github.com/shopspring/decimal"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumUsers        int
	NumAuctions     int
	AutoBidders     int // auto-bids armed per auction before the run
	ReadRatio       int
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects per-operation latencies from parallel goroutines
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

// LatencySummary is the distribution of recorded latencies
type LatencySummary struct {
	Min, Max, Avg, P95, P99 time.Duration
}

func (om *OperationMetrics) Summary() LatencySummary {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return LatencySummary{}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	percentile := func(p float64) time.Duration {
		return latencies[int(p*float64(len(latencies)-1))]
	}
	return LatencySummary{
		Min: latencies[0],
		Max: latencies[len(latencies)-1],
		Avg: total / time.Duration(len(latencies)),
		P95: percentile(0.95),
		P99: percentile(0.99),
	}
}

func micros(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e3
}

// setupRepo creates repository and bidding service with auctions and armed auto-bids
func setupRepo(b *testing.B, numAuctions, autoBidders int) (*repository.MemoryRepo, *bidding.BiddingService) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	for i := 0; i < numAuctions; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		_, err := repo.CreateAuction(ctx, model.Auction{
			AuctionID:         auctionID,
			Title:             fmt.Sprintf("title_%d", i),
			NGOID:             "ngo_load",
			StartingPrice:     decimal.NewFromInt(100),
			CurrentPrice:      decimal.NewFromInt(100),
			BidIncrement:      decimal.NewFromInt(1),
			Status:            model.AuctionActive,
			EnableAutoBidding: true,
		})
		if err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
		for j := 0; j < autoBidders; j++ {
			armAutoBid(b, repo, auctionID, j, decimal.NewFromInt(int64(150+j*25)))
		}
	}
	return repo, svc
}

// armAutoBid stores an active auto-bid without running a cascade, so the
// first bid of the run is the one that triggers it.
func armAutoBid(b *testing.B, repo *repository.MemoryRepo, auctionID string, n int, ceiling decimal.Decimal) {
	b.Helper()
	_, err := repo.UpsertAutoBid(context.Background(), model.AutoBid{
		AutoBidID: fmt.Sprintf("ab_%s_%d", auctionID, n),
		UserID:    fmt.Sprintf("robot_%d", n),
		AuctionID: auctionID,
		MaxAmount: ceiling,
		IsActive:  true,
		CreatedAt: time.Now().Add(time.Duration(n) * time.Millisecond),
	})
	if err != nil {
		b.Fatalf("failed to arm auto-bid: %v", err)
	}
}

// Benchmark_Load_BiddingSystem runs multiple scenarios
func Benchmark_Load_BiddingSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 200, 0, 0, 50, false},
		{"High-Contention-WriteHeavy", 500, 10, 0, 0, 20, false},
		{"AutoBid-Cascades", 300, 20, 3, 3, 40, false},
		{"Mixed-Workload", 300, 50, 1, 7, 30, false},
		{"ReadHeavy", 200, 50, 0, 9, 20, false},
		{"Edge-Case-SingleAuction", 100, 1, 2, 5, 10, false},
		{"Peak-Burst", 500, 50, 2, 0, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	ctx := context.Background()
	_, svc := setupRepo(b, s.NumAuctions, s.AutoBidders)

	var totalOps, successfulBids, failedBids, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(time.Now().Nanosecond())))

		for pb.Next() {
			auctionIndex := rnd.Intn(s.NumAuctions)
			auctionID := fmt.Sprintf("auction_%d", auctionIndex)
			opType := rnd.Intn(10)

			opStart := time.Now()
			if opType < s.ReadRatio {
				// no bids yet is expected early in the run
				_, _ = svc.GetWinningBid(ctx, auctionID)
				atomic.AddInt64(&totalReads, 1)
			} else {
				bidAmount := decimal.NewFromInt(int64(100 + rnd.Intn(s.MaxBidIncrement)))
				userID := fmt.Sprintf("user_%d", rnd.Intn(s.NumUsers))
				if _, err := svc.PlaceBid(ctx, auctionID, userID, bidAmount); err != nil {
					atomic.AddInt64(&failedBids, 1)
				} else {
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&auctionSuccess[auctionIndex], 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	latency := metrics.Summary()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.ReportMetric(throughput, "ops/s")
	b.ReportMetric(micros(latency.P99), "p99-us")
	b.Logf(
		"Scenario: %s | Auctions: %d | Auto-bids per auction: %d | Total Ops: %d | Accepted Bids: %d | Rejected Bids: %d | Reads: %d | Elapsed: %s | Latency(us) min: %.1f avg: %.1f max: %.1f p95: %.1f p99: %.1f | Heap Alloc: %.2f MB",
		s.Name, s.NumAuctions, s.AutoBidders, totalOps, successfulBids, failedBids, totalReads, elapsed,
		micros(latency.Min), micros(latency.Avg), micros(latency.Max), micros(latency.P95), micros(latency.P99),
		float64(mem.HeapAlloc)/1024/1024,
	)

	busiest, busiestBids := 0, int64(0)
	for i, v := range auctionSuccess {
		if v > busiestBids {
			busiest, busiestBids = i, v
		}
	}
	b.Logf("Busiest auction: auction_%d with %d accepted bids", busiest, busiestBids)
}
