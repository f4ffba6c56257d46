package bidding

import (
	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// decimalMatcher compares amounts by value
type decimalMatcher struct {
	want decimal.Decimal
}

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is decimal " + m.want.String()
}

func decEq(v int64) gomock.Matcher {
	return decimalMatcher{want: dec(v)}
}

type recordingNotifier struct {
	mu       sync.Mutex
	updates  map[string]int
	lastBids map[string][]model.Bid
	ended    []model.Auction
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		updates:  make(map[string]int),
		lastBids: make(map[string][]model.Bid),
	}
}

func (n *recordingNotifier) NotifyAuctionUpdate(_ context.Context, auctionID string, bids []model.Bid) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates[auctionID]++
	n.lastBids[auctionID] = bids
}

func (n *recordingNotifier) NotifyAuctionEnded(_ context.Context, auction model.Auction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, auction)
}

func (n *recordingNotifier) updateCount(auctionID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates[auctionID]
}

func (n *recordingNotifier) endedAuctions() []model.Auction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Auction(nil), n.ended...)
}

// fixture wires a service to an in-memory store and a fake clock
type fixture struct {
	repo     *repository.MemoryRepo
	clock    *fakeclock.FakeClock
	notifier *recordingNotifier
	service  *BiddingService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repository.NewMemoryRepo(),
		clock:    fakeclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		notifier: newRecordingNotifier(),
	}
	opts = append([]Option{WithClock(f.clock), WithNotifier(f.notifier)}, opts...)
	f.service = NewBiddingService(f.repo, opts...)
	return f
}

func (f *fixture) addAuction(t *testing.T, auctionID string, price, increment int64, mutate ...func(*model.Auction)) {
	t.Helper()
	auction := model.Auction{
		AuctionID:         auctionID,
		Title:             "Lot " + auctionID,
		NGOID:             "ngo-" + auctionID,
		StartingPrice:     dec(price),
		CurrentPrice:      dec(price),
		BidIncrement:      dec(increment),
		Status:            model.AuctionActive,
		EnableAutoBidding: true,
		StartDate:         f.clock.Now().Add(-time.Hour),
	}
	for _, m := range mutate {
		m(&auction)
	}
	_, err := f.repo.CreateAuction(ctx, auction)
	require.NoError(t, err)
}

// armAutoBid stores an active auto-bid without triggering a cascade
func (f *fixture) armAutoBid(t *testing.T, userID, auctionID string, max int64) {
	t.Helper()
	f.clock.Increment(time.Millisecond)
	_, err := f.repo.UpsertAutoBid(ctx, model.AutoBid{
		AutoBidID: uuid.NewString(),
		UserID:    userID,
		AuctionID: auctionID,
		MaxAmount: dec(max),
		IsActive:  true,
		CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)
}

func (f *fixture) auction(t *testing.T, auctionID string) model.Auction {
	t.Helper()
	a, err := f.repo.GetAuction(ctx, auctionID)
	require.NoError(t, err)
	return a
}

func (f *fixture) autoBid(t *testing.T, userID, auctionID string) model.AutoBid {
	t.Helper()
	ab, err := f.repo.GetAutoBid(ctx, userID, auctionID)
	require.NoError(t, err)
	return ab
}

func (f *fixture) requirePrice(t *testing.T, auctionID string, want int64) {
	t.Helper()
	a := f.auction(t, auctionID)
	require.Truef(t, a.CurrentPrice.Equal(dec(want)), "price is %s, want %d", a.CurrentPrice, want)
}

func (f *fixture) requireLeader(t *testing.T, auctionID, userID string) {
	t.Helper()
	winning, err := f.repo.GetWinningBid(ctx, auctionID)
	require.NoError(t, err)
	require.Equal(t, userID, winning.UserID)
	require.Equal(t, userID, f.auction(t, auctionID).LeaderID)
}

// Tests PlaceBid against a mocked store
func TestBiddingService_PlaceBid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	active := model.Auction{
		AuctionID:     "auction1",
		CurrentPrice:  dec(100),
		BidIncrement:  dec(10),
		Status:        model.AuctionActive,
		StartingPrice: dec(100),
	}
	advanced := active
	advanced.CurrentPrice = dec(120)
	advanced.TotalBids = 1
	advanced.LeaderID = "user1"

	tests := []struct {
		name            string
		auctionID       string
		userID          string
		amount          int64
		mockSetup       func(m *repository.MockAuctionDB)
		expectedErrors  []error
		expectStoredBid bool
	}{
		{
			name:      "valid_first_bid",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(100)).Return(advanced, nil)
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(advanced, nil)
				m.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(model.Bid{UserID: "user1", Amount: dec(120)}, nil)
				m.EXPECT().ListActiveAutoBids(gomock.Any(), "auction1").Return(nil, nil)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return([]model.Bid{{UserID: "user1", Amount: dec(120)}}, nil)
			},
			expectStoredBid: true,
		},
		{
			name:           "empty_auctionID",
			auctionID:      "",
			userID:         "user1",
			amount:         50,
			mockSetup:      func(m *repository.MockAuctionDB) {},
			expectedErrors: []error{biddingerrors.ErrInvalidBid},
		},
		{
			name:           "empty_userID",
			auctionID:      "auction1",
			userID:         "",
			amount:         50,
			mockSetup:      func(m *repository.MockAuctionDB) {},
			expectedErrors: []error{biddingerrors.ErrInvalidBid},
		},
		{
			name:           "zero_amount",
			auctionID:      "auction1",
			userID:         "user1",
			amount:         0,
			mockSetup:      func(m *repository.MockAuctionDB) {},
			expectedErrors: []error{biddingerrors.ErrInvalidBid},
		},
		{
			name:           "negative_amount",
			auctionID:      "auction1",
			userID:         "user1",
			amount:         -50,
			mockSetup:      func(m *repository.MockAuctionDB) {},
			expectedErrors: []error{biddingerrors.ErrInvalidBid},
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedErrors: []error{biddingerrors.ErrAuctionNotFound},
		},
		{
			name:      "auction_pending",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				pending := active
				pending.Status = model.AuctionPending
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(pending, nil)
			},
			expectedErrors: []error{biddingerrors.ErrAuctionNotActive},
		},
		{
			name:      "auction_past_end_date",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				expired := active
				expired.EndDate = now.Add(-time.Minute)
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(expired, nil)
			},
			expectedErrors: []error{biddingerrors.ErrAuctionEnded},
		},
		{
			name:      "auction_without_increment",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				flat := active
				flat.BidIncrement = decimal.Zero
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(flat, nil)
			},
			expectedErrors: []error{biddingerrors.ErrInvalidAuction},
		},
		{
			name:      "bid_below_minimum",
			auctionID: "auction1",
			userID:    "user2",
			amount:    109,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
			},
			expectedErrors: []error{biddingerrors.ErrBidTooLow},
		},
		{
			name:      "store_write_fails",
			auctionID: "auction1",
			userID:    "user3",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(100)).Return(model.Auction{}, biddingerrors.ErrPersistence)
			},
			expectedErrors: []error{biddingerrors.ErrPersistence},
		},
		{
			name:      "price_moved_by_another_writer",
			auctionID: "auction1",
			userID:    "user3",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(100)).Return(model.Auction{}, biddingerrors.ErrPriceConflict)
			},
			expectedErrors: []error{biddingerrors.ErrPriceConflict},
		},
		{
			name:      "cascade_fails_after_bid_stored",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(100)).Return(advanced, nil)
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(model.Auction{}, biddingerrors.ErrPersistence)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return(nil, biddingerrors.ErrPersistence)
			},
			expectedErrors:  []error{biddingerrors.ErrCascadeIncomplete, biddingerrors.ErrPersistence},
			expectStoredBid: true,
		},
		{
			name:      "auto_bid_write_fails_mid_cascade",
			auctionID: "auction1",
			userID:    "user1",
			amount:    120,
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(active, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(100)).Return(advanced, nil)
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(advanced, nil)
				m.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(model.Bid{UserID: "user1", Amount: dec(120)}, nil)
				m.EXPECT().ListActiveAutoBids(gomock.Any(), "auction1").Return([]model.AutoBid{
					{UserID: "user2", AuctionID: "auction1", MaxAmount: dec(500), IsActive: true},
				}, nil)
				m.EXPECT().AdvanceAuction(gomock.Any(), gomock.Any(), decEq(120)).Return(model.Auction{}, biddingerrors.ErrPersistence)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return([]model.Bid{{UserID: "user1", Amount: dec(120)}}, nil)
			},
			expectedErrors:  []error{biddingerrors.ErrCascadeIncomplete, biddingerrors.ErrPersistence},
			expectStoredBid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			service := NewBiddingService(mockRepo, WithClock(fakeclock.NewFakeClock(now)))
			tc.mockSetup(mockRepo)

			bid, err := service.PlaceBid(ctx, tc.auctionID, tc.userID, dec(tc.amount))

			if len(tc.expectedErrors) == 0 {
				require.NoError(t, err)
			}
			for _, want := range tc.expectedErrors {
				require.ErrorIs(t, err, want)
			}

			if tc.expectStoredBid {
				require.NotEmpty(t, bid.BidID)
				_, parseErr := uuid.Parse(bid.BidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, tc.userID, bid.UserID)
				require.True(t, bid.Amount.Equal(dec(tc.amount)))
				require.False(t, bid.IsAutoBid)
				require.True(t, bid.CreatedAt.Equal(now))
				return
			}
			require.Empty(t, bid.BidID)
		})
	}
}

// Tests GetBidsForAuction
func TestBiddingService_GetBidsForAuction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo)

	tests := []struct {
		name        string
		auctionID   string
		mockSetup   func()
		expectError error
		expectCount int
	}{
		{
			name:      "bids_exist",
			auctionID: "auction1",
			mockSetup: func() {
				mockRepo.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return([]model.Bid{
					{BidID: uuid.NewString(), AuctionID: "auction1", UserID: "user2", Amount: dec(150)},
					{BidID: uuid.NewString(), AuctionID: "auction1", UserID: "user1", Amount: dec(100)},
				}, nil)
			},
			expectCount: 2,
		},
		{
			name:      "no_bids",
			auctionID: "auction2",
			mockSetup: func() {
				mockRepo.EXPECT().GetBidsByAuction(gomock.Any(), "auction2").Return(nil, biddingerrors.ErrNoBids)
			},
			expectError: biddingerrors.ErrNoBids,
		},
		{
			name:        "empty_auctionID",
			auctionID:   "",
			mockSetup:   func() {},
			expectError: biddingerrors.ErrInvalidBid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()
			bids, err := service.GetBidsForAuction(ctx, tc.auctionID)
			if tc.expectError != nil {
				require.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			require.Len(t, bids, tc.expectCount)
		})
	}
}

// Tests GetWinningBid
func TestBiddingService_GetWinningBid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo)

	mockRepo.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(model.Bid{UserID: "user2", Amount: dec(150)}, nil)
	winning, err := service.GetWinningBid(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, "user2", winning.UserID)

	mockRepo.EXPECT().GetWinningBid(gomock.Any(), "auction2").Return(model.Bid{}, biddingerrors.ErrNoBids)
	_, err = service.GetWinningBid(ctx, "auction2")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	_, err = service.GetWinningBid(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}

// Tests GetAuctionsByUser
func TestBiddingService_GetAuctionsByUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo)

	mockRepo.EXPECT().GetAuctionsByUser(gomock.Any(), "user1").Return([]model.Auction{{AuctionID: "auction1"}, {AuctionID: "auction2"}}, nil)
	auctions, err := service.GetAuctionsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, auctions, 2)

	mockRepo.EXPECT().GetAuctionsByUser(gomock.Any(), "user2").Return(nil, biddingerrors.ErrUserNoBids)
	_, err = service.GetAuctionsByUser(ctx, "user2")
	require.ErrorIs(t, err, biddingerrors.ErrUserNoBids)

	_, err = service.GetAuctionsByUser(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}

func TestBiddingService_PlaceBidInMemory(t *testing.T) {
	t.Run("scenario_a_manual_bid_moves_price", func(t *testing.T) {
		f := newFixture(t)
		f.addAuction(t, "auction1", 100, 100)

		bid, err := f.service.PlaceBid(ctx, "auction1", "userX", dec(200))
		require.NoError(t, err)
		require.Equal(t, "userX", bid.UserID)

		a := f.auction(t, "auction1")
		require.True(t, a.CurrentPrice.Equal(dec(200)))
		require.EqualValues(t, 1, a.TotalBids)
		require.Equal(t, 1, f.notifier.updateCount("auction1"))
	})

	t.Run("bid_equal_to_minimum_is_accepted", func(t *testing.T) {
		f := newFixture(t)
		f.addAuction(t, "auction1", 100, 10)

		_, err := f.service.PlaceBid(ctx, "auction1", "user1", dec(110))
		require.NoError(t, err)
		_, err = f.service.PlaceBid(ctx, "auction1", "user2", dec(119))
		require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
		f.requirePrice(t, "auction1", 110)
	})

	t.Run("fractional_amounts_are_exact", func(t *testing.T) {
		f := newFixture(t)
		f.addAuction(t, "auction1", 0, 0, func(a *model.Auction) {
			a.CurrentPrice = decimal.RequireFromString("0.10")
			a.BidIncrement = decimal.RequireFromString("0.20")
		})

		_, err := f.service.PlaceBid(ctx, "auction1", "user1", decimal.RequireFromString("0.30"))
		require.NoError(t, err)
		require.True(t, f.auction(t, "auction1").CurrentPrice.Equal(decimal.RequireFromString("0.3")))
	})

	t.Run("sub_cent_amount_is_rejected", func(t *testing.T) {
		f := newFixture(t)
		f.addAuction(t, "auction1", 100, 10)

		_, err := f.service.PlaceBid(ctx, "auction1", "user1", decimal.RequireFromString("110.005"))
		require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
		require.EqualValues(t, 0, f.auction(t, "auction1").TotalBids)

		// trailing zeros are not extra precision
		bid, err := f.service.PlaceBid(ctx, "auction1", "user1", decimal.RequireFromString("110.500"))
		require.NoError(t, err)
		require.True(t, bid.Amount.Equal(decimal.RequireFromString("110.5")))
	})

	t.Run("expired_auction_rejects_bids", func(t *testing.T) {
		f := newFixture(t)
		f.addAuction(t, "auction1", 100, 10, func(a *model.Auction) {
			a.EndDate = f.clock.Now().Add(time.Minute)
		})

		f.clock.Increment(time.Minute)
		_, err := f.service.PlaceBid(ctx, "auction1", "user1", dec(200))
		require.ErrorIs(t, err, biddingerrors.ErrAuctionEnded)
	})
}

func TestNewBiddingServiceOptions(t *testing.T) {
	s := NewBiddingService(repository.NewMemoryRepo(), WithNotifier(nil), WithClock(nil), WithMaxCascadeRounds(0))
	require.Equal(t, DefaultMaxCascadeRounds, s.maxRounds)
	require.NotNil(t, s.clock)
	require.IsType(t, noopNotifier{}, s.notifier)

	s = NewBiddingService(repository.NewMemoryRepo(), WithMaxCascadeRounds(5))
	require.Equal(t, 5, s.maxRounds)
}
