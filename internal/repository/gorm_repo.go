package repository

import (
	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// auctionRecord is the MySQL row of an auction. Open-ended dates are stored
// as NULL since MySQL rejects zero datetimes in strict mode.
type auctionRecord struct {
	AuctionID         string          `gorm:"primaryKey;type:varchar(64)"`
	Title             string          `gorm:"type:varchar(255);not null"`
	NGOID             string          `gorm:"column:ngo_id;type:varchar(64);index"`
	StartingPrice     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	CurrentPrice      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	BidIncrement      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status            string          `gorm:"type:varchar(16);index;not null"`
	TotalBids         int64           `gorm:"not null;default:0"`
	LeaderID          string          `gorm:"type:varchar(64)"`
	WinnerID          string          `gorm:"type:varchar(64)"`
	EnableAutoBidding bool            `gorm:"not null"`
	StartDate         sql.NullTime
	EndDate           sql.NullTime `gorm:"index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (auctionRecord) TableName() string { return "auctions" }

func toAuctionRecord(a model.Auction) auctionRecord {
	return auctionRecord{
		AuctionID:         a.AuctionID,
		Title:             a.Title,
		NGOID:             a.NGOID,
		StartingPrice:     a.StartingPrice,
		CurrentPrice:      a.CurrentPrice,
		BidIncrement:      a.BidIncrement,
		Status:            string(a.Status),
		TotalBids:         a.TotalBids,
		LeaderID:          a.LeaderID,
		WinnerID:          a.WinnerID,
		EnableAutoBidding: a.EnableAutoBidding,
		StartDate:         nullTime(a.StartDate),
		EndDate:           nullTime(a.EndDate),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func (r auctionRecord) toModel() model.Auction {
	return model.Auction{
		AuctionID:         r.AuctionID,
		Title:             r.Title,
		NGOID:             r.NGOID,
		StartingPrice:     r.StartingPrice,
		CurrentPrice:      r.CurrentPrice,
		BidIncrement:      r.BidIncrement,
		Status:            model.AuctionStatus(r.Status),
		TotalBids:         r.TotalBids,
		LeaderID:          r.LeaderID,
		WinnerID:          r.WinnerID,
		EnableAutoBidding: r.EnableAutoBidding,
		StartDate:         r.StartDate.Time.UTC(),
		EndDate:           fromNullTime(r.EndDate),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// GormRepo stores auctions in MySQL through gorm
type GormRepo struct {
	db *gorm.DB
}

// OpenMySQL connects to MySQL and sizes the connection pool
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// NewGormRepo migrates the schema and returns a repository on db
func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&auctionRecord{}, &model.Bid{}, &model.AutoBid{}, &model.Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormRepo{db: db}, nil
}

// Close releases the underlying connection pool
func (r *GormRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrPersistence, err)
}

// CreateAuction stores an auction, replacing any auction with the same ID
func (r *GormRepo) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if err := validateAuction(auction); err != nil {
		return model.Auction{}, err
	}

	now := time.Now().UTC()
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = now
	}
	auction.UpdatedAt = now

	rec := toAuctionRecord(auction)
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return model.Auction{}, persistence("create auction "+auction.AuctionID, err)
	}
	return rec.toModel(), nil
}

func (r *GormRepo) loadAuction(tx *gorm.DB, auctionID string) (model.Auction, error) {
	var rec auctionRecord
	err := tx.Where("auction_id = ?", auctionID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, persistence("get auction "+auctionID, err)
	}
	return rec.toModel(), nil
}

// GetAuction returns a single auction
func (r *GormRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return r.loadAuction(r.db.WithContext(ctx), auctionID)
}

// ListAuctionsByStatus returns auctions in the given status ordered by end date
func (r *GormRepo) ListAuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	var recs []auctionRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("end_date IS NULL, end_date, auction_id").
		Find(&recs).Error
	if err != nil {
		return nil, persistence("list auctions", err)
	}

	auctions := make([]model.Auction, 0, len(recs))
	for _, rec := range recs {
		auctions = append(auctions, rec.toModel())
	}
	return auctions, nil
}

// AdvanceAuction records a bid and advances the auction price in one transaction
func (r *GormRepo) AdvanceAuction(ctx context.Context, bid model.Bid, expectedPrice decimal.Decimal) (model.Auction, error) {
	var updated model.Auction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&auctionRecord{}).
			Where("auction_id = ? AND status = ? AND current_price = ?", bid.AuctionID, string(model.AuctionActive), expectedPrice).
			Updates(map[string]any{
				"current_price": bid.Amount,
				"total_bids":    gorm.Expr("total_bids + 1"),
				"leader_id":     bid.UserID,
				"updated_at":    bid.CreatedAt,
			})
		if res.Error != nil {
			return persistence("advance auction "+bid.AuctionID, res.Error)
		}
		if res.RowsAffected == 0 {
			current, err := r.loadAuction(tx, bid.AuctionID)
			if err != nil {
				return err
			}
			return advanceMiss(current, expectedPrice)
		}

		if err := tx.Create(&bid).Error; err != nil {
			return persistence("insert bid "+bid.BidID, err)
		}

		var err error
		updated, err = r.loadAuction(tx, bid.AuctionID)
		return err
	})
	if err != nil {
		return model.Auction{}, err
	}
	return updated, nil
}

// advanceMiss explains why a conditional price update matched no row
func advanceMiss(current model.Auction, expectedPrice decimal.Decimal) error {
	if current.Status != model.AuctionActive {
		return fmt.Errorf("advance auction %s: %w", current.AuctionID, biddingerrors.ErrAuctionNotActive)
	}
	return fmt.Errorf("advance auction %s: expected price %s, found %s: %w",
		current.AuctionID, expectedPrice, current.CurrentPrice, biddingerrors.ErrPriceConflict)
}

// EndAuction closes an auction and freezes its winner
func (r *GormRepo) EndAuction(ctx context.Context, auctionID string, endedAt time.Time) (model.Auction, error) {
	var ended model.Auction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec auctionRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("auction_id = ?", auctionID).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("end auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		if err != nil {
			return persistence("end auction "+auctionID, err)
		}
		if rec.Status == string(model.AuctionEnded) {
			return fmt.Errorf("end auction %s: %w", auctionID, biddingerrors.ErrAuctionEnded)
		}

		rec.Status = string(model.AuctionEnded)
		rec.EndDate = nullTime(endedAt)
		rec.WinnerID = rec.LeaderID
		rec.UpdatedAt = endedAt.UTC()
		if err := tx.Save(&rec).Error; err != nil {
			return persistence("end auction "+auctionID, err)
		}
		ended = rec.toModel()
		return nil
	})
	if err != nil {
		return model.Auction{}, err
	}
	return ended, nil
}

// GetBidsByAuction returns all bids for an auction, newest first
func (r *GormRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	var bids []model.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at DESC, bid_id DESC").
		Find(&bids).Error
	if err != nil {
		return nil, persistence("get bids for auction "+auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	for i := range bids {
		bids[i].CreatedAt = bids[i].CreatedAt.UTC()
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction.
// Equal amounts go to the earliest bid.
func (r *GormRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	var bid model.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC, created_at ASC, bid_id ASC").
		Take(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, persistence("get winning bid for auction "+auctionID, err)
	}
	bid.CreatedAt = bid.CreatedAt.UTC()
	return bid, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *GormRepo) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	var recs []auctionRecord
	err := r.db.WithContext(ctx).
		Where("auction_id IN (?)", r.db.Model(&model.Bid{}).Select("auction_id").Where("user_id = ?", userID)).
		Order("auction_id").
		Find(&recs).Error
	if err != nil {
		return nil, persistence("get auctions for user "+userID, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(recs))
	for _, rec := range recs {
		auctions = append(auctions, rec.toModel())
	}
	return auctions, nil
}

// UpsertAutoBid creates or replaces the auto-bid of a user on an auction.
// The ID and creation time of an existing row are preserved.
func (r *GormRepo) UpsertAutoBid(ctx context.Context, autoBid model.AutoBid) (model.AutoBid, error) {
	now := time.Now().UTC()
	if autoBid.CreatedAt.IsZero() {
		autoBid.CreatedAt = now
	}
	autoBid.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "auction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_amount", "is_active", "stop_reason", "updated_at"}),
	}).Create(&autoBid).Error
	if err != nil {
		return model.AutoBid{}, persistence("upsert auto-bid of user "+autoBid.UserID, err)
	}
	return r.GetAutoBid(ctx, autoBid.UserID, autoBid.AuctionID)
}

// GetAutoBid returns the auto-bid of a user on an auction
func (r *GormRepo) GetAutoBid(ctx context.Context, userID, auctionID string) (model.AutoBid, error) {
	var ab model.AutoBid
	err := r.db.WithContext(ctx).Where("user_id = ? AND auction_id = ?", userID, auctionID).Take(&ab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AutoBid{}, fmt.Errorf("get auto-bid of user %s on auction %s: %w", userID, auctionID, biddingerrors.ErrAutoBidNotFound)
	}
	if err != nil {
		return model.AutoBid{}, persistence("get auto-bid of user "+userID, err)
	}
	return normalizeAutoBid(ab), nil
}

func normalizeAutoBid(ab model.AutoBid) model.AutoBid {
	ab.CreatedAt = ab.CreatedAt.UTC()
	ab.UpdatedAt = ab.UpdatedAt.UTC()
	return ab
}

const autoBidOrder = "auction_id, max_amount DESC, created_at ASC, user_id"

// ListActiveAutoBids returns the active auto-bids of an auction, richest first
func (r *GormRepo) ListActiveAutoBids(ctx context.Context, auctionID string) ([]model.AutoBid, error) {
	var autoBids []model.AutoBid
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND is_active = ?", auctionID, true).
		Order(autoBidOrder).
		Find(&autoBids).Error
	if err != nil {
		return nil, persistence("list auto-bids of auction "+auctionID, err)
	}
	for i := range autoBids {
		autoBids[i] = normalizeAutoBid(autoBids[i])
	}
	return autoBids, nil
}

// ListAllActiveAutoBids returns every active auto-bid grouped by auction, richest first
func (r *GormRepo) ListAllActiveAutoBids(ctx context.Context) ([]model.AutoBid, error) {
	var autoBids []model.AutoBid
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order(autoBidOrder).
		Find(&autoBids).Error
	if err != nil {
		return nil, persistence("list active auto-bids", err)
	}
	for i := range autoBids {
		autoBids[i] = normalizeAutoBid(autoBids[i])
	}
	return autoBids, nil
}

// DeactivateAutoBid stops an auto-bid and records the reason
func (r *GormRepo) DeactivateAutoBid(ctx context.Context, userID, auctionID string, reason model.StopReason) error {
	res := r.db.WithContext(ctx).Model(&model.AutoBid{}).
		Where("user_id = ? AND auction_id = ?", userID, auctionID).
		Updates(map[string]any{
			"is_active":   false,
			"stop_reason": string(reason),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return persistence("deactivate auto-bid of user "+userID, res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows for a no-op update, so check the row exists
		if _, err := r.GetAutoBid(ctx, userID, auctionID); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransaction appends a ledger transaction
func (r *GormRepo) RecordTransaction(ctx context.Context, txn model.Transaction) error {
	if err := r.db.WithContext(ctx).Create(&txn).Error; err != nil {
		return persistence("record transaction "+txn.TransactionID, err)
	}
	return nil
}

// Health pings MySQL and reports connection pool statistics
func (r *GormRepo) Health(ctx context.Context) map[string]string {
	sqlDB, err := r.db.DB()
	if err != nil {
		return map[string]string{"status": "down", "store": "mysql", "error": err.Error()}
	}
	stats := poolHealth(ctx, sqlDB)
	stats["store"] = "mysql"
	return stats
}

// poolHealth pings a database and summarises its connection pool
func poolHealth(ctx context.Context, db *sql.DB) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}
	return stats
}
