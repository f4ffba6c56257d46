package repository

import (
	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS auctions (
	auction_id          TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	ngo_id              TEXT NOT NULL DEFAULT '',
	starting_price      NUMERIC(20,2) NOT NULL,
	current_price       NUMERIC(20,2) NOT NULL,
	bid_increment       NUMERIC(20,2) NOT NULL,
	status              TEXT NOT NULL,
	total_bids          BIGINT NOT NULL DEFAULT 0,
	leader_id           TEXT NOT NULL DEFAULT '',
	winner_id           TEXT NOT NULL DEFAULT '',
	enable_auto_bidding BOOLEAN NOT NULL DEFAULT TRUE,
	start_date          TIMESTAMPTZ,
	end_date            TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions (status, end_date);

CREATE TABLE IF NOT EXISTS bids (
	bid_id      TEXT PRIMARY KEY,
	auction_id  TEXT NOT NULL REFERENCES auctions (auction_id),
	user_id     TEXT NOT NULL,
	amount      NUMERIC(20,2) NOT NULL,
	is_auto_bid BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids (auction_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bids_user ON bids (user_id);

CREATE TABLE IF NOT EXISTS auto_bids (
	auto_bid_id TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	auction_id  TEXT NOT NULL,
	max_amount  NUMERIC(20,2) NOT NULL,
	is_active   BOOLEAN NOT NULL,
	stop_reason TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, auction_id)
);

CREATE TABLE IF NOT EXISTS transactions (
	transaction_id TEXT PRIMARY KEY,
	ngo_id         TEXT NOT NULL,
	auction_id     TEXT NOT NULL,
	type           TEXT NOT NULL,
	amount         NUMERIC(20,2) NOT NULL,
	reference      TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);`

const auctionColumns = `auction_id, title, ngo_id, starting_price, current_price, bid_increment,
	status, total_bids, leader_id, winner_id, enable_auto_bidding, start_date, end_date, created_at, updated_at`

const bidColumns = `bid_id, auction_id, user_id, amount, is_auto_bid, created_at`

const autoBidColumns = `auto_bid_id, user_id, auction_id, max_amount, is_active, stop_reason, created_at, updated_at`

// PostgresRepo stores auctions in PostgreSQL through database/sql and pgx
type PostgresRepo struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL and applies the schema
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	repo, err := NewPostgresRepo(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepo applies the schema on db and returns a repository
func NewPostgresRepo(ctx context.Context, db *sql.DB) (*PostgresRepo, error) {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresRepo{db: db}, nil
}

// Close closes the database connection
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a                  model.Auction
		status             string
		startDate, endDate sql.NullTime
	)
	err := row.Scan(&a.AuctionID, &a.Title, &a.NGOID, &a.StartingPrice, &a.CurrentPrice, &a.BidIncrement,
		&status, &a.TotalBids, &a.LeaderID, &a.WinnerID, &a.EnableAutoBidding, &startDate, &endDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	a.StartDate = fromNullTime(startDate)
	a.EndDate = fromNullTime(endDate)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var b model.Bid
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.IsAutoBid, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func scanAutoBid(row rowScanner) (model.AutoBid, error) {
	var (
		ab     model.AutoBid
		reason string
	)
	if err := row.Scan(&ab.AutoBidID, &ab.UserID, &ab.AuctionID, &ab.MaxAmount, &ab.IsActive, &reason, &ab.CreatedAt, &ab.UpdatedAt); err != nil {
		return model.AutoBid{}, err
	}
	ab.StopReason = model.StopReason(reason)
	return normalizeAutoBid(ab), nil
}

// CreateAuction stores an auction, replacing any auction with the same ID
func (r *PostgresRepo) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if err := validateAuction(auction); err != nil {
		return model.Auction{}, err
	}

	now := time.Now().UTC()
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = now
	}
	auction.UpdatedAt = now

	query := `INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (auction_id) DO UPDATE SET
			title = EXCLUDED.title, ngo_id = EXCLUDED.ngo_id, starting_price = EXCLUDED.starting_price,
			current_price = EXCLUDED.current_price, bid_increment = EXCLUDED.bid_increment, status = EXCLUDED.status,
			total_bids = EXCLUDED.total_bids, leader_id = EXCLUDED.leader_id, winner_id = EXCLUDED.winner_id,
			enable_auto_bidding = EXCLUDED.enable_auto_bidding, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, updated_at = EXCLUDED.updated_at
		RETURNING ` + auctionColumns
	created, err := scanAuction(r.db.QueryRowContext(ctx, query,
		auction.AuctionID, auction.Title, auction.NGOID, auction.StartingPrice, auction.CurrentPrice, auction.BidIncrement,
		string(auction.Status), auction.TotalBids, auction.LeaderID, auction.WinnerID, auction.EnableAutoBidding,
		nullTime(auction.StartDate), nullTime(auction.EndDate), auction.CreatedAt, auction.UpdatedAt))
	if err != nil {
		return model.Auction{}, persistence("create auction "+auction.AuctionID, err)
	}
	return created, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAuction(ctx context.Context, q querier, auctionID string, lock bool) (model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE auction_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanAuction(q.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, persistence("get auction "+auctionID, err)
	}
	return a, nil
}

// GetAuction returns a single auction
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return getAuction(ctx, r.db, auctionID, false)
}

// ListAuctionsByStatus returns auctions in the given status ordered by end date
func (r *PostgresRepo) ListAuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = $1 ORDER BY end_date ASC NULLS LAST, auction_id`,
		string(status))
	if err != nil {
		return nil, persistence("list auctions", err)
	}
	defer rows.Close()

	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, persistence("scan auction", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate auctions", err)
	}
	return auctions, nil
}

// AdvanceAuction records a bid and advances the auction price in one transaction
func (r *PostgresRepo) AdvanceAuction(ctx context.Context, bid model.Bid, expectedPrice decimal.Decimal) (model.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, persistence("begin transaction", err)
	}
	defer tx.Rollback()

	updated, err := scanAuction(tx.QueryRowContext(ctx, `
		UPDATE auctions
		SET current_price = $1, total_bids = total_bids + 1, leader_id = $2, updated_at = $3
		WHERE auction_id = $4 AND status = $5 AND current_price = $6
		RETURNING `+auctionColumns,
		bid.Amount, bid.UserID, bid.CreatedAt, bid.AuctionID, string(model.AuctionActive), expectedPrice))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := getAuction(ctx, tx, bid.AuctionID, false)
		if err != nil {
			return model.Auction{}, fmt.Errorf("advance auction %s: %w", bid.AuctionID, err)
		}
		return model.Auction{}, advanceMiss(current, expectedPrice)
	}
	if err != nil {
		return model.Auction{}, persistence("advance auction "+bid.AuctionID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		bid.BidID, bid.AuctionID, bid.UserID, bid.Amount, bid.IsAutoBid, bid.CreatedAt)
	if err != nil {
		return model.Auction{}, persistence("insert bid "+bid.BidID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, persistence("commit bid "+bid.BidID, err)
	}
	return updated, nil
}

// EndAuction closes an auction and freezes its winner
func (r *PostgresRepo) EndAuction(ctx context.Context, auctionID string, endedAt time.Time) (model.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, persistence("begin transaction", err)
	}
	defer tx.Rollback()

	current, err := getAuction(ctx, tx, auctionID, true)
	if err != nil {
		return model.Auction{}, fmt.Errorf("end auction %s: %w", auctionID, err)
	}
	if current.Status == model.AuctionEnded {
		return model.Auction{}, fmt.Errorf("end auction %s: %w", auctionID, biddingerrors.ErrAuctionEnded)
	}

	ended, err := scanAuction(tx.QueryRowContext(ctx, `
		UPDATE auctions SET status = $1, end_date = $2, winner_id = leader_id, updated_at = $2
		WHERE auction_id = $3
		RETURNING `+auctionColumns,
		string(model.AuctionEnded), endedAt.UTC(), auctionID))
	if err != nil {
		return model.Auction{}, persistence("end auction "+auctionID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, persistence("commit end of auction "+auctionID, err)
	}
	return ended, nil
}

func (r *PostgresRepo) queryBids(ctx context.Context, query string, args ...any) ([]model.Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// GetBidsByAuction returns all bids for an auction, newest first
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	bids, err := r.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at DESC, bid_id DESC`, auctionID)
	if err != nil {
		return nil, persistence("get bids for auction "+auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction.
// Equal amounts go to the earliest bid.
func (r *PostgresRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	b, err := scanBid(r.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY amount DESC, created_at ASC, bid_id ASC LIMIT 1`,
		auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, persistence("get winning bid for auction "+auctionID, err)
	}
	return b, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *PostgresRepo) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions
		WHERE auction_id IN (SELECT DISTINCT auction_id FROM bids WHERE user_id = $1)
		ORDER BY auction_id`, userID)
	if err != nil {
		return nil, persistence("get auctions for user "+userID, err)
	}
	defer rows.Close()

	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, persistence("scan auction", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate auctions", err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// UpsertAutoBid creates or replaces the auto-bid of a user on an auction.
// The ID and creation time of an existing row are preserved.
func (r *PostgresRepo) UpsertAutoBid(ctx context.Context, autoBid model.AutoBid) (model.AutoBid, error) {
	now := time.Now().UTC()
	if autoBid.CreatedAt.IsZero() {
		autoBid.CreatedAt = now
	}

	stored, err := scanAutoBid(r.db.QueryRowContext(ctx, `
		INSERT INTO auto_bids (`+autoBidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, auction_id) DO UPDATE SET
			max_amount = EXCLUDED.max_amount, is_active = EXCLUDED.is_active,
			stop_reason = EXCLUDED.stop_reason, updated_at = EXCLUDED.updated_at
		RETURNING `+autoBidColumns,
		autoBid.AutoBidID, autoBid.UserID, autoBid.AuctionID, autoBid.MaxAmount, autoBid.IsActive,
		string(autoBid.StopReason), autoBid.CreatedAt, now))
	if err != nil {
		return model.AutoBid{}, persistence("upsert auto-bid of user "+autoBid.UserID, err)
	}
	return stored, nil
}

// GetAutoBid returns the auto-bid of a user on an auction
func (r *PostgresRepo) GetAutoBid(ctx context.Context, userID, auctionID string) (model.AutoBid, error) {
	ab, err := scanAutoBid(r.db.QueryRowContext(ctx,
		`SELECT `+autoBidColumns+` FROM auto_bids WHERE user_id = $1 AND auction_id = $2`, userID, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AutoBid{}, fmt.Errorf("get auto-bid of user %s on auction %s: %w", userID, auctionID, biddingerrors.ErrAutoBidNotFound)
	}
	if err != nil {
		return model.AutoBid{}, persistence("get auto-bid of user "+userID, err)
	}
	return ab, nil
}

func (r *PostgresRepo) queryAutoBids(ctx context.Context, query string, args ...any) ([]model.AutoBid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	autoBids := make([]model.AutoBid, 0)
	for rows.Next() {
		ab, err := scanAutoBid(rows)
		if err != nil {
			return nil, err
		}
		autoBids = append(autoBids, ab)
	}
	return autoBids, rows.Err()
}

// ListActiveAutoBids returns the active auto-bids of an auction, richest first
func (r *PostgresRepo) ListActiveAutoBids(ctx context.Context, auctionID string) ([]model.AutoBid, error) {
	autoBids, err := r.queryAutoBids(ctx,
		`SELECT `+autoBidColumns+` FROM auto_bids WHERE auction_id = $1 AND is_active ORDER BY `+autoBidOrder, auctionID)
	if err != nil {
		return nil, persistence("list auto-bids of auction "+auctionID, err)
	}
	return autoBids, nil
}

// ListAllActiveAutoBids returns every active auto-bid grouped by auction, richest first
func (r *PostgresRepo) ListAllActiveAutoBids(ctx context.Context) ([]model.AutoBid, error) {
	autoBids, err := r.queryAutoBids(ctx,
		`SELECT `+autoBidColumns+` FROM auto_bids WHERE is_active ORDER BY `+autoBidOrder)
	if err != nil {
		return nil, persistence("list active auto-bids", err)
	}
	return autoBids, nil
}

// DeactivateAutoBid stops an auto-bid and records the reason
func (r *PostgresRepo) DeactivateAutoBid(ctx context.Context, userID, auctionID string, reason model.StopReason) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auto_bids SET is_active = FALSE, stop_reason = $1, updated_at = $2 WHERE user_id = $3 AND auction_id = $4`,
		string(reason), time.Now().UTC(), userID, auctionID)
	if err != nil {
		return persistence("deactivate auto-bid of user "+userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("deactivate auto-bid of user "+userID, err)
	}
	if n == 0 {
		return fmt.Errorf("deactivate auto-bid of user %s on auction %s: %w", userID, auctionID, biddingerrors.ErrAutoBidNotFound)
	}
	return nil
}

// RecordTransaction appends a ledger transaction
func (r *PostgresRepo) RecordTransaction(ctx context.Context, txn model.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, ngo_id, auction_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.TransactionID, txn.NGOID, txn.AuctionID, string(txn.Type), txn.Amount, txn.Reference, txn.Description, txn.CreatedAt)
	if err != nil {
		return persistence("record transaction "+txn.TransactionID, err)
	}
	return nil
}

// Transactions returns the recorded transactions of an auction, oldest first
func (r *PostgresRepo) Transactions(ctx context.Context, auctionID string) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, ngo_id, auction_id, type, amount, reference, description, created_at
		FROM transactions WHERE auction_id = $1 ORDER BY created_at`, auctionID)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	defer rows.Close()

	txns := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			txn     model.Transaction
			txnType string
		)
		if err := rows.Scan(&txn.TransactionID, &txn.NGOID, &txn.AuctionID, &txnType, &txn.Amount,
			&txn.Reference, &txn.Description, &txn.CreatedAt); err != nil {
			return nil, persistence("scan transaction", err)
		}
		txn.Type = model.TransactionType(txnType)
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// Health pings PostgreSQL and reports connection pool statistics
func (r *PostgresRepo) Health(ctx context.Context) map[string]string {
	stats := poolHealth(ctx, r.db)
	stats["store"] = "postgres"
	return stats
}
