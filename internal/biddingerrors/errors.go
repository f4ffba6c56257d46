package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")
	ErrAutoBidNotFound = errors.New("auto-bid not found")
	ErrPriceConflict   = errors.New("auction price changed concurrently")
	ErrPersistence     = errors.New("storage failure")
)

// business logic errors
var (
	ErrInvalidBid        = errors.New("invalid bid")
	ErrInvalidAuction    = errors.New("invalid auction configuration")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrInvalidAutoBid    = errors.New("invalid auto-bid")
	ErrAutoBidNotAllowed = errors.New("auto-bidding is disabled for this auction")
	ErrCascadeIncomplete = errors.New("bid accepted but auto-bid resolution did not complete")
)
