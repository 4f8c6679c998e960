package service

import "errors"

// Bidding errors
var (
	ErrBidTooLow         = errors.New("bid amount below current price plus minimum increment")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrSelfBid           = errors.New("seller cannot bid on own item")
	ErrAuctionHasBids    = errors.New("auction with existing bids cannot be cancelled")
	ErrBuyNowUnavailable = errors.New("buy-now is not available for this auction")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Order errors
var (
	ErrInvalidOrderTransition = errors.New("order transition not allowed from current status")
	ErrNotBuyer               = errors.New("only the buyer may perform this action")
	ErrNotSeller              = errors.New("only the seller may perform this action")
	ErrNotModerator           = errors.New("only a moderator may perform this action")
	ErrAmountMismatch         = errors.New("payment amount does not match order amount")
	ErrPaymentExists          = errors.New("payment already captured for this order")
	ErrDisputeReasonRequired  = errors.New("dispute requires a reason")
	ErrMissingShippingInfo    = errors.New("shipment requires carrier and tracking number")
	ErrEscrowState            = errors.New("escrow funds not in a state that permits this operation")
)

// Account errors
var (
	ErrAccountFrozen = errors.New("account is frozen")
)
