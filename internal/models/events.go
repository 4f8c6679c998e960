package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeBidPlaced      = "BID_PLACED"
	EventTypeOutbid         = "OUTBID"
	EventTypeAuctionWon     = "AUCTION_WON"
	EventTypeAuctionEnded   = "AUCTION_ENDED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
	EventTypeOrderDelivered = "ORDER_DELIVERED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeEscrowReleased = "ESCROW_RELEASED"
	EventTypeOrderRefunded  = "ORDER_REFUNDED"
	EventTypeDisputeOpened  = "DISPUTE_OPENED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BidPlacedEvent published for every accepted bid, auto-raises included
type BidPlacedEvent struct {
	BaseEvent
	AuctionID    int64           `json:"auction_id"`
	BidderID     int64           `json:"bidder_id"`
	SellerID     int64           `json:"seller_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LeaderID     int64           `json:"leader_id"`
	Sequence     int             `json:"sequence"`
}

// OutbidEvent published to the previous leader when leadership changes
type OutbidEvent struct {
	BaseEvent
	AuctionID        int64           `json:"auction_id"`
	PreviousLeaderID int64           `json:"previous_leader_id"`
	NewAmount        decimal.Decimal `json:"new_amount"`
}

// AuctionWonEvent published at settlement
type AuctionWonEvent struct {
	BaseEvent
	AuctionID int64           `json:"auction_id"`
	WinnerID  int64           `json:"winner_id"`
	Amount    decimal.Decimal `json:"amount"`
	OrderID   int64           `json:"order_id"`
	ItemTitle string          `json:"item_title"`
}

// AuctionEndedEvent published when an auction closes without bids
type AuctionEndedEvent struct {
	BaseEvent
	AuctionID int64 `json:"auction_id"`
	SellerID  int64 `json:"seller_id"`
}

// OrderPaidEvent published when escrow hold succeeds
type OrderPaidEvent struct {
	BaseEvent
	OrderID  int64           `json:"order_id"`
	BuyerID  int64           `json:"buyer_id"`
	SellerID int64           `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// OrderShippedEvent published when the seller ships
type OrderShippedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	BuyerID        int64  `json:"buyer_id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// OrderDeliveredEvent published on buyer confirmation or auto-confirm
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
}

// OrderCancelledEvent published when an unpaid order expires or the item is lost
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	BuyerID int64  `json:"buyer_id"`
	Reason  string `json:"reason"`
}

// EscrowReleasedEvent published when held funds move to the seller
type EscrowReleasedEvent struct {
	BaseEvent
	OrderID  int64           `json:"order_id"`
	SellerID int64           `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// OrderRefundedEvent published when held funds return to the buyer
type OrderRefundedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	BuyerID int64           `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// DisputeOpenedEvent published when a buyer disputes an order
type DisputeOpenedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	BuyerID  int64  `json:"buyer_id"`
	SellerID int64  `json:"seller_id"`
	Reason   string `json:"reason"`
}
