package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a marketplace account. Identity issuance is external;
// this row only carries what moderation and ownership checks need.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	Role      string    `db:"role" json:"role"`
	IsFrozen  bool      `db:"is_frozen" json:"is_frozen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User roles
const (
	RoleBuyer     = "BUYER"
	RoleSeller    = "SELLER"
	RoleModerator = "MODERATOR"
	RoleSystem    = "SYSTEM"
)

// Item represents a collectible listing
type Item struct {
	ID           int64               `db:"id" json:"id"`
	SellerID     int64               `db:"seller_id" json:"seller_id"`
	Title        string              `db:"title" json:"title"`
	Status       string              `db:"status" json:"status"`
	CurrentPrice decimal.Decimal     `db:"current_price" json:"current_price"`
	BuyNowPrice  decimal.NullDecimal `db:"buy_now_price" json:"buy_now_price,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}

// Item statuses
const (
	ItemStatusPendingApproval = "PENDING_APPROVAL"
	ItemStatusActive          = "ACTIVE"
	ItemStatusRejected        = "REJECTED"
	ItemStatusSold            = "SOLD"
	ItemStatusRemoved         = "REMOVED"
)

// Auction owns the lifecycle of a single item sale by bidding. EndTime is a
// hard close: it is never extended by late bids.
type Auction struct {
	ID              int64               `db:"id" json:"id"`
	ItemID          int64               `db:"item_id" json:"item_id"`
	SellerID        int64               `db:"seller_id" json:"seller_id"`
	StartTime       time.Time           `db:"start_time" json:"start_time"`
	EndTime         time.Time           `db:"end_time" json:"end_time"`
	StartingPrice   decimal.Decimal     `db:"starting_price" json:"starting_price"`
	MinIncrement    decimal.Decimal     `db:"min_increment" json:"min_increment"`
	CurrentPrice    decimal.Decimal     `db:"current_price" json:"current_price"`
	HighestBidderID *int64              `db:"highest_bidder_id" json:"highest_bidder_id,omitempty"`
	BidCount        int                 `db:"bid_count" json:"bid_count"`
	BuyNowPrice     decimal.NullDecimal `db:"buy_now_price" json:"buy_now_price,omitempty"`
	Status          string              `db:"status" json:"status"`
	WinnerID        *int64              `db:"winner_id" json:"winner_id,omitempty"`
	ClosedAt        *time.Time          `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// Auction statuses
const (
	AuctionStatusScheduled = "SCHEDULED"
	AuctionStatusActive    = "ACTIVE"
	AuctionStatusEnded     = "ENDED"
	AuctionStatusSettled   = "SETTLED"
	AuctionStatusCancelled = "CANCELLED"
)

// Bid is an append-only ledger entry. Sequence totally orders bids within an
// auction and breaks ties at equal amounts (earliest wins).
type Bid struct {
	ID        int64           `db:"id" json:"id"`
	AuctionID int64           `db:"auction_id" json:"auction_id"`
	BidderID  int64           `db:"bidder_id" json:"bidder_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Sequence  int             `db:"sequence" json:"sequence"`
	IsAuto    bool            `db:"is_auto" json:"is_auto"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ProxyBid holds a bidder's hidden ceiling for auto-raises
type ProxyBid struct {
	AuctionID int64           `db:"auction_id" json:"auction_id"`
	BidderID  int64           `db:"bidder_id" json:"bidder_id"`
	MaxAmount decimal.Decimal `db:"max_amount" json:"max_amount"`
	IsActive  bool            `db:"is_active" json:"is_active"`
}

// Order represents an accepted purchase: an auction win or a buy-now sale.
// Orders are never deleted, only transitioned.
type Order struct {
	ID            int64           `db:"id" json:"id"`
	ItemID        int64           `db:"item_id" json:"item_id"`
	AuctionID     *int64          `db:"auction_id" json:"auction_id,omitempty"`
	BuyerID       int64           `db:"buyer_id" json:"buyer_id"`
	SellerID      int64           `db:"seller_id" json:"seller_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        string          `db:"status" json:"status"`
	DisputeReason string          `db:"dispute_reason" json:"dispute_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusShipped        = "SHIPPED"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusCancelled      = "CANCELLED"
	OrderStatusDisputed       = "DISPUTED"
	OrderStatusRefunded       = "REFUNDED"
	OrderStatusLost           = "LOST"
)

// OrderTransition records who moved an order between states, and when
type OrderTransition struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    int64     `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ShippingInfo is set once, when the seller ships
type ShippingInfo struct {
	OrderID        int64     `db:"order_id" json:"order_id"`
	TrackingNumber string    `db:"tracking_number" json:"tracking_number"`
	Carrier        string    `db:"carrier" json:"carrier"`
	ShippedAt      time.Time `db:"shipped_at" json:"shipped_at"`
}

// EscrowWallet is a balance account; one per user plus the platform wallet
type EscrowWallet struct {
	ID         int64           `db:"id" json:"id"`
	UserID     *int64          `db:"user_id" json:"user_id,omitempty"`
	IsPlatform bool            `db:"is_platform" json:"is_platform"`
	Balance    decimal.Decimal `db:"balance" json:"balance"`
}

// EscrowTransaction tracks held funds for one order
type EscrowTransaction struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          string          `db:"status" json:"status"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	ExternalTxID    string          `db:"external_tx_id" json:"external_tx_id"`
	HeldAt          time.Time       `db:"held_at" json:"held_at"`
	ReleasedAt      *time.Time      `db:"released_at" json:"released_at,omitempty"`
	ReleaseDeadline *time.Time      `db:"release_deadline" json:"release_deadline,omitempty"`
}

// Escrow statuses
const (
	EscrowStatusHeld     = "HELD"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
	EscrowStatusDisputed = "DISPUTED"
)

// Notification is the persisted read model for the realtime channel. The ID
// is assigned at persist time, never at delivery time, and is the key the
// delivery path dedupes on.
type Notification struct {
	ID               string     `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	Kind             string     `db:"kind" json:"kind"`
	Title            string     `db:"title" json:"title"`
	Message          string     `db:"message" json:"message"`
	RelatedAuctionID *int64     `db:"related_auction_id" json:"related_auction_id,omitempty"`
	RelatedOrderID   *int64     `db:"related_order_id" json:"related_order_id,omitempty"`
	IsRead           bool       `db:"is_read" json:"is_read"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ReadAt           *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// Notification kinds
const (
	NotificationKindBid        = "BID"
	NotificationKindOrder      = "ORDER"
	NotificationKindModeration = "MODERATION"
)

// AuditLog is append-only; rows are never edited or deleted
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	AdminID    int64     `db:"admin_id" json:"admin_id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   int64     `db:"entity_id" json:"entity_id"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FraudReport represents a user-filed report pending moderator resolution
type FraudReport struct {
	ID              int64     `db:"id" json:"id"`
	ReportedBy      int64     `db:"reported_by" json:"reported_by"`
	ReportedUserID  int64     `db:"reported_user_id" json:"reported_user_id"`
	Description     string    `db:"description" json:"description"`
	Status          string    `db:"status" json:"status"`
	ResolvedBy      *int64    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNotes string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Fraud report statuses
const (
	FraudReportPending   = "PENDING"
	FraudReportConfirmed = "CONFIRMED"
	FraudReportDismissed = "DISMISSED"
)

// ProcessedEvent for transport-level idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
