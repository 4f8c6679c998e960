package service

import (
	"context"

	"collectibles-market/internal/models"
)

// EventPublisher is the domain-event sink the services emit into. Satisfied
// by broker.EventPublisher; tests record events in memory.
type EventPublisher interface {
	PublishBidPlaced(ctx context.Context, event *models.BidPlacedEvent) error
	PublishOutbid(ctx context.Context, event *models.OutbidEvent) error
	PublishAuctionWon(ctx context.Context, event *models.AuctionWonEvent) error
	PublishAuctionEnded(ctx context.Context, event *models.AuctionEndedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishEscrowReleased(ctx context.Context, event *models.EscrowReleasedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishDisputeOpened(ctx context.Context, event *models.DisputeOpenedEvent) error
}
