package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"collectibles-market/internal/broker"
	"collectibles-market/internal/models"
	"collectibles-market/internal/service"
	"collectibles-market/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventDeduper persists which transport events have already produced
// notifications. Kafka delivery is at-least-once; the dedup record is what
// keeps redeliveries from duplicating notifications.
type EventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker consumes domain events and turns each into a persisted
// notification for the affected user.
type NotificationWorker struct {
	consumer      *broker.Consumer
	handler       *broker.EventHandler
	dedup         EventDeduper
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewNotificationWorker creates a worker with all event routes registered
func NewNotificationWorker(consumer *broker.Consumer, dedup EventDeduper, notifications *service.NotificationService) *NotificationWorker {
	w := &NotificationWorker{
		consumer:      consumer,
		handler:       broker.NewEventHandler(),
		dedup:         dedup,
		notifications: notifications,
		logger:        util.GetLogger(),
	}
	w.registerRoutes()
	return w
}

// Run consumes until the context is cancelled
func (w *NotificationWorker) Run(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		w.logger.Error("Dropping malformed event", zap.Error(err))
		return nil
	}

	processed, err := w.dedup.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Skipping already processed event",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType))
		return nil
	}

	if err := w.handler.HandleMessage(ctx, msg); err != nil {
		return err
	}
	return w.dedup.MarkEventProcessed(ctx, base.EventID, base.EventType)
}

func (w *NotificationWorker) registerRoutes() {
	w.handler.On(models.EventTypeBidPlaced, w.onBidPlaced)
	w.handler.On(models.EventTypeOutbid, w.onOutbid)
	w.handler.On(models.EventTypeAuctionWon, w.onAuctionWon)
	w.handler.On(models.EventTypeAuctionEnded, w.onAuctionEnded)
	w.handler.On(models.EventTypeOrderPaid, w.onOrderPaid)
	w.handler.On(models.EventTypeOrderShipped, w.onOrderShipped)
	w.handler.On(models.EventTypeOrderDelivered, w.onOrderDelivered)
	w.handler.On(models.EventTypeOrderCancelled, w.onOrderCancelled)
	w.handler.On(models.EventTypeEscrowReleased, w.onEscrowReleased)
	w.handler.On(models.EventTypeOrderRefunded, w.onOrderRefunded)
	w.handler.On(models.EventTypeDisputeOpened, w.onDisputeOpened)
}

func (w *NotificationWorker) onBidPlaced(ctx context.Context, payload []byte) error {
	var event models.BidPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:           event.SellerID,
		Kind:             models.NotificationKindBid,
		Title:            "New bid on your auction",
		Message:          fmt.Sprintf("Your auction received a bid of %s. Current price is %s.", event.Amount, event.CurrentPrice),
		RelatedAuctionID: &event.AuctionID,
	})
}

func (w *NotificationWorker) onOutbid(ctx context.Context, payload []byte) error {
	var event models.OutbidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:           event.PreviousLeaderID,
		Kind:             models.NotificationKindBid,
		Title:            "You have been outbid",
		Message:          fmt.Sprintf("Another bidder leads at %s. Raise your bid to stay in the auction.", event.NewAmount),
		RelatedAuctionID: &event.AuctionID,
	})
}

func (w *NotificationWorker) onAuctionWon(ctx context.Context, payload []byte) error {
	var event models.AuctionWonEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:           event.WinnerID,
		Kind:             models.NotificationKindBid,
		Title:            "You won the auction",
		Message:          fmt.Sprintf("You won %q for %s. Complete payment to secure your item.", event.ItemTitle, event.Amount),
		RelatedAuctionID: &event.AuctionID,
		RelatedOrderID:   &event.OrderID,
	})
}

func (w *NotificationWorker) onAuctionEnded(ctx context.Context, payload []byte) error {
	var event models.AuctionEndedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:           event.SellerID,
		Kind:             models.NotificationKindBid,
		Title:            "Auction ended",
		Message:          "Your auction ended without any bids.",
		RelatedAuctionID: &event.AuctionID,
	})
}

func (w *NotificationWorker) onOrderPaid(ctx context.Context, payload []byte) error {
	var event models.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.SellerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Payment received",
		Message:        fmt.Sprintf("Payment of %s is held in escrow. Please ship the item.", event.Amount),
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onOrderShipped(ctx context.Context, payload []byte) error {
	var event models.OrderShippedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.BuyerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Order shipped",
		Message:        fmt.Sprintf("Your order shipped via %s, tracking %s.", event.Carrier, event.TrackingNumber),
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onOrderDelivered(ctx context.Context, payload []byte) error {
	var event models.OrderDeliveredEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.SellerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Order delivered",
		Message:        "The buyer's order was marked delivered. Funds release after the settlement window.",
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onOrderCancelled(ctx context.Context, payload []byte) error {
	var event models.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.BuyerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Order cancelled",
		Message:        fmt.Sprintf("Your order was cancelled: %s.", event.Reason),
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onEscrowReleased(ctx context.Context, payload []byte) error {
	var event models.EscrowReleasedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.SellerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Funds released",
		Message:        fmt.Sprintf("%s has been released to your wallet.", event.Amount),
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onOrderRefunded(ctx context.Context, payload []byte) error {
	var event models.OrderRefundedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.BuyerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Refund issued",
		Message:        fmt.Sprintf("%s has been refunded to your wallet.", event.Amount),
		RelatedOrderID: &event.OrderID,
	})
}

func (w *NotificationWorker) onDisputeOpened(ctx context.Context, payload []byte) error {
	var event models.DisputeOpenedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	return w.notifications.Notify(ctx, &models.Notification{
		UserID:         event.SellerID,
		Kind:           models.NotificationKindOrder,
		Title:          "Dispute opened",
		Message:        fmt.Sprintf("The buyer disputed an order: %s. A moderator will review it.", event.Reason),
		RelatedOrderID: &event.OrderID,
	})
}
