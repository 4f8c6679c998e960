package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"collectibles-market/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func auctionKey(auctionID int64) string { return fmt.Sprintf("auction-%d", auctionID) }
func orderKey(orderID int64) string     { return fmt.Sprintf("order-%d", orderID) }

// PublishBidPlaced publishes BidPlaced event
func (ep *EventPublisher) PublishBidPlaced(ctx context.Context, event *models.BidPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, auctionKey(event.AuctionID), event)
}

// PublishOutbid publishes Outbid event
func (ep *EventPublisher) PublishOutbid(ctx context.Context, event *models.OutbidEvent) error {
	return ep.producer.PublishEvent(ctx, auctionKey(event.AuctionID), event)
}

// PublishAuctionWon publishes AuctionWon event
func (ep *EventPublisher) PublishAuctionWon(ctx context.Context, event *models.AuctionWonEvent) error {
	return ep.producer.PublishEvent(ctx, auctionKey(event.AuctionID), event)
}

// PublishAuctionEnded publishes AuctionEnded event
func (ep *EventPublisher) PublishAuctionEnded(ctx context.Context, event *models.AuctionEndedEvent) error {
	return ep.producer.PublishEvent(ctx, auctionKey(event.AuctionID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderShipped publishes OrderShipped event
func (ep *EventPublisher) PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderDelivered publishes OrderDelivered event
func (ep *EventPublisher) PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishEscrowReleased publishes EscrowReleased event
func (ep *EventPublisher) PublishEscrowReleased(ctx context.Context, event *models.EscrowReleasedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderRefunded publishes OrderRefunded event
func (ep *EventPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishDisputeOpened publishes DisputeOpened event
func (ep *EventPublisher) PublishDisputeOpened(ctx context.Context, event *models.DisputeOpenedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes incoming messages to per-type handlers
type EventHandler struct {
	handlers map[string]func(ctx context.Context, payload []byte) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]func(ctx context.Context, payload []byte) error),
	}
}

// On registers a handler for one event type
func (eh *EventHandler) On(eventType string, handler func(ctx context.Context, payload []byte) error) {
	eh.handlers[eventType] = handler
}

// HandleMessage routes messages to the appropriate handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	handler, ok := eh.handlers[baseEvent.EventType]
	if !ok {
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
		return nil
	}

	return handler(ctx, msg.Value)
}
