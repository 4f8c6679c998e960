package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collectibles-market/config"
	"collectibles-market/internal/models"
	"collectibles-market/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the order state machine needs
type OrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	SetOrderDispute(ctx context.Context, orderID int64, reason string) error
	ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]models.Order, error)
	RecordOrderTransition(ctx context.Context, tr *models.OrderTransition) error
	ListOrderTransitions(ctx context.Context, orderID int64) ([]models.OrderTransition, error)
	CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error
	GetShippingInfo(ctx context.Context, orderID int64) (*models.ShippingInfo, error)
}

// IdempotencyStore short-circuits replayed payment captures before any
// wallet movement. Satisfied by redisclient.Client.
type IdempotencyStore interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// orderTransitions is the single source of truth for which status moves are
// legal. Anything not listed is rejected without touching the order.
var orderTransitions = map[string][]string{
	models.OrderStatusPendingPayment: {models.OrderStatusPaid, models.OrderStatusCancelled, models.OrderStatusLost},
	models.OrderStatusPaid:           {models.OrderStatusShipped},
	models.OrderStatusShipped:        {models.OrderStatusDelivered, models.OrderStatusDisputed},
	models.OrderStatusDelivered:      {models.OrderStatusCompleted, models.OrderStatusDisputed},
	models.OrderStatusDisputed:       {models.OrderStatusCompleted, models.OrderStatusRefunded},
}

func canTransition(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderService drives orders through their state machine. Every mutation of
// one order runs inside the order's critical section; decisions are always
// made against freshly loaded state so a sweep racing a user action cannot
// act on a stale status.
type OrderService struct {
	store       OrderStore
	escrow      *EscrowService
	publisher   EventPublisher
	idempotency IdempotencyStore
	locks       *keyedMutex
	logger      *zap.Logger
	now         func() time.Time

	paymentExpiry    time.Duration
	autoConfirmAfter time.Duration
	settlementWindow time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, escrow *EscrowService, publisher EventPublisher, idempotency IdempotencyStore, market config.MarketConfig) *OrderService {
	return &OrderService{
		store:            store,
		escrow:           escrow,
		publisher:        publisher,
		idempotency:      idempotency,
		locks:            newKeyedMutex(),
		logger:           util.GetLogger(),
		now:              time.Now,
		paymentExpiry:    market.PaymentExpiry,
		autoConfirmAfter: market.AutoConfirmAfter,
		settlementWindow: market.SettlementWindow,
	}
}

// apply performs one legal transition and records who made it
func (s *OrderService) apply(ctx context.Context, order *models.Order, to string, actorID int64, actorRole string) error {
	if !canTransition(order.Status, to) {
		util.OrderTransitionsRejected.WithLabelValues(order.Status, to).Inc()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, order.Status, to)
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, to); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	tr := &models.OrderTransition{
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   to,
		ActorID:    actorID,
		ActorRole:  actorRole,
	}
	if err := s.store.RecordOrderTransition(ctx, tr); err != nil {
		return fmt.Errorf("failed to record order transition: %w", err)
	}

	util.OrderTransitionsTotal.WithLabelValues(to).Inc()
	s.logger.Info("Order transition applied",
		zap.Int64("order_id", order.ID),
		zap.String("from", order.Status),
		zap.String("to", to),
		zap.Int64("actor_id", actorID))

	order.Status = to
	return nil
}

// GetOrder returns an order to one of its parties or a moderator
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID int64, actorRole string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID && actorRole != models.RoleModerator {
		return nil, ErrNotBuyer
	}
	return order, nil
}

// OrderDetail pairs an order with its recorded shipment, if any
type OrderDetail struct {
	Order    *models.Order        `json:"order"`
	Shipping *models.ShippingInfo `json:"shipping,omitempty"`
}

// GetOrderDetail returns an order together with its shipping record
func (s *OrderService) GetOrderDetail(ctx context.Context, orderID, actorID int64, actorRole string) (*OrderDetail, error) {
	order, err := s.GetOrder(ctx, orderID, actorID, actorRole)
	if err != nil {
		return nil, err
	}
	shipping, err := s.store.GetShippingInfo(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: order, Shipping: shipping}, nil
}

// Transitions returns the recorded transition history of an order
func (s *OrderService) Transitions(ctx context.Context, orderID int64) ([]models.OrderTransition, error) {
	return s.store.ListOrderTransitions(ctx, orderID)
}

// Pay captures the buyer's payment into escrow and moves the order to PAID
func (s *OrderService) Pay(ctx context.Context, orderID, actorID int64, amount decimal.Decimal, paymentMethod, externalTxID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Pay")
	defer span.End()

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, ErrNotBuyer
	}

	idemKey := fmt.Sprintf("payment:%s", externalTxID)
	if externalTxID != "" {
		replayed, err := s.idempotency.CheckIdempotencyKey(ctx, idemKey)
		if err != nil {
			s.logger.Warn("Idempotency check failed, relying on escrow ledger", zap.Error(err))
		} else if replayed {
			return nil, ErrPaymentExists
		}
	}

	if !canTransition(order.Status, models.OrderStatusPaid) {
		util.OrderTransitionsRejected.WithLabelValues(order.Status, models.OrderStatusPaid).Inc()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, order.Status, models.OrderStatusPaid)
	}

	if _, err := s.escrow.Hold(ctx, order, amount, paymentMethod, externalTxID); err != nil {
		return nil, err
	}
	if err := s.apply(ctx, order, models.OrderStatusPaid, actorID, models.RoleBuyer); err != nil {
		return nil, err
	}
	if externalTxID != "" {
		if err := s.idempotency.SetIdempotencyKey(ctx, idemKey, order.ID, s.paymentExpiry); err != nil {
			s.logger.Warn("Failed to store payment idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderPaidEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderPaid),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		Amount:    amount,
	}
	if err := s.publisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
	return order, nil
}

// Ship records carrier and tracking, moves the order to SHIPPED and starts
// the auto-confirm clock.
func (s *OrderService) Ship(ctx context.Context, orderID, actorID int64, carrier, trackingNumber string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Ship")
	defer span.End()

	if strings.TrimSpace(carrier) == "" || strings.TrimSpace(trackingNumber) == "" {
		return nil, ErrMissingShippingInfo
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != actorID {
		return nil, ErrNotSeller
	}
	if err := s.apply(ctx, order, models.OrderStatusShipped, actorID, models.RoleSeller); err != nil {
		return nil, err
	}

	info := &models.ShippingInfo{
		OrderID:        order.ID,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		ShippedAt:      s.now(),
	}
	if err := s.store.CreateShippingInfo(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to record shipping info: %w", err)
	}
	if err := s.escrow.SetReleaseDeadline(ctx, order.ID, s.now().Add(s.autoConfirmAfter)); err != nil {
		return nil, err
	}

	event := &models.OrderShippedEvent{
		BaseEvent:      s.baseEvent(models.EventTypeOrderShipped),
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
	}
	if err := s.publisher.PublishOrderShipped(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderShipped event", zap.Error(err))
	}
	return order, nil
}

// ConfirmDelivery moves a shipped order to DELIVERED and schedules escrow
// release after the settlement window.
func (s *OrderService) ConfirmDelivery(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmDelivery")
	defer span.End()

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, ErrNotBuyer
	}
	if err := s.markDelivered(ctx, order, actorID, models.RoleBuyer); err != nil {
		return nil, err
	}
	return order, nil
}

// markDelivered is shared by buyer confirmation and the auto-confirm sweep
func (s *OrderService) markDelivered(ctx context.Context, order *models.Order, actorID int64, actorRole string) error {
	if err := s.apply(ctx, order, models.OrderStatusDelivered, actorID, actorRole); err != nil {
		return err
	}
	if err := s.escrow.SetReleaseDeadline(ctx, order.ID, s.now().Add(s.settlementWindow)); err != nil {
		return err
	}

	event := &models.OrderDeliveredEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderDelivered),
		OrderID:   order.ID,
		SellerID:  order.SellerID,
	}
	if err := s.publisher.PublishOrderDelivered(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
	}
	return nil
}

// Cancel lets the buyer abandon an unpaid order
func (s *OrderService) Cancel(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, ErrNotBuyer
	}
	if err := s.cancel(ctx, order, actorID, models.RoleBuyer, "cancelled by buyer"); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) cancel(ctx context.Context, order *models.Order, actorID int64, actorRole, reason string) error {
	if err := s.apply(ctx, order, models.OrderStatusCancelled, actorID, actorRole); err != nil {
		return err
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return nil
}

// Dispute opens a dispute on a shipped or delivered order and freezes the
// held funds until a moderator resolves it.
func (s *OrderService) Dispute(ctx context.Context, orderID, actorID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Dispute")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, ErrDisputeReasonRequired
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, ErrNotBuyer
	}
	if err := s.apply(ctx, order, models.OrderStatusDisputed, actorID, models.RoleBuyer); err != nil {
		return nil, err
	}
	if err := s.store.SetOrderDispute(ctx, order.ID, reason); err != nil {
		return nil, fmt.Errorf("failed to record dispute reason: %w", err)
	}
	if err := s.escrow.MarkDisputed(ctx, order.ID); err != nil {
		return nil, err
	}

	event := &models.DisputeOpenedEvent{
		BaseEvent: s.baseEvent(models.EventTypeDisputeOpened),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		Reason:    reason,
	}
	if err := s.publisher.PublishDisputeOpened(ctx, event); err != nil {
		s.logger.Error("Failed to publish DisputeOpened event", zap.Error(err))
	}
	return order, nil
}

// ResolveDispute settles a disputed order: release pays the seller and
// completes the order, otherwise the buyer is refunded.
func (s *OrderService) ResolveDispute(ctx context.Context, orderID, actorID int64, actorRole string, releaseToSeller bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ResolveDispute")
	defer span.End()

	if actorRole != models.RoleModerator {
		return nil, ErrNotModerator
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if releaseToSeller {
		if !canTransition(order.Status, models.OrderStatusCompleted) {
			util.OrderTransitionsRejected.WithLabelValues(order.Status, models.OrderStatusCompleted).Inc()
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, order.Status, models.OrderStatusCompleted)
		}
		if err := s.escrow.Release(ctx, order); err != nil {
			return nil, err
		}
		if err := s.apply(ctx, order, models.OrderStatusCompleted, actorID, models.RoleModerator); err != nil {
			return nil, err
		}
		return order, nil
	}

	if !canTransition(order.Status, models.OrderStatusRefunded) {
		util.OrderTransitionsRejected.WithLabelValues(order.Status, models.OrderStatusRefunded).Inc()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, order.Status, models.OrderStatusRefunded)
	}
	if err := s.escrow.Refund(ctx, order); err != nil {
		return nil, err
	}
	if err := s.apply(ctx, order, models.OrderStatusRefunded, actorID, models.RoleModerator); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkLost closes an unpaid order whose item can no longer be sold
func (s *OrderService) MarkLost(ctx context.Context, orderID, actorID int64, actorRole string) (*models.Order, error) {
	if actorRole != models.RoleModerator {
		return nil, ErrNotModerator
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, order, models.OrderStatusLost, actorID, models.RoleModerator); err != nil {
		return nil, err
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Reason:    "item lost",
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return order, nil
}

// CancelExpired cancels unpaid orders past the payment window. Each order's
// status is re-read inside its critical section so a payment that landed
// after the listing query keeps the order.
func (s *OrderService) CancelExpired(ctx context.Context) error {
	cutoff := s.now().Add(-s.paymentExpiry)
	due, err := s.store.ListOrdersByStatusBefore(ctx, models.OrderStatusPendingPayment, cutoff)
	if err != nil {
		return err
	}

	for i := range due {
		orderID := due[i].ID
		if err := s.cancelIfStillUnpaid(ctx, orderID); err != nil {
			s.logger.Error("Failed to expire order",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	return nil
}

func (s *OrderService) cancelIfStillUnpaid(ctx context.Context, orderID int64) error {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil
	}
	return s.cancel(ctx, order, 0, models.RoleSystem, "payment window expired")
}

// ProcessDueEscrow advances orders whose escrow deadline has passed:
// shipped orders are auto-confirmed as delivered, delivered orders have
// their funds released and complete. Disputed orders stay frozen.
func (s *OrderService) ProcessDueEscrow(ctx context.Context) error {
	due, err := s.escrow.DueForRelease(ctx, s.now())
	if err != nil {
		return err
	}

	for i := range due {
		orderID := due[i].OrderID
		if err := s.settleDueOrder(ctx, orderID); err != nil {
			s.logger.Error("Failed to settle due escrow",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	return nil
}

func (s *OrderService) settleDueOrder(ctx context.Context, orderID int64) error {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case models.OrderStatusShipped:
		return s.markDelivered(ctx, order, 0, models.RoleSystem)
	case models.OrderStatusDelivered:
		if err := s.escrow.Release(ctx, order); err != nil {
			return err
		}
		return s.apply(ctx, order, models.OrderStatusCompleted, 0, models.RoleSystem)
	default:
		return nil
	}
}

func (s *OrderService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
