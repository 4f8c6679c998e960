package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collectibles-market/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (item_id, auction_id, buyer_id, seller_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.ItemID, order.AuctionID, order.BuyerID, order.SellerID,
		order.Amount, order.Status)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByAuctionID retrieves the settlement order of an auction, nil if none
func (s *Store) GetOrderByAuctionID(ctx context.Context, auctionID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE auction_id = $1", auctionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SetOrderDispute records the buyer's dispute reason
func (s *Store) SetOrderDispute(ctx context.Context, orderID int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET dispute_reason = $1, updated_at = NOW() WHERE id = $2",
		reason, orderID)
	return err
}

// ListOrdersByStatusBefore returns orders in a status created before a cutoff
func (s *Store) ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at",
		status, cutoff)
	return orders, err
}

// RecordOrderTransition appends a who/when record for an applied transition
func (s *Store) RecordOrderTransition(ctx context.Context, tr *models.OrderTransition) error {
	query := `
		INSERT INTO order_transitions (order_id, from_status, to_status, actor_id, actor_role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, tr, query,
		tr.OrderID, tr.FromStatus, tr.ToStatus, tr.ActorID, tr.ActorRole)
}

// ListOrderTransitions retrieves the transition history of an order
func (s *Store) ListOrderTransitions(ctx context.Context, orderID int64) ([]models.OrderTransition, error) {
	var trs []models.OrderTransition
	err := s.db.SelectContext(ctx, &trs,
		"SELECT * FROM order_transitions WHERE order_id = $1 ORDER BY id", orderID)
	return trs, err
}

// CreateShippingInfo records carrier and tracking for a shipped order
func (s *Store) CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipping_info (order_id, tracking_number, carrier, shipped_at)
		VALUES ($1, $2, $3, $4)`,
		info.OrderID, info.TrackingNumber, info.Carrier, info.ShippedAt)
	return err
}

// GetShippingInfo retrieves shipping details for an order
func (s *Store) GetShippingInfo(ctx context.Context, orderID int64) (*models.ShippingInfo, error) {
	var info models.ShippingInfo
	err := s.db.GetContext(ctx, &info,
		"SELECT * FROM shipping_info WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
