package store

import (
	"context"

	"collectibles-market/internal/models"
)

// InsertNotification durably records a notification before any delivery attempt
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, kind, title, message,
		                           related_auction_id, related_order_id, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING created_at`

	return s.db.GetContext(ctx, &n.CreatedAt, query,
		n.ID, n.UserID, n.Kind, n.Title, n.Message,
		n.RelatedAuctionID, n.RelatedOrderID)
}

// ListUnread returns a recipient's pending unread set, oldest first
func (s *Store) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 AND NOT is_read ORDER BY created_at",
		userID)
	return notifications, err
}

// CountUnread returns the size of a recipient's unread set
func (s *Store) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read", userID)
	return count, err
}

// MarkRead flags one notification as read. Idempotent: re-marking an already
// read notification keeps its original read_at.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW()) WHERE id = $1",
		id)
	return err
}

// MarkAllRead flags a recipient's whole unread set as read. Idempotent.
func (s *Store) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW()) WHERE user_id = $1 AND NOT is_read",
		userID)
	return err
}
