package service

import (
	"context"
	"fmt"

	"collectibles-market/internal/models"
	"collectibles-market/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationStore is the persistence surface notifications need
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListUnread(ctx context.Context, userID int64) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID int64) error
}

// Deliverer pushes a persisted notification to the recipient's live
// sessions. Satisfied by realtime.Hub. Delivery is best effort; the
// persisted row is the source of truth.
type Deliverer interface {
	Deliver(userID int64, n *models.Notification)
}

// NotificationService persists notifications and fans them out. The ID is
// assigned here, before the insert, so redeliveries of the same notification
// always carry the same ID.
type NotificationService struct {
	store     NotificationStore
	deliverer Deliverer
	logger    *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(store NotificationStore, deliverer Deliverer) *NotificationService {
	return &NotificationService{
		store:     store,
		deliverer: deliverer,
		logger:    util.GetLogger(),
	}
}

// Notify persists a notification and then attempts live delivery. A failed
// insert drops the notification entirely; the triggering domain change has
// already happened and is not rolled back.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	n.ID = uuid.New().String()

	if err := s.store.InsertNotification(ctx, n); err != nil {
		util.NotificationsDroppedTotal.WithLabelValues("persist_failed").Inc()
		s.logger.Error("Failed to persist notification",
			zap.Int64("user_id", n.UserID),
			zap.String("kind", n.Kind),
			zap.Error(err))
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	util.NotificationsPersistedTotal.Inc()
	s.deliverer.Deliver(n.UserID, n)
	return nil
}

// ListUnread returns the recipient's unread set, oldest first
func (s *NotificationService) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
	return s.store.ListUnread(ctx, userID)
}

// CountUnread returns the recipient's unread count
func (s *NotificationService) CountUnread(ctx context.Context, userID int64) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Idempotent.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}

// MarkAllRead marks the recipient's whole unread set read. Idempotent.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.store.MarkAllRead(ctx, userID)
}
