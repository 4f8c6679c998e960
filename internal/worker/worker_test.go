package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"collectibles-market/internal/models"
	"collectibles-market/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNotificationStore struct {
	mu    sync.Mutex
	notes []*models.Notification
}

func (m *memNotificationStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notes = append(m.notes, &cp)
	return nil
}

func (m *memNotificationStore) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notes {
		if n.UserID == userID && !n.IsRead {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNotificationStore) CountUnread(ctx context.Context, userID int64) (int, error) {
	unread, err := m.ListUnread(ctx, userID)
	return len(unread), err
}

func (m *memNotificationStore) MarkRead(ctx context.Context, id string) error { return nil }
func (m *memNotificationStore) MarkAllRead(ctx context.Context, userID int64) error { return nil }

type noopDeliverer struct{}

func (noopDeliverer) Deliver(userID int64, n *models.Notification) {}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: make(map[string]bool)}
}

func (m *memDeduper) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID], nil
}

func (m *memDeduper) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = true
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func newWorkerFixture(t *testing.T) (*NotificationWorker, *memNotificationStore) {
	t.Helper()
	store := &memNotificationStore{}
	notifications := service.NewNotificationService(store, noopDeliverer{})
	return NewNotificationWorker(nil, newMemDeduper(), notifications), store
}

func TestHandleRedeliveryProducesOneNotification(t *testing.T) {
	w, store := newWorkerFixture(t)
	ctx := context.Background()

	msg := message(t, &models.OutbidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOutbid,
			Timestamp: time.Now(),
		},
		AuctionID:        5,
		PreviousLeaderID: 2,
		NewAmount:        decimal.RequireFromString("210"),
	})

	require.NoError(t, w.handle(ctx, msg))
	require.NoError(t, w.handle(ctx, msg))
	require.NoError(t, w.handle(ctx, msg))

	unread, err := store.ListUnread(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	assert.Equal(t, models.NotificationKindBid, unread[0].Kind)
	require.NotNil(t, unread[0].RelatedAuctionID)
	assert.Equal(t, int64(5), *unread[0].RelatedAuctionID)
}

func TestHandleRoutesByRecipient(t *testing.T) {
	w, store := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, w.handle(ctx, message(t, &models.AuctionWonEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-won", EventType: models.EventTypeAuctionWon},
		AuctionID: 5,
		WinnerID:  2,
		OrderID:   7,
		Amount:    decimal.RequireFromString("250"),
		ItemTitle: "1952 rookie card",
	})))
	require.NoError(t, w.handle(ctx, message(t, &models.OrderShippedEvent{
		BaseEvent:      models.BaseEvent{EventID: "evt-ship", EventType: models.EventTypeOrderShipped},
		OrderID:        7,
		BuyerID:        2,
		Carrier:        "UPS",
		TrackingNumber: "TRACK123",
	})))
	require.NoError(t, w.handle(ctx, message(t, &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-paid", EventType: models.EventTypeOrderPaid},
		OrderID:   7,
		BuyerID:   2,
		SellerID:  1,
		Amount:    decimal.RequireFromString("250"),
	})))

	buyerUnread, err := store.ListUnread(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, buyerUnread, 2)

	sellerUnread, err := store.ListUnread(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, sellerUnread, 1)
}

func TestHandleToleratesUnknownAndMalformed(t *testing.T) {
	w, store := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, w.handle(ctx, kafka.Message{Value: []byte("not json")}))
	require.NoError(t, w.handle(ctx, message(t, &models.BaseEvent{
		EventID:   "evt-unknown",
		EventType: "SOMETHING_NEW",
	})))

	unread, err := store.ListUnread(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
