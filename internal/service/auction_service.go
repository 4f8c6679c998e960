package service

import (
	"context"
	"fmt"
	"time"

	"collectibles-market/internal/models"
	"collectibles-market/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AuctionStore is the persistence surface auction lifecycle needs
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *models.Auction) error
	GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error)
	UpdateAuction(ctx context.Context, auction *models.Auction) error
	ListAuctionsToStart(ctx context.Context, now time.Time) ([]models.Auction, error)
	ListAuctionsToClose(ctx context.Context, now time.Time) ([]models.Auction, error)
	ListBidsByAuction(ctx context.Context, auctionID int64) ([]models.Bid, error)
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	UpdateItemStatus(ctx context.Context, itemID int64, status string) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByAuctionID(ctx context.Context, auctionID int64) (*models.Order, error)
}

// DistributedLocker guards sweep work across instances. Satisfied by
// redisclient.Client; single-instance tests use a fake that always grants.
type DistributedLocker interface {
	AcquireLockWithRetry(ctx context.Context, lockKey string, wait, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const (
	sweepLockTTL  = 30 * time.Second
	sweepLockWait = 2 * time.Second
)

// AuctionService owns the auction lifecycle: scheduling, activation, the
// hard close, buy-now short-circuit and settlement into an order.
type AuctionService struct {
	store     AuctionStore
	publisher EventPublisher
	locker    DistributedLocker
	locks     *keyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuctionService creates a new auction service
func NewAuctionService(store AuctionStore, publisher EventPublisher, locker DistributedLocker) *AuctionService {
	return &AuctionService{
		store:     store,
		publisher: publisher,
		locker:    locker,
		locks:     newKeyedMutex(),
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateAuction lists an item for bidding. An auction whose start time has
// already passed goes straight to ACTIVE.
func (s *AuctionService) CreateAuction(ctx context.Context, sellerID int64, auction *models.Auction) (*models.Auction, error) {
	item, err := s.store.GetItemByID(ctx, auction.ItemID)
	if err != nil {
		return nil, err
	}
	if item.SellerID != sellerID {
		return nil, ErrNotSeller
	}
	if item.Status != models.ItemStatusActive {
		return nil, fmt.Errorf("item %d is not listable in status %s", item.ID, item.Status)
	}
	if !auction.StartingPrice.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !auction.EndTime.After(auction.StartTime) {
		return nil, fmt.Errorf("auction end time must be after start time")
	}
	if auction.BuyNowPrice.Valid && !auction.BuyNowPrice.Decimal.GreaterThan(auction.StartingPrice) {
		return nil, ErrBuyNowUnavailable
	}

	auction.SellerID = sellerID
	auction.CurrentPrice = auction.StartingPrice
	auction.Status = models.AuctionStatusScheduled
	if !auction.StartTime.After(s.now()) {
		auction.Status = models.AuctionStatusActive
	}
	if auction.MinIncrement.IsZero() {
		auction.MinIncrement = one
	}

	if err := s.store.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	s.logger.Info("Auction created",
		zap.Int64("auction_id", auction.ID),
		zap.Int64("item_id", auction.ItemID),
		zap.String("status", auction.Status))
	return auction, nil
}

// GetAuction retrieves one auction
func (s *AuctionService) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	return s.store.GetAuctionByID(ctx, id)
}

// ListBids returns the full bid ledger of an auction in sequence order
func (s *AuctionService) ListBids(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	return s.store.ListBidsByAuction(ctx, auctionID)
}

// Cancel withdraws an auction that has received no bids. The seller or a
// moderator may cancel; any recorded bid makes the auction binding.
func (s *AuctionService) Cancel(ctx context.Context, auctionID, actorID int64, actorRole string) (*models.Auction, error) {
	unlock := s.locks.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.SellerID != actorID && actorRole != models.RoleModerator {
		return nil, ErrNotSeller
	}
	if auction.Status != models.AuctionStatusScheduled && auction.Status != models.AuctionStatusActive {
		return nil, ErrAuctionNotActive
	}
	if auction.BidCount > 0 {
		return nil, ErrAuctionHasBids
	}

	now := s.now()
	auction.Status = models.AuctionStatusCancelled
	auction.ClosedAt = &now
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to cancel auction: %w", err)
	}

	s.logger.Info("Auction cancelled", zap.Int64("auction_id", auctionID))
	return auction, nil
}

// BuyNow ends an auction immediately at the buy-now price. Unavailable once
// bidding has reached or passed that price.
func (s *AuctionService) BuyNow(ctx context.Context, auctionID, buyerID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.BuyNow")
	defer span.End()

	unlock := s.locks.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	open := auction.Status == models.AuctionStatusScheduled || auction.Status == models.AuctionStatusActive
	if !open || s.now().After(auction.EndTime) {
		return nil, ErrAuctionNotActive
	}
	if !auction.BuyNowPrice.Valid {
		return nil, ErrBuyNowUnavailable
	}
	price := auction.BuyNowPrice.Decimal
	if auction.BidCount > 0 && !auction.CurrentPrice.LessThan(price) {
		return nil, ErrBuyNowUnavailable
	}
	if auction.SellerID == buyerID {
		return nil, ErrSelfBid
	}

	buyer, err := s.store.GetUserByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if buyer.IsFrozen {
		return nil, ErrAccountFrozen
	}

	auction.CurrentPrice = price
	auction.HighestBidderID = &buyerID
	order, err := s.settle(ctx, auction, buyerID, price)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Auction bought out",
		zap.Int64("auction_id", auctionID),
		zap.Int64("buyer_id", buyerID),
		zap.String("price", price.String()))
	return order, nil
}

// Sweep advances the auction clock: due SCHEDULED auctions go ACTIVE and due
// ACTIVE auctions close. Safe to run concurrently; every auction's status is
// re-read inside its critical section.
func (s *AuctionService) Sweep(ctx context.Context) error {
	now := s.now()

	toStart, err := s.store.ListAuctionsToStart(ctx, now)
	if err != nil {
		return err
	}
	for i := range toStart {
		if err := s.activate(ctx, toStart[i].ID); err != nil {
			s.logger.Error("Failed to activate auction",
				zap.Int64("auction_id", toStart[i].ID), zap.Error(err))
		}
	}

	toClose, err := s.store.ListAuctionsToClose(ctx, now)
	if err != nil {
		return err
	}
	for i := range toClose {
		if err := s.closeAuction(ctx, toClose[i].ID); err != nil {
			s.logger.Error("Failed to close auction",
				zap.Int64("auction_id", toClose[i].ID), zap.Error(err))
		}
	}
	return nil
}

func (s *AuctionService) activate(ctx context.Context, auctionID int64) error {
	unlock := s.locks.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status != models.AuctionStatusScheduled {
		return nil
	}
	auction.Status = models.AuctionStatusActive
	return s.store.UpdateAuction(ctx, auction)
}

func (s *AuctionService) closeAuction(ctx context.Context, auctionID int64) error {
	lockKey := fmt.Sprintf("auction-close:%d", auctionID)
	acquired, err := s.locker.AcquireLockWithRetry(ctx, lockKey, sweepLockWait, sweepLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, lockKey); err != nil {
			s.logger.Warn("Failed to release sweep lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	unlock := s.locks.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status != models.AuctionStatusActive || s.now().Before(auction.EndTime) {
		return nil
	}

	util.AuctionsClosedTotal.Inc()

	if auction.BidCount == 0 || auction.HighestBidderID == nil {
		now := s.now()
		auction.Status = models.AuctionStatusEnded
		auction.ClosedAt = &now
		if err := s.store.UpdateAuction(ctx, auction); err != nil {
			return err
		}

		event := &models.AuctionEndedEvent{
			BaseEvent: s.baseEvent(models.EventTypeAuctionEnded),
			AuctionID: auction.ID,
			SellerID:  auction.SellerID,
		}
		if err := s.publisher.PublishAuctionEnded(ctx, event); err != nil {
			s.logger.Error("Failed to publish AuctionEnded event", zap.Error(err))
		}
		s.logger.Info("Auction ended without bids", zap.Int64("auction_id", auctionID))
		return nil
	}

	_, err = s.settle(ctx, auction, *auction.HighestBidderID, auction.CurrentPrice)
	return err
}

// settle turns a won auction into a PENDING_PAYMENT order and marks the item
// sold. Re-running after a partial failure finds the existing order instead
// of creating a second one.
func (s *AuctionService) settle(ctx context.Context, auction *models.Auction, winnerID int64, amount decimal.Decimal) (*models.Order, error) {
	order, err := s.store.GetOrderByAuctionID(ctx, auction.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		order = &models.Order{
			ItemID:    auction.ItemID,
			AuctionID: &auction.ID,
			BuyerID:   winnerID,
			SellerID:  auction.SellerID,
			Amount:    amount,
			Status:    models.OrderStatusPendingPayment,
		}
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to create settlement order: %w", err)
		}
		util.OrdersCreatedTotal.Inc()
	}

	if err := s.store.UpdateItemStatus(ctx, auction.ItemID, models.ItemStatusSold); err != nil {
		return nil, fmt.Errorf("failed to mark item sold: %w", err)
	}

	now := s.now()
	auction.Status = models.AuctionStatusSettled
	auction.WinnerID = &winnerID
	auction.ClosedAt = &now
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to settle auction: %w", err)
	}

	util.AuctionsSettledTotal.Inc()
	s.logger.Info("Auction settled",
		zap.Int64("auction_id", auction.ID),
		zap.Int64("winner_id", winnerID),
		zap.Int64("order_id", order.ID),
		zap.String("amount", amount.String()))

	item, err := s.store.GetItemByID(ctx, auction.ItemID)
	itemTitle := ""
	if err == nil {
		itemTitle = item.Title
	}

	event := &models.AuctionWonEvent{
		BaseEvent: s.baseEvent(models.EventTypeAuctionWon),
		AuctionID: auction.ID,
		WinnerID:  winnerID,
		Amount:    amount,
		OrderID:   order.ID,
		ItemTitle: itemTitle,
	}
	if err := s.publisher.PublishAuctionWon(ctx, event); err != nil {
		s.logger.Error("Failed to publish AuctionWon event", zap.Error(err))
	}
	return order, nil
}

func (s *AuctionService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
