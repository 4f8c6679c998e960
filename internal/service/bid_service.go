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

// BidStore is the persistence surface the bid ledger needs
type BidStore interface {
	GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error)
	UpdateAuction(ctx context.Context, auction *models.Auction) error
	InsertBid(ctx context.Context, bid *models.Bid) error
	GetActiveProxyBid(ctx context.Context, auctionID, bidderID int64) (*models.ProxyBid, error)
	UpsertProxyBid(ctx context.Context, pb *models.ProxyBid) error
	DeactivateProxyBid(ctx context.Context, auctionID, bidderID int64) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// BidService owns the append-only bid ledger and proxy resolution. All
// mutation of one auction runs inside that auction's critical section;
// different auctions proceed fully in parallel.
type BidService struct {
	store     BidStore
	publisher EventPublisher
	locks     *keyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewBidService creates a new bid service
func NewBidService(store BidStore, publisher EventPublisher) *BidService {
	return &BidService{
		store:     store,
		publisher: publisher,
		locks:     newKeyedMutex(),
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// BidResult reports the outcome of an accepted bid submission
type BidResult struct {
	AcceptedAmount decimal.Decimal `json:"accepted_amount"`
	LeaderID       int64           `json:"leader_id"`
	Sequence       int             `json:"sequence"`
	Outbid         bool            `json:"outbid"`
}

var one = decimal.NewFromInt(1)

// minIncrement returns the step a challenge must clear: the larger of the
// auction's configured increment and 1% of the current price, never below
// one currency unit, rounded up to the cent.
func minIncrement(auction *models.Auction) decimal.Decimal {
	inc := auction.CurrentPrice.Mul(decimal.NewFromFloat(0.01)).RoundUp(2)
	if auction.MinIncrement.GreaterThan(inc) {
		inc = auction.MinIncrement
	}
	if inc.LessThan(one) {
		inc = one
	}
	return inc
}

// PlaceBid records a bid, resolving proxy competition against the current
// leader's stored ceiling. proxyCeiling, when non-nil and above amount, is
// remembered for future auto-raises on the bidder's behalf.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID int64, amount decimal.Decimal, proxyCeiling *decimal.Decimal) (*BidResult, error) {
	ctx, span := util.StartSpan(ctx, "BidService.PlaceBid")
	defer span.End()

	if !amount.IsPositive() {
		util.BidsRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}

	unlock := s.locks.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if auction.Status != models.AuctionStatusActive || now.After(auction.EndTime) {
		util.BidsRejectedTotal.WithLabelValues("not_active").Inc()
		return nil, ErrAuctionNotActive
	}
	if auction.SellerID == bidderID {
		util.BidsRejectedTotal.WithLabelValues("self_bid").Inc()
		return nil, ErrSelfBid
	}

	bidder, err := s.store.GetUserByID(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	if bidder.IsFrozen {
		util.BidsRejectedTotal.WithLabelValues("frozen").Inc()
		return nil, ErrAccountFrozen
	}

	minRequired := auction.StartingPrice
	if auction.BidCount > 0 {
		minRequired = auction.CurrentPrice.Add(minIncrement(auction))
	}
	if amount.LessThan(minRequired) {
		util.BidsRejectedTotal.WithLabelValues("too_low").Inc()
		return nil, ErrBidTooLow
	}

	// A ceiling at or below the visible amount is meaningless; drop it.
	if proxyCeiling != nil && !proxyCeiling.GreaterThan(amount) {
		proxyCeiling = nil
	}

	var leaderProxy *models.ProxyBid
	prevLeaderID := auction.HighestBidderID
	if prevLeaderID != nil && *prevLeaderID != bidderID {
		leaderProxy, err = s.store.GetActiveProxyBid(ctx, auctionID, *prevLeaderID)
		if err != nil {
			return nil, err
		}
	}

	if leaderProxy != nil && !amount.GreaterThan(leaderProxy.MaxAmount) {
		return s.autoRaise(ctx, auction, bidderID, amount, leaderProxy)
	}
	return s.takeLead(ctx, auction, bidderID, amount, proxyCeiling)
}

// autoRaise handles a challenge that stays within the leader's ceiling: the
// challenge is recorded as the losing bid and the leader is raised to one
// increment above it, capped at the ceiling. A challenge equal to the
// ceiling ties; the leader's earlier sequence wins the tie.
func (s *BidService) autoRaise(ctx context.Context, auction *models.Auction, bidderID int64, amount decimal.Decimal, leaderProxy *models.ProxyBid) (*BidResult, error) {
	auction.BidCount++
	losing := &models.Bid{
		AuctionID: auction.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Sequence:  auction.BidCount,
	}
	if err := s.store.InsertBid(ctx, losing); err != nil {
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	raised := amount.Add(minIncrement(auction))
	if raised.GreaterThan(leaderProxy.MaxAmount) {
		raised = leaderProxy.MaxAmount
	}

	auction.BidCount++
	auto := &models.Bid{
		AuctionID: auction.ID,
		BidderID:  leaderProxy.BidderID,
		Amount:    raised,
		Sequence:  auction.BidCount,
		IsAuto:    true,
	}
	if err := s.store.InsertBid(ctx, auto); err != nil {
		return nil, fmt.Errorf("failed to record auto-raise: %w", err)
	}

	auction.CurrentPrice = raised
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}

	util.BidsPlacedTotal.Inc()
	util.ProxyAutoRaisesTotal.Inc()
	s.logger.Info("Proxy auto-raise kept leader",
		zap.Int64("auction_id", auction.ID),
		zap.Int64("leader_id", leaderProxy.BidderID),
		zap.String("price", raised.String()))

	s.emitBidPlaced(ctx, auction, leaderProxy.BidderID, raised, auto.Sequence)

	return &BidResult{
		AcceptedAmount: raised,
		LeaderID:       leaderProxy.BidderID,
		Sequence:       auto.Sequence,
		Outbid:         true,
	}, nil
}

// takeLead records a lead-taking bid and retires the previous leader's ceiling
func (s *BidService) takeLead(ctx context.Context, auction *models.Auction, bidderID int64, amount decimal.Decimal, proxyCeiling *decimal.Decimal) (*BidResult, error) {
	auction.BidCount++
	bid := &models.Bid{
		AuctionID: auction.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Sequence:  auction.BidCount,
	}
	if err := s.store.InsertBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	prevLeaderID := auction.HighestBidderID
	if prevLeaderID != nil && *prevLeaderID != bidderID {
		if err := s.store.DeactivateProxyBid(ctx, auction.ID, *prevLeaderID); err != nil {
			return nil, fmt.Errorf("failed to retire beaten ceiling: %w", err)
		}
	}

	if proxyCeiling != nil {
		pb := &models.ProxyBid{
			AuctionID: auction.ID,
			BidderID:  bidderID,
			MaxAmount: *proxyCeiling,
			IsActive:  true,
		}
		if err := s.store.UpsertProxyBid(ctx, pb); err != nil {
			return nil, fmt.Errorf("failed to store proxy ceiling: %w", err)
		}
	}

	auction.CurrentPrice = amount
	auction.HighestBidderID = &bidderID
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}

	util.BidsPlacedTotal.Inc()
	s.logger.Info("Bid took the lead",
		zap.Int64("auction_id", auction.ID),
		zap.Int64("bidder_id", bidderID),
		zap.String("amount", amount.String()))

	s.emitBidPlaced(ctx, auction, bidderID, amount, bid.Sequence)

	if prevLeaderID != nil && *prevLeaderID != bidderID {
		event := &models.OutbidEvent{
			BaseEvent:        s.baseEvent(models.EventTypeOutbid),
			AuctionID:        auction.ID,
			PreviousLeaderID: *prevLeaderID,
			NewAmount:        amount,
		}
		if err := s.publisher.PublishOutbid(ctx, event); err != nil {
			s.logger.Error("Failed to publish Outbid event", zap.Error(err))
		}
	}

	return &BidResult{
		AcceptedAmount: amount,
		LeaderID:       bidderID,
		Sequence:       bid.Sequence,
	}, nil
}

func (s *BidService) emitBidPlaced(ctx context.Context, auction *models.Auction, bidderID int64, amount decimal.Decimal, sequence int) {
	leaderID := bidderID
	if auction.HighestBidderID != nil {
		leaderID = *auction.HighestBidderID
	}
	event := &models.BidPlacedEvent{
		BaseEvent:    s.baseEvent(models.EventTypeBidPlaced),
		AuctionID:    auction.ID,
		BidderID:     bidderID,
		SellerID:     auction.SellerID,
		Amount:       amount,
		CurrentPrice: auction.CurrentPrice,
		LeaderID:     leaderID,
		Sequence:     sequence,
	}
	if err := s.publisher.PublishBidPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish BidPlaced event", zap.Error(err))
	}
}

func (s *BidService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
