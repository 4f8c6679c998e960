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

// EscrowStore is the persistence surface the escrow ledger needs
type EscrowStore interface {
	GetOrCreateWallet(ctx context.Context, userID int64) (*models.EscrowWallet, error)
	GetPlatformWallet(ctx context.Context) (*models.EscrowWallet, error)
	AdjustWalletBalance(ctx context.Context, walletID int64, delta decimal.Decimal) error
	CreateEscrowTx(ctx context.Context, tx *models.EscrowTransaction) error
	GetEscrowTxByOrderID(ctx context.Context, orderID int64) (*models.EscrowTransaction, error)
	UpdateEscrowTxStatus(ctx context.Context, txID int64, status string, releasedAt *time.Time) error
	SetEscrowReleaseDeadline(ctx context.Context, orderID int64, deadline time.Time) error
	ListEscrowDueForRelease(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error)
}

// platformFeeRate is the share of each released amount kept by the platform
var platformFeeRate = decimal.NewFromFloat(0.05)

// EscrowService moves held funds between buyer, platform and seller wallets.
// It is always driven by OrderService inside the order's critical section, so
// it does no locking of its own.
type EscrowService struct {
	store     EscrowStore
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEscrowService creates a new escrow service
func NewEscrowService(store EscrowStore, publisher EventPublisher) *EscrowService {
	return &EscrowService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Hold captures the buyer's payment for an order into the platform wallet.
// The amount must match the order exactly; a second capture for the same
// order is rejected.
func (s *EscrowService) Hold(ctx context.Context, order *models.Order, amount decimal.Decimal, paymentMethod, externalTxID string) (*models.EscrowTransaction, error) {
	if !amount.Equal(order.Amount) {
		return nil, ErrAmountMismatch
	}

	existing, err := s.store.GetEscrowTxByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPaymentExists
	}

	buyerWallet, err := s.store.GetOrCreateWallet(ctx, order.BuyerID)
	if err != nil {
		return nil, err
	}
	platformWallet, err := s.store.GetPlatformWallet(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.AdjustWalletBalance(ctx, buyerWallet.ID, amount.Neg()); err != nil {
		return nil, fmt.Errorf("failed to debit buyer wallet: %w", err)
	}
	if err := s.store.AdjustWalletBalance(ctx, platformWallet.ID, amount); err != nil {
		return nil, fmt.Errorf("failed to credit platform wallet: %w", err)
	}

	tx := &models.EscrowTransaction{
		OrderID:       order.ID,
		Amount:        amount,
		Status:        models.EscrowStatusHeld,
		PaymentMethod: paymentMethod,
		ExternalTxID:  externalTxID,
		HeldAt:        s.now(),
	}
	if err := s.store.CreateEscrowTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record escrow hold: %w", err)
	}

	util.EscrowHeldTotal.Inc()
	s.logger.Info("Escrow hold captured",
		zap.Int64("order_id", order.ID),
		zap.String("amount", amount.String()))

	return tx, nil
}

// Release pays the seller out of the held funds, keeping the platform fee.
// Allowed while the hold is HELD or DISPUTED (moderator resolution).
func (s *EscrowService) Release(ctx context.Context, order *models.Order) error {
	tx, err := s.heldTx(ctx, order.ID)
	if err != nil {
		return err
	}

	fee := tx.Amount.Mul(platformFeeRate).Round(2)
	payout := tx.Amount.Sub(fee)

	sellerWallet, err := s.store.GetOrCreateWallet(ctx, order.SellerID)
	if err != nil {
		return err
	}
	platformWallet, err := s.store.GetPlatformWallet(ctx)
	if err != nil {
		return err
	}

	if err := s.store.AdjustWalletBalance(ctx, platformWallet.ID, payout.Neg()); err != nil {
		return fmt.Errorf("failed to debit platform wallet: %w", err)
	}
	if err := s.store.AdjustWalletBalance(ctx, sellerWallet.ID, payout); err != nil {
		return fmt.Errorf("failed to credit seller wallet: %w", err)
	}

	releasedAt := s.now()
	if err := s.store.UpdateEscrowTxStatus(ctx, tx.ID, models.EscrowStatusReleased, &releasedAt); err != nil {
		return fmt.Errorf("failed to mark escrow released: %w", err)
	}

	util.EscrowReleasedTotal.Inc()
	s.logger.Info("Escrow released to seller",
		zap.Int64("order_id", order.ID),
		zap.String("payout", payout.String()),
		zap.String("fee", fee.String()))

	event := &models.EscrowReleasedEvent{
		BaseEvent: s.baseEvent(models.EventTypeEscrowReleased),
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		Amount:    payout,
	}
	if err := s.publisher.PublishEscrowReleased(ctx, event); err != nil {
		s.logger.Error("Failed to publish EscrowReleased event", zap.Error(err))
	}
	return nil
}

// Refund returns the full held amount to the buyer. Allowed while the hold
// is HELD or DISPUTED.
func (s *EscrowService) Refund(ctx context.Context, order *models.Order) error {
	tx, err := s.heldTx(ctx, order.ID)
	if err != nil {
		return err
	}

	buyerWallet, err := s.store.GetOrCreateWallet(ctx, order.BuyerID)
	if err != nil {
		return err
	}
	platformWallet, err := s.store.GetPlatformWallet(ctx)
	if err != nil {
		return err
	}

	if err := s.store.AdjustWalletBalance(ctx, platformWallet.ID, tx.Amount.Neg()); err != nil {
		return fmt.Errorf("failed to debit platform wallet: %w", err)
	}
	if err := s.store.AdjustWalletBalance(ctx, buyerWallet.ID, tx.Amount); err != nil {
		return fmt.Errorf("failed to credit buyer wallet: %w", err)
	}

	releasedAt := s.now()
	if err := s.store.UpdateEscrowTxStatus(ctx, tx.ID, models.EscrowStatusRefunded, &releasedAt); err != nil {
		return fmt.Errorf("failed to mark escrow refunded: %w", err)
	}

	util.EscrowRefundedTotal.Inc()
	s.logger.Info("Escrow refunded to buyer",
		zap.Int64("order_id", order.ID),
		zap.String("amount", tx.Amount.String()))

	event := &models.OrderRefundedEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderRefunded),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Amount:    tx.Amount,
	}
	if err := s.publisher.PublishOrderRefunded(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}
	return nil
}

// SetReleaseDeadline schedules when the sweep should act on an order's hold
func (s *EscrowService) SetReleaseDeadline(ctx context.Context, orderID int64, deadline time.Time) error {
	return s.store.SetEscrowReleaseDeadline(ctx, orderID, deadline)
}

// DueForRelease lists holds whose deadline has passed
func (s *EscrowService) DueForRelease(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error) {
	return s.store.ListEscrowDueForRelease(ctx, now)
}

// MarkDisputed freezes held funds while a dispute is open
func (s *EscrowService) MarkDisputed(ctx context.Context, orderID int64) error {
	tx, err := s.store.GetEscrowTxByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if tx == nil || tx.Status != models.EscrowStatusHeld {
		return ErrEscrowState
	}
	return s.store.UpdateEscrowTxStatus(ctx, tx.ID, models.EscrowStatusDisputed, nil)
}

// heldTx loads the order's escrow transaction if it still holds funds
func (s *EscrowService) heldTx(ctx context.Context, orderID int64) (*models.EscrowTransaction, error) {
	tx, err := s.store.GetEscrowTxByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrEscrowState
	}
	if tx.Status != models.EscrowStatusHeld && tx.Status != models.EscrowStatusDisputed {
		return nil, ErrEscrowState
	}
	return tx, nil
}

func (s *EscrowService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
