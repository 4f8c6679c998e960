package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collectibles-market/internal/models"

	"github.com/shopspring/decimal"
)

// GetOrCreateWallet returns a user's escrow wallet, creating it on first use
func (s *Store) GetOrCreateWallet(ctx context.Context, userID int64) (*models.EscrowWallet, error) {
	var wallet models.EscrowWallet
	err := s.db.GetContext(ctx, &wallet,
		"SELECT * FROM escrow_wallets WHERE user_id = $1", userID)
	if err == nil {
		return &wallet, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.GetContext(ctx, &wallet, `
		INSERT INTO escrow_wallets (user_id, is_platform, balance)
		VALUES ($1, FALSE, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING *`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet for user %d: %w", userID, err)
	}
	return &wallet, nil
}

// GetPlatformWallet returns the singleton platform wallet, creating it on first use
func (s *Store) GetPlatformWallet(ctx context.Context) (*models.EscrowWallet, error) {
	var wallet models.EscrowWallet
	err := s.db.GetContext(ctx, &wallet,
		"SELECT * FROM escrow_wallets WHERE is_platform")
	if err == nil {
		return &wallet, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.GetContext(ctx, &wallet, `
		INSERT INTO escrow_wallets (is_platform, balance)
		VALUES (TRUE, 0)
		RETURNING *`)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform wallet: %w", err)
	}
	return &wallet, nil
}

// AdjustWalletBalance applies a signed delta to a wallet balance
func (s *Store) AdjustWalletBalance(ctx context.Context, walletID int64, delta decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE escrow_wallets SET balance = balance + $1 WHERE id = $2",
		delta, walletID)
	return err
}

// CreateEscrowTx records a new hold for an order
func (s *Store) CreateEscrowTx(ctx context.Context, tx *models.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions (order_id, amount, status, payment_method, external_tx_id, held_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return s.db.GetContext(ctx, &tx.ID, query,
		tx.OrderID, tx.Amount, tx.Status, tx.PaymentMethod, tx.ExternalTxID, tx.HeldAt)
}

// GetEscrowTxByOrderID retrieves the escrow transaction of an order, nil if none
func (s *Store) GetEscrowTxByOrderID(ctx context.Context, orderID int64) (*models.EscrowTransaction, error) {
	var tx models.EscrowTransaction
	err := s.db.GetContext(ctx, &tx,
		"SELECT * FROM escrow_transactions WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateEscrowTxStatus updates an escrow transaction status
func (s *Store) UpdateEscrowTxStatus(ctx context.Context, txID int64, status string, releasedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE escrow_transactions SET status = $1, released_at = $2 WHERE id = $3",
		status, releasedAt, txID)
	return err
}

// SetEscrowReleaseDeadline sets the auto-confirm deadline after shipping
func (s *Store) SetEscrowReleaseDeadline(ctx context.Context, orderID int64, deadline time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE escrow_transactions SET release_deadline = $1 WHERE order_id = $2",
		deadline, orderID)
	return err
}

// ListEscrowDueForRelease returns held transactions past their release deadline
func (s *Store) ListEscrowDueForRelease(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error) {
	var txs []models.EscrowTransaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT * FROM escrow_transactions
		WHERE status = $1 AND release_deadline IS NOT NULL AND release_deadline <= $2
		ORDER BY release_deadline`,
		models.EscrowStatusHeld, now)
	return txs, err
}
