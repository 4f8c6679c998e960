package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collectibles-market/internal/models"
)

// CreateAuction creates a new auction in SCHEDULED state
func (s *Store) CreateAuction(ctx context.Context, auction *models.Auction) error {
	query := `
		INSERT INTO auctions (item_id, seller_id, start_time, end_time, starting_price,
		                      min_increment, current_price, buy_now_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, auction, query,
		auction.ItemID, auction.SellerID, auction.StartTime, auction.EndTime,
		auction.StartingPrice, auction.MinIncrement, auction.CurrentPrice,
		auction.BuyNowPrice, auction.Status)
}

// GetAuctionByID retrieves an auction by ID
func (s *Store) GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error) {
	var auction models.Auction
	err := s.db.GetContext(ctx, &auction, "SELECT * FROM auctions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("auction not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

// UpdateAuction persists the mutable auction fields
func (s *Store) UpdateAuction(ctx context.Context, auction *models.Auction) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auctions
		SET current_price = $1, highest_bidder_id = $2, bid_count = $3,
		    status = $4, winner_id = $5, closed_at = $6, updated_at = NOW()
		WHERE id = $7`,
		auction.CurrentPrice, auction.HighestBidderID, auction.BidCount,
		auction.Status, auction.WinnerID, auction.ClosedAt, auction.ID)
	return err
}

// ListAuctionsToStart returns SCHEDULED auctions whose start time has passed
func (s *Store) ListAuctionsToStart(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := s.db.SelectContext(ctx, &auctions,
		"SELECT * FROM auctions WHERE status = $1 AND start_time <= $2 ORDER BY start_time",
		models.AuctionStatusScheduled, now)
	return auctions, err
}

// ListAuctionsToClose returns ACTIVE auctions whose end time has passed
func (s *Store) ListAuctionsToClose(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := s.db.SelectContext(ctx, &auctions,
		"SELECT * FROM auctions WHERE status = $1 AND end_time <= $2 ORDER BY end_time",
		models.AuctionStatusActive, now)
	return auctions, err
}

// InsertBid appends a bid to the ledger
func (s *Store) InsertBid(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (auction_id, bidder_id, amount, sequence, is_auto)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, bid, query,
		bid.AuctionID, bid.BidderID, bid.Amount, bid.Sequence, bid.IsAuto)
}

// ListBidsByAuction retrieves the ledger for an auction in sequence order
func (s *Store) ListBidsByAuction(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	var bids []models.Bid
	err := s.db.SelectContext(ctx, &bids,
		"SELECT * FROM bids WHERE auction_id = $1 ORDER BY sequence", auctionID)
	return bids, err
}

// GetActiveProxyBid retrieves a bidder's active ceiling for an auction, nil if none
func (s *Store) GetActiveProxyBid(ctx context.Context, auctionID, bidderID int64) (*models.ProxyBid, error) {
	var pb models.ProxyBid
	err := s.db.GetContext(ctx, &pb,
		"SELECT * FROM proxy_bids WHERE auction_id = $1 AND bidder_id = $2 AND is_active",
		auctionID, bidderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pb, nil
}

// UpsertProxyBid stores or raises a bidder's ceiling
func (s *Store) UpsertProxyBid(ctx context.Context, pb *models.ProxyBid) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxy_bids (auction_id, bidder_id, max_amount, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (auction_id, bidder_id)
		DO UPDATE SET max_amount = GREATEST(proxy_bids.max_amount, EXCLUDED.max_amount), is_active = TRUE`,
		pb.AuctionID, pb.BidderID, pb.MaxAmount)
	return err
}

// DeactivateProxyBid retires a beaten ceiling
func (s *Store) DeactivateProxyBid(ctx context.Context, auctionID, bidderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE proxy_bids SET is_active = FALSE WHERE auction_id = $1 AND bidder_id = $2",
		auctionID, bidderID)
	return err
}
