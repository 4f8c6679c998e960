package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"collectibles-market/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func newBidFixture(t *testing.T) (*BidService, *memStore, *fakePublisher, *models.Auction) {
	t.Helper()
	store := newMemStore()
	store.addUser(1, models.RoleSeller, false)
	store.addUser(2, models.RoleBuyer, false)
	store.addUser(3, models.RoleBuyer, false)

	auction := store.addAuction(&models.Auction{
		SellerID:      1,
		ItemID:        10,
		Status:        models.AuctionStatusActive,
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       time.Now().Add(time.Hour),
		StartingPrice: d("100"),
		MinIncrement:  d("10"),
		CurrentPrice:  d("100"),
	})

	publisher := &fakePublisher{}
	svc := NewBidService(store, publisher)
	return svc, store, publisher, auction
}

func TestPlaceBidFirstBidAtStartingPrice(t *testing.T) {
	svc, store, _, auction := newBidFixture(t)
	ctx := context.Background()

	result, err := svc.PlaceBid(ctx, auction.ID, 2, d("100"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LeaderID)
	assert.True(t, result.AcceptedAmount.Equal(d("100")))
	assert.Equal(t, 1, result.Sequence)

	stored, err := store.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentPrice.Equal(d("100")))
	require.NotNil(t, stored.HighestBidderID)
	assert.Equal(t, int64(2), *stored.HighestBidderID)
}

func TestPlaceBidBelowMinimumRejected(t *testing.T) {
	svc, store, _, auction := newBidFixture(t)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, auction.ID, 2, d("99.99"), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)

	// After a first bid at 100, the next must clear 100 + max(10, 1%).
	_, err = svc.PlaceBid(ctx, auction.ID, 2, d("100"), nil)
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, auction.ID, 3, d("105"), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)
	_, err = svc.PlaceBid(ctx, auction.ID, 3, d("110"), nil)
	require.NoError(t, err)

	bids, err := store.ListBidsByAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 2)
}

func TestPlaceBidGuards(t *testing.T) {
	svc, store, _, auction := newBidFixture(t)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, auction.ID, 1, d("100"), nil)
	assert.ErrorIs(t, err, ErrSelfBid)

	_, err = svc.PlaceBid(ctx, auction.ID, 2, d("0"), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	store.addUser(4, models.RoleBuyer, true)
	_, err = svc.PlaceBid(ctx, auction.ID, 4, d("100"), nil)
	assert.ErrorIs(t, err, ErrAccountFrozen)

	ended := store.addAuction(&models.Auction{
		SellerID:      1,
		Status:        models.AuctionStatusEnded,
		EndTime:       time.Now().Add(-time.Minute),
		StartingPrice: d("50"),
		CurrentPrice:  d("50"),
		MinIncrement:  d("1"),
	})
	_, err = svc.PlaceBid(ctx, ended.ID, 2, d("50"), nil)
	assert.ErrorIs(t, err, ErrAuctionNotActive)

	expired := store.addAuction(&models.Auction{
		SellerID:      1,
		Status:        models.AuctionStatusActive,
		EndTime:       time.Now().Add(-time.Minute),
		StartingPrice: d("50"),
		CurrentPrice:  d("50"),
		MinIncrement:  d("1"),
	})
	_, err = svc.PlaceBid(ctx, expired.ID, 2, d("50"), nil)
	assert.ErrorIs(t, err, ErrAuctionNotActive)
}

// Proxy scenario: bidder 2 bids 150 with a 300 ceiling, bidder 3 challenges
// with 200. The challenge is recorded as a losing bid and bidder 2 is
// auto-raised to 210 (one 10 increment above), keeping the lead.
func TestPlaceBidProxyAutoRaise(t *testing.T) {
	svc, store, publisher, auction := newBidFixture(t)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, auction.ID, 2, d("150"), dp("300"))
	require.NoError(t, err)

	result, err := svc.PlaceBid(ctx, auction.ID, 3, d("200"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LeaderID)
	assert.True(t, result.AcceptedAmount.Equal(d("210")))
	assert.True(t, result.Outbid)

	stored, err := store.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentPrice.Equal(d("210")))
	require.NotNil(t, stored.HighestBidderID)
	assert.Equal(t, int64(2), *stored.HighestBidderID)
	assert.Equal(t, 3, stored.BidCount)

	bids, err := store.ListBidsByAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, int64(2), bids[0].BidderID)
	assert.True(t, bids[0].Amount.Equal(d("150")))
	assert.Equal(t, int64(3), bids[1].BidderID)
	assert.True(t, bids[1].Amount.Equal(d("200")))
	assert.Equal(t, int64(2), bids[2].BidderID)
	assert.True(t, bids[2].Amount.Equal(d("210")))
	assert.True(t, bids[2].IsAuto)

	// The lead never changed, so no outbid was published.
	assert.Equal(t, 0, publisher.countOf(models.EventTypeOutbid))
	assert.Equal(t, 2, publisher.countOf(models.EventTypeBidPlaced))
}

func TestPlaceBidCeilingNeverExceeded(t *testing.T) {
	svc, store, publisher, auction := newBidFixture(t)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, auction.ID, 2, d("150"), dp("300"))
	require.NoError(t, err)

	// A challenge at exactly the ceiling ties; the earlier bid wins and the
	// auto-raise is capped at the ceiling, never past it.
	result, err := svc.PlaceBid(ctx, auction.ID, 3, d("300"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LeaderID)
	assert.True(t, result.AcceptedAmount.Equal(d("300")))

	// Above the ceiling the challenger takes the lead.
	result, err = svc.PlaceBid(ctx, auction.ID, 3, d("310"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.LeaderID)
	assert.True(t, result.AcceptedAmount.Equal(d("310")))
	assert.Equal(t, 1, publisher.countOf(models.EventTypeOutbid))

	// The beaten leader's ceiling is retired: a later low challenge is not
	// auto-raised against.
	pb, err := store.GetActiveProxyBid(ctx, auction.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, pb)
}

func TestPlaceBidProxyPercentIncrement(t *testing.T) {
	svc, store, _, _ := newBidFixture(t)
	ctx := context.Background()

	// With a high current price, 1% of current beats the configured step.
	auction := store.addAuction(&models.Auction{
		SellerID:      1,
		Status:        models.AuctionStatusActive,
		EndTime:       time.Now().Add(time.Hour),
		StartingPrice: d("5000"),
		MinIncrement:  d("10"),
		CurrentPrice:  d("5000"),
	})

	_, err := svc.PlaceBid(ctx, auction.ID, 2, d("5000"), nil)
	require.NoError(t, err)

	// 1% of 5000 is 50, so 5049 is short.
	_, err = svc.PlaceBid(ctx, auction.ID, 3, d("5049"), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)
	_, err = svc.PlaceBid(ctx, auction.ID, 3, d("5050"), nil)
	require.NoError(t, err)
}

func TestPlaceBidConcurrentSequencesUnique(t *testing.T) {
	svc, store, _, auction := newBidFixture(t)
	ctx := context.Background()

	for i := int64(0); i < 20; i++ {
		store.addUser(100+i, models.RoleBuyer, false)
	}

	var wg sync.WaitGroup
	for i := int64(0); i < 20; i++ {
		wg.Add(1)
		go func(bidder, step int64) {
			defer wg.Done()
			amount := decimal.NewFromInt(100 + step*50)
			_, _ = svc.PlaceBid(ctx, auction.ID, bidder, amount, nil)
		}(100+i, i)
	}
	wg.Wait()

	bids, err := store.ListBidsByAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)

	seen := make(map[int]bool)
	for _, b := range bids {
		assert.False(t, seen[b.Sequence], "duplicate sequence %d", b.Sequence)
		seen[b.Sequence] = true
	}

	stored, err := store.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, len(bids), stored.BidCount)
}
