package worker

import (
	"context"
	"time"

	"collectibles-market/internal/service"
	"collectibles-market/internal/util"

	"go.uber.org/zap"
)

// Sweeper drives everything the clock decides: auction activation and close,
// unpaid order expiry and escrow release. Each pass is idempotent, so
// overlapping instances or a crashed pass cause no harm.
type Sweeper struct {
	auctions *service.AuctionService
	orders   *service.OrderService
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(auctions *service.AuctionService, orders *service.OrderService, interval time.Duration) *Sweeper {
	return &Sweeper{
		auctions: auctions,
		orders:   orders,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.auctions.Sweep(ctx); err != nil {
		s.logger.Error("Auction sweep failed", zap.Error(err))
	}
	if err := s.orders.CancelExpired(ctx); err != nil {
		s.logger.Error("Order expiry sweep failed", zap.Error(err))
	}
	if err := s.orders.ProcessDueEscrow(ctx); err != nil {
		s.logger.Error("Escrow release sweep failed", zap.Error(err))
	}
}
