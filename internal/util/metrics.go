package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_placed_total",
		Help: "Total number of accepted bids, auto-raises included",
	})

	BidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	ProxyAutoRaisesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_auto_raises_total",
		Help: "Total number of proxy auto-raise bids placed on behalf of a leader",
	})

	AuctionsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_closed_total",
		Help: "Total number of auctions closed by the sweep or buy-now",
	})

	AuctionsSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_settled_total",
		Help: "Total number of auctions settled into a pending order",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of applied order state transitions",
	}, []string{"to"})

	OrderTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected order state transitions",
	}, []string{"from", "to"})

	EscrowHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_held_total",
		Help: "Total number of escrow holds created on payment",
	})

	EscrowReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_released_total",
		Help: "Total number of escrow releases to sellers",
	})

	EscrowRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_refunded_total",
		Help: "Total number of escrow refunds to buyers",
	})

	NotificationsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_persisted_total",
		Help: "Total number of notifications durably recorded",
	})

	NotificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Total number of notifications not delivered",
	}, []string{"reason"})

	RealtimeSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sessions_active",
		Help: "Currently connected notification subscriptions",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of one background sweep pass",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
