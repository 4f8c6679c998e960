package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"collectibles-market/internal/models"
	"collectibles-market/internal/realtime"
	"collectibles-market/internal/service"
	"collectibles-market/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	bids          *service.BidService
	auctions      *service.AuctionService
	orders        *service.OrderService
	notifications *service.NotificationService
	admin         *service.AdminService
	hub           *realtime.Hub
}

// NewHandler creates a new HTTP handler
func NewHandler(bids *service.BidService, auctions *service.AuctionService, orders *service.OrderService, notifications *service.NotificationService, admin *service.AdminService, hub *realtime.Hub) *Handler {
	return &Handler{
		bids:          bids,
		auctions:      auctions,
		orders:        orders,
		notifications: notifications,
		admin:         admin,
		hub:           hub,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		v1.POST("/auctions", h.createAuction)
		v1.GET("/auctions/:id", h.getAuction)
		v1.GET("/auctions/:id/bids", h.listBids)
		v1.POST("/auctions/:id/bids", h.placeBid)
		v1.POST("/auctions/:id/buy-now", h.buyNow)
		v1.POST("/auctions/:id/cancel", h.cancelAuction)

		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/transitions", h.listOrderTransitions)
		v1.POST("/orders/:id/pay", h.payOrder)
		v1.POST("/orders/:id/ship", h.shipOrder)
		v1.POST("/orders/:id/deliver", h.confirmDelivery)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/dispute", h.disputeOrder)
		v1.POST("/orders/:id/resolve", h.resolveDispute)

		v1.GET("/notifications/unread", h.listUnread)
		v1.GET("/notifications/unread/count", h.countUnread)
		v1.POST("/notifications/:id/read", h.markRead)
		v1.POST("/notifications/read-all", h.markAllRead)

		v1.POST("/fraud-reports", h.fileFraudReport)

		v1.GET("/ws", h.subscribe)

		admin := v1.Group("/admin")
		{
			admin.POST("/users/:id/ban", h.banUser)
			admin.POST("/users/:id/unban", h.unbanUser)
			admin.POST("/items/:id/approve", h.approveItem)
			admin.POST("/items/:id/reject", h.rejectItem)
			admin.POST("/fraud-reports/:id/resolve", h.resolveFraudReport)
			admin.GET("/fraud-reports", h.listFraudReports)
			admin.GET("/audit-logs", h.listAuditLogs)
			admin.GET("/stats", h.dashboardStats)
		}
	}
}

// identityMiddleware reads the caller's identity from the gateway headers.
// Authentication itself happens upstream; these headers are trusted.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid X-User-ID header",
			})
			return
		}
		c.Set("userID", userID)
		c.Set("userRole", c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func callerID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

func callerRole(c *gin.Context) string {
	return c.GetString("userRole")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP statuses and stable machine codes
func respondError(c *gin.Context, err error) {
	type mapping struct {
		status int
		code   string
	}
	known := []struct {
		err error
		m   mapping
	}{
		{service.ErrBidTooLow, mapping{http.StatusConflict, "BID_TOO_LOW"}},
		{service.ErrAuctionNotActive, mapping{http.StatusConflict, "AUCTION_NOT_ACTIVE"}},
		{service.ErrAuctionHasBids, mapping{http.StatusConflict, "AUCTION_HAS_BIDS"}},
		{service.ErrBuyNowUnavailable, mapping{http.StatusConflict, "BUY_NOW_UNAVAILABLE"}},
		{service.ErrInvalidOrderTransition, mapping{http.StatusConflict, "INVALID_TRANSITION"}},
		{service.ErrPaymentExists, mapping{http.StatusConflict, "PAYMENT_EXISTS"}},
		{service.ErrEscrowState, mapping{http.StatusConflict, "ESCROW_STATE"}},
		{service.ErrInvalidAmount, mapping{http.StatusBadRequest, "INVALID_AMOUNT"}},
		{service.ErrAmountMismatch, mapping{http.StatusBadRequest, "AMOUNT_MISMATCH"}},
		{service.ErrDisputeReasonRequired, mapping{http.StatusBadRequest, "DISPUTE_REASON_REQUIRED"}},
		{service.ErrMissingShippingInfo, mapping{http.StatusBadRequest, "MISSING_SHIPPING_INFO"}},
		{service.ErrSelfBid, mapping{http.StatusForbidden, "SELF_BID"}},
		{service.ErrNotBuyer, mapping{http.StatusForbidden, "NOT_BUYER"}},
		{service.ErrNotSeller, mapping{http.StatusForbidden, "NOT_SELLER"}},
		{service.ErrNotModerator, mapping{http.StatusForbidden, "NOT_MODERATOR"}},
		{service.ErrAccountFrozen, mapping{http.StatusForbidden, "ACCOUNT_FROZEN"}},
	}

	for _, k := range known {
		if errors.Is(err, k.err) {
			c.JSON(k.m.status, gin.H{
				"error": k.err.Error(),
				"code":  k.m.code,
			})
			return
		}
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CreateAuctionRequest is the listing payload
type CreateAuctionRequest struct {
	ItemID        int64               `json:"item_id" binding:"required"`
	StartTime     time.Time           `json:"start_time" binding:"required"`
	EndTime       time.Time           `json:"end_time" binding:"required"`
	StartingPrice decimal.Decimal     `json:"starting_price" binding:"required"`
	MinIncrement  decimal.Decimal     `json:"min_increment"`
	BuyNowPrice   decimal.NullDecimal `json:"buy_now_price"`
}

func (h *Handler) createAuction(c *gin.Context) {
	var req CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	auction, err := h.auctions.CreateAuction(c.Request.Context(), callerID(c), &models.Auction{
		ItemID:        req.ItemID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		StartingPrice: req.StartingPrice,
		MinIncrement:  req.MinIncrement,
		BuyNowPrice:   req.BuyNowPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auction)
}

func (h *Handler) getAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	auction, err := h.auctions.GetAuction(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		return
	}
	c.JSON(http.StatusOK, auction)
}

func (h *Handler) listBids(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	bids, err := h.auctions.ListBids(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

// PlaceBidRequest is the bid payload. max_proxy_amount is the optional
// hidden ceiling for auto-raises.
type PlaceBidRequest struct {
	Amount         decimal.Decimal  `json:"amount" binding:"required"`
	MaxProxyAmount *decimal.Decimal `json:"max_proxy_amount"`
}

func (h *Handler) placeBid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.bids.PlaceBid(c.Request.Context(), id, callerID(c), req.Amount, req.MaxProxyAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) buyNow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.auctions.BuyNow(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) cancelAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	auction, err := h.auctions.Cancel(c.Request.Context(), id, callerID(c), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, auction)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.orders.GetOrderDetail(c.Request.Context(), id, callerID(c), callerRole(c))
	if err != nil {
		if errors.Is(err, service.ErrNotBuyer) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) listOrderTransitions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.orders.GetOrder(c.Request.Context(), id, callerID(c), callerRole(c)); err != nil {
		respondError(c, err)
		return
	}
	transitions, err := h.orders.Transitions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

// PayOrderRequest is the payment capture payload
type PayOrderRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	TransactionRef string          `json:"transaction_ref" binding:"required"`
}

func (h *Handler) payOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.Pay(c.Request.Context(), id, callerID(c), req.Amount, req.PaymentMethod, req.TransactionRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ShipOrderRequest is the shipping payload
type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Carrier        string `json:"carrier" binding:"required"`
}

func (h *Handler) shipOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ShipOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.Ship(c.Request.Context(), id, callerID(c), req.Carrier, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) confirmDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.ConfirmDelivery(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.Cancel(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DisputeOrderRequest is the dispute payload
type DisputeOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) disputeOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req DisputeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.Dispute(c.Request.Context(), id, callerID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ResolveDisputeRequest is the moderator resolution payload
type ResolveDisputeRequest struct {
	Release bool   `json:"release"`
	Notes   string `json:"notes"`
}

func (h *Handler) resolveDispute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.ResolveDispute(c.Request.Context(), id, callerID(c), callerRole(c), req.Release)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listUnread(c *gin.Context) {
	notifications, err := h.notifications.ListUnread(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) countUnread(c *gin.Context) {
	count, err := h.notifications.CountUnread(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) markRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) markAllRead(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context(), callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FileFraudReportRequest is the report payload
type FileFraudReportRequest struct {
	ReportedUserID int64  `json:"reported_user_id" binding:"required"`
	Description    string `json:"description" binding:"required"`
}

func (h *Handler) fileFraudReport(c *gin.Context) {
	var req FileFraudReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	report, err := h.admin.FileFraudReport(c.Request.Context(), callerID(c), req.ReportedUserID, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// subscribe upgrades to a websocket and streams the caller's notifications
func (h *Handler) subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.hub.Subscribe(callerID(c), conn)
}

// BanUserRequest is the freeze payload
type BanUserRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) banUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req BanUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.admin.FreezeUser(c.Request.Context(), callerID(c), callerRole(c), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) unbanUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.admin.UnfreezeUser(c.Request.Context(), callerID(c), callerRole(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) approveItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.admin.ApproveItem(c.Request.Context(), callerID(c), callerRole(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RejectItemRequest is the rejection payload
type RejectItemRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) rejectItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RejectItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.admin.RejectItem(c.Request.Context(), callerID(c), callerRole(c), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ResolveFraudReportRequest is the moderator decision payload
type ResolveFraudReportRequest struct {
	Confirm bool   `json:"confirm"`
	Notes   string `json:"notes"`
}

func (h *Handler) resolveFraudReport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ResolveFraudReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.admin.ResolveFraudReport(c.Request.Context(), callerID(c), callerRole(c), id, req.Confirm, req.Notes); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listFraudReports(c *gin.Context) {
	limit, offset := pagination(c)
	reports, err := h.admin.FraudReports(c.Request.Context(), callerRole(c), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fraud_reports": reports})
}

func (h *Handler) listAuditLogs(c *gin.Context) {
	limit, offset := pagination(c)
	logs, err := h.admin.AuditLogs(c.Request.Context(), callerRole(c), c.Query("entity_type"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.admin.DashboardStats(c.Request.Context(), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
