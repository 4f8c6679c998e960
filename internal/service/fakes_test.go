package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collectibles-market/internal/models"
	"collectibles-market/internal/store"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for store.Store. Reads return copies so
// service-side mutation only becomes visible through an explicit update,
// matching database behavior.
type memStore struct {
	mu sync.Mutex

	users        map[int64]*models.User
	items        map[int64]*models.Item
	auctions     map[int64]*models.Auction
	bids         []models.Bid
	proxies      map[string]*models.ProxyBid
	orders       map[int64]*models.Order
	transitions  []models.OrderTransition
	shipping     map[int64]*models.ShippingInfo
	wallets      map[int64]*models.EscrowWallet
	walletByUser map[int64]int64
	platformID   int64
	escrowTxs    map[int64]*models.EscrowTransaction
	notes        []*models.Notification
	auditLogs    []models.AuditLog
	fraudReports []*models.FraudReport

	failInsertNotification bool
	nextID                 int64
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int64]*models.User),
		items:        make(map[int64]*models.Item),
		auctions:     make(map[int64]*models.Auction),
		proxies:      make(map[string]*models.ProxyBid),
		orders:       make(map[int64]*models.Order),
		shipping:     make(map[int64]*models.ShippingInfo),
		wallets:      make(map[int64]*models.EscrowWallet),
		walletByUser: make(map[int64]int64),
		escrowTxs:    make(map[int64]*models.EscrowTransaction),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addUser(id int64, role string, frozen bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: id, Role: role, IsFrozen: frozen, Username: fmt.Sprintf("user-%d", id)}
	m.users[id] = u
	return u
}

func (m *memStore) addItem(id, sellerID int64, status string) *models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := &models.Item{ID: id, SellerID: sellerID, Status: status, Title: fmt.Sprintf("item-%d", id)}
	m.items[id] = item
	return item
}

func (m *memStore) addAuction(a *models.Auction) *models.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.auctions[a.ID] = a
	return a
}

func (m *memStore) addOrder(o *models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		o.ID = m.id()
	}
	m.orders[o.ID] = o
	return o
}

func proxyKey(auctionID, bidderID int64) string {
	return fmt.Sprintf("%d-%d", auctionID, bidderID)
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %d", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SetUserFrozen(ctx context.Context, userID int64, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %d", userID)
	}
	u.IsFrozen = frozen
	return nil
}

func (m *memStore) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item not found: %d", id)
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) UpdateItemStatus(ctx context.Context, itemID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item not found: %d", itemID)
	}
	item.Status = status
	return nil
}

func (m *memStore) CreateAuction(ctx context.Context, auction *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction.ID = m.id()
	cp := *auction
	m.auctions[auction.ID] = &cp
	return nil
}

func (m *memStore) GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction not found: %d", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdateAuction(ctx context.Context, auction *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[auction.ID]; !ok {
		return fmt.Errorf("auction not found: %d", auction.ID)
	}
	cp := *auction
	m.auctions[auction.ID] = &cp
	return nil
}

func (m *memStore) ListAuctionsToStart(ctx context.Context, now time.Time) ([]models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Auction
	for _, a := range m.auctions {
		if a.Status == models.AuctionStatusScheduled && !a.StartTime.After(now) {
			due = append(due, *a)
		}
	}
	return due, nil
}

func (m *memStore) ListAuctionsToClose(ctx context.Context, now time.Time) ([]models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Auction
	for _, a := range m.auctions {
		if a.Status == models.AuctionStatusActive && !a.EndTime.After(now) {
			due = append(due, *a)
		}
	}
	return due, nil
}

func (m *memStore) InsertBid(ctx context.Context, bid *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid.ID = m.id()
	bid.CreatedAt = time.Now()
	m.bids = append(m.bids, *bid)
	return nil
}

func (m *memStore) ListBidsByAuction(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) GetActiveProxyBid(ctx context.Context, auctionID, bidderID int64) (*models.ProxyBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pb, ok := m.proxies[proxyKey(auctionID, bidderID)]
	if !ok || !pb.IsActive {
		return nil, nil
	}
	cp := *pb
	return &cp, nil
}

func (m *memStore) UpsertProxyBid(ctx context.Context, pb *models.ProxyBid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := proxyKey(pb.AuctionID, pb.BidderID)
	if existing, ok := m.proxies[key]; ok {
		if pb.MaxAmount.GreaterThan(existing.MaxAmount) {
			existing.MaxAmount = pb.MaxAmount
		}
		existing.IsActive = true
		return nil
	}
	cp := *pb
	cp.IsActive = true
	m.proxies[key] = &cp
	return nil
}

func (m *memStore) DeactivateProxyBid(ctx context.Context, auctionID, bidderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pb, ok := m.proxies[proxyKey(auctionID, bidderID)]; ok {
		pb.IsActive = false
	}
	return nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id()
	order.CreatedAt = time.Now()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderByAuctionID(ctx context.Context, auctionID int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.AuctionID != nil && *o.AuctionID == auctionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.Status = status
	return nil
}

func (m *memStore) SetOrderDispute(ctx context.Context, orderID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.DisputeReason = reason
	return nil
}

func (m *memStore) ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) RecordOrderTransition(ctx context.Context, tr *models.OrderTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr.ID = m.id()
	tr.CreatedAt = time.Now()
	m.transitions = append(m.transitions, *tr)
	return nil
}

func (m *memStore) ListOrderTransitions(ctx context.Context, orderID int64) ([]models.OrderTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderTransition
	for _, tr := range m.transitions {
		if tr.OrderID == orderID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *memStore) CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *info
	m.shipping[info.OrderID] = &cp
	return nil
}

func (m *memStore) GetShippingInfo(ctx context.Context, orderID int64) (*models.ShippingInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.shipping[orderID]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (m *memStore) GetOrCreateWallet(ctx context.Context, userID int64) (*models.EscrowWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.walletByUser[userID]; ok {
		cp := *m.wallets[id]
		return &cp, nil
	}
	uid := userID
	w := &models.EscrowWallet{ID: m.id(), UserID: &uid}
	m.wallets[w.ID] = w
	m.walletByUser[userID] = w.ID
	cp := *w
	return &cp, nil
}

func (m *memStore) GetPlatformWallet(ctx context.Context) (*models.EscrowWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.platformID == 0 {
		w := &models.EscrowWallet{ID: m.id(), IsPlatform: true}
		m.wallets[w.ID] = w
		m.platformID = w.ID
	}
	cp := *m.wallets[m.platformID]
	return &cp, nil
}

func (m *memStore) AdjustWalletBalance(ctx context.Context, walletID int64, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	w.Balance = w.Balance.Add(delta)
	return nil
}

func (m *memStore) CreateEscrowTx(ctx context.Context, tx *models.EscrowTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escrowTxs[tx.OrderID]; ok {
		return errors.New("duplicate escrow transaction")
	}
	tx.ID = m.id()
	cp := *tx
	m.escrowTxs[tx.OrderID] = &cp
	return nil
}

func (m *memStore) GetEscrowTxByOrderID(ctx context.Context, orderID int64) (*models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.escrowTxs[orderID]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) UpdateEscrowTxStatus(ctx context.Context, txID int64, status string, releasedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.escrowTxs {
		if tx.ID == txID {
			tx.Status = status
			tx.ReleasedAt = releasedAt
			return nil
		}
	}
	return fmt.Errorf("escrow tx not found: %d", txID)
}

func (m *memStore) SetEscrowReleaseDeadline(ctx context.Context, orderID int64, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.escrowTxs[orderID]
	if !ok {
		return fmt.Errorf("escrow tx not found for order %d", orderID)
	}
	d := deadline
	tx.ReleaseDeadline = &d
	return nil
}

func (m *memStore) ListEscrowDueForRelease(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EscrowTransaction
	for _, tx := range m.escrowTxs {
		if tx.Status == models.EscrowStatusHeld && tx.ReleaseDeadline != nil && !tx.ReleaseDeadline.After(now) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertNotification {
		return errors.New("insert failed")
	}
	n.CreatedAt = time.Now()
	cp := *n
	m.notes = append(m.notes, &cp)
	return nil
}

func (m *memStore) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
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

func (m *memStore) CountUnread(ctx context.Context, userID int64) (int, error) {
	unread, err := m.ListUnread(ctx, userID)
	return len(unread), err
}

func (m *memStore) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ID == id && !n.IsRead {
			now := time.Now()
			n.IsRead = true
			n.ReadAt = &now
		}
	}
	return nil
}

func (m *memStore) MarkAllRead(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.UserID == userID && !n.IsRead {
			now := time.Now()
			n.IsRead = true
			n.ReadAt = &now
		}
	}
	return nil
}

func (m *memStore) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	entry.CreatedAt = time.Now()
	m.auditLogs = append(m.auditLogs, *entry)
	return nil
}

func (m *memStore) ListAuditLogs(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, entry := range m.auditLogs {
		if entityType == "" || entry.EntityType == entityType {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memStore) CreateFraudReport(ctx context.Context, report *models.FraudReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	report.ID = m.id()
	report.CreatedAt = time.Now()
	cp := *report
	m.fraudReports = append(m.fraudReports, &cp)
	return nil
}

func (m *memStore) GetFraudReport(ctx context.Context, id int64) (*models.FraudReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.fraudReports {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("fraud report not found: %d", id)
}

func (m *memStore) ResolveFraudReport(ctx context.Context, id int64, status string, resolvedBy int64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.fraudReports {
		if r.ID == id {
			r.Status = status
			r.ResolvedBy = &resolvedBy
			r.ResolutionNotes = notes
			return nil
		}
	}
	return fmt.Errorf("fraud report not found: %d", id)
}

func (m *memStore) ListFraudReports(ctx context.Context, status string, limit, offset int) ([]models.FraudReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FraudReport
	for _, r := range m.fraudReports {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) GetDashboardStats(ctx context.Context) (*store.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &store.DashboardStats{TotalUsers: len(m.users)}
	for _, u := range m.users {
		if u.IsFrozen {
			stats.FrozenUsers++
		}
	}
	for _, a := range m.auctions {
		if a.Status == models.AuctionStatusActive {
			stats.ActiveAuctions++
		}
	}
	for _, item := range m.items {
		if item.Status == models.ItemStatusPendingApproval {
			stats.PendingItems++
		}
	}
	for _, r := range m.fraudReports {
		if r.Status == models.FraudReportPending {
			stats.OpenFraudReports++
		}
	}
	return stats, nil
}

func (m *memStore) walletBalance(userID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.walletByUser[userID]; ok {
		return m.wallets[id].Balance
	}
	return decimal.Zero
}

func (m *memStore) platformBalance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.platformID == 0 {
		return decimal.Zero
	}
	return m.wallets[m.platformID].Balance
}

// fakePublisher records published events in order
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *fakePublisher) record(event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		switch ev := e.(type) {
		case *models.BidPlacedEvent:
			out = append(out, ev.EventType)
		case *models.OutbidEvent:
			out = append(out, ev.EventType)
		case *models.AuctionWonEvent:
			out = append(out, ev.EventType)
		case *models.AuctionEndedEvent:
			out = append(out, ev.EventType)
		case *models.OrderPaidEvent:
			out = append(out, ev.EventType)
		case *models.OrderShippedEvent:
			out = append(out, ev.EventType)
		case *models.OrderDeliveredEvent:
			out = append(out, ev.EventType)
		case *models.OrderCancelledEvent:
			out = append(out, ev.EventType)
		case *models.EscrowReleasedEvent:
			out = append(out, ev.EventType)
		case *models.OrderRefundedEvent:
			out = append(out, ev.EventType)
		case *models.DisputeOpenedEvent:
			out = append(out, ev.EventType)
		}
	}
	return out
}

func (p *fakePublisher) countOf(eventType string) int {
	count := 0
	for _, t := range p.types() {
		if t == eventType {
			count++
		}
	}
	return count
}

func (p *fakePublisher) PublishBidPlaced(ctx context.Context, e *models.BidPlacedEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOutbid(ctx context.Context, e *models.OutbidEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishAuctionWon(ctx context.Context, e *models.AuctionWonEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishAuctionEnded(ctx context.Context, e *models.AuctionEndedEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOrderPaid(ctx context.Context, e *models.OrderPaidEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOrderShipped(ctx context.Context, e *models.OrderShippedEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOrderDelivered(ctx context.Context, e *models.OrderDeliveredEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishEscrowReleased(ctx context.Context, e *models.EscrowReleasedEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishOrderRefunded(ctx context.Context, e *models.OrderRefundedEvent) error {
	return p.record(e)
}
func (p *fakePublisher) PublishDisputeOpened(ctx context.Context, e *models.DisputeOpenedEvent) error {
	return p.record(e)
}

// fakeLocker always grants; single-instance tests need no coordination
type fakeLocker struct{}

func (fakeLocker) AcquireLockWithRetry(ctx context.Context, lockKey string, wait, ttl time.Duration) (bool, error) {
	return true, nil
}
func (fakeLocker) ReleaseLock(ctx context.Context, lockKey string) error { return nil }

// fakeIdempotency mirrors the redis idempotency keys in memory
type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]struct{})}
}

func (f *fakeIdempotency) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok, nil
}

func (f *fakeIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = struct{}{}
	return nil
}

// fakeDeliverer records notifications handed to the realtime path
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*models.Notification
}

func (d *fakeDeliverer) Deliver(userID int64, n *models.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, n)
}
