package realtime

import (
	"sync"
	"time"

	"collectibles-market/internal/models"
	"collectibles-market/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sessionBuffer = 32
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Session is one live websocket subscription for a user. A user may hold
// several sessions (multiple tabs); each dedupes independently.
type Session struct {
	userID int64
	conn   *websocket.Conn
	send   chan *models.Notification
	seen   *SeenSet
	once   sync.Once
}

// Hub fans persisted notifications out to connected sessions. Delivery is
// best effort: a full session buffer drops the message rather than blocking
// the caller, and the unread store remains the source of truth.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Session]struct{}
	logger   *zap.Logger
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]map[*Session]struct{}),
		logger:   util.GetLogger(),
	}
}

// Subscribe registers a connection and starts its write pump. Blocks until
// the session ends.
func (h *Hub) Subscribe(userID int64, conn *websocket.Conn) {
	session := &Session{
		userID: userID,
		conn:   conn,
		send:   make(chan *models.Notification, sessionBuffer),
		seen:   NewSeenSet(0),
	}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][session] = struct{}{}
	h.mu.Unlock()
	util.RealtimeSessionsActive.Inc()

	h.logger.Info("Realtime session opened", zap.Int64("user_id", userID))

	go h.readPump(session)
	h.writePump(session)
}

// Deliver pushes a notification to every live session of the recipient.
// Each session suppresses IDs it has already sent.
func (h *Hub) Deliver(userID int64, n *models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for session := range h.sessions[userID] {
		if session.seen.Observe(n.ID) {
			util.NotificationsDroppedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		select {
		case session.send <- n:
		default:
			util.NotificationsDroppedTotal.WithLabelValues("slow_session").Inc()
		}
	}
}

func (h *Hub) remove(session *Session) {
	session.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.sessions[session.userID]; ok {
			delete(set, session)
			if len(set) == 0 {
				delete(h.sessions, session.userID)
			}
		}
		h.mu.Unlock()

		close(session.send)
		_ = session.conn.Close()
		util.RealtimeSessionsActive.Dec()
		h.logger.Info("Realtime session closed", zap.Int64("user_id", session.userID))
	})
}

// readPump discards client frames and detects disconnects
func (h *Hub) readPump(session *Session) {
	defer h.remove(session)
	for {
		if _, _, err := session.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(session *Session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer h.remove(session)

	for {
		select {
		case n, ok := <-session.send:
			if !ok {
				return
			}
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := session.conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := session.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
