package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/logger"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// Per-client outbound buffer; slow readers drop, the hub never blocks
	sendBuffer = 16
)

// Notification is the completion notice pushed to subscribed clients
type Notification struct {
	Type          string                  `json:"type"`
	InstrumentKey string                  `json:"instrument_key"`
	AnalysisType  contracts.AnalysisType  `json:"analysis_type"`
	Status        contracts.AnalysisStatus `json:"status"`
	StockName     string                  `json:"stock_name,omitempty"`
	Timestamp     time.Time               `json:"timestamp"`
}

// Hub fans analysis-completion notices out to per-user WebSocket clients.
// ⭐ SSOT: 완료 알림 전송은 여기서만
type Hub struct {
	clients map[string]map[*client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	logger   *logger.Logger

	dropped uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a notification hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// HandleWS upgrades the request and registers the connection under the
// user_id query parameter.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(userID, c)

	h.logger.WithField("user_id", userID).Debug("Notification client connected")

	go h.writeLoop(userID, c)
	go h.readLoop(userID, c)
}

// NotifyComplete pushes a completion notice to every connection of the user.
// Fire-and-forget: a slow or absent client never blocks the caller.
func (h *Hub) NotifyComplete(userID string, record *contracts.AnalysisRecord) {
	if record == nil {
		return
	}

	n := Notification{
		Type:          "analysis_complete",
		InstrumentKey: record.InstrumentKey,
		AnalysisType:  record.Type,
		Status:        record.Status,
		StockName:     record.StockName,
		Timestamp:     time.Now(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode notification")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			// 수신이 느린 클라이언트는 버림
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

// ClientCount reports the number of open connections for a user
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) register(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]bool)
	}
	h.clients[userID][c] = true
}

func (h *Hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

func (h *Hub) writeLoop(userID string, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.WithError(err).WithField("user_id", userID).Debug("Notification write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames so close and pong handling work
func (h *Hub) readLoop(userID string, c *client) {
	defer h.unregister(userID, c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
