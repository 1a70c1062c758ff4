package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
	"github.com/vyrodovalexey/vibekart/internal/session"
	"github.com/vyrodovalexey/vibekart/internal/view"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	replyBuffer    = 8
)

var wsConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "storefront_websocket_connections",
		Help: "Number of open storefront WebSocket connections",
	},
)

// WebSocketHandler streams session views to browsers and accepts filter and
// cart commands from them.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	sessions SessionManager
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]context.CancelFunc
}

// NewWebSocketHandler creates a new WebSocketHandler instance. allowedOrigins
// follows the CORS setting; "*" accepts any origin.
func NewWebSocketHandler(sessions SessionManager, logger *zap.Logger, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		sessions: sessions,
		logger:   logger,
		clients:  make(map[*websocket.Conn]context.CancelFunc),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket attaches a connection to the session named by the session
// query parameter. Without one, a session is created for the connection and
// closed with it.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, owned, err := h.resolveSession(r)
	if err != nil {
		status, message := sessionErrorStatus(err)
		writeError(w, h.logger, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		if owned {
			h.dropSession(s.ID())
		}
		return
	}

	updates, unsubscribe, err := s.Subscribe()
	if err != nil {
		h.logger.Debug("session closed before subscribe", zap.String("session_id", s.ID()))
		h.sendCloseMessage(conn, "session closed")
		_ = conn.Close()
		return
	}

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.clients[conn] = cancel
	h.mu.Unlock()
	wsConnections.Inc()

	h.logger.Info("websocket client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("session_id", s.ID()),
		zap.Bool("owned_session", owned),
	)

	replies := make(chan model.WebSocketMessage, replyBuffer)
	release := func() {
		unsubscribe()
		if owned {
			h.dropSession(s.ID())
		}
	}

	go h.writePump(ctx, conn, s.ID(), updates, replies)
	go h.readPump(ctx, conn, s, cancel, replies, release)
}

func (h *WebSocketHandler) resolveSession(r *http.Request) (*session.Session, bool, error) {
	id := r.URL.Query().Get("session")
	if id == "" {
		s, err := h.sessions.Create(r.Context())
		return s, true, err
	}

	s, err := h.sessions.Get(id)
	return s, false, err
}

func (h *WebSocketHandler) dropSession(id string) {
	if err := h.sessions.Delete(id); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.logger.Warn("failed to close connection session", zap.String("session_id", id), zap.Error(err))
	}
}

// readPump applies client commands to the session until the connection fails.
func (h *WebSocketHandler) readPump(
	ctx context.Context,
	conn *websocket.Conn,
	s *session.Session,
	cancel context.CancelFunc,
	replies chan<- model.WebSocketMessage,
	release func(),
) {
	defer func() {
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		release()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if reply, ok := h.handleMessage(s, data); !ok {
			select {
			case replies <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleMessage applies one client message. It returns an error message for
// the client and false when the command was rejected.
func (h *WebSocketHandler) handleMessage(s *session.Session, data []byte) (model.WebSocketMessage, bool) {
	var msg model.WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("invalid websocket message", zap.Error(err))
		return model.NewErrorMessage("invalid message"), false
	}

	var err error
	switch msg.Type {
	case model.WSMessageTypeQuery:
		err = applyQuery(s, msg.Search, msg.Category)
	case model.WSMessageTypeAddToCart:
		_, err = s.AddToCart(msg.ProductID)
	default:
		return model.NewErrorMessage("unknown message type: " + msg.Type), false
	}

	if err != nil {
		_, message := sessionErrorStatus(err)
		h.logger.Debug("websocket command rejected",
			zap.String("session_id", s.ID()),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return model.NewErrorMessage(message), false
	}
	return model.WebSocketMessage{}, true
}

// writePump is the only writer on conn. It forwards session views and
// command errors, and keeps the connection alive with pings.
func (h *WebSocketHandler) writePump(
	ctx context.Context,
	conn *websocket.Conn,
	sessionID string,
	updates <-chan view.View,
	replies <-chan model.WebSocketMessage,
) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn, "server shutting down")
			return
		case v, ok := <-updates:
			if !ok {
				h.sendCloseMessage(conn, "session closed")
				_ = conn.Close()
				return
			}
			if err := h.send(conn, model.NewViewMessage(sessionID, v)); err != nil {
				h.logger.Debug("failed to send view", zap.Error(err))
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				h.logger.Debug("failed to send reply", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg model.WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close frame with the given reason.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn, reason string) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, exists := h.clients[conn]; exists {
		cancel()
		delete(h.clients, conn)
		wsConnections.Dec()
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// ConnectionCount returns the number of open connections.
func (h *WebSocketHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(h.clients))
	for _, cancel := range h.clients {
		cancels = append(cancels, cancel)
	}
	h.mu.Unlock()

	// Cancelling makes each writePump send its close frame.
	for _, cancel := range cancels {
		cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
		wsConnections.Dec()
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
