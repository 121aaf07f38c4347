package ws

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"peercourt/internal/limiter"
	"peercourt/internal/metrics"
	"peercourt/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // SDP offers run to a few KB; 1MB is generous
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to websocket connections and runs their
// read/write pumps.
type Handler struct {
	hub     *Hub
	gateway *Gateway
	authSvc *service.AuthService
	general *limiter.Bucket
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(hub *Hub, gateway *Gateway, authSvc *service.AuthService, general *limiter.Bucket, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		gateway: gateway,
		authSvc: authSvc,
		general: general,
		metrics: m,
		logger:  logger,
	}
}

// ServeWS handles GET /ws. Admission consumes from the general bucket; a
// guest token, when presented, must validate.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)

	if !h.general.Allow(addr) {
		h.metrics.RateLimitBlock()
		h.logger.Warn("connection refused", "addr", addr, "reason", "rate limit")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	username := ""
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.authSvc.ValidateGuestToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		username = claims.Username
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "addr", addr, "error", err)
		return
	}

	conn := newConnection(uuid.NewString(), username)
	h.hub.Register(conn)
	h.metrics.ConnectionAccepted()
	h.hub.SendToConn(conn.ID, EvtConnected, connectedPayload{ID: conn.ID})

	h.logger.Info("connection accepted", "conn_id", conn.ID, "addr", addr)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn, addr)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection, addr string) {
	defer func() {
		h.gateway.HandleDisconnect(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read", "conn_id", conn.ID, "error", err)
				// Best-effort recovery before teardown.
				h.gateway.RecoverMemberships(conn)
			}
			break
		}
		h.gateway.Dispatch(conn, addr, data)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientAddr keys rate-limit buckets by network address, ignoring the
// ephemeral port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
