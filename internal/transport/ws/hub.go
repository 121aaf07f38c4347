package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"peercourt/internal/metrics"
)

// Connection represents an attached websocket client.
type Connection struct {
	ID        string
	Username  string
	CreatedAt time.Time

	// Send is drained by the connection's write pump. Messages are
	// dropped when the buffer is full rather than blocking the hub.
	Send chan []byte

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConnection(id, username string) *Connection {
	return &Connection{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now(),
		Send:      make(chan []byte, 256),
		rooms:     make(map[string]struct{}),
	}
}

func (c *Connection) trackJoin(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) trackLeave(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Rooms returns the connection's locally tracked room memberships. Used for
// disconnect fan-out and best-effort recovery; live occupancy still comes
// from the hub.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// Hub owns connection and room membership state and delivers events. It is
// the occupancy source of truth; registry metadata is a cache over it.
// Every connection also forms an implicit singleton group reachable through
// SendToConn.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection
}

// NewHub creates the hub.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: m,
		conns:   make(map[string]*Connection),
		rooms:   make(map[string]map[string]*Connection),
	}
}

// Register attaches a connection.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	h.logger.Debug("connection registered", "conn_id", conn.ID)
}

// Unregister detaches a connection, removing it from every room and closing
// its send channel.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	existing, ok := h.conns[conn.ID]
	if !ok || existing != conn {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.ID)
	for roomID, members := range h.rooms {
		if _, ok := members[conn.ID]; ok {
			delete(members, conn.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	close(conn.Send)
	h.mu.Unlock()
	h.logger.Debug("connection unregistered", "conn_id", conn.ID)
}

// Join adds a connection to a room group.
func (h *Hub) Join(connID, roomID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Connection)
		h.rooms[roomID] = members
	}
	members[connID] = conn
	h.mu.Unlock()
	conn.trackJoin(roomID)
}

// Leave removes a connection from a room group.
func (h *Hub) Leave(connID, roomID string) {
	h.mu.Lock()
	conn := h.conns[connID]
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
	if conn != nil {
		conn.trackLeave(roomID)
	}
}

// Occupants returns the connection ids currently in a room.
func (h *Hub) Occupants(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Occupancy returns the live member count of a room.
func (h *Hub) Occupancy(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// IsMember reports whether a connection is in a room.
func (h *Hub) IsMember(connID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connID]
	return ok
}

// ActiveConnections returns the number of attached connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendToConn delivers an event to a single connection. Unknown targets are
// a silent no-op: the relay has no notion of target liveness.
func (h *Hub) SendToConn(connID, event string, payload any) {
	// Delivery happens under the read lock: Unregister closes Send under
	// the write lock, so a send can never race a close.
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	h.deliver(conn, event, payload)
}

// BroadcastToRoom delivers an event to every member of a room.
func (h *Hub) BroadcastToRoom(roomID, event string, payload any) {
	h.broadcast(roomID, "", event, payload)
}

// BroadcastToRoomExcept delivers an event to every member except one.
func (h *Hub) BroadcastToRoomExcept(roomID, exceptID, event string, payload any) {
	h.broadcast(roomID, exceptID, event, payload)
}

// CloseAll closes every connection's send channel. Called on shutdown after
// the listener stops accepting.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		delete(h.conns, id)
		close(conn.Send)
	}
	h.rooms = make(map[string]map[string]*Connection)
}

func (h *Hub) broadcast(roomID, exceptID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, conn := range h.rooms[roomID] {
		if id != exceptID {
			h.deliver(conn, event, payload)
		}
	}
}

func (h *Hub) deliver(conn *Connection, event string, payload any) {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("marshal event", "event", event, "error", err)
		return
	}
	select {
	case conn.Send <- data:
		h.metrics.MessageSent()
	default:
		// Slow consumer; drop rather than block the caller.
	}
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
