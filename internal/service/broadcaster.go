package service

// Broadcaster delivers events to websocket connections (implemented by the
// ws hub; interface avoids an import cycle). Sends to unknown targets are
// silent no-ops.
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload any)
	BroadcastToRoomExcept(roomID, exceptID, event string, payload any)
	SendToConn(connID, event string, payload any)
}

// Rooms is the transport's group-membership primitive. Occupancy readings
// taken through it are the source of truth; registry metadata is only a
// cache layered on top.
type Rooms interface {
	Join(connID, roomID string)
	Leave(connID, roomID string)
	Occupants(roomID string) []string
	Occupancy(roomID string) int
	IsMember(connID, roomID string) bool
}
