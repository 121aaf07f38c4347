package ws

import (
	"encoding/json"
	"errors"
	"log/slog"

	"peercourt/internal/limiter"
	"peercourt/internal/metrics"
	"peercourt/internal/model"
	"peercourt/internal/service"
)

// Gateway wraps every inbound event in rate limiting, payload decoding and
// panic recovery, then routes it to the owning service. The dispatch table
// is closed: events without an entry are dropped, so an unknown event can
// never reach a handler.
type Gateway struct {
	hub       *Hub
	registry  *service.RegistryService
	game      *service.GameService
	signaling *service.SignalingService

	general *limiter.Bucket
	signal  *limiter.Bucket
	metrics *metrics.Metrics
	logger  *slog.Logger

	handlers map[string]handlerSpec
}

type handlerSpec struct {
	signaling bool // consume from the signaling bucket instead of the general one
	fn        func(conn *Connection, data json.RawMessage)
}

// NewGateway builds the gateway and its dispatch table.
func NewGateway(
	hub *Hub,
	registry *service.RegistryService,
	game *service.GameService,
	signaling *service.SignalingService,
	general, signal *limiter.Bucket,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Gateway {
	g := &Gateway{
		hub:       hub,
		registry:  registry,
		game:      game,
		signaling: signaling,
		general:   general,
		signal:    signal,
		metrics:   m,
		logger:    logger,
	}

	g.handlers = map[string]handlerSpec{
		EvtCreateRoom:  {fn: g.handleCreateRoom},
		EvtJoinRoom:    {fn: g.handleJoinRoom},
		EvtLeaveRoom:   {fn: g.handleLeaveRoom},
		EvtGetUsers:    {fn: g.handleGetUsers},
		EvtOffer:       {signaling: true, fn: g.handleOffer},
		EvtAnswer:      {signaling: true, fn: g.handleAnswer},
		EvtICE:         {signaling: true, fn: g.handleICECandidate},
		EvtQuality:     {fn: g.handleQuality},
		EvtStreamAdapt: {fn: g.handleStreamAdapt},
		EvtConnRestart: {fn: g.handleConnRestart},

		EvtGameJoin:      {fn: g.handleGameJoin},
		EvtGameReady:     {fn: g.handleGameReady},
		EvtGameGuess:     {fn: g.handleGameGuess},
		EvtGameNextRound: {fn: g.handleGameNextRound},
		EvtGameChat:      {fn: g.handleGameChat},
		EvtGameEmoji:     {fn: g.handleGameEmoji},
	}

	return g
}

// Dispatch routes one inbound frame. addr keys the rate-limit buckets.
func (g *Gateway) Dispatch(conn *Connection, addr string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.logger.Debug("malformed frame", "conn_id", conn.ID, "error", err)
		return
	}

	spec, ok := g.handlers[env.Event]
	if !ok {
		g.logger.Debug("unknown event", "conn_id", conn.ID, "event", env.Event)
		return
	}

	bucket := g.general
	if spec.signaling {
		bucket = g.signal
	}
	if !bucket.Allow(addr) {
		g.metrics.RateLimitHit()
		g.logger.Warn("rate limit exceeded", "conn_id", conn.ID, "event", env.Event)
		g.hub.SendToConn(conn.ID, EvtError, errorPayload{Error: "Too many requests"})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			g.metrics.HandlerError()
			g.logger.Error("handler panic", "conn_id", conn.ID, "event", env.Event, "panic", r)
			g.hub.SendToConn(conn.ID, EvtError, errorPayload{Error: "Server error"})
		}
	}()

	spec.fn(conn, env.Data)
}

// HandleDisconnect fans a connection's departure out to every room it had
// joined, then detaches it.
func (g *Gateway) HandleDisconnect(conn *Connection) {
	for _, roomID := range conn.Rooms() {
		count := g.registry.LeaveRoom(conn.ID, roomID)
		g.hub.BroadcastToRoom(roomID, EvtUserDisconnected, conn.ID)
		g.hub.BroadcastToRoom(roomID, EvtPlayerCount, count)
		g.removeFromGame(roomID, conn.ID)
	}
	g.signaling.Forget(conn.ID)
	g.hub.Unregister(conn)
	g.logger.Info("connection closed", "conn_id", conn.ID)
}

// RecoverMemberships re-joins the connection's locally tracked rooms after a
// transport error. Best effort: occupancy is re-read by the next operation
// either way.
func (g *Gateway) RecoverMemberships(conn *Connection) {
	for _, roomID := range conn.Rooms() {
		g.hub.Join(conn.ID, roomID)
	}
}

func (g *Gateway) handleCreateRoom(conn *Connection, _ json.RawMessage) {
	roomID, count, err := g.registry.CreateRoom(conn.ID)
	if err != nil {
		if errors.Is(err, service.ErrServerCapacity) {
			g.hub.SendToConn(conn.ID, EvtRoomError, "Server is at capacity. Please try again later.")
			return
		}
		g.metrics.HandlerError()
		g.logger.Error("create room", "conn_id", conn.ID, "error", err)
		g.hub.SendToConn(conn.ID, EvtRoomError, "Failed to create room")
		return
	}

	g.hub.SendToConn(conn.ID, EvtRoomCreated, roomID)
	g.hub.BroadcastToRoom(roomID, EvtPlayerCount, count)
	g.logger.Info("room created", "room_id", roomID, "conn_id", conn.ID)
}

func (g *Gateway) handleJoinRoom(conn *Connection, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		g.hub.SendToConn(conn.ID, EvtRoomError, "Invalid room ID")
		return
	}

	others, count, err := g.registry.JoinRoom(conn.ID, roomID)
	if err != nil {
		g.logger.Info("join rejected", "room_id", roomID, "conn_id", conn.ID)
		g.hub.SendToConn(conn.ID, EvtRoomError, "Room not found or has expired")
		return
	}

	g.hub.SendToConn(conn.ID, EvtRoomJoined, roomID)
	g.hub.BroadcastToRoom(roomID, EvtPlayerCount, count)
	g.hub.SendToConn(conn.ID, EvtAllUsers, others)
	g.hub.BroadcastToRoomExcept(roomID, conn.ID, EvtUserJoined, conn.ID)
	g.logger.Info("room joined", "room_id", roomID, "conn_id", conn.ID, "occupancy", count)
}

func (g *Gateway) handleLeaveRoom(conn *Connection, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		return
	}

	count := g.registry.LeaveRoom(conn.ID, roomID)
	g.hub.BroadcastToRoom(roomID, EvtUserDisconnected, conn.ID)
	g.hub.BroadcastToRoom(roomID, EvtPlayerCount, count)
	g.removeFromGame(roomID, conn.ID)
}

func (g *Gateway) handleGetUsers(conn *Connection, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		return
	}
	occupants := g.hub.Occupants(roomID)
	if len(occupants) == 0 {
		return
	}
	others := make([]string, 0, len(occupants))
	for _, id := range occupants {
		if id != conn.ID {
			others = append(others, id)
		}
	}
	g.hub.SendToConn(conn.ID, EvtAllUsers, others)
}

func (g *Gateway) handleOffer(conn *Connection, data json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		return
	}
	g.signaling.Offer(conn.ID, p.Target, p.SDP, p.CallerID, p.Constraints)
}

func (g *Gateway) handleAnswer(conn *Connection, data json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		return
	}
	g.signaling.Answer(conn.ID, p.Target, p.SDP)
}

func (g *Gateway) handleICECandidate(conn *Connection, data json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		return
	}
	g.signaling.ICECandidate(conn.ID, p.Target, p.Candidate)
}

func (g *Gateway) handleQuality(conn *Connection, data json.RawMessage) {
	var p qualityPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return
	}
	g.signaling.Quality(conn.ID, p.RoomID, p.Stats)
}

func (g *Gateway) handleStreamAdapt(conn *Connection, data json.RawMessage) {
	var p adaptPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return
	}
	g.signaling.AdaptStream(conn.ID, p.RoomID, p.Constraint)
}

func (g *Gateway) handleConnRestart(conn *Connection, data json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		return
	}
	g.signaling.RestartConnection(conn.ID, p.Target)
}

func (g *Gateway) handleGameJoin(conn *Connection, data json.RawMessage) {
	var p gameJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Room ID is required"})
		return
	}

	username := p.Username
	if username == "" {
		username = conn.Username
	}

	state, role, hasRole := g.game.Join(p.RoomID, conn.ID, username)
	g.registry.Touch(p.RoomID)
	g.hub.BroadcastToRoom(p.RoomID, EvtGameState, state)
	if hasRole {
		g.hub.SendToConn(conn.ID, EvtGameRole, rolePayload{Role: role})
	}
}

func (g *Gateway) handleGameReady(conn *Connection, data json.RawMessage) {
	var p gameRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Room ID is required"})
		return
	}

	state, info, ok := g.game.Ready(p.RoomID, conn.ID)
	if !ok {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Failed to mark as ready"})
		return
	}

	g.hub.BroadcastToRoom(p.RoomID, EvtGameState, state)
	if info != nil {
		g.registry.SetGameInProgress(p.RoomID, true)
		g.hub.BroadcastToRoom(p.RoomID, EvtGameStarted, roundPayload{Round: info.Round, MaxRounds: info.MaxRounds})
		g.sendRoles(info)
	}
}

func (g *Gateway) handleGameGuess(conn *Connection, data json.RawMessage) {
	var p guessPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.SuspectID == "" {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Room ID and suspect ID are required"})
		return
	}

	result, err := g.game.Guess(p.RoomID, conn.ID, p.SuspectID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAuthorized):
			g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Only the Police can make a guess!"})
		default:
			g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Invalid guess attempt"})
		}
		return
	}

	g.registry.Touch(p.RoomID)
	g.hub.BroadcastToRoom(p.RoomID, EvtGameGuessResult, result)
}

func (g *Gateway) handleGameNextRound(conn *Connection, data json.RawMessage) {
	var p gameRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Room ID is required"})
		return
	}

	info, over, err := g.game.NextRound(p.RoomID)
	if err != nil {
		g.hub.SendToConn(conn.ID, EvtGameError, messagePayload{Message: "Failed to start next round"})
		return
	}

	if over != nil {
		g.registry.SetGameInProgress(p.RoomID, false)
		g.hub.BroadcastToRoom(p.RoomID, EvtGameEnded, over)
		return
	}

	g.hub.BroadcastToRoom(p.RoomID, EvtGameNewRound, roundPayload{Round: info.Round, MaxRounds: info.MaxRounds})
	g.sendRoles(info)
	if state, ok := g.game.State(p.RoomID); ok {
		g.hub.BroadcastToRoom(p.RoomID, EvtGameState, state)
	}
}

func (g *Gateway) handleGameChat(conn *Connection, data json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return // low-stakes event, dropped silently
	}
	msg, ok := g.game.Chat(p.RoomID, conn.ID, p.Message)
	if !ok {
		return
	}
	g.hub.BroadcastToRoom(p.RoomID, EvtGameChat, msg)
}

func (g *Gateway) handleGameEmoji(conn *Connection, data json.RawMessage) {
	var p emojiPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	reaction, ok := g.game.Emoji(p.RoomID, conn.ID, p.Emoji)
	if !ok {
		return
	}
	g.hub.BroadcastToRoomExcept(p.RoomID, conn.ID, EvtGameEmoji, reaction)
}

// sendRoles delivers each player's assignment privately; roles are never
// part of a room broadcast.
func (g *Gateway) sendRoles(info *model.RoundInfo) {
	for connID, role := range info.Roles {
		g.hub.SendToConn(connID, EvtGameRole, rolePayload{Role: role})
	}
}

// removeFromGame drops a departed connection from the room's game and
// rebroadcasts the resulting state (and game-over, when the departure ends
// the game).
func (g *Gateway) removeFromGame(roomID, connID string) {
	state, over, ok := g.game.RemovePlayer(roomID, connID)
	if !ok {
		return
	}
	g.hub.BroadcastToRoom(roomID, EvtGameState, state)
	if over != nil {
		g.registry.SetGameInProgress(roomID, false)
		g.hub.BroadcastToRoom(roomID, EvtGameEnded, over)
	}
}
