package ws

import (
	"encoding/json"

	"peercourt/internal/model"
)

// Inbound event names (client -> server).
const (
	EvtCreateRoom  = "create-room"
	EvtJoinRoom    = "join room"
	EvtLeaveRoom   = "leave room"
	EvtOffer       = "offer"
	EvtAnswer      = "answer"
	EvtICE         = "ice-candidate"
	EvtQuality     = "connection:quality"
	EvtStreamAdapt = "stream:adapt"
	EvtConnRestart = "connection:restart"
	EvtGetUsers    = "room:get-users"

	EvtGameJoin      = "game:join"
	EvtGameReady     = "game:ready"
	EvtGameGuess     = "game:guess"
	EvtGameNextRound = "game:next-round"
	EvtGameChat      = "game:chat"
	EvtGameEmoji     = "game:emoji"
)

// Outbound event names (server -> client).
const (
	EvtConnected        = "connected"
	EvtRoomCreated      = "room-created"
	EvtRoomJoined       = "room-joined"
	EvtRoomError        = "room-error"
	EvtPlayerCount      = "player-count"
	EvtAllUsers         = "all users"
	EvtUserJoined       = "user-joined"
	EvtUserDisconnected = "user-disconnected"
	EvtError            = "error"

	EvtGameState       = "game:state"
	EvtGameRole        = "game:role"
	EvtGameStarted     = "game:started"
	EvtGameGuessResult = "game:guess-result"
	EvtGameRoundEnd    = "game:round-end"
	EvtGameNewRound    = "game:new-round"
	EvtGameEnded       = "game:ended"
	EvtGameError       = "game:error"
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type connectedPayload struct {
	ID string `json:"id"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type signalPayload struct {
	Target      string          `json:"target"`
	SDP         string          `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	CallerID    string          `json:"callerId,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

type qualityPayload struct {
	RoomID string                `json:"roomId"`
	Stats  model.ConnectionStats `json:"stats"`
}

type adaptPayload struct {
	RoomID     string          `json:"roomId"`
	Constraint json.RawMessage `json:"constraint"`
}

type gameJoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type gameRoomPayload struct {
	RoomID string `json:"roomId"`
}

type guessPayload struct {
	RoomID    string `json:"roomId"`
	SuspectID string `json:"suspectId"`
}

type chatPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type emojiPayload struct {
	RoomID string `json:"roomId"`
	Emoji  string `json:"emoji"`
}

type rolePayload struct {
	Role model.Role `json:"role"`
}

type roundPayload struct {
	Round     int `json:"round"`
	MaxRounds int `json:"maxRounds"`
}
