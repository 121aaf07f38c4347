package model

import "encoding/json"

// ConnectionStats is a connection-quality sample reported by a peer.
type ConnectionStats struct {
	Bitrate     float64 `json:"bitrate"`
	PacketsLost int     `json:"packetsLost"`
	Latency     float64 `json:"latency,omitempty"`
}

// OfferForward is the payload delivered to the target of an offer. The
// caller's constraints travel with it so the target can mirror them.
type OfferForward struct {
	SDP         string          `json:"sdp"`
	CallerID    string          `json:"callerId"`
	Constraints json.RawMessage `json:"constraints"`
}

// AnswerForward is the payload delivered to the target of an answer.
// CallerID is always the answering connection.
type AnswerForward struct {
	SDP      string `json:"sdp"`
	CallerID string `json:"callerId"`
}

// ICEForward is the payload delivered to the target of an ICE candidate.
// Target carries the sender's identity so the receiver knows which peer
// connection the candidate belongs to.
type ICEForward struct {
	Target    string          `json:"target"`
	Candidate json.RawMessage `json:"candidate"`
}

// DegradedNotice tells a room that a peer's connection quality dropped below
// the broadcast threshold.
type DegradedNotice struct {
	PeerID string `json:"peerId"`
}

// StreamAdapt relays a stream-constraint change to the rest of the room.
type StreamAdapt struct {
	PeerID     string          `json:"peerId"`
	Constraint json.RawMessage `json:"constraint"`
}

// RestartRequest asks a specific peer to restart its connection.
type RestartRequest struct {
	PeerID string `json:"peerId"`
}
