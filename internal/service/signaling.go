package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"peercourt/internal/model"
)

const (
	// defaultMaxBandwidthKbps caps video bandwidth when the offer SDP
	// carries no b=AS line. 300-500 kbps is plenty for in-game video.
	defaultMaxBandwidthKbps = 500

	// Thresholds below which a quality sample triggers a degradation
	// notice to the rest of the room.
	degradedBitrateKbps = 100
	degradedPacketLoss  = 5
)

var videoSectionRe = regexp.MustCompile(`(m=video.*\r\n)`)

// SignalingService forwards WebRTC negotiation messages to named target
// connections. It keeps no state beyond the last quality sample per
// connection; target liveness is the transport's problem, so forwarding to
// an unknown target is a silent no-op.
type SignalingService struct {
	logger      *slog.Logger
	broadcaster Broadcaster

	mu    sync.Mutex
	stats map[string]model.ConnectionStats
}

// NewSignalingService creates the relay.
func NewSignalingService(logger *slog.Logger) *SignalingService {
	return &SignalingService{
		logger: logger,
		stats:  make(map[string]model.ConnectionStats),
	}
}

// SetBroadcaster injects the transport hub.
func (s *SignalingService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Offer forwards an SDP offer to target, injecting a bandwidth cap on each
// video section when the offer does not carry one. The caller's constraints
// object is forwarded verbatim.
func (s *SignalingService) Offer(senderID, target, sdp, callerID string, constraints json.RawMessage) {
	if callerID == "" {
		callerID = senderID
	}
	if len(constraints) == 0 {
		constraints = json.RawMessage("{}")
	}

	var c struct {
		MaxBandwidth int `json:"maxBandwidth"`
	}
	if err := json.Unmarshal(constraints, &c); err != nil {
		s.logger.Debug("malformed offer constraints", "conn_id", senderID, "error", err)
	}

	s.broadcaster.SendToConn(target, "offer", model.OfferForward{
		SDP:         CapVideoBandwidth(sdp, c.MaxBandwidth),
		CallerID:    callerID,
		Constraints: constraints,
	})
}

// Answer forwards an SDP answer to target with the sender attached.
func (s *SignalingService) Answer(senderID, target, sdp string) {
	s.broadcaster.SendToConn(target, "answer", model.AnswerForward{
		SDP:      sdp,
		CallerID: senderID,
	})
}

// ICECandidate forwards a candidate to target with the sender attached.
func (s *SignalingService) ICECandidate(senderID, target string, candidate json.RawMessage) {
	s.broadcaster.SendToConn(target, "ice-candidate", model.ICEForward{
		Target:    senderID,
		Candidate: candidate,
	})
}

// Quality records a connection-quality sample and notifies the room when it
// crosses the degradation thresholds.
func (s *SignalingService) Quality(senderID, roomID string, stats model.ConnectionStats) {
	s.mu.Lock()
	s.stats[senderID] = stats
	s.mu.Unlock()

	if stats.Bitrate < degradedBitrateKbps || stats.PacketsLost > degradedPacketLoss {
		s.logger.Debug("connection degraded",
			"conn_id", senderID,
			"bitrate", stats.Bitrate,
			"packets_lost", stats.PacketsLost)
		s.broadcaster.BroadcastToRoomExcept(roomID, senderID, "connection:degraded", model.DegradedNotice{
			PeerID: senderID,
		})
	}
}

// AdaptStream relays a stream-constraint change to the room excluding the
// sender.
func (s *SignalingService) AdaptStream(senderID, roomID string, constraint json.RawMessage) {
	s.broadcaster.BroadcastToRoomExcept(roomID, senderID, "stream:adapt", model.StreamAdapt{
		PeerID:     senderID,
		Constraint: constraint,
	})
}

// RestartConnection asks target to restart its peer connection with the
// sender.
func (s *SignalingService) RestartConnection(senderID, target string) {
	s.broadcaster.SendToConn(target, "connection:restart-request", model.RestartRequest{
		PeerID: senderID,
	})
}

// LastStats returns the most recent quality sample for a connection.
func (s *SignalingService) LastStats(connID string) (model.ConnectionStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[connID]
	return stats, ok
}

// Forget drops stored samples for a disconnected connection.
func (s *SignalingService) Forget(connID string) {
	s.mu.Lock()
	delete(s.stats, connID)
	s.mu.Unlock()
}

// CapVideoBandwidth injects a b=AS bandwidth line after every m=video
// section when the SDP has none. SDP semantics are otherwise untouched.
func CapVideoBandwidth(sdp string, maxKbps int) string {
	if maxKbps <= 0 {
		maxKbps = defaultMaxBandwidthKbps
	}
	if strings.Contains(sdp, "b=AS:") {
		return sdp
	}
	return videoSectionRe.ReplaceAllString(sdp, fmt.Sprintf("${1}b=AS:%d\r\n", maxKbps))
}
