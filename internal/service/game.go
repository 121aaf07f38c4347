package service

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"peercourt/internal/model"
)

var (
	ErrNotAuthorized  = errors.New("only the police can make a guess")
	ErrNoActiveRound  = errors.New("no active round to guess in")
	ErrGameNotStarted = errors.New("game has not started")
)

const (
	// MinPlayers and MaxPlayers bound the player count a lobby needs
	// before all-ready starts a game.
	MinPlayers = 3
	MaxPlayers = 5

	// GameMaxRounds is the fixed round count per game.
	GameMaxRounds = 5

	// roundEndDelay is the pause between a guess result and the
	// round-end prompt clients use to request the next round.
	roundEndDelay = 5 * time.Second

	maxChatLength = 200
	maxEmojiRunes = 4
)

type gamePlayer struct {
	username string
	ready    bool
}

type gameRoom struct {
	players map[string]*gamePlayer
	scores  map[string]int

	round     int
	maxRounds int
	started   bool

	// current round
	roles      map[string]model.Role
	guess      string
	caught     bool
	roundEnded bool

	// roundTimer schedules the delayed round-end prompt. Held here so a
	// reset or teardown cancels it before it can fire into a recycled
	// round.
	roundTimer *time.Timer
}

// GameService runs the per-room guessing-game state machine. Game rooms are
// created lazily on the first join and live for the process lifetime; the
// room cap and sweep keep their number bounded.
type GameService struct {
	logger      *slog.Logger
	broadcaster Broadcaster

	mu    sync.Mutex
	rooms map[string]*gameRoom

	roundEndDelay time.Duration
}

// NewGameService creates the engine.
func NewGameService(logger *slog.Logger) *GameService {
	return &GameService{
		logger:        logger,
		rooms:         make(map[string]*gameRoom),
		roundEndDelay: roundEndDelay,
	}
}

// SetBroadcaster injects the transport hub.
func (s *GameService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetRoundEndDelay overrides the post-guess delay (tests shorten it).
func (s *GameService) SetRoundEndDelay(d time.Duration) {
	s.mu.Lock()
	s.roundEndDelay = d
	s.mu.Unlock()
}

// Join adds a player to the room's game (idempotent) and returns the
// aggregate state. When a game is already running, the player's assigned
// role is returned for private replay.
func (s *GameService) Join(roomID, connID, username string) (model.GameState, model.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.ensureRoomLocked(roomID)
	if _, ok := room.players[connID]; !ok {
		room.players[connID] = &gamePlayer{username: username}
		room.scores[connID] = 0
	}

	state := stateLocked(room)
	if room.started {
		if role, ok := room.roles[connID]; ok {
			return state, role, true
		}
	}
	return state, "", false
}

// Ready marks a player ready. When every current player is ready and the
// count is within bounds, the game starts: round 1 is dealt and the returned
// RoundInfo carries the private role map. A second all-ready after start has
// no effect until the next lobby phase.
func (s *GameService) Ready(roomID, connID string) (model.GameState, *model.RoundInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return model.GameState{}, nil, false
	}
	player, ok := room.players[connID]
	if !ok {
		return model.GameState{}, nil, false
	}
	player.ready = true

	if !room.started && allReadyLocked(room) {
		n := len(room.players)
		if n >= MinPlayers && n <= MaxPlayers {
			room.started = true
			room.round = 1
			info := s.dealRoundLocked(room)
			s.logger.Info("game started", "room_id", roomID, "players", n)
			return stateLocked(room), info, true
		}
	}

	return stateLocked(room), nil, true
}

// Guess resolves the Police's accusation. Exactly one point is awarded: to
// the Police when the suspect is the Thief, otherwise to the Thief. The
// round is marked ended and the round-end prompt is scheduled.
func (s *GameService) Guess(roomID, policeID, suspectID string) (*model.GuessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || !room.started || room.roundEnded {
		return nil, ErrNoActiveRound
	}
	if room.roles[policeID] != model.RolePolice {
		return nil, ErrNotAuthorized
	}

	var thiefID string
	for id, role := range room.roles {
		if role == model.RoleThief {
			thiefID = id
			break
		}
	}

	isCorrect := suspectID == thiefID
	// A mid-round departure can leave a dealt role without a player; the
	// point is only awarded to someone still in the room.
	if isCorrect {
		if _, ok := room.players[policeID]; ok {
			room.scores[policeID]++
		}
	} else if _, ok := room.players[thiefID]; ok {
		room.scores[thiefID]++
	}

	room.guess = suspectID
	room.caught = isCorrect
	room.roundEnded = true

	s.scheduleRoundEndLocked(room, roomID)

	return &model.GuessResult{
		PoliceID:  policeID,
		SuspectID: suspectID,
		ThiefID:   thiefID,
		IsCorrect: isCorrect,
		Scores:    scoresCopyLocked(room),
	}, nil
}

// NextRound advances the game. Past the final round it resolves the winner
// set (ties included) and resets to the lobby; otherwise it deals the next
// round and returns the fresh role assignment for private delivery.
func (s *GameService) NextRound(roomID string) (*model.RoundInfo, *model.GameOverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || !room.started {
		return nil, nil, ErrGameNotStarted
	}

	if room.round >= room.maxRounds {
		over := s.endGameLocked(room)
		s.logger.Info("game over", "room_id", roomID, "winners", len(over.Winners))
		return nil, over, nil
	}

	room.round++
	clearReadyLocked(room)
	info := s.dealRoundLocked(room)
	return info, nil, nil
}

// RemovePlayer drops a player and their score. A running game with fewer
// than MinPlayers left is force-ended through the normal game-over path;
// current scores stand.
func (s *GameService) RemovePlayer(roomID, connID string) (model.GameState, *model.GameOverResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return model.GameState{}, nil, false
	}
	if _, ok := room.players[connID]; !ok {
		return stateLocked(room), nil, true
	}

	delete(room.players, connID)
	delete(room.scores, connID)

	var over *model.GameOverResult
	if room.started && len(room.players) < MinPlayers {
		over = s.endGameLocked(room)
		s.logger.Info("game force-ended", "room_id", roomID, "remaining", len(room.players))
	}

	return stateLocked(room), over, true
}

// Chat validates and sanitizes a chat message. Invalid messages and
// messages from non-players are dropped silently (ok == false).
func (s *GameService) Chat(roomID, connID, message string) (*model.ChatMessage, bool) {
	if message == "" || len(message) > maxChatLength {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	player, ok := room.players[connID]
	if !ok {
		return nil, false
	}

	sanitized := strings.TrimSpace(message)
	sanitized = strings.ReplaceAll(sanitized, "<", "&lt;")
	sanitized = strings.ReplaceAll(sanitized, ">", "&gt;")

	return &model.ChatMessage{
		SenderID: connID,
		Username: player.username,
		Message:  sanitized,
	}, true
}

// Emoji validates an emoji reaction. Reactions longer than four runes or
// containing non-emoji characters are dropped silently.
func (s *GameService) Emoji(roomID, connID, emoji string) (*model.EmojiReaction, bool) {
	if roomID == "" || !validEmoji(emoji) {
		return nil, false
	}
	return &model.EmojiReaction{SenderID: connID, Emoji: emoji}, true
}

// State returns the aggregate state for a room.
func (s *GameService) State(roomID string) (model.GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return model.GameState{}, false
	}
	return stateLocked(room), true
}

// Role returns a player's current role assignment.
func (s *GameService) Role(roomID, connID string) (model.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return "", false
	}
	role, ok := room.roles[connID]
	return role, ok
}

// Stop cancels every pending round-end timer. Called on shutdown.
func (s *GameService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.roundTimer != nil {
			room.roundTimer.Stop()
			room.roundTimer = nil
		}
	}
}

func (s *GameService) ensureRoomLocked(roomID string) *gameRoom {
	room, ok := s.rooms[roomID]
	if !ok {
		room = &gameRoom{
			players:   make(map[string]*gamePlayer),
			scores:    make(map[string]int),
			maxRounds: GameMaxRounds,
			roles:     make(map[string]model.Role),
		}
		s.rooms[roomID] = room
	}
	return room
}

// dealRoundLocked resets the round state and assigns the first n roles,
// shuffled uniformly, one per player.
func (s *GameService) dealRoundLocked(room *gameRoom) *model.RoundInfo {
	if room.roundTimer != nil {
		room.roundTimer.Stop()
		room.roundTimer = nil
	}
	room.guess = ""
	room.caught = false
	room.roundEnded = false
	room.roles = make(map[string]model.Role, len(room.players))

	ids := make([]string, 0, len(room.players))
	for id := range room.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	dealt := make([]model.Role, len(ids))
	copy(dealt, model.Roles[:len(ids)])
	rand.Shuffle(len(dealt), func(i, j int) {
		dealt[i], dealt[j] = dealt[j], dealt[i]
	})

	roles := make(map[string]model.Role, len(ids))
	for i, id := range ids {
		room.roles[id] = dealt[i]
		roles[id] = dealt[i]
	}

	return &model.RoundInfo{
		Round:     room.round,
		MaxRounds: room.maxRounds,
		Roles:     roles,
	}
}

// endGameLocked resolves the winner set and resets the room to the lobby.
func (s *GameService) endGameLocked(room *gameRoom) *model.GameOverResult {
	if room.roundTimer != nil {
		room.roundTimer.Stop()
		room.roundTimer = nil
	}

	// The winner set is resolved over current players only.
	maxScore := 0
	for id := range room.players {
		if room.scores[id] > maxScore {
			maxScore = room.scores[id]
		}
	}

	winners := make([]model.Winner, 0)
	for id, player := range room.players {
		if room.scores[id] == maxScore {
			winners = append(winners, model.Winner{
				ID:       id,
				Username: player.username,
				Score:    room.scores[id],
			})
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].ID < winners[j].ID })

	room.started = false
	room.round = 0
	room.roles = make(map[string]model.Role)
	room.roundEnded = false
	clearReadyLocked(room)

	return &model.GameOverResult{
		Winners: winners,
		Scores:  scoresCopyLocked(room),
		Players: playersLocked(room),
	}
}

// scheduleRoundEndLocked arms the delayed round-end prompt, replacing any
// previous timer for the room.
func (s *GameService) scheduleRoundEndLocked(room *gameRoom, roomID string) {
	if room.roundTimer != nil {
		room.roundTimer.Stop()
	}
	b := s.broadcaster
	room.roundTimer = time.AfterFunc(s.roundEndDelay, func() {
		if b != nil {
			b.BroadcastToRoom(roomID, "game:round-end", nil)
		}
	})
}

func allReadyLocked(room *gameRoom) bool {
	for _, p := range room.players {
		if !p.ready {
			return false
		}
	}
	return len(room.players) > 0
}

func clearReadyLocked(room *gameRoom) {
	for _, p := range room.players {
		p.ready = false
	}
}

func stateLocked(room *gameRoom) model.GameState {
	return model.GameState{
		GameStarted: room.started,
		Round:       room.round,
		MaxRounds:   room.maxRounds,
		Players:     playersLocked(room),
		Scores:      scoresCopyLocked(room),
	}
}

func playersLocked(room *gameRoom) []model.GamePlayer {
	players := make([]model.GamePlayer, 0, len(room.players))
	for id, p := range room.players {
		players = append(players, model.GamePlayer{
			ID:       id,
			Username: p.username,
			Ready:    p.ready,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

func scoresCopyLocked(room *gameRoom) map[string]int {
	scores := make(map[string]int, len(room.scores))
	for id, score := range room.scores {
		scores[id] = score
	}
	return scores
}

// validEmoji reports whether every rune of the reaction belongs to an emoji
// block (including joiners, variation selectors and skin-tone modifiers)
// and the reaction is at most four runes long.
func validEmoji(emoji string) bool {
	if emoji == "" {
		return false
	}
	runes := []rune(emoji)
	if len(runes) > maxEmojiRunes {
		return false
	}
	for _, r := range runes {
		if !isEmojiRune(r) {
			return false
		}
	}
	return true
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // mahjong..symbols & pictographs ext
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // misc symbols and arrows
		return true
	case r == 0x200D || r == 0xFE0F || r == 0x20E3: // ZWJ, VS16, keycap
		return true
	case r == 0x00A9 || r == 0x00AE || r == 0x2122: // (c) (r) (tm)
		return true
	}
	return false
}
