package model

// Role is one of the five court roles dealt each round.
type Role string

const (
	RoleKing     Role = "King"
	RoleQueen    Role = "Queen"
	RolePolice   Role = "Police"
	RoleThief    Role = "Thief"
	RoleMinister Role = "Minister"
)

// Roles is the fixed assignment list. A round deals the first n entries,
// shuffled, to the n players in the room (3 <= n <= 5). King, Police and
// Thief lead the list so every deal contains the two roles the guess
// mechanic resolves against.
var Roles = []Role{RoleKing, RolePolice, RoleThief, RoleQueen, RoleMinister}

// GamePlayer is the public view of a player in a game room.
type GamePlayer struct {
	ID       string `json:"socketId"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// GameState is the aggregate room state broadcast after every mutation.
// It never contains role assignments.
type GameState struct {
	GameStarted bool           `json:"gameStarted"`
	Round       int            `json:"round"`
	MaxRounds   int            `json:"maxRounds"`
	Players     []GamePlayer   `json:"players"`
	Scores      map[string]int `json:"scores"`
}

// RoundInfo describes a freshly dealt round. Roles is delivered privately,
// one entry per player, and is excluded from serialization so a broadcast
// can never leak an assignment.
type RoundInfo struct {
	Round     int             `json:"round"`
	MaxRounds int             `json:"maxRounds"`
	Roles     map[string]Role `json:"-"`
}

// GuessResult is broadcast to the whole room once the Police commits a guess.
type GuessResult struct {
	PoliceID  string         `json:"policeId"`
	SuspectID string         `json:"suspectId"`
	ThiefID   string         `json:"thiefId"`
	IsCorrect bool           `json:"isCorrect"`
	Scores    map[string]int `json:"scores"`
}

// Winner is a player who finished with the maximum score. Ties are allowed;
// all tied players appear in the winner set.
type Winner struct {
	ID       string `json:"socketId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// GameOverResult is broadcast when the final round completes or the game is
// force-ended.
type GameOverResult struct {
	Winners []Winner       `json:"winners"`
	Scores  map[string]int `json:"scores"`
	Players []GamePlayer   `json:"players"`
}

// ChatMessage is a sanitized chat broadcast.
type ChatMessage struct {
	SenderID string `json:"senderId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// EmojiReaction is relayed to the room excluding the sender.
type EmojiReaction struct {
	SenderID string `json:"senderId"`
	Emoji    string `json:"emoji"`
}
