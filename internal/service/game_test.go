package service_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peercourt/internal/model"
	"peercourt/internal/service"
)

type sentEvent struct {
	roomID  string
	connID  string
	event   string
	payload any
}

// fakeBroadcaster records every delivery for assertions.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeBroadcaster) BroadcastToRoom(roomID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{roomID: roomID, event: event, payload: payload})
}

func (f *fakeBroadcaster) BroadcastToRoomExcept(roomID, exceptID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{roomID: roomID, connID: exceptID, event: event, payload: payload})
}

func (f *fakeBroadcaster) SendToConn(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{connID: connID, event: event, payload: payload})
}

func (f *fakeBroadcaster) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.events))
	for _, e := range f.events {
		names = append(names, e.event)
	}
	return names
}

func newGame() (*service.GameService, *fakeBroadcaster) {
	b := &fakeBroadcaster{}
	g := service.NewGameService(testLogger())
	g.SetBroadcaster(b)
	return g, b
}

// startGame joins n players into roomID and readies them all. Returns the
// RoundInfo of round 1.
func startGame(t *testing.T, g *service.GameService, roomID string, n int) *model.RoundInfo {
	t.Helper()

	players := []string{"alice", "bob", "carol", "dave", "erin"}
	require.LessOrEqual(t, n, len(players))

	for i := 0; i < n; i++ {
		g.Join(roomID, players[i], strings.ToUpper(players[i]))
	}

	var info *model.RoundInfo
	for i := 0; i < n; i++ {
		_, ri, ok := g.Ready(roomID, players[i])
		require.True(t, ok)
		if ri != nil {
			info = ri
		}
	}
	require.NotNil(t, info, "game should start when all players are ready")
	return info
}

func findByRole(info *model.RoundInfo, role model.Role) string {
	for id, r := range info.Roles {
		if r == role {
			return id
		}
	}
	return ""
}

func TestJoinIsIdempotent(t *testing.T) {
	g, _ := newGame()

	g.Join("room1", "alice", "Alice")
	state, _, _ := g.Join("room1", "alice", "Alice")

	assert.Len(t, state.Players, 1)
	assert.False(t, state.GameStarted)
}

func TestGameDoesNotStartBelowMinimum(t *testing.T) {
	g, _ := newGame()

	g.Join("room1", "alice", "Alice")
	g.Join("room1", "bob", "Bob")

	_, info, ok := g.Ready("room1", "alice")
	require.True(t, ok)
	assert.Nil(t, info)

	state, info, ok := g.Ready("room1", "bob")
	require.True(t, ok)
	assert.Nil(t, info, "two players are not enough to start")
	assert.False(t, state.GameStarted)
}

func TestGameStartsWhenAllReady(t *testing.T) {
	g, _ := newGame()

	info := startGame(t, g, "room1", 3)
	assert.Equal(t, 1, info.Round)
	assert.Equal(t, 5, info.MaxRounds)
	assert.Len(t, info.Roles, 3)

	state, ok := g.State("room1")
	require.True(t, ok)
	assert.True(t, state.GameStarted)
}

func TestRolesAreDistinct(t *testing.T) {
	g, _ := newGame()

	info := startGame(t, g, "room1", 5)

	seen := make(map[model.Role]string)
	for id, role := range info.Roles {
		prev, dup := seen[role]
		assert.False(t, dup, "role %s assigned to both %s and %s", role, prev, id)
		seen[role] = id
	}
	assert.Len(t, seen, 5)
	assert.Contains(t, seen, model.RolePolice)
	assert.Contains(t, seen, model.RoleThief)
	assert.Contains(t, seen, model.RoleKing)
}

func TestDealAlwaysIncludesPoliceAndThief(t *testing.T) {
	for _, n := range []int{3, 4, 5} {
		g, _ := newGame()

		info := startGame(t, g, "room1", n)
		assert.NotEmpty(t, findByRole(info, model.RolePolice), "%d-player deal needs a Police", n)
		assert.NotEmpty(t, findByRole(info, model.RoleThief), "%d-player deal needs a Thief", n)
	}
}

func TestScoresKeyedByPlayers(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	kingID := findByRole(info, model.RoleKing)

	result, err := g.Guess("room1", policeID, kingID)
	require.NoError(t, err)

	state, ok := g.State("room1")
	require.True(t, ok)
	ids := make(map[string]struct{}, len(state.Players))
	for _, p := range state.Players {
		ids[p.ID] = struct{}{}
	}
	for id := range result.Scores {
		_, known := ids[id]
		assert.True(t, known, "score key %q is not a player", id)
	}
}

func TestNoPointForDepartedThief(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 4)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)
	kingID := findByRole(info, model.RoleKing)

	_, over, ok := g.RemovePlayer("room1", thiefID)
	require.True(t, ok)
	require.Nil(t, over, "three players remain, the game continues")

	result, err := g.Guess("room1", policeID, kingID)
	require.NoError(t, err)
	assert.False(t, result.IsCorrect)
	assert.NotContains(t, result.Scores, thiefID, "a departed player earns nothing")
}

func TestRoleReplayAfterRejoin(t *testing.T) {
	g, _ := newGame()

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)

	_, role, hasRole := g.Join("room1", policeID, "rejoined")
	assert.True(t, hasRole)
	assert.Equal(t, model.RolePolice, role)
}

func TestCorrectGuessScoresPolice(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)

	result, err := g.Guess("room1", policeID, thiefID)
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, thiefID, result.ThiefID)
	assert.Equal(t, 1, result.Scores[policeID])
	assert.Equal(t, 0, result.Scores[thiefID])
}

func TestWrongGuessScoresThief(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)
	kingID := findByRole(info, model.RoleKing)

	result, err := g.Guess("room1", policeID, kingID)
	require.NoError(t, err)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, 1, result.Scores[thiefID])
	assert.Equal(t, 0, result.Scores[policeID])
}

func TestOnlyPoliceMayGuess(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	thiefID := findByRole(info, model.RoleThief)
	kingID := findByRole(info, model.RoleKing)

	_, err := g.Guess("room1", thiefID, kingID)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func TestSecondGuessInRoundRejected(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)

	_, err := g.Guess("room1", policeID, thiefID)
	require.NoError(t, err)

	_, err = g.Guess("room1", policeID, thiefID)
	assert.ErrorIs(t, err, service.ErrNoActiveRound)
}

func TestGuessBeforeStartRejected(t *testing.T) {
	g, _ := newGame()

	g.Join("room1", "alice", "Alice")
	_, err := g.Guess("room1", "alice", "bob")
	assert.ErrorIs(t, err, service.ErrNoActiveRound)
}

func TestRoundEndPromptFires(t *testing.T) {
	g, b := newGame()
	g.SetRoundEndDelay(20 * time.Millisecond)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)

	_, err := g.Guess("room1", policeID, thiefID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, name := range b.eventNames() {
			if name == "game:round-end" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestNextRoundDealsFreshRoles(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	info := startGame(t, g, "room1", 3)
	policeID := findByRole(info, model.RolePolice)
	thiefID := findByRole(info, model.RoleThief)

	_, err := g.Guess("room1", policeID, thiefID)
	require.NoError(t, err)

	next, over, err := g.NextRound("room1")
	require.NoError(t, err)
	assert.Nil(t, over)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Round)
	assert.Len(t, next.Roles, 3)
}

func TestGameOverAfterFinalRound(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	startGame(t, g, "room1", 3)

	for round := 1; round <= 5; round++ {
		state, _ := g.State("room1")
		require.True(t, state.GameStarted)

		// Re-read the current deal through Role.
		var policeID, thiefID string
		for _, p := range state.Players {
			role, has := g.Role("room1", p.ID)
			require.True(t, has)
			switch role {
			case model.RolePolice:
				policeID = p.ID
			case model.RoleThief:
				thiefID = p.ID
			}
		}
		require.NotEmpty(t, policeID)
		require.NotEmpty(t, thiefID)

		_, err := g.Guess("room1", policeID, thiefID)
		require.NoError(t, err)

		next, over, err := g.NextRound("room1")
		require.NoError(t, err)
		if round < 5 {
			require.NotNil(t, next)
			assert.Nil(t, over)
			continue
		}

		assert.Nil(t, next)
		require.NotNil(t, over)
		require.NotEmpty(t, over.Winners)

		// One point per round went to whichever player held Police.
		total := 0
		for _, score := range over.Scores {
			total += score
		}
		assert.Equal(t, 5, total)
		for _, w := range over.Winners {
			assert.Equal(t, over.Scores[w.ID], w.Score)
		}
	}

	state, ok := g.State("room1")
	require.True(t, ok)
	assert.False(t, state.GameStarted, "game resets to the lobby after game over")
	assert.Equal(t, 0, state.Round)
}

func TestWinnersIncludeTies(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	startGame(t, g, "room1", 3)

	// Nobody scores: every player ties at zero and everyone wins.
	for round := 1; round <= 5; round++ {
		_, over, err := g.NextRound("room1")
		require.NoError(t, err)
		if round == 5 {
			require.NotNil(t, over)
			assert.Len(t, over.Winners, 3)
		}
	}
}

func TestRemovePlayerForceEndsShortGame(t *testing.T) {
	g, _ := newGame()
	g.SetRoundEndDelay(time.Hour)

	startGame(t, g, "room1", 3)

	state, over, ok := g.RemovePlayer("room1", "alice")
	require.True(t, ok)
	require.NotNil(t, over, "dropping below three players ends the game")
	assert.Len(t, state.Players, 2)
	assert.False(t, state.GameStarted)
}

func TestRemovePlayerFromLobby(t *testing.T) {
	g, _ := newGame()

	g.Join("room1", "alice", "Alice")
	g.Join("room1", "bob", "Bob")

	state, over, ok := g.RemovePlayer("room1", "alice")
	require.True(t, ok)
	assert.Nil(t, over)
	assert.Len(t, state.Players, 1)
}

func TestChatSanitization(t *testing.T) {
	g, _ := newGame()
	g.Join("room1", "alice", "Alice")

	msg, ok := g.Chat("room1", "alice", "<script>alert(1)</script>")
	require.True(t, ok)
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", msg.Message)
	assert.Equal(t, "Alice", msg.Username)
}

func TestChatRejectsInvalid(t *testing.T) {
	g, _ := newGame()
	g.Join("room1", "alice", "Alice")

	tests := []struct {
		name    string
		connID  string
		message string
	}{
		{"empty", "alice", ""},
		{"too long", "alice", strings.Repeat("a", 201)},
		{"non-player", "mallory", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.Chat("room1", tt.connID, tt.message)
			assert.False(t, ok)
		})
	}
}

func TestEmojiValidation(t *testing.T) {
	g, _ := newGame()

	tests := []struct {
		name  string
		emoji string
		valid bool
	}{
		{"single emoji", "\U0001F600", true},
		{"thumbs up", "\U0001F44D", true},
		{"with skin tone", "\U0001F44D\U0001F3FB", true},
		{"heart with vs16", "❤️", true},
		{"plain text", "lol", false},
		{"empty", "", false},
		{"five runes", "\U0001F600\U0001F600\U0001F600\U0001F600\U0001F600", false},
		{"mixed", "\U0001F600a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.Emoji("room1", "alice", tt.emoji)
			assert.Equal(t, tt.valid, ok)
		})
	}
}
