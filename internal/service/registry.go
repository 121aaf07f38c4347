package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"peercourt/internal/model"
)

var (
	ErrRoomNotFound   = errors.New("room not found or has expired")
	ErrServerCapacity = errors.New("server is at room capacity")
)

const (
	maxActiveRooms = 1000
	roomTTL        = 2 * time.Hour
	sweepInterval  = 30 * time.Minute
	roomIDLength   = 6
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomIDAttempts = 10
)

// RegistryService owns room metadata and the periodic sweep that evicts
// expired empty rooms. Membership itself lives in the transport; every
// occupancy decision re-reads it through the Rooms interface.
type RegistryService struct {
	groups Rooms
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*model.Room
	hooks []func()
	now   func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistryService creates the registry and starts its sweep loop.
func NewRegistryService(groups Rooms, logger *slog.Logger) *RegistryService {
	s := &RegistryService{
		groups: groups,
		logger: logger,
		rooms:  make(map[string]*model.Room),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

// SetClock overrides the registry's time source (tests age rooms past the
// TTL).
func (s *RegistryService) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// CreateRoom allocates a room id, joins the creator to the underlying group
// and records metadata. Returns the new id and the live occupancy.
func (s *RegistryService) CreateRoom(creatorID string) (string, int, error) {
	s.mu.Lock()
	if len(s.rooms) >= maxActiveRooms {
		s.mu.Unlock()
		return "", 0, ErrServerCapacity
	}

	roomID, err := s.generateRoomIDLocked()
	if err != nil {
		s.mu.Unlock()
		return "", 0, err
	}

	now := s.now()
	s.rooms[roomID] = &model.Room{
		ID:           roomID,
		CreatedAt:    now,
		Creator:      creatorID,
		LastActivity: now,
		PlayerCount:  1,
	}
	s.mu.Unlock()

	s.groups.Join(creatorID, roomID)

	// Occupancy re-read after the join, not assumed.
	count := s.groups.Occupancy(roomID)
	s.setPlayerCount(roomID, count)

	s.logger.Info("room created", "room_id", roomID, "creator", creatorID)
	return roomID, count, nil
}

// JoinRoom admits a connection into a room. Joining is idempotent for
// existing members. It returns the other occupants (so the caller can
// bootstrap peer connections) and the live occupancy.
func (s *RegistryService) JoinRoom(connID, roomID string) ([]string, int, error) {
	s.mu.Lock()
	_, known := s.rooms[roomID]
	s.mu.Unlock()

	member := s.groups.IsMember(connID, roomID)
	if !known && !member && s.groups.Occupancy(roomID) == 0 {
		return nil, 0, ErrRoomNotFound
	}

	if !member {
		s.groups.Join(connID, roomID)
	}

	occupants := s.groups.Occupants(roomID)
	count := len(occupants)
	others := make([]string, 0, count)
	for _, id := range occupants {
		if id != connID {
			others = append(others, id)
		}
	}

	s.mu.Lock()
	if room, ok := s.rooms[roomID]; ok {
		room.LastActivity = s.now()
		room.PlayerCount = count
		room.Empty = false
	}
	s.mu.Unlock()

	return others, count, nil
}

// LeaveRoom removes the connection from the room's group and refreshes the
// cached metadata. Returns the live occupancy after the leave.
func (s *RegistryService) LeaveRoom(connID, roomID string) int {
	s.groups.Leave(connID, roomID)
	count := s.groups.Occupancy(roomID)

	s.mu.Lock()
	if room, ok := s.rooms[roomID]; ok {
		now := s.now()
		room.PlayerCount = count
		room.LastActivity = now
		if count == 0 {
			room.Empty = true
			room.EmptyTime = now
		}
	}
	s.mu.Unlock()

	return count
}

// Touch bumps a room's activity timestamp.
func (s *RegistryService) Touch(roomID string) {
	s.mu.Lock()
	if room, ok := s.rooms[roomID]; ok {
		room.LastActivity = s.now()
	}
	s.mu.Unlock()
}

// SetGameInProgress flags whether a game session is running in the room.
func (s *RegistryService) SetGameInProgress(roomID string, inProgress bool) {
	s.mu.Lock()
	if room, ok := s.rooms[roomID]; ok {
		room.GameInProgress = inProgress
	}
	s.mu.Unlock()
}

// Room returns a copy of the metadata for roomID.
func (s *RegistryService) Room(roomID string) (model.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return model.Room{}, false
	}
	return *room, true
}

// ActiveRooms returns the number of registered rooms.
func (s *RegistryService) ActiveRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// OnSweep registers a hook executed after every sweep pass (used for
// limiter pruning).
func (s *RegistryService) OnSweep(fn func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Sweep deletes rooms older than the TTL whose live occupancy is zero.
// Occupancy is read fresh per room so a concurrent join cannot be raced
// destructively. Returns the number of rooms removed.
func (s *RegistryService) Sweep() int {
	s.mu.Lock()
	now := s.now()
	expired := make([]string, 0)
	for id, room := range s.rooms {
		if now.Sub(room.CreatedAt) > roomTTL {
			expired = append(expired, id)
		}
	}
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	removed := 0
	for _, id := range expired {
		if s.groups.Occupancy(id) > 0 {
			continue
		}
		s.mu.Lock()
		if _, ok := s.rooms[id]; ok {
			delete(s.rooms, id)
			removed++
		}
		s.mu.Unlock()
	}

	for _, fn := range hooks {
		fn()
	}

	if removed > 0 {
		s.logger.Info("expired rooms removed", "count", removed, "active", s.ActiveRooms())
	}
	return removed
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *RegistryService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *RegistryService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *RegistryService) setPlayerCount(roomID string, count int) {
	s.mu.Lock()
	if room, ok := s.rooms[roomID]; ok {
		room.PlayerCount = count
	}
	s.mu.Unlock()
}

// generateRoomIDLocked samples 6 base-36 characters, regenerating on a
// collision with an existing room rather than overwriting it.
func (s *RegistryService) generateRoomIDLocked() (string, error) {
	for range roomIDAttempts {
		b := make([]byte, roomIDLength)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		id := make([]byte, roomIDLength)
		for i := range id {
			id[i] = roomIDAlphabet[int(b[i])%len(roomIDAlphabet)]
		}
		if _, exists := s.rooms[string(id)]; !exists {
			return string(id), nil
		}
	}
	return "", fmt.Errorf("no unused room id after %d attempts", roomIDAttempts)
}
