package game

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/playheadball/backend/internal/metrics"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomManager is the registry of live rooms. It owns the player-to-room
// index used by the socket layer to route gameplay events.
type RoomManager struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	playerToRoom map[string]string

	maxRooms      int
	tickRate      int
	goalCooldownS int
	pauseTimeout  time.Duration
}

// Manager is the process-wide room registry. Configure* is called once at
// startup before any traffic.
var Manager = NewRoomManager(0)

// NewRoomManager creates a registry. maxRooms <= 0 means unlimited.
func NewRoomManager(maxRooms int) *RoomManager {
	return &RoomManager{
		rooms:         make(map[string]*Room),
		playerToRoom:  make(map[string]string),
		maxRooms:      maxRooms,
		tickRate:      DefaultTickRate,
		goalCooldownS: 3,
		pauseTimeout:  30 * time.Second,
	}
}

// Configure sets the room parameters applied to every created room.
func (rm *RoomManager) Configure(maxRooms, tickRate, goalCooldownS int, pauseTimeout time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.maxRooms = maxRooms
	if tickRate > 0 {
		rm.tickRate = tickRate
	}
	rm.goalCooldownS = goalCooldownS
	rm.pauseTimeout = pauseTimeout
}

// CreateRoom builds a room for a matched pair and registers it.
func (rm *RoomManager) CreateRoom(mode GameMode, p1, p2 *Player, pipeline *Pipeline, onEnd func(*Room, EndReason)) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.maxRooms > 0 && len(rm.rooms) >= rm.maxRooms {
		return nil, ErrTooManyRooms
	}

	r, err := NewRoom(mode, p1, p2, rm.tickRate, rm.goalCooldownS, rm.pauseTimeout, pipeline, onEnd)
	if err != nil {
		return nil, err
	}

	rm.rooms[r.ID] = r
	rm.playerToRoom[p1.ID] = r.ID
	rm.playerToRoom[p2.ID] = r.ID
	metrics.RoomsActive.Set(float64(len(rm.rooms)))

	log.Printf("[ROOM] Created %s mode=%s players=%s,%s avgElo=%d", r.ID, mode, p1.ID, p2.ID, r.AvgElo)
	return r, nil
}

// GetRoom returns the room by id.
func (rm *RoomManager) GetRoom(roomID string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.rooms[roomID]
	return r, ok
}

// GetRoomForPlayer returns the room the player currently belongs to.
func (rm *RoomManager) GetRoomForPlayer(playerID string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	id, ok := rm.playerToRoom[playerID]
	if !ok {
		return nil, false
	}
	r, ok := rm.rooms[id]
	return r, ok
}

// RemoveRoom drops the room and its player index entries.
func (rm *RoomManager) RemoveRoom(roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, ok := rm.rooms[roomID]
	if !ok {
		return
	}
	delete(rm.rooms, roomID)
	if r.Left() != nil {
		delete(rm.playerToRoom, r.Left().ID)
	}
	if r.Right() != nil {
		delete(rm.playerToRoom, r.Right().ID)
	}
	metrics.RoomsActive.Set(float64(len(rm.rooms)))
	log.Printf("[ROOM] Removed %s", roomID)
}

// RoomCount reports the number of live rooms. Wired into the matchmaker's
// capacity check.
func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// ActiveRooms returns a snapshot of the live room set.
func (rm *RoomManager) ActiveRooms() []*Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]*Room, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		out = append(out, r)
	}
	return out
}
