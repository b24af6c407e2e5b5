package game

import (
	"errors"
	"sync"
	"time"
)

// PlayerStatus is a player's per-session state.
type PlayerStatus string

const (
	StatusIdle         PlayerStatus = "IDLE"
	StatusInQueue      PlayerStatus = "IN_QUEUE"
	StatusInRoom       PlayerStatus = "IN_ROOM"
	StatusInGame       PlayerStatus = "IN_GAME"
	StatusDisconnected PlayerStatus = "DISCONNECTED"
)

// Role is a player's slot in a room.
type Role string

const (
	RoleUnset Role = ""
	RoleLeft  Role = "left"
	RoleRight Role = "right"
)

var (
	ErrAlreadyAssigned = errors.New("role already assigned")
	ErrNoSessionFound  = errors.New("no room or queue entry for player")
)

// Player is the shared player record. Connection fields are mutated by the
// connection manager only; role and ready fields by the player's current
// owner (queue entry or room).
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	mu             sync.RWMutex
	socketID       string
	connected      bool
	lastActivity   time.Time
	disconnectedAt *time.Time
	reconnects     int

	status   PlayerStatus
	role     Role
	joinedAt time.Time
	ready    bool
	elo      int
}

// NewPlayer creates a player record on first authenticated socket.
func NewPlayer(id, displayName, socketID string) *Player {
	return &Player{
		ID:           id,
		DisplayName:  displayName,
		socketID:     socketID,
		connected:    true,
		lastActivity: time.Now(),
		status:       StatusIdle,
		joinedAt:     time.Now(),
		elo:          1200,
	}
}

// Touch updates the last-activity timestamp.
func (p *Player) Touch() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// LastActivity returns the last time any traffic was seen from this player.
func (p *Player) LastActivity() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastActivity
}

// SetReady flips the ready flag.
func (p *Player) SetReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// Ready reports the ready flag.
func (p *Player) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// AssignRole binds the player to a room slot. Fails if a role is already set.
func (p *Player) AssignRole(role Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.role != RoleUnset {
		return ErrAlreadyAssigned
	}
	p.role = role
	return nil
}

// ClearRole releases the room slot on cleanup or pairing rewind.
func (p *Player) ClearRole() {
	p.mu.Lock()
	p.role = RoleUnset
	p.ready = false
	p.mu.Unlock()
}

// RoleAssigned returns the player's current slot.
func (p *Player) RoleAssigned() Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.role
}

// MarkDisconnected records socket loss. Status becomes DISCONNECTED; the
// previous owner (room or queue) decides what to do with the grace period.
func (p *Player) MarkDisconnected() {
	p.mu.Lock()
	now := time.Now()
	p.connected = false
	p.disconnectedAt = &now
	p.status = StatusDisconnected
	p.mu.Unlock()
}

// Reconnect binds a new socket to the player and resumes the session the
// player still owns: IN_ROOM or IN_GAME for a room, IN_QUEUE for a queue
// entry. Without a session there is nothing to reconnect to.
func (p *Player) Reconnect(newSocketID string, resume PlayerStatus) error {
	switch resume {
	case StatusInRoom, StatusInGame, StatusInQueue:
	default:
		return ErrNoSessionFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.socketID = newSocketID
	p.connected = true
	p.disconnectedAt = nil
	p.reconnects++
	p.lastActivity = time.Now()
	p.status = resume
	return nil
}

// Connected reports whether the player has a live socket.
func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// DisconnectedAt returns when the socket dropped, or nil while connected.
func (p *Player) DisconnectedAt() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disconnectedAt
}

// Reconnects returns how many times this player re-bound a socket.
func (p *Player) Reconnects() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reconnects
}

// SocketID returns the bound socket id.
func (p *Player) SocketID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.socketID
}

// SetSocketID rebinds the socket id (connection manager only).
func (p *Player) SetSocketID(id string) {
	p.mu.Lock()
	p.socketID = id
	p.connected = true
	p.mu.Unlock()
}

// Status returns the player's session status.
func (p *Player) Status() PlayerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetStatus moves the player through the session state machine. Transitions
// are owned by whichever component owns the player at that moment.
func (p *Player) SetStatus(s PlayerStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Elo returns the player's rating.
func (p *Player) Elo() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.elo
}

// SetElo sets the rating (loaded from player_stats on authenticate).
func (p *Player) SetElo(elo int) {
	p.mu.Lock()
	p.elo = elo
	p.mu.Unlock()
}
