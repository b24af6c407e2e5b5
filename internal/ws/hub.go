package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of authenticated clients and the per-room socket
// sets the pipeline fans out over. It implements game.Broadcaster.
type Hub struct {
	clients map[string]*Client            // playerID -> Client
	rooms   map[string]map[string]*Client // roomID -> playerID -> Client

	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// wsMessage flattens an event into a wire frame with the type on top.
func wsMessage(event string, data map[string]interface{}) []byte {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["type"] = event
	b, err := json.Marshal(out)
	if err != nil {
		log.Printf("[WS] Error marshaling %s message: %v", event, err)
		return nil
	}
	return b
}

// BroadcastToRoom sends an event to every socket mapped to the room.
func (h *Hub) BroadcastToRoom(roomID, event string, data map[string]interface{}) {
	frame := wsMessage(event, data)
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, exists := h.rooms[roomID]; exists {
		for _, client := range room {
			select {
			case client.send <- frame:
			default:
				log.Printf("[WS] Send buffer full for player %s in room %s, dropping %s", client.playerID, roomID, event)
			}
		}
	}
}

// BroadcastToRoomExcept sends an event to the room omitting one socket.
// Input echoes use this so the origin never receives its own input back.
func (h *Hub) BroadcastToRoomExcept(roomID, excludePlayerID, event string, data map[string]interface{}) {
	frame := wsMessage(event, data)
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, exists := h.rooms[roomID]; exists {
		for id, client := range room {
			if id == excludePlayerID {
				continue
			}
			select {
			case client.send <- frame:
			default:
				log.Printf("[WS] Send buffer full for player %s in room %s, dropping %s", client.playerID, roomID, event)
			}
		}
	}
}

// SendToPlayer sends an event to one player's socket.
func (h *Hub) SendToPlayer(playerID, event string, data map[string]interface{}) {
	frame := wsMessage(event, data)
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[playerID]; exists {
		select {
		case client.send <- frame:
		default:
			log.Printf("[WS] SendToPlayer dropped %s for player %s (buffer full)", event, playerID)
		}
	}
}

// BroadcastToAll sends an event to every authenticated socket.
func (h *Hub) BroadcastToAll(event string, data map[string]interface{}) {
	frame := wsMessage(event, data)
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- frame:
		default:
			log.Printf("[WS] BroadcastToAll dropped %s for player %s (buffer full)", event, client.playerID)
		}
	}
}

// JoinRoom maps a player's socket into a room's broadcast set.
func (h *Hub) JoinRoom(roomID, playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[playerID]
	if !ok {
		return false
	}
	if _, exists := h.rooms[roomID]; !exists {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][playerID] = client
	client.roomID = roomID
	return true
}

// LeaveRoom removes a player's socket from a room's broadcast set.
func (h *Hub) LeaveRoom(roomID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, exists := h.rooms[roomID]; exists {
		delete(room, playerID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if client, ok := h.clients[playerID]; ok && client.roomID == roomID {
		client.roomID = ""
	}
}

// RemoveRoom drops a room's entire broadcast set (post-game cleanup).
func (h *Hub) RemoveRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, exists := h.rooms[roomID]; exists {
		for _, client := range room {
			if client.roomID == roomID {
				client.roomID = ""
			}
		}
		delete(h.rooms, roomID)
	}
}

// ClientCount returns the number of authenticated sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the authenticated client set.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}
