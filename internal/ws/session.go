package ws

import (
	"context"
	"log"
	"time"

	"github.com/playheadball/backend/internal/game"
	"github.com/playheadball/backend/internal/metrics"
)

// afterRegister finishes the auth/reconnect flow once the hub owns the
// socket.
func (s *Server) afterRegister(client *Client) {
	p := s.playerByID(client.playerID)
	if p == nil {
		return
	}

	client.sendJSON("authenticated", map[string]interface{}{
		"playerId": p.ID,
		"username": p.DisplayName,
		"elo":      p.Elo(),
	})

	if !client.reconnected {
		return
	}

	metrics.ConnectionsReconnected.Inc()
	s.cancelGraceTimer(client.playerID)

	room, inRoom := s.rooms.GetRoomForPlayer(client.playerID)
	client.sendJSON("reconnected", map[string]interface{}{
		"playerId":   p.ID,
		"inRoom":     inRoom,
		"reconnects": p.Reconnects(),
	})

	if !inRoom {
		return
	}

	s.hub.JoinRoom(room.ID, client.playerID)
	scoreL, scoreR := room.Score()
	client.sendJSON("game_state", map[string]interface{}{
		"roomId": room.ID,
		"state":  string(room.State()),
		"mode":   string(room.Mode),
		"score":  map[string]interface{}{"left": scoreL, "right": scoreR},
		"world":  room.WorldSnapshot(),
	})

	if room.State() == game.RoomPaused && room.PausedBy() == client.playerID {
		if room.Resume() {
			s.hub.BroadcastToRoom(room.ID, "game_resumed", map[string]interface{}{
				"roomId": room.ID,
				"reason": "player_reconnected",
				"player": client.playerID,
			})
		}
	}
}

// onPlayerDisconnect runs after the hub dropped the socket. A playing room
// pauses and a grace timer decides whether the match survives.
func (s *Server) onPlayerDisconnect(playerID string) {
	p := s.playerByID(playerID)
	if p == nil {
		return
	}
	p.MarkDisconnected()

	room, ok := s.rooms.GetRoomForPlayer(playerID)
	if !ok {
		// Queued players are purged by the next matchmaker pass.
		return
	}

	switch room.State() {
	case game.RoomPlaying:
		room.Pause(playerID)
		s.hub.BroadcastToRoom(room.ID, "player_disconnected", map[string]interface{}{
			"player":        playerID,
			"grace_seconds": s.cfg.ReconnectGraceSeconds,
		})
		s.startGraceTimer(playerID, room)
	case game.RoomPaused:
		s.startGraceTimer(playerID, room)
	}
}

// startGraceTimer ends the room for disconnect unless the player
// re-authenticates within the grace period.
func (s *Server) startGraceTimer(playerID string, room *game.Room) {
	s.graceMu.Lock()
	defer s.graceMu.Unlock()
	if t, exists := s.graceTimers[playerID]; exists {
		t.Stop()
	}
	s.graceTimers[playerID] = time.AfterFunc(s.reconnectGrace, func() {
		s.graceMu.Lock()
		delete(s.graceTimers, playerID)
		s.graceMu.Unlock()

		p := s.playerByID(playerID)
		if p != nil && p.Connected() {
			return
		}
		log.Printf("[WS] Reconnect grace expired for player %s in room %s", playerID, room.ID)
		room.EndForDisconnect()
	})
}

func (s *Server) cancelGraceTimer(playerID string) {
	s.graceMu.Lock()
	if t, exists := s.graceTimers[playerID]; exists {
		t.Stop()
		delete(s.graceTimers, playerID)
	}
	s.graceMu.Unlock()
}

// onMatch receives a pairing from the matchmaker, provisions the room, and
// opens the ready-up window.
func (s *Server) onMatch(a, b *game.QueueEntry) {
	room, err := s.rooms.CreateRoom(a.Mode, a.Player, b.Player, s.pipeline, s.onRoomEnd)
	if err != nil {
		log.Printf("[WS] Room provisioning failed for %s vs %s: %v", a.Player.ID, b.Player.ID, err)
		// Rewind the pairing preserving queue order.
		if errB := s.matchmaker.EnqueueFront(b.Player, b.Mode, b.Region); errB != nil {
			b.Player.SetStatus(game.StatusIdle)
		}
		if errA := s.matchmaker.EnqueueFront(a.Player, a.Mode, a.Region); errA != nil {
			a.Player.SetStatus(game.StatusIdle)
		}
		return
	}

	s.pendingMu.Lock()
	s.pending[room.ID] = &pendingMatch{room: room, a: a, b: b}
	s.pendingMu.Unlock()

	s.hub.JoinRoom(room.ID, a.Player.ID)
	s.hub.JoinRoom(room.ID, b.Player.ID)

	s.hub.BroadcastToRoom(room.ID, "match_created", map[string]interface{}{
		"roomId":        room.ID,
		"mode":          string(room.Mode),
		"players":       []string{a.Player.ID, b.Player.ID},
		"averageElo":    room.AvgElo,
		"eloDifference": room.EloDiff,
	})

	notify := func(self, opp *game.Player) {
		s.hub.SendToPlayer(self.ID, "match_found", map[string]interface{}{
			"roomId": room.ID,
			"mode":   string(room.Mode),
			"role":   string(self.RoleAssigned()),
			"opponent": map[string]interface{}{
				"id":       opp.ID,
				"username": opp.DisplayName,
				"elo":      opp.Elo(),
			},
			"readyUpSeconds": s.cfg.ReadyUpSeconds,
		})
	}
	notify(a.Player, b.Player)
	notify(b.Player, a.Player)

	roomID := room.ID
	time.AfterFunc(s.readyUpWindow, func() { s.readyUpTimeout(roomID) })
}

// readyUpTimeout rewinds a pairing whose window expired without both
// confirmations.
func (s *Server) readyUpTimeout(roomID string) {
	s.pendingMu.Lock()
	pm, ok := s.pending[roomID]
	if ok {
		delete(s.pending, roomID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	log.Printf("[WS] Ready-up window expired for room %s", roomID)
	s.rewindPairing(pm)
}

// rewindPairing tears a pre-game room down. Players who confirmed rejoin at
// the head of the queue; the rest are withdrawn.
func (s *Server) rewindPairing(pm *pendingMatch) {
	readyA := pm.a.Player.Ready()
	readyB := pm.b.Player.Ready()

	pm.room.Cancel()
	pm.a.Player.ClearRole()
	pm.b.Player.ClearRole()
	s.rooms.RemoveRoom(pm.room.ID)
	s.hub.RemoveRoom(pm.room.ID)

	requeue := func(e *game.QueueEntry, wasReady bool) {
		p := e.Player
		if wasReady && p.Connected() {
			if err := s.matchmaker.EnqueueFront(p, e.Mode, e.Region); err == nil {
				s.hub.SendToPlayer(p.ID, "matchmaking_joined", map[string]interface{}{
					"requeued": true,
					"position": s.matchmaker.PositionOf(p.ID),
				})
				return
			}
		}
		p.SetStatus(game.StatusIdle)
		s.hub.SendToPlayer(p.ID, "matchmaking_left", map[string]interface{}{
			"reason": "ready_up_timeout",
		})
	}
	requeue(pm.a, readyA)
	requeue(pm.b, readyB)
}

// startPending launches a fully confirmed room. Returns false when the
// window already expired.
func (s *Server) startPending(room *game.Room) bool {
	s.pendingMu.Lock()
	_, ok := s.pending[room.ID]
	if ok {
		delete(s.pending, room.ID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}

	if !room.StartGame() {
		return false
	}
	s.hub.BroadcastToRoom(room.ID, "game_started", map[string]interface{}{
		"roomId":     room.ID,
		"mode":       string(room.Mode),
		"scoreLimit": game.ScoreLimitFor(room.Mode),
		"timeLimit":  game.TimeLimitFor(room.Mode),
		"tickRate":   s.cfg.TickRate,
	})
	return true
}

// onQueueTimeout notifies a player expired out of the queue.
func (s *Server) onQueueTimeout(e *game.QueueEntry) {
	s.hub.SendToPlayer(e.Player.ID, "queue_timeout", map[string]interface{}{
		"waited_seconds": int(time.Since(e.JoinedAt).Seconds()),
	})
}

// onUnhealthyRoom force-ends a room whose critical queue overflowed.
func (s *Server) onUnhealthyRoom(roomID string) {
	if room, ok := s.rooms.GetRoom(roomID); ok {
		room.ForceEnd("pipeline_overload")
	}
}

// onRoomEnd is every room's terminal hook.
func (s *Server) onRoomEnd(r *game.Room, reason game.EndReason) {
	if r.Left() != nil {
		s.cancelGraceTimer(r.Left().ID)
	}
	if r.Right() != nil {
		s.cancelGraceTimer(r.Right().ID)
	}
	s.gameEnd.Process(r, reason)
}

// hydrateElo loads the stored rating for a fresh player record.
func (s *Server) hydrateElo(p *game.Player) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	elo, err := s.persistence.LoadElo(ctx, p.ID)
	if err != nil {
		log.Printf("[WS] Elo load failed for player %s: %v", p.ID, err)
		return
	}
	p.SetElo(elo)
}
