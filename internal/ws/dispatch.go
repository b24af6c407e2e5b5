package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/playheadball/backend/internal/game"
)

// handleMessage routes one inbound frame. Unauthenticated sockets may only
// authenticate and ping.
func (s *Server) handleMessage(c *Client, msg WSMessage) {
	if c.playerID == "" && msg.Type != "authenticate" && msg.Type != "ping" {
		c.sendJSON("auth_error", map[string]interface{}{"message": "not authenticated"})
		return
	}

	switch msg.Type {
	case "authenticate":
		s.handleAuthenticate(c, msg.Data)
	case "ping":
		s.handlePing(c, msg.Data)
	case "join_room":
		s.handleJoinRoom(c, msg.Data)
	case "leave_room":
		s.handleLeaveRoom(c, msg.Data)
	case "join_matchmaking":
		s.handleJoinMatchmaking(c, msg.Data)
	case "leave_matchmaking":
		s.handleLeaveMatchmaking(c)
	case "ready_up":
		s.handleReadyUp(c, msg.Data)
	case "chat_message":
		s.handleChat(c, msg.Data)
	case "heartbeat":
		s.handleHeartbeat(c, msg.Data)
	case "player_movement":
		s.handleMovement(c, msg.Data)
	case "ball_update":
		s.handleBallUpdate(c, msg.Data)
	case "goal_attempt":
		s.handleGoalAttempt(c, msg.Data)
	case "forfeit_game":
		s.handleForfeit(c)
	case "request_game_end":
		s.handleRequestGameEnd(c, msg.Data)
	case "pause_request":
		s.handlePauseRequest(c)
	case "resume_request":
		s.handleResumeRequest(c)
	default:
		c.sendError("unknown message type")
	}
}

// decode unmarshals a frame payload into a generic map.
func decode(data json.RawMessage) map[string]interface{} {
	out := make(map[string]interface{})
	if len(data) > 0 {
		json.Unmarshal(data, &out)
	}
	return out
}

func asString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func asFloat(m map[string]interface{}, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asBool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// parseVec reads a {x, y} object.
func parseVec(m map[string]interface{}, key string) (game.Vec2, bool) {
	obj, ok := m[key].(map[string]interface{})
	if !ok {
		return game.Vec2{}, false
	}
	x, okX := asFloat(obj, "x")
	y, okY := asFloat(obj, "y")
	if !okX || !okY {
		return game.Vec2{}, false
	}
	return game.NewVec2(x, y), true
}

// handleAuthenticate binds the socket to a player record. A valid HS256
// token, when provided, must carry the claimed player id as its subject.
func (s *Server) handleAuthenticate(c *Client, data json.RawMessage) {
	payload := decode(data)
	playerID := asString(payload, "playerId")
	username := asString(payload, "username")
	token := asString(payload, "token")

	if playerID == "" {
		c.sendJSON("auth_error", map[string]interface{}{"message": "playerId required"})
		c.conn.Close()
		return
	}
	if c.playerID != "" {
		c.sendJSON("auth_error", map[string]interface{}{"message": "already authenticated"})
		return
	}
	if token != "" {
		if err := verifyToken(token, playerID, s.cfg.JWTSecret); err != nil {
			log.Printf("[WS] Auth failed for player %s: %v", playerID, err)
			c.sendJSON("auth_error", map[string]interface{}{"message": err.Error()})
			c.conn.Close()
			return
		}
	}

	socketID := s.nextSocketID()

	s.playersMu.Lock()
	p, exists := s.players[playerID]
	if !exists {
		p = game.NewPlayer(playerID, username, socketID)
		s.players[playerID] = p
	}
	s.playersMu.Unlock()

	reconnected := false
	if exists {
		if p.Connected() {
			// Live socket takeover.
			p.SetSocketID(socketID)
			reconnected = true
		} else {
			resume := game.PlayerStatus("")
			if _, inRoom := s.rooms.GetRoomForPlayer(playerID); inRoom {
				resume = game.StatusInRoom
			} else if s.matchmaker.PositionOf(playerID) > 0 {
				resume = game.StatusInQueue
			}
			if err := p.Reconnect(socketID, resume); err != nil {
				// Session already gone; start fresh.
				p.SetSocketID(socketID)
				p.SetStatus(game.StatusIdle)
			} else {
				reconnected = true
			}
		}
	} else {
		go s.hydrateElo(p)
	}

	c.playerID = playerID
	c.reconnected = reconnected
	s.hub.register <- c
}

// handlePing answers with server time and records the latency sample.
func (s *Server) handlePing(c *Client, data json.RawMessage) {
	payload := decode(data)
	clientTime, _ := asFloat(payload, "clientTime")
	if c.playerID != "" && clientTime > 0 {
		s.pipeline.ObserveLatency(c.playerID, int64(clientTime))
	}
	c.sendJSON("pong", map[string]interface{}{
		"serverTime": time.Now().UnixMilli(),
		"clientTime": clientTime,
	})
}

func (s *Server) handleJoinRoom(c *Client, data json.RawMessage) {
	payload := decode(data)
	roomID := asString(payload, "roomId")

	room, ok := s.rooms.GetRoom(roomID)
	if !ok || room.PlayerByID(c.playerID) == nil {
		c.sendJSON("join_room_error", map[string]interface{}{"roomId": roomID, "message": "room not found"})
		return
	}

	s.hub.JoinRoom(roomID, c.playerID)
	scoreL, scoreR := room.Score()
	c.sendJSON("room_joined", map[string]interface{}{
		"roomId": roomID,
		"state":  string(room.State()),
		"mode":   string(room.Mode),
		"score":  map[string]interface{}{"left": scoreL, "right": scoreR},
	})
}

func (s *Server) handleLeaveRoom(c *Client, data json.RawMessage) {
	payload := decode(data)
	roomID := asString(payload, "roomId")
	s.hub.LeaveRoom(roomID, c.playerID)
	c.sendJSON("room_left", map[string]interface{}{"roomId": roomID})
}

func (s *Server) handleJoinMatchmaking(c *Client, data json.RawMessage) {
	payload := decode(data)
	mode := game.GameMode(asString(payload, "gameMode"))
	region := asString(payload, "region")

	switch mode {
	case game.ModeCasual, game.ModeRanked, game.ModeTournament:
	case "":
		mode = game.ModeCasual
	default:
		c.sendJSON("matchmaking_error", map[string]interface{}{"message": "unknown game mode"})
		return
	}

	p := s.playerByID(c.playerID)
	if p == nil {
		c.sendJSON("matchmaking_error", map[string]interface{}{"message": "player not found"})
		return
	}

	if err := s.matchmaker.Enqueue(p, mode, region); err != nil {
		c.sendJSON("matchmaking_error", map[string]interface{}{"message": err.Error()})
		return
	}
	c.sendJSON("matchmaking_joined", map[string]interface{}{
		"gameMode": string(mode),
		"position": s.matchmaker.PositionOf(c.playerID),
	})
}

func (s *Server) handleLeaveMatchmaking(c *Client) {
	if err := s.matchmaker.Dequeue(c.playerID); err != nil {
		c.sendJSON("matchmaking_error", map[string]interface{}{"message": err.Error()})
		return
	}
	c.sendJSON("matchmaking_left", map[string]interface{}{"reason": "requested"})
}

// handleReadyUp confirms or declines a formed pairing.
func (s *Server) handleReadyUp(c *Client, data json.RawMessage) {
	payload := decode(data)
	ready := asBool(payload, "ready")

	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok || room.State() != game.RoomWaiting {
		c.sendError("no pairing awaiting confirmation")
		return
	}

	p := s.playerByID(c.playerID)
	p.SetReady(ready)
	s.hub.BroadcastToRoom(room.ID, "ready_state_changed", map[string]interface{}{
		"player": c.playerID,
		"ready":  ready,
	})

	if !ready {
		// Decline rewinds immediately instead of waiting out the window.
		s.pendingMu.Lock()
		pm, pending := s.pending[room.ID]
		if pending {
			delete(s.pending, room.ID)
		}
		s.pendingMu.Unlock()
		if pending {
			s.rewindPairing(pm)
		}
		return
	}

	if room.MarkReady() {
		s.startPending(room)
	}
}

func (s *Server) handleChat(c *Client, data json.RawMessage) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok {
		c.sendError("not in a room")
		return
	}

	payload := decode(data)
	payload["from"] = c.playerID
	s.pipeline.Publish(&game.Envelope{
		Type:       game.EventChatMessage,
		Payload:    payload,
		Origin:     c.playerID,
		TargetRoom: room.ID,
	})
}

func (s *Server) handleHeartbeat(c *Client, data json.RawMessage) {
	payload := decode(data)
	clientTime, _ := asFloat(payload, "clientTime")
	s.pipeline.Publish(&game.Envelope{
		Type:            game.EventHeartbeat,
		Payload:         payload,
		Origin:          c.playerID,
		TargetPlayer:    c.playerID,
		ClientTimestamp: int64(clientTime),
	})
}

// handleMovement validates a movement claim, feeds the simulation input, and
// echoes the movement to the opponent with the lag compensation applied.
func (s *Server) handleMovement(c *Client, data json.RawMessage) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok || room.State() != game.RoomPlaying {
		return
	}

	payload := decode(data)
	pos, okP := parseVec(payload, "position")
	vel, okV := parseVec(payload, "velocity")
	ts, _ := asFloat(payload, "timestamp")
	seq, _ := asFloat(payload, "sequenceId")
	if !okP || !okV {
		c.sendJSON("movement_rejected", map[string]interface{}{"reason": "malformed position or velocity"})
		return
	}

	claim := game.MovementClaim{
		Position:  pos,
		Velocity:  vel,
		Timestamp: int64(ts),
		Sequence:  uint64(seq),
	}
	verdict := s.validator.ValidateMovement(c.playerID, claim)
	if !verdict.Accepted {
		// Corrective payload lets the client snap back.
		c.sendJSON("movement_rejected", map[string]interface{}{
			"reason":    verdict.Reason,
			"corrected": verdict.Corrected,
		})
		return
	}
	if verdict.Duplicate {
		// Redelivered sequence id; the first delivery was already applied
		// and echoed.
		return
	}

	room.SubmitInput(c.playerID, game.PlayerInput{
		Left:     vel.X < -0.01,
		Right:    vel.X > 0.01,
		Jump:     vel.Y < -0.01,
		Kick:     asBool(payload, "kick"),
		Sequence: claim.Sequence,
	})

	compensated := game.Compensate(claim, verdict.LagCompMs)
	payload["player"] = c.playerID
	payload["position"] = map[string]interface{}{"x": compensated.X, "y": compensated.Y}
	payload["lagCompensation"] = verdict.LagCompMs
	s.pipeline.Publish(&game.Envelope{
		Type:            game.EventPlayerMovement,
		Payload:         payload,
		Origin:          c.playerID,
		TargetRoom:      room.ID,
		ExcludeOrigin:   true,
		ClientTimestamp: claim.Timestamp,
	})
}

// handleBallUpdate echoes a client ball prediction to the opponent. The
// authoritative ball lives in the room simulation.
func (s *Server) handleBallUpdate(c *Client, data json.RawMessage) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok || room.State() != game.RoomPlaying {
		return
	}

	payload := decode(data)
	payload["player"] = c.playerID
	s.pipeline.Publish(&game.Envelope{
		Type:          game.EventBallUpdate,
		Payload:       payload,
		Origin:        c.playerID,
		TargetRoom:    room.ID,
		ExcludeOrigin: true,
	})
}

// handleGoalAttempt checks a goal claim against the authoritative world.
// Goals are only counted by the tick loop; accepted claims are relayed.
func (s *Server) handleGoalAttempt(c *Client, data json.RawMessage) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok || room.State() != game.RoomPlaying {
		return
	}

	payload := decode(data)
	pos, okP := parseVec(payload, "position")
	vel, _ := parseVec(payload, "velocity")
	if !okP {
		c.sendJSON("goal_rejected", map[string]interface{}{"reason": "malformed position"})
		return
	}

	p := s.playerByID(c.playerID)
	verdict := s.validator.ValidateGoal(p.RoleAssigned(), game.GoalClaim{
		BallPosition: pos,
		BallVelocity: vel,
	}, room.WorldSnapshot())
	if !verdict.Accepted {
		c.sendJSON("goal_rejected", map[string]interface{}{
			"reason":    verdict.Reason,
			"corrected": verdict.Corrected,
		})
		return
	}

	payload["player"] = c.playerID
	s.pipeline.Publish(&game.Envelope{
		Type:       game.EventGoalAttempt,
		Payload:    payload,
		Origin:     c.playerID,
		TargetRoom: room.ID,
	})
}

func (s *Server) handleForfeit(c *Client) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok {
		c.sendError("not in a room")
		return
	}
	switch room.State() {
	case game.RoomPlaying, game.RoomPaused:
		log.Printf("[WS] Player %s forfeits room %s", c.playerID, room.ID)
		room.Forfeit(c.playerID)
	default:
		c.sendError("game is not in progress")
	}
}

// handleRequestGameEnd ends the game by admin code (forced) or by mutual
// agreement once both players confirmed.
func (s *Server) handleRequestGameEnd(c *Client, data json.RawMessage) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok {
		c.sendError("not in a room")
		return
	}

	payload := decode(data)
	reason := asString(payload, "reason")
	adminCode := asString(payload, "adminCode")
	confirmed := asBool(payload, "confirmed")

	if adminCode != "" {
		if err := verifyAdminCode(adminCode, s.cfg.AdminCodeHash); err != nil {
			c.sendError("admin code rejected")
			return
		}
		log.Printf("[WS] Admin-forced end of room %s by player %s (%s)", room.ID, c.playerID, reason)
		room.ForceEnd("admin_request")
		return
	}

	if !confirmed {
		s.hub.BroadcastToRoomExcept(room.ID, c.playerID, "game_end_requested", map[string]interface{}{
			"player": c.playerID,
			"reason": reason,
		})
		return
	}

	s.endReqMu.Lock()
	reqs, exists := s.endRequests[room.ID]
	if !exists {
		reqs = make(map[string]bool)
		s.endRequests[room.ID] = reqs
	}
	reqs[c.playerID] = true
	both := len(reqs) >= 2
	s.endReqMu.Unlock()

	if both {
		log.Printf("[WS] Mutual agreement ends room %s", room.ID)
		room.EndByAgreement()
		return
	}
	s.hub.BroadcastToRoomExcept(room.ID, c.playerID, "game_end_requested", map[string]interface{}{
		"player":    c.playerID,
		"reason":    reason,
		"confirmed": true,
	})
}

func (s *Server) handlePauseRequest(c *Client) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok {
		c.sendError("not in a room")
		return
	}
	if !room.Pause(c.playerID) {
		c.sendError("game cannot be paused")
		return
	}
	s.hub.BroadcastToRoom(room.ID, "game_paused", map[string]interface{}{
		"roomId": room.ID,
		"by":     c.playerID,
	})
}

func (s *Server) handleResumeRequest(c *Client) {
	room, ok := s.rooms.GetRoomForPlayer(c.playerID)
	if !ok {
		c.sendError("not in a room")
		return
	}
	if !room.Resume() {
		c.sendError("game is not paused")
		return
	}
	s.hub.BroadcastToRoom(room.ID, "game_resumed", map[string]interface{}{
		"roomId": room.ID,
		"reason": "resume_request",
		"player": c.playerID,
	})
}
