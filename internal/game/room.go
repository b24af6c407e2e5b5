package game

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	mrand "math/rand"
	"sync"
	"time"
)

// GameMode selects score/time limits and rating treatment.
type GameMode string

const (
	ModeCasual     GameMode = "casual"
	ModeRanked     GameMode = "ranked"
	ModeTournament GameMode = "tournament"
)

// RoomState is the room lifecycle.
type RoomState string

const (
	RoomWaiting  RoomState = "WAITING"
	RoomReady    RoomState = "READY"
	RoomPlaying  RoomState = "PLAYING"
	RoomPaused   RoomState = "PAUSED"
	RoomFinished RoomState = "FINISHED"
)

// EndReason is why a match terminated.
type EndReason string

const (
	EndScoreLimit      EndReason = "score_limit"
	EndTimeLimit       EndReason = "time_limit"
	EndForfeit         EndReason = "forfeit"
	EndDisconnect      EndReason = "disconnect"
	EndForced          EndReason = "forced"
	EndMutualAgreement EndReason = "mutual_agreement"
)

// RoomEvent is one entry of the bounded append-only room log.
type RoomEvent struct {
	Type    string                 `json:"type"`
	At      time.Time              `json:"at"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

const roomEventLogCap = 256

// roomInput is the latest-input-wins mailbox for one slot.
type roomInput struct {
	input   PlayerInput
	lastSeq uint64
}

// Room owns one match: two role slots, the authoritative world, the tick
// loop, and the bounded event log. The WorldState is mutated only by the
// tick loop; everyone else reads snapshots released through the pipeline.
type Room struct {
	ID   string
	Mode GameMode

	mu    sync.RWMutex
	state RoomState

	left  *Player
	right *Player

	world *WorldState

	scoreLimit  int
	timeLimitS  int
	startTime   time.Time
	lastTick    time.Time
	playedTicks uint64 // ticks spent PLAYING; the clock pauses with the room

	goalCooldownTicks int // remaining cooldown ticks; physics runs, goals don't count
	cooldownTicksFull int

	pausedAt     time.Time
	pausedBy     string
	pauseTimeout time.Duration

	eventLog []RoomEvent

	// Metadata
	AvgElo      int
	EloDiff     int
	ForcedEnd   string
	forfeitedBy string

	inputs map[Role]*roomInput

	rng      *mrand.Rand
	tickRate int

	cancel chan struct{}
	once   sync.Once

	pipeline *Pipeline
	onEnd    func(r *Room, reason EndReason)
}

// generateRoomID returns a unique room id.
func generateRoomID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "room_" + hex.EncodeToString(bytes)
}

// NewRoom creates a WAITING room for a matched pair. The left/right slots
// are assigned in pairing order.
func NewRoom(mode GameMode, left, right *Player, tickRate, goalCooldownS int, pauseTimeout time.Duration, pipeline *Pipeline, onEnd func(*Room, EndReason)) (*Room, error) {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}

	r := &Room{
		ID:                generateRoomID(),
		Mode:              mode,
		state:             RoomWaiting,
		left:              left,
		right:             right,
		world:             NewWorldState(),
		scoreLimit:        ScoreLimitFor(mode),
		timeLimitS:        TimeLimitFor(mode),
		cooldownTicksFull: goalCooldownS * tickRate,
		pauseTimeout:      pauseTimeout,
		inputs: map[Role]*roomInput{
			RoleLeft:  {},
			RoleRight: {},
		},
		rng:      mrand.New(mrand.NewSource(time.Now().UnixNano())),
		tickRate: tickRate,
		cancel:   make(chan struct{}),
		pipeline: pipeline,
		onEnd:    onEnd,
	}

	if err := left.AssignRole(RoleLeft); err != nil {
		return nil, err
	}
	if err := right.AssignRole(RoleRight); err != nil {
		left.ClearRole()
		return nil, err
	}

	r.AvgElo = (left.Elo() + right.Elo()) / 2
	r.EloDiff = left.Elo() - right.Elo()
	if r.EloDiff < 0 {
		r.EloDiff = -r.EloDiff
	}

	left.SetStatus(StatusInRoom)
	right.SetStatus(StatusInRoom)

	r.appendEvent("room_created", map[string]interface{}{
		"mode": string(mode), "avg_elo": r.AvgElo, "elo_diff": r.EloDiff,
	})
	return r, nil
}

// State returns the current room state.
func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Left returns the left slot player.
func (r *Room) Left() *Player { return r.left }

// Right returns the right slot player.
func (r *Room) Right() *Player { return r.right }

// PlayerByID returns the slot player with the given id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	if r.left != nil && r.left.ID == id {
		return r.left
	}
	if r.right != nil && r.right.ID == id {
		return r.right
	}
	return nil
}

// Opponent returns the other slot's player.
func (r *Room) Opponent(id string) *Player {
	if r.left != nil && r.left.ID == id {
		return r.right
	}
	if r.right != nil && r.right.ID == id {
		return r.left
	}
	return nil
}

// Score returns (left, right).
func (r *Room) Score() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.world.ScoreLeft, r.world.ScoreRight
}

// MarkReady transitions WAITING → READY once both slots confirmed.
func (r *Room) MarkReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomWaiting {
		return false
	}
	if !r.left.Ready() || !r.right.Ready() {
		return false
	}
	r.state = RoomReady
	r.appendEventLocked("room_ready", nil)
	return true
}

// StartGame transitions READY → PLAYING and launches the tick loop.
func (r *Room) StartGame() bool {
	r.mu.Lock()
	if r.state != RoomReady {
		r.mu.Unlock()
		return false
	}
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.lastTick = r.startTime
	r.left.SetStatus(StatusInGame)
	r.right.SetStatus(StatusInGame)
	r.appendEventLocked("game_started", nil)
	r.mu.Unlock()

	go r.runTickLoop()
	log.Printf("[ROOM] Game started: room=%s mode=%s limit=%d/%ds", r.ID, r.Mode, r.scoreLimit, r.timeLimitS)
	return true
}

// SubmitInput stores the latest input for a player's role. Inputs with a
// sequence at or below the last accepted one are discarded, not replayed.
func (r *Room) SubmitInput(playerID string, in PlayerInput) {
	p := r.PlayerByID(playerID)
	if p == nil {
		return
	}
	role := p.RoleAssigned()
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.inputs[role]
	if !ok {
		return
	}
	if in.Sequence != 0 && in.Sequence <= mb.lastSeq {
		return
	}
	mb.input = in
	if in.Sequence > mb.lastSeq {
		mb.lastSeq = in.Sequence
	}
}

// runTickLoop is the per-room authoritative ticker. It is cancelled
// deterministically on cleanup, never left to the GC.
func (r *Room) runTickLoop() {
	interval := time.Second / time.Duration(r.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.cancel:
			return
		case <-ticker.C:
			if done := r.tick(); done {
				return
			}
		}
	}
}

// tick advances the simulation one step. Returns true when the room reached
// a terminal condition and the loop should stop.
func (r *Room) tick() bool {
	r.mu.Lock()

	switch r.state {
	case RoomPaused:
		// Clock suspended. Auto-expire the pause.
		if time.Since(r.pausedAt) > r.pauseTimeout {
			r.mu.Unlock()
			log.Printf("[ROOM] Pause timeout in room %s - ending", r.ID)
			r.finish(EndDisconnect)
			return true
		}
		r.mu.Unlock()
		return false
	case RoomPlaying:
		// fallthrough to simulation
	default:
		r.mu.Unlock()
		return r.State() == RoomFinished
	}

	leftIn := r.inputs[RoleLeft].input
	rightIn := r.inputs[RoleRight].input

	scorer := r.world.Step(leftIn, rightIn, r.rng)
	r.playedTicks++
	r.lastTick = time.Now()

	if r.goalCooldownTicks > 0 {
		r.goalCooldownTicks--
		if r.goalCooldownTicks == 0 {
			r.world.ResetPositions()
		}
		scorer = RoleUnset // goals do not count during cooldown
	}

	var goalPayload map[string]interface{}
	if scorer != RoleUnset {
		if scorer == RoleLeft {
			r.world.ScoreLeft++
		} else {
			r.world.ScoreRight++
		}
		r.goalCooldownTicks = r.cooldownTicksFull
		scorerPlayer := r.left
		if scorer == RoleRight {
			scorerPlayer = r.right
		}
		goalPayload = map[string]interface{}{
			"scorer": scorerPlayer.ID,
			"side":   string(scorer),
			"score": map[string]interface{}{
				"left": r.world.ScoreLeft, "right": r.world.ScoreRight,
			},
		}
	}

	// Terminal conditions
	var endReason EndReason
	if r.scoreLimit > 0 && (r.world.ScoreLeft >= r.scoreLimit || r.world.ScoreRight >= r.scoreLimit) {
		endReason = EndScoreLimit
	} else if r.ElapsedSecondsLocked() >= r.timeLimitS {
		endReason = EndTimeLimit
	}

	broadcastSnapshot := r.world.Tick%SnapshotDivisor == 0
	var snap WorldState
	if broadcastSnapshot {
		snap = r.world.Snapshot()
	}
	roomID := r.ID
	r.mu.Unlock()

	if goalPayload != nil {
		r.publishSystem(EventGoalScored, goalPayload)
	}

	if broadcastSnapshot {
		r.publishSystem(EventStateUpdate, map[string]interface{}{
			"room_id": roomID,
			"state":   snap,
		})
	}

	if endReason != "" {
		r.finish(endReason)
		return true
	}
	return false
}

// publishSystem releases an authoritative room event through the pipeline.
func (r *Room) publishSystem(eventType string, payload map[string]interface{}) {
	if r.pipeline == nil {
		return
	}
	r.pipeline.Publish(&Envelope{
		Type:       eventType,
		Payload:    payload,
		Origin:     OriginSystem,
		TargetRoom: r.ID,
	})
}

// ElapsedSecondsLocked returns match time from played ticks; the pause
// suspends it. Caller holds r.mu.
func (r *Room) ElapsedSecondsLocked() int {
	return int(r.playedTicks / uint64(r.tickRate))
}

// ElapsedSeconds returns match time with the lock taken.
func (r *Room) ElapsedSeconds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ElapsedSecondsLocked()
}

// Pause suspends the tick clock (disconnect or pause_request while PLAYING).
func (r *Room) Pause(byPlayerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomPlaying {
		return false
	}
	r.state = RoomPaused
	r.pausedAt = time.Now()
	r.pausedBy = byPlayerID
	r.appendEventLocked("game_paused", map[string]interface{}{"by": byPlayerID})
	return true
}

// Resume refreshes lastTick and returns to PLAYING.
func (r *Room) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomPaused {
		return false
	}
	r.state = RoomPlaying
	r.lastTick = time.Now()
	r.appendEventLocked("game_resumed", nil)
	return true
}

// PausedBy returns who caused the current pause.
func (r *Room) PausedBy() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pausedBy
}

// finish transitions to FINISHED exactly once and hands the room to the
// game-end processor.
func (r *Room) finish(reason EndReason) {
	var fire bool
	r.once.Do(func() {
		r.mu.Lock()
		r.state = RoomFinished
		r.appendEventLocked("game_finished", map[string]interface{}{"reason": string(reason)})
		r.mu.Unlock()
		close(r.cancel)
		fire = true
	})
	if fire && r.onEnd != nil {
		r.onEnd(r, reason)
	}
}

// ForceEnd terminates the room (unhealthy pipeline, admin request).
func (r *Room) ForceEnd(marker string) {
	r.mu.Lock()
	r.ForcedEnd = marker
	r.mu.Unlock()
	r.finish(EndForced)
}

// Forfeit ends the room with the forfeiting player recorded. Only the
// first forfeit counts.
func (r *Room) Forfeit(playerID string) {
	r.mu.Lock()
	if r.state == RoomFinished {
		r.mu.Unlock()
		return
	}
	r.forfeitedBy = playerID
	r.appendEventLocked("forfeit", map[string]interface{}{"player": playerID})
	r.mu.Unlock()
	r.finish(EndForfeit)
}

// ForfeitedBy returns the player who forfeited, if any.
func (r *Room) ForfeitedBy() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forfeitedBy
}

// EndForDisconnect ends the room after a disconnect grace expired.
func (r *Room) EndForDisconnect() {
	r.finish(EndDisconnect)
}

// EndByAgreement ends the room after both sides requested it.
func (r *Room) EndByAgreement() {
	r.finish(EndMutualAgreement)
}

// Cancel stops the tick loop without the end choreography (pairing rewind,
// shutdown).
func (r *Room) Cancel() {
	r.once.Do(func() {
		r.mu.Lock()
		r.state = RoomFinished
		r.mu.Unlock()
		close(r.cancel)
	})
}

// WorldSnapshot returns an immutable copy of the world.
func (r *Room) WorldSnapshot() WorldState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.world.Snapshot()
}

// StartTime returns when PLAYING began.
func (r *Room) StartTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startTime
}

// RecordEvent appends a pipeline-released persistent event to the room log.
func (r *Room) RecordEvent(eventType string, payload map[string]interface{}) {
	r.appendEvent(eventType, payload)
}

// appendEvent adds to the bounded room log.
func (r *Room) appendEvent(eventType string, payload map[string]interface{}) {
	r.mu.Lock()
	r.appendEventLocked(eventType, payload)
	r.mu.Unlock()
}

func (r *Room) appendEventLocked(eventType string, payload map[string]interface{}) {
	r.eventLog = append(r.eventLog, RoomEvent{Type: eventType, At: time.Now(), Payload: payload})
	if len(r.eventLog) > roomEventLogCap {
		r.eventLog = r.eventLog[len(r.eventLog)-roomEventLogCap:]
	}
}

// EventLog returns a copy of the room's event log.
func (r *Room) EventLog() []RoomEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomEvent, len(r.eventLog))
	copy(out, r.eventLog)
	return out
}
