package game

import (
	"testing"
	"time"
)

func newTestRoom(t *testing.T, mode GameMode) (*Room, *Player, *Player) {
	t.Helper()
	left := NewPlayer("p1", "Alice", "s1")
	right := NewPlayer("p2", "Bob", "s2")
	r, err := NewRoom(mode, left, right, 60, 3, 30*time.Second, nil, nil)
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	return r, left, right
}

func TestNewRoomAssignsRolesAndMetadata(t *testing.T) {
	left := NewPlayer("p1", "Alice", "s1")
	left.SetElo(1250)
	right := NewPlayer("p2", "Bob", "s2")
	right.SetElo(1200)

	r, err := NewRoom(ModeCasual, left, right, 60, 3, 30*time.Second, nil, nil)
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}

	if r.State() != RoomWaiting {
		t.Errorf("New room state = %q, want WAITING", r.State())
	}
	if left.RoleAssigned() != RoleLeft || right.RoleAssigned() != RoleRight {
		t.Errorf("Roles: %q / %q", left.RoleAssigned(), right.RoleAssigned())
	}
	if r.AvgElo != 1225 || r.EloDiff != 50 {
		t.Errorf("Metadata avgElo=%d eloDiff=%d, want 1225/50", r.AvgElo, r.EloDiff)
	}
	if left.Status() != StatusInRoom {
		t.Errorf("Left status = %q, want IN_ROOM", left.Status())
	}
}

func TestNewRoomRejectsBusyPlayer(t *testing.T) {
	busy := NewPlayer("p1", "", "s1")
	busy.AssignRole(RoleLeft)
	other := NewPlayer("p2", "", "s2")

	if _, err := NewRoom(ModeCasual, busy, other, 60, 3, 30*time.Second, nil, nil); err != ErrAlreadyAssigned {
		t.Errorf("NewRoom with busy player = %v, want ErrAlreadyAssigned", err)
	}
	// The other slot must not be left half-assigned.
	if other.RoleAssigned() != RoleUnset {
		t.Errorf("Other player kept role %q after failed room", other.RoleAssigned())
	}
}

func TestMarkReadyNeedsBothConfirmations(t *testing.T) {
	r, left, right := newTestRoom(t, ModeCasual)

	left.SetReady(true)
	if r.MarkReady() {
		t.Error("Room READY with one confirmation")
	}

	right.SetReady(true)
	if !r.MarkReady() {
		t.Error("Room not READY with both confirmations")
	}
	if r.State() != RoomReady {
		t.Errorf("State = %q, want READY", r.State())
	}
}

func TestStartGameRequiresReady(t *testing.T) {
	r, left, right := newTestRoom(t, ModeCasual)
	defer r.Cancel()

	if r.StartGame() {
		t.Error("StartGame succeeded from WAITING")
	}

	left.SetReady(true)
	right.SetReady(true)
	r.MarkReady()
	if !r.StartGame() {
		t.Error("StartGame failed from READY")
	}
	if r.State() != RoomPlaying {
		t.Errorf("State = %q, want PLAYING", r.State())
	}
	if left.Status() != StatusInGame {
		t.Errorf("Left status = %q, want IN_GAME", left.Status())
	}
}

func TestSubmitInputLatestWins(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)

	r.SubmitInput("p1", PlayerInput{Right: true, Sequence: 5})
	r.SubmitInput("p1", PlayerInput{Left: true, Sequence: 6})
	// Stale sequence is discarded, not replayed.
	r.SubmitInput("p1", PlayerInput{Jump: true, Sequence: 4})

	r.mu.RLock()
	in := r.inputs[RoleLeft].input
	r.mu.RUnlock()

	if !in.Left || in.Jump {
		t.Errorf("Mailbox holds %+v, want the seq-6 input", in)
	}
}

func TestTickCountsGoalAndStartsCooldown(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)
	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	// Place the ball rolling into the left mouth: right player scores.
	r.world.Ball.Position = NewVec2(GoalWidth-10, GroundY-50)
	r.world.Ball.Velocity = Vec2{}
	r.world.LastTouch = RoleRight
	r.mu.Unlock()

	r.tick()

	scoreL, scoreR := r.Score()
	if scoreL != 0 || scoreR != 1 {
		t.Errorf("Score after goal = %d-%d, want 0-1", scoreL, scoreR)
	}
	r.mu.RLock()
	cooldown := r.goalCooldownTicks
	r.mu.RUnlock()
	if cooldown != 3*60 {
		t.Errorf("Goal cooldown = %d ticks, want 180", cooldown)
	}
}

func TestGoalsDoNotCountDuringCooldown(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)
	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.goalCooldownTicks = 10
	r.world.Ball.Position = NewVec2(GoalWidth-10, GroundY-50)
	r.world.LastTouch = RoleRight
	r.mu.Unlock()

	r.tick()

	if _, scoreR := r.Score(); scoreR != 0 {
		t.Errorf("Goal counted during cooldown: 0-%d", scoreR)
	}
}

func TestScoreLimitEndsRoom(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual) // casual limit is 3

	var endReason EndReason
	r.onEnd = func(room *Room, reason EndReason) { endReason = reason }

	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.world.ScoreRight = 2
	r.world.Ball.Position = NewVec2(GoalWidth-10, GroundY-50)
	r.world.LastTouch = RoleRight
	r.mu.Unlock()

	done := r.tick()

	if !done {
		t.Error("Tick did not report terminal state")
	}
	if endReason != EndScoreLimit {
		t.Errorf("End reason = %q, want score_limit", endReason)
	}
	if r.State() != RoomFinished {
		t.Errorf("State = %q, want FINISHED", r.State())
	}
}

func TestTimeLimitEndsRoom(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual) // casual limit is 300s

	var endReason EndReason
	r.onEnd = func(room *Room, reason EndReason) { endReason = reason }

	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.playedTicks = 300 * 60 // clock is played ticks, not wall time
	r.world.Ball.Position = NewVec2(FieldWidth/2, 200)
	r.mu.Unlock()

	r.tick()

	if endReason != EndTimeLimit {
		t.Errorf("End reason = %q, want time_limit", endReason)
	}
}

func TestPauseSuspendsClock(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)
	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.mu.Unlock()

	if !r.Pause("p1") {
		t.Fatal("Pause failed from PLAYING")
	}
	if r.PausedBy() != "p1" {
		t.Errorf("PausedBy = %q", r.PausedBy())
	}

	before := r.ElapsedSeconds()
	r.tick() // paused ticks must not advance the clock
	if r.ElapsedSeconds() != before {
		t.Error("Clock advanced while paused")
	}

	if !r.Resume() {
		t.Fatal("Resume failed from PAUSED")
	}
	if r.State() != RoomPlaying {
		t.Errorf("State after resume = %q", r.State())
	}
}

func TestPauseAutoExpires(t *testing.T) {
	left := NewPlayer("p1", "", "s1")
	right := NewPlayer("p2", "", "s2")
	r, err := NewRoom(ModeCasual, left, right, 60, 3, 10*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}

	var endReason EndReason
	r.onEnd = func(room *Room, reason EndReason) { endReason = reason }

	r.mu.Lock()
	r.state = RoomPlaying
	r.startTime = time.Now()
	r.mu.Unlock()
	r.Pause("p1")

	time.Sleep(20 * time.Millisecond)
	done := r.tick()

	if !done || endReason != EndDisconnect {
		t.Errorf("Expired pause: done=%v reason=%q, want disconnect end", done, endReason)
	}
}

func TestFinishFiresOnce(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)

	calls := 0
	r.onEnd = func(room *Room, reason EndReason) { calls++ }

	r.Forfeit("p1")
	r.Forfeit("p2")
	r.EndByAgreement()

	if calls != 1 {
		t.Errorf("onEnd fired %d times, want 1", calls)
	}
	if r.ForfeitedBy() != "p1" {
		t.Errorf("ForfeitedBy = %q, want p1", r.ForfeitedBy())
	}
}

func TestCancelSkipsEndProcessing(t *testing.T) {
	r, _, _ := newTestRoom(t, ModeCasual)

	called := false
	r.onEnd = func(room *Room, reason EndReason) { called = true }

	r.Cancel()

	if called {
		t.Error("Cancel ran the end hook")
	}
	if r.State() != RoomFinished {
		t.Errorf("State after cancel = %q", r.State())
	}
}
