package game

import (
	"math/rand"
	"testing"
)

func TestGravityPullsBallDown(t *testing.T) {
	w := NewWorldState()
	w.Ball.Position = NewVec2(FieldWidth/2, 200)
	startY := w.Ball.Position.Y

	for i := 0; i < 10; i++ {
		w.Step(PlayerInput{}, PlayerInput{}, rand.New(rand.NewSource(1)))
	}

	if w.Ball.Position.Y <= startY {
		t.Errorf("Ball did not fall: start=%.1f end=%.1f", startY, w.Ball.Position.Y)
	}
}

func TestFloorBounceReversesVelocity(t *testing.T) {
	w := NewWorldState()
	w.Ball.Position = NewVec2(FieldWidth/2, GroundY-BallRadius-1)
	w.Ball.Velocity = NewVec2(0, 10)

	w.stepBall()

	if w.Ball.Velocity.Y >= 0 {
		t.Errorf("Ball velocity not reflected off floor: vy=%.2f", w.Ball.Velocity.Y)
	}
	want := fix(-(10 + Gravity) * BounceCoeff)
	if w.Ball.Velocity.Y != want {
		t.Errorf("Bounce coefficient not applied: got %.4f want %.4f", w.Ball.Velocity.Y, want)
	}
}

func TestWallBounceOutsideGoalMouth(t *testing.T) {
	w := NewWorldState()
	w.Ball.Position = NewVec2(BallRadius+1, 100) // well above the goal mouth
	w.Ball.Velocity = NewVec2(-8, 0)

	w.stepBall()

	if w.Ball.Velocity.X <= 0 {
		t.Errorf("Ball not reflected off left wall: vx=%.2f", w.Ball.Velocity.X)
	}
}

func TestBallPassesThroughGoalMouth(t *testing.T) {
	w := NewWorldState()
	w.Ball.Position = NewVec2(BallRadius+1, GroundY-GoalHeight/2)
	w.Ball.Velocity = NewVec2(-8, 0)

	w.stepBall()

	if w.Ball.Velocity.X > 0 {
		t.Errorf("Ball bounced inside the goal mouth: vx=%.2f", w.Ball.Velocity.X)
	}
}

func TestPlayerMovesAndStopsWithFriction(t *testing.T) {
	w := NewWorldState()

	w.Step(PlayerInput{Right: true}, PlayerInput{}, rand.New(rand.NewSource(1)))
	if w.Left.Velocity.X != PlayerSpeed {
		t.Errorf("Held direction should set velocity: vx=%.2f", w.Left.Velocity.X)
	}

	w.Step(PlayerInput{}, PlayerInput{}, rand.New(rand.NewSource(1)))
	want := fix(PlayerSpeed * Friction)
	if w.Left.Velocity.X != want {
		t.Errorf("Friction not applied after release: got %.4f want %.4f", w.Left.Velocity.X, want)
	}
}

func TestJumpOnlyFromGround(t *testing.T) {
	w := NewWorldState()

	w.Step(PlayerInput{Jump: true}, PlayerInput{}, rand.New(rand.NewSource(1)))
	if w.Left.OnGround {
		t.Error("Player should be airborne after jump")
	}
	vyAfterJump := w.Left.Velocity.Y

	// Jump held while airborne must not re-trigger the impulse
	w.Step(PlayerInput{Jump: true}, PlayerInput{}, rand.New(rand.NewSource(1)))
	if w.Left.Velocity.Y < vyAfterJump {
		t.Errorf("Airborne jump re-applied impulse: %.2f -> %.2f", vyAfterJump, w.Left.Velocity.Y)
	}
}

func TestGoalDetection(t *testing.T) {
	w := NewWorldState()

	w.Ball.Position = NewVec2(GoalWidth-5, GroundY-50)
	if got := w.detectGoal(); got != RoleRight {
		t.Errorf("Ball in left mouth should score for right: got %q", got)
	}

	w.Ball.Position = NewVec2(FieldWidth-GoalWidth+5, GroundY-50)
	if got := w.detectGoal(); got != RoleLeft {
		t.Errorf("Ball in right mouth should score for left: got %q", got)
	}

	w.Ball.Position = NewVec2(FieldWidth/2, GroundY-50)
	if got := w.detectGoal(); got != RoleUnset {
		t.Errorf("Midfield ball scored: got %q", got)
	}

	// Above the crossbar is not a goal
	w.Ball.Position = NewVec2(GoalWidth-5, GoalTop-10)
	if got := w.detectGoal(); got != RoleUnset {
		t.Errorf("Ball above the crossbar scored: got %q", got)
	}
}

func TestCollisionImpartsForceAndLastTouch(t *testing.T) {
	w := NewWorldState()
	w.Ball.Position = w.Left.Position.Plus(NewVec2(PlayerHalfWidth+BallRadius-5, 0))
	w.Ball.Velocity = Vec2{}

	w.collidePlayerBall(&w.Left, RoleLeft, rand.New(rand.NewSource(7)))

	speed := w.Ball.Velocity.Magnitude()
	if speed < KickForceMin {
		t.Errorf("Collision force too small: %.2f", speed)
	}
	if w.LastTouch != RoleLeft {
		t.Errorf("LastTouch not recorded: %q", w.LastTouch)
	}
	// Separation: ball no longer overlapping
	if d := w.Ball.Position.Minus(w.Left.Position).Magnitude(); d <= PlayerHalfWidth+BallRadius {
		t.Errorf("Ball still overlapping after separation: dist=%.2f", d)
	}
}

func TestKickingBoostsForce(t *testing.T) {
	base := NewWorldState()
	base.Ball.Position = base.Left.Position.Plus(NewVec2(PlayerHalfWidth+BallRadius-5, 0))
	base.collidePlayerBall(&base.Left, RoleLeft, rand.New(rand.NewSource(3)))
	plain := base.Ball.Velocity.Magnitude()

	kicked := NewWorldState()
	kicked.Left.IsKicking = true
	kicked.Ball.Position = kicked.Left.Position.Plus(NewVec2(PlayerHalfWidth+BallRadius-5, 0))
	kicked.collidePlayerBall(&kicked.Left, RoleLeft, rand.New(rand.NewSource(3)))
	boosted := kicked.Ball.Velocity.Magnitude()

	// Same rng seed, so the only difference is the kick boost.
	if boosted <= plain {
		t.Errorf("Kick did not boost force: plain=%.2f kicked=%.2f", plain, boosted)
	}
}

func TestSimulationDeterminism(t *testing.T) {
	runWorld := func() WorldState {
		w := NewWorldState()
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 600; i++ {
			left := PlayerInput{Right: i%120 < 60, Jump: i%90 == 0}
			right := PlayerInput{Left: i%100 < 50, Kick: i%45 == 0}
			w.Step(left, right, rng)
		}
		return *w
	}

	a, b := runWorld(), runWorld()
	if a != b {
		t.Errorf("Identical inputs and seed diverged:\n a=%+v\n b=%+v", a, b)
	}
}

func TestResetPositionsKeepsScore(t *testing.T) {
	w := NewWorldState()
	w.ScoreLeft, w.ScoreRight = 2, 1
	w.Ball.Position = NewVec2(100, 100)
	w.LastTouch = RoleLeft

	w.ResetPositions()

	if w.ScoreLeft != 2 || w.ScoreRight != 1 {
		t.Errorf("Reset touched the score: %d-%d", w.ScoreLeft, w.ScoreRight)
	}
	if w.Ball.Position != NewVec2(BallStartX, BallStartY) {
		t.Errorf("Ball not at kickoff: %+v", w.Ball.Position)
	}
	if w.LastTouch != RoleUnset {
		t.Errorf("LastTouch not cleared: %q", w.LastTouch)
	}
}
