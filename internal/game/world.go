package game

import (
	"math"
	"math/rand"
)

// PlayerInput is the merged input applied on a tick. Latest input wins;
// older inputs since the last tick are discarded.
type PlayerInput struct {
	Left     bool   `json:"left"`
	Right    bool   `json:"right"`
	Jump     bool   `json:"jump"`
	Kick     bool   `json:"kick"`
	Sequence uint64 `json:"sequence"`
}

// PlayerBody is one player's physics state.
type PlayerBody struct {
	Position     Vec2 `json:"position"`
	Velocity     Vec2 `json:"velocity"`
	OnGround     bool `json:"on_ground"`
	KickCooldown int  `json:"kick_cooldown"`
	IsKicking    bool `json:"is_kicking"`
}

// BallBody is the ball's physics state.
type BallBody struct {
	Position Vec2 `json:"position"`
	Velocity Vec2 `json:"velocity"`
}

// WorldState is the authoritative per-room snapshot.
type WorldState struct {
	Left       PlayerBody `json:"left"`
	Right      PlayerBody `json:"right"`
	Ball       BallBody   `json:"ball"`
	ScoreLeft  int        `json:"score_left"`
	ScoreRight int        `json:"score_right"`
	Tick       uint64     `json:"tick"`

	// LastTouch is the role that last contacted the ball, for goal
	// attribution plausibility checks.
	LastTouch Role `json:"last_touch,omitempty"`
}

// NewWorldState positions both players and the ball at kickoff.
func NewWorldState() *WorldState {
	w := &WorldState{}
	w.ResetPositions()
	return w
}

// ResetPositions returns bodies to kickoff placement; scores are untouched.
func (w *WorldState) ResetPositions() {
	w.Left.Position = NewVec2(LeftStartX, GroundY-PlayerHeight/2)
	w.Left.Velocity = Vec2{}
	w.Left.OnGround = true
	w.Left.IsKicking = false
	w.Right.Position = NewVec2(RightStartX, GroundY-PlayerHeight/2)
	w.Right.Velocity = Vec2{}
	w.Right.OnGround = true
	w.Right.IsKicking = false
	w.Ball.Position = NewVec2(BallStartX, BallStartY)
	w.Ball.Velocity = Vec2{}
	w.LastTouch = RoleUnset
}

// Step advances the world one tick. Returns the scoring role if the ball
// crossed into a goal mouth this tick, RoleUnset otherwise. Goal counting
// during cooldown is the room's concern; physics always runs.
func (w *WorldState) Step(leftIn, rightIn PlayerInput, rng *rand.Rand) Role {
	w.Tick++

	stepPlayer(&w.Left, leftIn)
	stepPlayer(&w.Right, rightIn)
	w.stepBall()
	w.collidePlayerBall(&w.Left, RoleLeft, rng)
	w.collidePlayerBall(&w.Right, RoleRight, rng)

	return w.detectGoal()
}

// stepPlayer applies one tick of player kinematics: held direction sets
// horizontal velocity, otherwise friction decays it; jump from the ground
// sets an upward impulse; gravity integrates; positions clamp to the field.
func stepPlayer(p *PlayerBody, in PlayerInput) {
	switch {
	case in.Left && !in.Right:
		p.Velocity.X = -PlayerSpeed
	case in.Right && !in.Left:
		p.Velocity.X = PlayerSpeed
	default:
		p.Velocity.X = fix(p.Velocity.X * Friction)
	}

	if in.Jump && p.OnGround {
		p.Velocity.Y = -JumpImpulse
		p.OnGround = false
	}

	p.Velocity.Y = fix(p.Velocity.Y + Gravity)
	p.Position = p.Position.Plus(p.Velocity)

	// Clamp to field bounds
	if p.Position.X < PlayerHalfWidth {
		p.Position.X = PlayerHalfWidth
		p.Velocity.X = 0
	}
	if p.Position.X > FieldWidth-PlayerHalfWidth {
		p.Position.X = FieldWidth - PlayerHalfWidth
		p.Velocity.X = 0
	}

	floor := GroundY - PlayerHeight/2
	if p.Position.Y >= floor {
		p.Position.Y = floor
		p.Velocity.Y = 0
		p.OnGround = true
	} else {
		p.OnGround = false
	}

	if p.KickCooldown > 0 {
		p.KickCooldown--
		if p.KickCooldown == 0 {
			p.IsKicking = false
		}
	}
	if in.Kick && p.KickCooldown == 0 {
		p.IsKicking = true
		p.KickCooldown = KickCooldownTicks
	}
}

// stepBall applies gravity, integrates, and reflects off the floor and the
// side walls with the bounce coefficient.
func (w *WorldState) stepBall() {
	b := &w.Ball
	b.Velocity.Y = fix(b.Velocity.Y + Gravity)
	b.Position = b.Position.Plus(b.Velocity)

	floor := GroundY - BallRadius
	if b.Position.Y >= floor {
		b.Position.Y = floor
		b.Velocity.Y = fix(-b.Velocity.Y * BounceCoeff)
	}
	if b.Position.Y < BallRadius {
		b.Position.Y = BallRadius
		b.Velocity.Y = fix(-b.Velocity.Y * BounceCoeff)
	}

	// Side walls reflect only outside the goal mouth; inside the mouth the
	// ball is allowed through for goal detection.
	inMouth := b.Position.Y > GoalTop
	if b.Position.X <= BallRadius && !inMouth {
		b.Position.X = BallRadius
		b.Velocity.X = fix(-b.Velocity.X * BounceCoeff)
	}
	if b.Position.X >= FieldWidth-BallRadius && !inMouth {
		b.Position.X = FieldWidth - BallRadius
		b.Velocity.X = fix(-b.Velocity.X * BounceCoeff)
	}
}

// collidePlayerBall separates the ball from an overlapping player and
// imparts a force along the contact angle. Kicking doubles the force.
func (w *WorldState) collidePlayerBall(p *PlayerBody, role Role, rng *rand.Rand) {
	delta := w.Ball.Position.Minus(p.Position)
	dist := delta.Magnitude()
	if dist > PlayerHalfWidth+BallRadius {
		return
	}

	angle := p.Position.AngleTo(w.Ball.Position)
	// Separate along the contact angle
	sep := PlayerHalfWidth + BallRadius + 1
	w.Ball.Position = NewVec2(
		p.Position.X+math.Cos(angle)*sep,
		p.Position.Y+math.Sin(angle)*sep,
	)

	force := KickForceMin + rng.Float64()*(KickForceMax-KickForceMin)
	if p.IsKicking {
		force *= KickBoost
	}
	force *= BounceMultiplier

	w.Ball.Velocity = NewVec2(math.Cos(angle)*force, math.Sin(angle)*force)
	w.LastTouch = role
}

// detectGoal reports which side scored: a ball fully inside the left mouth
// scores for the right player and vice versa.
func (w *WorldState) detectGoal() Role {
	b := w.Ball.Position
	if b.Y < GoalTop || b.Y > GroundY {
		return RoleUnset
	}
	if b.X < GoalWidth {
		return RoleRight
	}
	if b.X > FieldWidth-GoalWidth {
		return RoleLeft
	}
	return RoleUnset
}

// InGoalMouth reports whether a point lies inside the goal mouth rectangle
// defending the given side.
func InGoalMouth(pos Vec2, side Role) bool {
	if pos.Y < GoalTop || pos.Y > GroundY {
		return false
	}
	switch side {
	case RoleLeft:
		return pos.X < GoalWidth
	case RoleRight:
		return pos.X > FieldWidth-GoalWidth
	}
	return false
}

// Snapshot returns a copy safe for broadcast; the tick loop owns the
// original.
func (w *WorldState) Snapshot() WorldState {
	return *w
}
