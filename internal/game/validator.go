package game

import (
	"fmt"
	"sync"
	"time"
)

// Verdict is a tagged validation result. Rejected events never enter a
// queue; a corrected payload lets the client snap back to authoritative
// state.
type Verdict struct {
	Accepted  bool                   `json:"accepted"`
	Reason    string                 `json:"reason,omitempty"`
	Corrected map[string]interface{} `json:"corrected,omitempty"`
	// LagCompMs is the lag compensation actually applied, attached to the
	// outgoing event as a hint.
	LagCompMs float64 `json:"lag_comp_ms,omitempty"`
	// Duplicate marks a redelivered sequence id: accepted, but the caller
	// must not apply or rebroadcast it.
	Duplicate bool `json:"-"`
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(reason string, corrected map[string]interface{}) Verdict {
	return Verdict{Accepted: false, Reason: reason, Corrected: corrected}
}

// MovementClaim is a client's reported kinematic state.
type MovementClaim struct {
	Position  Vec2
	Velocity  Vec2
	Timestamp int64 // client clock, ms
	Sequence  uint64
}

// lastAccepted tracks the previous accepted movement per player.
type lastAccepted struct {
	claim MovementClaim
	at    time.Time
}

// StateValidator performs per-tick input validation with lag compensation.
type StateValidator struct {
	mu   sync.Mutex
	last map[string]*lastAccepted

	// LatencyOf returns the latency estimate for a player in ms; the
	// pipeline provides it.
	LatencyOf func(playerID string) float64
}

// NewStateValidator creates a validator.
func NewStateValidator(latencyOf func(string) float64) *StateValidator {
	return &StateValidator{
		last:      make(map[string]*lastAccepted),
		LatencyOf: latencyOf,
	}
}

// ValidateMovement checks a movement claim against field bounds, the speed
// cap, and displacement consistency with the previous accepted state. A
// repeated sequence id is accepted as a no-op.
func (v *StateValidator) ValidateMovement(playerID string, claim MovementClaim) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.last[playerID]
	if prev != nil && claim.Sequence != 0 && claim.Sequence == prev.claim.Sequence {
		// Duplicate delivery; nothing to apply.
		return Verdict{Accepted: true, Duplicate: true}
	}

	if claim.Position.X < 0 || claim.Position.X > FieldWidth ||
		claim.Position.Y < 0 || claim.Position.Y > FieldHeight {
		return reject("position out of field bounds", v.correctionLocked(prev))
	}

	if speed := claim.Velocity.Magnitude(); speed > MaxPlayerSpeed {
		return reject(fmt.Sprintf("velocity %.1f exceeds cap %.1f", speed, MaxPlayerSpeed), v.correctionLocked(prev))
	}

	var lagMs float64
	if v.LatencyOf != nil {
		lagMs = v.LatencyOf(playerID)
	}
	if lagMs > MaxLagCompMs {
		lagMs = MaxLagCompMs
	}

	if prev != nil {
		elapsed := time.Since(prev.at).Seconds()
		if elapsed > 0 {
			moved := claim.Position.Minus(prev.claim.Position).Magnitude()
			// Tolerance grows with the player's latency: a laggy client's
			// claims arrive late and cover more ground per message.
			allowed := MaxPlayerSpeed*elapsed*DefaultTickRate + lagMs/1000*MaxPlayerSpeed*DefaultTickRate + PlayerHalfWidth
			if moved > allowed {
				return reject(fmt.Sprintf("displacement %.1f inconsistent with elapsed %.0fms", moved, elapsed*1000), v.correctionLocked(prev))
			}
		}
	}

	verdict := accept()
	verdict.LagCompMs = lagMs

	v.last[playerID] = &lastAccepted{claim: claim, at: time.Now()}
	return verdict
}

// correctionLocked builds the snap-back payload for a rejection: the last
// accepted position and velocity. Nil when the player has no accepted state
// yet. Caller holds v.mu.
func (v *StateValidator) correctionLocked(prev *lastAccepted) map[string]interface{} {
	if prev == nil {
		return nil
	}
	return map[string]interface{}{
		"position": prev.claim.Position,
		"velocity": prev.claim.Velocity,
	}
}

// Compensate extrapolates a claim forward by velocity x min(latency, 150ms),
// the lag compensation applied before the claim reaches the room.
func Compensate(claim MovementClaim, latencyMs float64) Vec2 {
	if latencyMs > MaxLagCompMs {
		latencyMs = MaxLagCompMs
	}
	if latencyMs <= 0 {
		return claim.Position
	}
	// Velocity is per tick; scale to the compensated interval.
	ticks := latencyMs / 1000 * DefaultTickRate
	return claim.Position.Plus(claim.Velocity.Times(ticks))
}

// GoalClaim is a client's goal_attempt submission.
type GoalClaim struct {
	BallPosition Vec2
	BallVelocity Vec2
}

// ValidateGoal checks the claimed goal against the authoritative world: the
// ball center must be inside the opposing goal mouth and the last toucher
// must be plausible for the claiming side.
func (v *StateValidator) ValidateGoal(claimerRole Role, claim GoalClaim, world WorldState) Verdict {
	var defendingSide Role
	switch claimerRole {
	case RoleLeft:
		defendingSide = RoleRight
	case RoleRight:
		defendingSide = RoleLeft
	default:
		return reject("claimer has no role", nil)
	}

	if !InGoalMouth(world.Ball.Position, defendingSide) {
		return reject("ball not inside the goal mouth", map[string]interface{}{
			"ball": world.Ball,
		})
	}

	// Last toucher must not be the defending side scoring an own goal claim
	// attributed to the claimer; unset touch is implausible too.
	if world.LastTouch == RoleUnset {
		return reject("no recorded ball contact", nil)
	}

	drift := claim.BallPosition.Minus(world.Ball.Position).Magnitude()
	if drift > BallRadius*4 {
		return reject(fmt.Sprintf("claimed ball position drifts %.0f from authoritative", drift), map[string]interface{}{
			"ball": world.Ball,
		})
	}

	return accept()
}

// Forget drops the tracked state for a player (cleanup).
func (v *StateValidator) Forget(playerID string) {
	v.mu.Lock()
	delete(v.last, playerID)
	v.mu.Unlock()
}
