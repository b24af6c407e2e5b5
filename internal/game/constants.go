package game

// Field and physics constants for the head-soccer simulation.
// These MUST match the client-side rendering constants exactly.

const (
	FieldWidth  = 1600.0
	FieldHeight = 900.0
	GroundGap   = 20.0 // gap between field bottom and the ground line

	GroundY = FieldHeight - GroundGap

	BallRadius   = 25.0
	PlayerWidth  = 50.0
	PlayerHeight = 80.0

	PlayerHalfWidth = PlayerWidth / 2

	// Per-tick kinematics (60 Hz baseline)
	Gravity          = 0.5
	Friction         = 0.85
	PlayerSpeed      = 8.0
	JumpImpulse      = 14.0
	BounceCoeff      = 0.95 // ball restitution on floor and side walls
	BounceMultiplier = 1.1

	// Kick force range imparted on ball-player collision
	KickForceMin      = 18.0
	KickForceMax      = 25.0
	KickBoost         = 2.0 // multiplier while the player is kicking
	KickCooldownTicks = 15

	// Movement validation
	MaxPlayerSpeed = 20.0
	MaxBallSpeed   = 60.0

	// Lag compensation cap
	MaxLagCompMs = 150

	// Goal mouth geometry: a rectangle flush against each side wall
	GoalWidth  = 60.0
	GoalHeight = 200.0
	GoalTop    = GroundY - GoalHeight

	// Starting positions
	LeftStartX  = 300.0
	RightStartX = FieldWidth - 300.0
	BallStartX  = FieldWidth / 2
	BallStartY  = 200.0
)

// DefaultTickRate is the authoritative simulation rate per room.
const DefaultTickRate = 60

// SnapshotDivisor down-samples state broadcasts to every third tick (<= 20 Hz).
const SnapshotDivisor = 3

// Per-mode score limits. Tournament mode has no score limit (0).
func ScoreLimitFor(mode GameMode) int {
	switch mode {
	case ModeCasual:
		return 3
	case ModeRanked:
		return 5
	default:
		return 0
	}
}

// Per-mode time limits in seconds.
func TimeLimitFor(mode GameMode) int {
	switch mode {
	case ModeCasual:
		return 300
	case ModeRanked:
		return 600
	default:
		return 900
	}
}
