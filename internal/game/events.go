package game

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Priority orders event processing. CRITICAL drains strictly before HIGH,
// HIGH before NORMAL, NORMAL before LOW.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	default:
		return "LOW"
	}
}

// Event types the pipeline admits.
const (
	EventPlayerMovement  = "player_movement"
	EventBallUpdate      = "ball_update"
	EventGoalScored      = "goal_scored"
	EventGoalAttempt     = "goal_attempt"
	EventChatMessage     = "chat_message"
	EventHeartbeat       = "heartbeat"
	EventLagCompensation = "lag_compensation"
	EventGameCleanup     = "game_cleanup"
	EventStateUpdate     = "state_update"
	EventGameEnded       = "game_ended"
	EventBackpressure    = "backpressure"

	// Staged end-of-game broadcasts released by the game-end processor.
	EventWinnerCelebration = "winner_celebration"
	EventDetailedResults   = "detailed_results"
	EventCleanupStarting   = "game_cleanup_starting"
)

// Broadcast target sentinels.
const (
	TargetAll    = "ALL"
	OriginSystem = "SYSTEM"
)

// Envelope wraps a single event travelling through the pipeline.
type Envelope struct {
	Type            string                 `json:"type"`
	Payload         map[string]interface{} `json:"payload"`
	Priority        Priority               `json:"priority"`
	Origin          string                 `json:"origin"` // player id or SYSTEM
	TargetRoom      string                 `json:"target_room,omitempty"`
	TargetPlayer    string                 `json:"target_player,omitempty"`
	ExcludeOrigin   bool                   `json:"-"` // input echoes omit the origin socket
	ClientTimestamp int64                  `json:"client_ts,omitempty"`
	EnqueuedAt      time.Time              `json:"-"`
	Sequence        uint64                 `json:"seq"`
}

// FieldKind is the type a registry field must carry.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldNumber
	FieldBool
	FieldObject
)

// FieldSpec validates one payload field.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	Min      float64 // numeric range, used when Min < Max
	Max      float64
	Enum     []string // allowed values for strings, empty = any
	MaxLen   int      // clamp length for strings, 0 = no clamp
	Sanitize bool     // strip HTML and trim whitespace
}

// EventSpec describes one admissible event type.
type EventSpec struct {
	Type       string
	Fields     []FieldSpec
	RatePerSec float64 // per-player token refill rate, 0 = unlimited
	Burst      int     // token bucket capacity
	Priority   Priority
	Persistent bool // appended to the room event log
}

// Registry maps event type to its spec.
type Registry map[string]EventSpec

// DefaultRegistry returns the registry of every event the core admits.
func DefaultRegistry() Registry {
	specs := []EventSpec{
		{
			Type: EventPlayerMovement,
			Fields: []FieldSpec{
				{Name: "position", Kind: FieldObject, Required: true},
				{Name: "velocity", Kind: FieldObject, Required: true},
				{Name: "timestamp", Kind: FieldNumber, Required: true},
				{Name: "sequenceId", Kind: FieldNumber, Required: true},
			},
			RatePerSec: 60, Burst: 90,
			Priority: PriorityHigh,
		},
		{
			Type: EventBallUpdate,
			Fields: []FieldSpec{
				{Name: "position", Kind: FieldObject, Required: true},
				{Name: "velocity", Kind: FieldObject, Required: true},
			},
			RatePerSec: 60, Burst: 90,
			Priority: PriorityHigh,
		},
		{
			Type: EventGoalAttempt,
			Fields: []FieldSpec{
				{Name: "position", Kind: FieldObject, Required: true},
				{Name: "velocity", Kind: FieldObject, Required: true},
				{Name: "goalType", Kind: FieldString, Required: false, Enum: []string{"normal", "header", "volley"}},
			},
			RatePerSec: 2, Burst: 4,
			Priority:   PriorityCritical,
			Persistent: true,
		},
		{
			Type: EventGoalScored,
			Fields: []FieldSpec{
				{Name: "scorer", Kind: FieldString, Required: true},
				{Name: "score", Kind: FieldObject, Required: true},
			},
			Priority:   PriorityCritical,
			Persistent: true,
		},
		{
			Type: EventChatMessage,
			Fields: []FieldSpec{
				{Name: "message", Kind: FieldString, Required: true, MaxLen: 280, Sanitize: true},
				{Name: "type", Kind: FieldString, Required: false, Enum: []string{"all", "team"}},
			},
			RatePerSec: 1, Burst: 3,
			Priority: PriorityLow,
		},
		{
			Type: EventHeartbeat,
			Fields: []FieldSpec{
				{Name: "clientTime", Kind: FieldNumber, Required: true},
			},
			RatePerSec: 2, Burst: 4,
			Priority: PriorityNormal,
		},
		{
			Type:     EventLagCompensation,
			Priority: PriorityNormal,
		},
		{
			Type:     EventStateUpdate,
			Priority: PriorityHigh,
		},
		{
			Type:       EventGameEnded,
			Priority:   PriorityCritical,
			Persistent: true,
		},
		{
			Type:     EventWinnerCelebration,
			Priority: PriorityHigh,
		},
		{
			Type:     EventDetailedResults,
			Priority: PriorityHigh,
		},
		{
			Type:     EventCleanupStarting,
			Priority: PriorityLow,
		},
		{
			Type:     EventGameCleanup,
			Priority: PriorityLow,
		},
		{
			Type:     EventBackpressure,
			Priority: PriorityCritical,
		},
	}

	reg := make(Registry, len(specs))
	for _, s := range specs {
		reg[s.Type] = s
	}
	return reg
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// sanitizeText strips HTML, trims whitespace, and clamps to maxLen runes.
func sanitizeText(s string, maxLen int) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if maxLen > 0 {
		runes := []rune(s)
		if len(runes) > maxLen {
			s = string(runes[:maxLen])
		}
	}
	return s
}

// ValidatePayload checks a payload against the spec. Returns field-level
// reasons on failure. The payload is sanitized in place for text fields.
func (spec EventSpec) ValidatePayload(payload map[string]interface{}) []string {
	var reasons []string
	for _, f := range spec.Fields {
		raw, present := payload[f.Name]
		if !present || raw == nil {
			if f.Required {
				reasons = append(reasons, fmt.Sprintf("%s: required field missing", f.Name))
			}
			continue
		}

		switch f.Kind {
		case FieldString:
			s, ok := raw.(string)
			if !ok {
				reasons = append(reasons, fmt.Sprintf("%s: expected string", f.Name))
				continue
			}
			if f.Sanitize {
				s = sanitizeText(s, f.MaxLen)
				payload[f.Name] = s
			}
			if len(f.Enum) > 0 {
				found := false
				for _, allowed := range f.Enum {
					if s == allowed {
						found = true
						break
					}
				}
				if !found {
					reasons = append(reasons, fmt.Sprintf("%s: value %q not allowed", f.Name, s))
				}
			}
		case FieldNumber:
			n, ok := toFloat(raw)
			if !ok {
				reasons = append(reasons, fmt.Sprintf("%s: expected number", f.Name))
				continue
			}
			if f.Min < f.Max && (n < f.Min || n > f.Max) {
				reasons = append(reasons, fmt.Sprintf("%s: %v outside [%v, %v]", f.Name, n, f.Min, f.Max))
			}
		case FieldBool:
			if _, ok := raw.(bool); !ok {
				reasons = append(reasons, fmt.Sprintf("%s: expected bool", f.Name))
			}
		case FieldObject:
			if _, ok := raw.(map[string]interface{}); !ok {
				reasons = append(reasons, fmt.Sprintf("%s: expected object", f.Name))
			}
		}
	}
	return reasons
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
