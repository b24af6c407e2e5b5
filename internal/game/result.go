package game

import "time"

// WinnerSlot identifies the winning side of a completed match.
type WinnerSlot string

const (
	WinnerLeft  WinnerSlot = "left"
	WinnerRight WinnerSlot = "right"
	WinnerDraw  WinnerSlot = "DRAW"
)

// Result type markers persisted with the match.
const (
	ResultNormal        = "normal"
	ResultForfeit       = "forfeit"
	ResultDoubleForfeit = "double_forfeit"
	ResultDraw          = "draw"
	ResultForced        = "forced"
)

// PlayerResult is one side's final line.
type PlayerResult struct {
	PlayerID       string `json:"player_id"`
	Score          int    `json:"score"`
	Outcome        string `json:"outcome"` // win | loss | draw
	ConnectedAtEnd bool   `json:"connected_at_end"`
}

// Result is the computed outcome of a finished room.
type Result struct {
	RoomID     string       `json:"room_id"`
	Mode       GameMode     `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Duration   int          `json:"duration_seconds"`
	Reason     EndReason    `json:"reason"`
	Winner     WinnerSlot   `json:"winner"`
	ResultType string       `json:"result_type"`
	Left       PlayerResult `json:"left"`
	Right      PlayerResult `json:"right"`
	TotalGoals int          `json:"total_goals"`
	GoalDiff   int          `json:"goal_diff"`
}

// WinnerID returns the winning player id, or "" on a draw.
func (res Result) WinnerID() string {
	switch res.Winner {
	case WinnerLeft:
		return res.Left.PlayerID
	case WinnerRight:
		return res.Right.PlayerID
	}
	return ""
}

// ComputeResult derives the final outcome for a finished room.
func ComputeResult(r *Room, reason EndReason) Result {
	scoreL, scoreR := r.Score()
	leftConnected := r.Left().Connected()
	rightConnected := r.Right().Connected()
	now := time.Now()

	res := Result{
		RoomID:     r.ID,
		Mode:       r.Mode,
		StartedAt:  r.StartTime(),
		EndedAt:    now,
		Duration:   r.ElapsedSeconds(),
		Reason:     reason,
		ResultType: ResultNormal,
		Left: PlayerResult{
			PlayerID:       r.Left().ID,
			Score:          scoreL,
			ConnectedAtEnd: leftConnected,
		},
		Right: PlayerResult{
			PlayerID:       r.Right().ID,
			Score:          scoreR,
			ConnectedAtEnd: rightConnected,
		},
		TotalGoals: scoreL + scoreR,
		GoalDiff:   scoreL - scoreR,
	}

	switch reason {
	case EndForfeit:
		res.ResultType = ResultForfeit
		forfeiter := r.ForfeitedBy()
		switch {
		case !leftConnected && !rightConnected:
			res.Winner = WinnerDraw
			res.ResultType = ResultDoubleForfeit
		case forfeiter == r.Left().ID:
			res.Winner = WinnerRight
		case forfeiter == r.Right().ID:
			res.Winner = WinnerLeft
		case leftConnected:
			res.Winner = WinnerLeft
		default:
			res.Winner = WinnerRight
		}
	case EndDisconnect:
		res.ResultType = ResultForfeit
		switch {
		case leftConnected && !rightConnected:
			res.Winner = WinnerLeft
		case rightConnected && !leftConnected:
			res.Winner = WinnerRight
		default:
			res.Winner = WinnerDraw
			res.ResultType = ResultDoubleForfeit
		}
	case EndForced:
		res.ResultType = ResultForced
		res.Winner = winnerByScore(scoreL, scoreR)
	default:
		// score_limit, time_limit, mutual_agreement: the scoreboard decides.
		res.Winner = winnerByScore(scoreL, scoreR)
	}

	if res.Winner == WinnerDraw && res.ResultType == ResultNormal {
		res.ResultType = ResultDraw
	}

	res.Left.Outcome = outcomeFor(WinnerLeft, res.Winner)
	res.Right.Outcome = outcomeFor(WinnerRight, res.Winner)
	return res
}

func winnerByScore(left, right int) WinnerSlot {
	switch {
	case left > right:
		return WinnerLeft
	case right > left:
		return WinnerRight
	}
	return WinnerDraw
}

func outcomeFor(slot, winner WinnerSlot) string {
	switch winner {
	case WinnerDraw:
		return "draw"
	case slot:
		return "win"
	}
	return "loss"
}
