package game

import (
	"context"
	"testing"
)

func hasFlag(flags []CheatFlag, code string) bool {
	for _, f := range flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestCheckAcceptsPlausibleResult(t *testing.T) {
	ac := NewAntiCheat(nil)

	verdict := ac.Check(context.Background(), ResultSubmission{
		PlayerID:      "p1",
		PlayerScore:   3,
		OpponentScore: 1,
		Result:        "win",
		DurationSec:   300,
	})
	if !verdict.Accepted {
		t.Errorf("Plausible result rejected: %s", verdict.Reason)
	}
	if len(verdict.Flags) != 0 {
		t.Errorf("Unexpected flags: %v", verdict.Flags)
	}
}

func TestCheckRejectsImpossibleScoringRate(t *testing.T) {
	ac := NewAntiCheat(nil)

	// 15 goals inside a minute trips both the per-minute rate and the
	// short-game ratio rule.
	verdict := ac.Check(context.Background(), ResultSubmission{
		PlayerID:      "p1",
		PlayerScore:   15,
		OpponentScore: 0,
		Result:        "win",
		DurationSec:   60,
	})
	if verdict.Accepted {
		t.Fatal("15-0 in 60s accepted")
	}
	if !hasFlag(verdict.Flags, FlagUnrealisticScoringRate) {
		t.Errorf("Missing %s: %v", FlagUnrealisticScoringRate, verdict.Flags)
	}
	if !hasFlag(verdict.Flags, FlagImpossibleScoreTimeRatio) {
		t.Errorf("Missing %s: %v", FlagImpossibleScoreTimeRatio, verdict.Flags)
	}
	if verdict.SuspicionLevel != 9 {
		t.Errorf("SuspicionLevel = %d, want 9", verdict.SuspicionLevel)
	}
}

func TestCheckRejectsResultScoreMismatch(t *testing.T) {
	ac := NewAntiCheat(nil)

	verdict := ac.Check(context.Background(), ResultSubmission{
		PlayerID:      "p1",
		PlayerScore:   1,
		OpponentScore: 3,
		Result:        "win",
		DurationSec:   300,
	})
	if verdict.Accepted {
		t.Fatal("Declared win with a losing score accepted")
	}
	if !hasFlag(verdict.Flags, FlagResultScoreMismatch) {
		t.Errorf("Missing %s: %v", FlagResultScoreMismatch, verdict.Flags)
	}
}

func TestCheckFlagsShortAndLongGames(t *testing.T) {
	ac := NewAntiCheat(nil)

	// A goalless short game trips only the duration rule; any goal inside
	// 10s would trip the scoring-rate rule too.
	short := ac.Check(context.Background(), ResultSubmission{
		PlayerID: "p1", PlayerScore: 0, OpponentScore: 0, Result: "draw", DurationSec: 10,
	})
	if !hasFlag(short.Flags, FlagGameTooShort) {
		t.Errorf("10s game not flagged short: %v", short.Flags)
	}
	if hasFlag(short.Flags, FlagUnrealisticScoringRate) {
		t.Errorf("Goalless game flagged for scoring rate: %v", short.Flags)
	}
	// Severity 2 alone stays under the reject threshold.
	if !short.Accepted {
		t.Errorf("Short game alone rejected: %s", short.Reason)
	}

	long := ac.Check(context.Background(), ResultSubmission{
		PlayerID: "p1", PlayerScore: 2, OpponentScore: 1, Result: "win", DurationSec: 3600,
	})
	if !hasFlag(long.Flags, FlagGameTooLong) {
		t.Errorf("1h game not flagged long: %v", long.Flags)
	}
}

func TestCheckSuspicionIsCapped(t *testing.T) {
	ac := NewAntiCheat(nil)

	verdict := ac.Check(context.Background(), ResultSubmission{
		PlayerID:      "p1",
		PlayerScore:   30,
		OpponentScore: 0,
		Result:        "win",
		DurationSec:   10,
	})
	if verdict.Accepted {
		t.Fatal("Absurd submission accepted")
	}
	if verdict.SuspicionLevel != 10 {
		t.Errorf("SuspicionLevel = %d, want capped at 10", verdict.SuspicionLevel)
	}
	if !hasFlag(verdict.Flags, FlagPlayerScoreTooHigh) || !hasFlag(verdict.Flags, FlagExcessiveScoreDifference) {
		t.Errorf("Score-magnitude flags missing: %v", verdict.Flags)
	}
}
