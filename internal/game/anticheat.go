package game

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/playheadball/backend/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Anti-cheat flags raised against a result submission.
const (
	FlagResultScoreMismatch      = "RESULT_SCORE_MISMATCH"
	FlagUnrealisticScoringRate   = "UNREALISTIC_SCORING_RATE"
	FlagImpossibleScoreTimeRatio = "IMPOSSIBLE_SCORE_TIME_RATIO"
	FlagGameTooShort             = "GAME_TOO_SHORT"
	FlagGameTooLong              = "GAME_TOO_LONG"
	FlagPlayerScoreTooHigh       = "PLAYER_SCORE_TOO_HIGH"
	FlagExcessiveScoreDifference = "EXCESSIVE_SCORE_DIFFERENCE"
	FlagRapidSubmission          = "RAPID_SUBMISSION"
	FlagExcessiveWinStreak       = "EXCESSIVE_WIN_STREAK"
	FlagIdenticalScorePattern    = "IDENTICAL_SCORE_PATTERN"
	FlagUnrealisticImprovement   = "UNREALISTIC_IMPROVEMENT"
)

// Rule thresholds.
const (
	rejectThreshold      = 4
	suspicionCap         = 10
	maxGoalsPerMinute    = 2.0
	minGameSeconds       = 30
	maxGameSeconds       = 1800
	shortGameSeconds     = 120
	shortGameGoalCap     = 10
	maxSideScore         = 25
	maxScoreDifference   = 20
	rapidSubmitWindow    = 10 * time.Second
	maxDailyWinStreak    = 50
	scorelineRepeatLimit = 3
)

// ResultSubmission is a post-game result claim checked by the validator.
type ResultSubmission struct {
	PlayerID      string `json:"player_id"`
	PlayerScore   int    `json:"player_score"`
	OpponentScore int    `json:"opponent_score"`
	Result        string `json:"result"` // win | loss | draw
	DurationSec   int    `json:"duration_seconds"`
}

// CheatFlag is one raised rule with its severity.
type CheatFlag struct {
	Code     string `json:"code"`
	Severity int    `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// CheatVerdict aggregates flags into a suspicion score. Severity total >= 4
// rejects the submission.
type CheatVerdict struct {
	Accepted       bool        `json:"accepted"`
	Flags          []CheatFlag `json:"flags,omitempty"`
	SuspicionLevel int         `json:"suspicion_level"`
	Reason         string      `json:"reason,omitempty"`
}

// AntiCheat validates result submissions. Temporal rules (rapid submission,
// win streaks, score patterns, improvement rate) read per-player history in
// Redis; without Redis those rules are skipped.
type AntiCheat struct {
	rdb *redis.Client
}

// NewAntiCheat creates the validator. rdb may be nil.
func NewAntiCheat(rdb *redis.Client) *AntiCheat {
	return &AntiCheat{rdb: rdb}
}

// Check runs every rule against a submission and aggregates the verdict.
func (ac *AntiCheat) Check(ctx context.Context, sub ResultSubmission) CheatVerdict {
	var flags []CheatFlag

	flags = append(flags, ac.staticFlags(sub)...)
	flags = append(flags, ac.temporalFlags(ctx, sub)...)

	total := 0
	for _, f := range flags {
		total += f.Severity
	}
	suspicion := total
	if suspicion > suspicionCap {
		suspicion = suspicionCap
	}

	verdict := CheatVerdict{
		Accepted:       total < rejectThreshold,
		Flags:          flags,
		SuspicionLevel: suspicion,
	}
	if !verdict.Accepted {
		codes := make([]string, len(flags))
		for i, f := range flags {
			codes[i] = f.Code
		}
		verdict.Reason = "submission rejected: " + strings.Join(codes, ", ")
		metrics.AnticheatRejections.Inc()
		log.Printf("[ANTICHEAT] Rejected submission from %s (suspicion=%d flags=%v)", sub.PlayerID, suspicion, codes)
	}

	// Record the submission for future temporal checks regardless of verdict.
	ac.record(ctx, sub)

	return verdict
}

// staticFlags are the stateless rules over a single submission.
func (ac *AntiCheat) staticFlags(sub ResultSubmission) []CheatFlag {
	var flags []CheatFlag

	declaredWin := sub.Result == "win"
	declaredLoss := sub.Result == "loss"
	declaredDraw := sub.Result == "draw"
	switch {
	case declaredWin && sub.PlayerScore <= sub.OpponentScore,
		declaredLoss && sub.PlayerScore >= sub.OpponentScore,
		declaredDraw && sub.PlayerScore != sub.OpponentScore:
		flags = append(flags, CheatFlag{FlagResultScoreMismatch, 4,
			fmt.Sprintf("declared %s with score %d-%d", sub.Result, sub.PlayerScore, sub.OpponentScore)})
	}

	totalGoals := sub.PlayerScore + sub.OpponentScore
	if sub.DurationSec > 0 {
		perMinute := float64(totalGoals) / (float64(sub.DurationSec) / 60)
		if perMinute > maxGoalsPerMinute {
			flags = append(flags, CheatFlag{FlagUnrealisticScoringRate, 4,
				fmt.Sprintf("%.2f goals/minute", perMinute)})
		}
	}

	if sub.DurationSec < shortGameSeconds && totalGoals > shortGameGoalCap {
		flags = append(flags, CheatFlag{FlagImpossibleScoreTimeRatio, 5,
			fmt.Sprintf("%d goals in %ds", totalGoals, sub.DurationSec)})
	}

	if sub.DurationSec < minGameSeconds {
		flags = append(flags, CheatFlag{FlagGameTooShort, 2, fmt.Sprintf("%ds", sub.DurationSec)})
	}
	if sub.DurationSec > maxGameSeconds {
		flags = append(flags, CheatFlag{FlagGameTooLong, 2, fmt.Sprintf("%ds", sub.DurationSec)})
	}

	if sub.PlayerScore > maxSideScore || sub.OpponentScore > maxSideScore {
		flags = append(flags, CheatFlag{FlagPlayerScoreTooHigh, 3,
			fmt.Sprintf("score %d-%d", sub.PlayerScore, sub.OpponentScore)})
	}

	diff := sub.PlayerScore - sub.OpponentScore
	if diff < 0 {
		diff = -diff
	}
	if diff > maxScoreDifference {
		flags = append(flags, CheatFlag{FlagExcessiveScoreDifference, 2, fmt.Sprintf("difference %d", diff)})
	}

	return flags
}

// temporalFlags are the history-backed rules.
func (ac *AntiCheat) temporalFlags(ctx context.Context, sub ResultSubmission) []CheatFlag {
	if ac.rdb == nil {
		return nil
	}
	var flags []CheatFlag

	// RAPID_SUBMISSION: previous submission less than 10s ago
	lastKey := "anticheat:last_submit:" + sub.PlayerID
	if raw, err := ac.rdb.Get(ctx, lastKey).Result(); err == nil {
		if lastUnix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if time.Since(time.UnixMilli(lastUnix)) < rapidSubmitWindow {
				flags = append(flags, CheatFlag{FlagRapidSubmission, 3, "submitted within 10s of previous"})
			}
		}
	}

	// EXCESSIVE_WIN_STREAK: > 50 consecutive wins in the last 24h
	streakKey := "anticheat:win_streak:" + sub.PlayerID
	if raw, err := ac.rdb.Get(ctx, streakKey).Result(); err == nil {
		if streak, err := strconv.Atoi(raw); err == nil && streak > maxDailyWinStreak {
			flags = append(flags, CheatFlag{FlagExcessiveWinStreak, 4, fmt.Sprintf("%d consecutive wins", streak)})
		}
	}

	// IDENTICAL_SCORE_PATTERN: same scoreline more than 3 times recently
	scoreline := fmt.Sprintf("%d-%d", sub.PlayerScore, sub.OpponentScore)
	patternKey := "anticheat:scorelines:" + sub.PlayerID
	if count, err := ac.rdb.HGet(ctx, patternKey, scoreline).Int(); err == nil && count > scorelineRepeatLimit {
		flags = append(flags, CheatFlag{FlagIdenticalScorePattern, 4,
			fmt.Sprintf("scoreline %s seen %d times", scoreline, count)})
	}

	// UNREALISTIC_IMPROVEMENT: recent 5-game win rate more than doubled
	// versus the 5 games before them.
	historyKey := "anticheat:results:" + sub.PlayerID
	if results, err := ac.rdb.LRange(ctx, historyKey, 0, 9).Result(); err == nil && len(results) == 10 {
		recentWins, olderWins := 0, 0
		for i, r := range results {
			if r != "win" {
				continue
			}
			if i < 5 {
				recentWins++
			} else {
				olderWins++
			}
		}
		if olderWins > 0 && float64(recentWins) > 2*float64(olderWins) {
			flags = append(flags, CheatFlag{FlagUnrealisticImprovement, 4,
				fmt.Sprintf("recent wins %d vs older %d", recentWins, olderWins)})
		}
	}

	return flags
}

// record appends the submission to the player's Redis history with TTLs.
func (ac *AntiCheat) record(ctx context.Context, sub ResultSubmission) {
	if ac.rdb == nil {
		return
	}

	now := time.Now()
	pipe := ac.rdb.Pipeline()

	lastKey := "anticheat:last_submit:" + sub.PlayerID
	pipe.Set(ctx, lastKey, strconv.FormatInt(now.UnixMilli(), 10), time.Hour)

	streakKey := "anticheat:win_streak:" + sub.PlayerID
	if sub.Result == "win" {
		pipe.Incr(ctx, streakKey)
		pipe.Expire(ctx, streakKey, 24*time.Hour)
	} else {
		pipe.Set(ctx, streakKey, "0", 24*time.Hour)
	}

	patternKey := "anticheat:scorelines:" + sub.PlayerID
	scoreline := fmt.Sprintf("%d-%d", sub.PlayerScore, sub.OpponentScore)
	pipe.HIncrBy(ctx, patternKey, scoreline, 1)
	pipe.Expire(ctx, patternKey, 24*time.Hour)

	historyKey := "anticheat:results:" + sub.PlayerID
	pipe.LPush(ctx, historyKey, sub.Result)
	pipe.LTrim(ctx, historyKey, 0, 19)
	pipe.Expire(ctx, historyKey, 7*24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[ANTICHEAT] Failed to record submission history for %s: %v", sub.PlayerID, err)
	}
}
