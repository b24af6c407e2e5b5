package game

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playheadball/backend/internal/metrics"
	"github.com/playheadball/backend/internal/models"
)

// PersistenceAdapter writes completed matches and cumulative player stats to
// the external database. Callers MUST call each operation at most once per
// completed match; idempotency is not provided here.
type PersistenceAdapter struct {
	db          *sqlx.DB
	maxRetries  int
	baseBackoff time.Duration
}

// NewPersistenceAdapter creates an adapter. db may be nil (persistence
// disabled, e.g. in tests).
func NewPersistenceAdapter(db *sqlx.DB, maxRetries int) *PersistenceAdapter {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &PersistenceAdapter{
		db:          db,
		maxRetries:  maxRetries,
		baseBackoff: time.Second,
	}
}

// SaveMatch inserts one games row. Transient errors are retried with
// exponential backoff; after the budget the failure is metered and returned.
func (pa *PersistenceAdapter) SaveMatch(ctx context.Context, res Result) error {
	if pa.db == nil {
		return nil
	}

	var winnerID sql.NullString
	if id := res.WinnerID(); id != "" {
		winnerID = sql.NullString{String: id, Valid: true}
	}

	var lastErr error
	for attempt := 0; attempt <= pa.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := pa.baseBackoff << (attempt - 1)
			log.Printf("[DB] SaveMatch retry %d/%d for room %s in %v", attempt, pa.maxRetries, res.RoomID, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, err := pa.db.ExecContext(ctx, `
			INSERT INTO games (room_id, game_mode, player1_id, player2_id, player1_score, player2_score,
			                   winner_id, end_reason, result_type, duration_seconds, started_at, ended_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'completed', NOW())`,
			res.RoomID, string(res.Mode), res.Left.PlayerID, res.Right.PlayerID,
			res.Left.Score, res.Right.Score, winnerID, string(res.Reason), res.ResultType,
			res.Duration, res.StartedAt, res.EndedAt)
		if err == nil {
			metrics.MatchesPersisted.Inc()
			return nil
		}
		lastErr = err
	}

	metrics.PersistFailures.Inc()
	log.Printf("[DB] SaveMatch gave up after %d retries for room %s: %v", pa.maxRetries, res.RoomID, lastErr)
	return fmt.Errorf("save match: %w", lastErr)
}

// UpdatePlayerStats upserts both players' cumulative counters and, for
// ranked matches, applies the Elo adjustment.
func (pa *PersistenceAdapter) UpdatePlayerStats(ctx context.Context, res Result) error {
	if pa.db == nil {
		return nil
	}

	if err := pa.upsertStats(ctx, res.Left, res.Right.Score, res.Duration); err != nil {
		return err
	}
	if err := pa.upsertStats(ctx, res.Right, res.Left.Score, res.Duration); err != nil {
		return err
	}

	if res.Mode == ModeRanked {
		if err := pa.applyElo(ctx, res); err != nil {
			log.Printf("[DB] Elo update failed for room %s: %v", res.RoomID, err)
		}
	}
	return nil
}

// upsertStats writes one player's counters. win_streak resets on non-win;
// best_win_streak keeps its maximum.
func (pa *PersistenceAdapter) upsertStats(ctx context.Context, pr PlayerResult, conceded, duration int) error {
	won, lost, drawn := 0, 0, 0
	switch pr.Outcome {
	case "win":
		won = 1
	case "loss":
		lost = 1
	default:
		drawn = 1
	}

	_, err := pa.db.ExecContext(ctx, `
		INSERT INTO player_stats (player_id, games_played, games_won, games_lost, games_drawn,
		                          goals_scored, goals_conceded, total_playtime, win_streak, best_win_streak,
		                          last_played, updated_at)
		VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8, $8, NOW(), NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			games_played    = player_stats.games_played + 1,
			games_won       = player_stats.games_won + $2,
			games_lost      = player_stats.games_lost + $3,
			games_drawn     = player_stats.games_drawn + $4,
			goals_scored    = player_stats.goals_scored + $5,
			goals_conceded  = player_stats.goals_conceded + $6,
			total_playtime  = player_stats.total_playtime + $7,
			win_streak      = CASE WHEN $2 = 1 THEN player_stats.win_streak + 1 ELSE 0 END,
			best_win_streak = GREATEST(player_stats.best_win_streak,
			                           CASE WHEN $2 = 1 THEN player_stats.win_streak + 1 ELSE 0 END),
			last_played     = NOW(),
			updated_at      = NOW()`,
		pr.PlayerID, won, lost, drawn, pr.Score, conceded, duration, won)
	if err != nil {
		return fmt.Errorf("upsert stats for %s: %w", pr.PlayerID, err)
	}
	return nil
}

// applyElo reads both ratings, computes the K=32 adjustment, and writes the
// clamped results back.
func (pa *PersistenceAdapter) applyElo(ctx context.Context, res Result) error {
	ratingL, err := pa.readElo(ctx, res.Left.PlayerID)
	if err != nil {
		return err
	}
	ratingR, err := pa.readElo(ctx, res.Right.PlayerID)
	if err != nil {
		return err
	}

	var scoreL float64
	switch res.Winner {
	case WinnerLeft:
		scoreL = 1
	case WinnerDraw:
		scoreL = 0.5
	}

	newL, newR := AdjustElo(ratingL, ratingR, scoreL)

	if _, err := pa.db.ExecContext(ctx, `UPDATE player_stats SET elo_rating=$1, updated_at=NOW() WHERE player_id=$2`, newL, res.Left.PlayerID); err != nil {
		return err
	}
	if _, err := pa.db.ExecContext(ctx, `UPDATE player_stats SET elo_rating=$1, updated_at=NOW() WHERE player_id=$2`, newR, res.Right.PlayerID); err != nil {
		return err
	}
	log.Printf("[DB] Elo updated: %s %d->%d, %s %d->%d",
		res.Left.PlayerID, ratingL, newL, res.Right.PlayerID, ratingR, newR)
	return nil
}

func (pa *PersistenceAdapter) readElo(ctx context.Context, playerID string) (int, error) {
	var rating int
	err := pa.db.GetContext(ctx, &rating, `SELECT elo_rating FROM player_stats WHERE player_id=$1`, playerID)
	if err == sql.ErrNoRows {
		return 1200, nil
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}

// LoadElo fetches a player's stored rating for authenticate-time hydration.
func (pa *PersistenceAdapter) LoadElo(ctx context.Context, playerID string) (int, error) {
	if pa.db == nil {
		return 1200, nil
	}
	return pa.readElo(ctx, playerID)
}

// LoadStats fetches one player's cumulative counters row.
func (pa *PersistenceAdapter) LoadStats(ctx context.Context, playerID string) (*models.PlayerStats, error) {
	if pa.db == nil {
		return nil, sql.ErrNoRows
	}
	var stats models.PlayerStats
	err := pa.db.GetContext(ctx, &stats, `SELECT * FROM player_stats WHERE player_id=$1`, playerID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentGames fetches a player's latest completed matches, newest first.
func (pa *PersistenceAdapter) RecentGames(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	if pa.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var games []models.GameRecord
	err := pa.db.SelectContext(ctx, &games, `
		SELECT * FROM games
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, err
	}
	return games, nil
}
