package models

import (
	"database/sql"
	"time"
)

// GameRecord is a completed match row in the games table.
type GameRecord struct {
	ID              int            `db:"id" json:"id"`
	RoomID          string         `db:"room_id" json:"room_id"`
	GameMode        string         `db:"game_mode" json:"game_mode"`
	Player1ID       string         `db:"player1_id" json:"player1_id"`
	Player2ID       string         `db:"player2_id" json:"player2_id"`
	Player1Score    int            `db:"player1_score" json:"player1_score"`
	Player2Score    int            `db:"player2_score" json:"player2_score"`
	WinnerID        sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	EndReason       string         `db:"end_reason" json:"end_reason"`
	ResultType      string         `db:"result_type" json:"result_type"`
	DurationSeconds int            `db:"duration_seconds" json:"duration_seconds"`
	StartedAt       sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	EndedAt         sql.NullTime   `db:"ended_at" json:"ended_at,omitempty"`
	Status          string         `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// PlayerStats is the cumulative per-player counters row.
type PlayerStats struct {
	PlayerID      string       `db:"player_id" json:"player_id"`
	GamesPlayed   int          `db:"games_played" json:"games_played"`
	GamesWon      int          `db:"games_won" json:"games_won"`
	GamesLost     int          `db:"games_lost" json:"games_lost"`
	GamesDrawn    int          `db:"games_drawn" json:"games_drawn"`
	GoalsScored   int          `db:"goals_scored" json:"goals_scored"`
	GoalsConceded int          `db:"goals_conceded" json:"goals_conceded"`
	TotalPlaytime int          `db:"total_playtime" json:"total_playtime"`
	WinStreak     int          `db:"win_streak" json:"win_streak"`
	BestWinStreak int          `db:"best_win_streak" json:"best_win_streak"`
	EloRating     int          `db:"elo_rating" json:"elo_rating"`
	LastPlayed    sql.NullTime `db:"last_played" json:"last_played,omitempty"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
