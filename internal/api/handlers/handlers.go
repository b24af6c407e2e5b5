package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playheadball/backend/internal/game"
	"github.com/redis/go-redis/v9"
)

// HealthCheck reports process liveness plus DB/Redis reachability.
func HealthCheck(db *sqlx.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if db == nil {
			dbStatus = "disabled"
		} else if err := db.PingContext(ctx); err != nil {
			dbStatus = err.Error()
		}

		redisStatus := "ok"
		if rdb == nil {
			redisStatus = "disabled"
		} else if err := rdb.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}

		status := http.StatusOK
		if dbStatus != "ok" && dbStatus != "disabled" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "up",
			"db":     dbStatus,
			"redis":  redisStatus,
			"time":   time.Now().UTC(),
		})
	}
}

// MatchmakingStatus exposes the queue snapshot for lobby UIs.
func MatchmakingStatus(mm *game.Matchmaker, rooms *game.RoomManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := mm.SnapshotStats()
		c.JSON(http.StatusOK, gin.H{
			"queue":        stats,
			"active_rooms": rooms.RoomCount(),
		})
	}
}

// PlayerStats returns one player's cumulative counters.
func PlayerStats(pa *game.PersistenceAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.Param("id")
		stats, err := pa.LoadStats(c.Request.Context(), playerID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no stats for player"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// PlayerGames returns a player's recent completed matches.
func PlayerGames(pa *game.PersistenceAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.Param("id")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		games, err := pa.RecentGames(c.Request.Context(), playerID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load games"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": games})
	}
}

// SubmitResult runs a result claim through the anti-cheat validator.
// Rejected submissions are never persisted; the caller gets the flags and
// the suspicion level back.
func SubmitResult(ac *game.AntiCheat) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sub game.ResultSubmission
		if err := c.ShouldBindJSON(&sub); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission payload"})
			return
		}
		if sub.PlayerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_id required"})
			return
		}

		verdict := ac.Check(c.Request.Context(), sub)
		if !verdict.Accepted {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"accepted":        false,
				"reason":          verdict.Reason,
				"flags":           verdict.Flags,
				"suspicion_level": verdict.SuspicionLevel,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accepted":        true,
			"suspicion_level": verdict.SuspicionLevel,
			"flags":           verdict.Flags,
		})
	}
}
