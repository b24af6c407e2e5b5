package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playheadball/backend/internal/api/handlers"
	"github.com/playheadball/backend/internal/config"
	"github.com/playheadball/backend/internal/game"
	"github.com/playheadball/backend/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// SetupRoutes configures the HTTP surface: the socket endpoint, the REST
// endpoints, and the metrics scrape target.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config,
	server *ws.Server, mm *game.Matchmaker, rooms *game.RoomManager, ac *game.AntiCheat,
	pa *game.PersistenceAdapter) {
	// CORS for browser clients
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, accept, origin")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/ws", server.HandleWebSocket)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(db, rdb))
		v1.GET("/matchmaking/status", handlers.MatchmakingStatus(mm, rooms))
		v1.POST("/results", handlers.SubmitResult(ac))

		player := v1.Group("/players")
		{
			player.GET("/:id/stats", handlers.PlayerStats(pa))
			player.GET("/:id/games", handlers.PlayerGames(pa))
		}
	}
}
