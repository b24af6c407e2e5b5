package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playheadball/backend/internal/api"
	"github.com/playheadball/backend/internal/config"
	"github.com/playheadball/backend/internal/database"
	"github.com/playheadball/backend/internal/game"
	"github.com/playheadball/backend/internal/migrations"
	"github.com/playheadball/backend/internal/redis"
	"github.com/playheadball/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis. The server runs without it; the temporal anti-cheat
	// rules are skipped in that case.
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable (%v) - temporal anti-cheat rules disabled", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	// Core wiring: hub -> pipeline -> rooms -> matchmaker -> game end.
	hub := ws.NewHub()

	pipeline := game.NewPipeline(game.DefaultRegistry(), hub, [4]int{
		cfg.CriticalQueueCap, cfg.HighQueueCap, cfg.NormalQueueCap, cfg.LowQueueCap,
	})

	validator := game.NewStateValidator(pipeline.LatencyEstimate)

	game.Manager.Configure(cfg.MaxConcurrentRooms, cfg.TickRate, cfg.GoalCooldownSeconds,
		time.Duration(cfg.PauseTimeoutSeconds)*time.Second)

	// Persistent events released through the pipeline land in the owning
	// room's event log.
	pipeline.OnPersistent = func(roomID, eventType string, payload map[string]interface{}) {
		if room, ok := game.Manager.GetRoom(roomID); ok {
			room.RecordEvent(eventType, payload)
		}
	}

	matchmaker := game.NewMatchmaker(game.MatchmakerConfig{
		MaxQueueSize:           cfg.MaxQueueSize,
		MaxWaitTime:            time.Duration(cfg.MaxWaitSeconds) * time.Second,
		SkillTolerance:         cfg.SkillTolerance,
		SkillToleranceIncrease: cfg.SkillToleranceIncrease,
		ToleranceStep:          cfg.ToleranceStepSeconds,
		MaxConcurrentRooms:     cfg.MaxConcurrentRooms,
	}, game.Manager.RoomCount)

	persistence := game.NewPersistenceAdapter(db, cfg.PersistMaxRetries)
	antiCheat := game.NewAntiCheat(rdb)

	gameEnd := game.NewGameEndProcessor(pipeline, persistence, game.Manager,
		time.Duration(cfg.CelebrationSeconds)*time.Second,
		time.Duration(cfg.PostGameDelaySeconds)*time.Second,
		time.Duration(cfg.CleanupBroadcastLeadSecs)*time.Second)

	server := ws.NewServer(cfg, hub, pipeline, validator, matchmaker, game.Manager, gameEnd, persistence)

	pipeline.Start()
	matchmaker.Start(time.Duration(cfg.MatchmakerPollSeconds) * time.Second)
	go server.Run()

	// HTTP surface
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, db, rdb, cfg, server, matchmaker, game.Manager, antiCheat, persistence)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
