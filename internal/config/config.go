package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Matchmaker
	MaxQueueSize           int
	MaxWaitSeconds         int
	SkillTolerance         int
	SkillToleranceIncrease int
	ToleranceStepSeconds   int
	MatchmakerPollSeconds  int
	MaxConcurrentRooms     int
	ReadyUpSeconds         int

	// Connection Manager
	HeartbeatSeconds         int
	ConnectionTimeoutSeconds int
	MaxConnections           int
	ReconnectGraceSeconds    int

	// Room / simulation
	TickRate            int
	GoalCooldownSeconds int
	PauseTimeoutSeconds int

	// Game end
	PostGameDelaySeconds     int
	CelebrationSeconds       int
	CleanupBroadcastLeadSecs int
	PersistMaxRetries        int

	// Event pipeline queue caps per priority
	CriticalQueueCap int
	HighQueueCap     int
	NormalQueueCap   int
	LowQueueCap      int

	// Security
	JWTSecret     string
	AdminCodeHash string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/playheadball?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Matchmaker
		MaxQueueSize:           getEnvInt("MAX_QUEUE_SIZE", 500),
		MaxWaitSeconds:         getEnvInt("MAX_WAIT_SECONDS", 120),
		SkillTolerance:         getEnvInt("SKILL_TOLERANCE", 200),
		SkillToleranceIncrease: getEnvInt("SKILL_TOLERANCE_INCREASE", 25),
		ToleranceStepSeconds:   getEnvInt("TOLERANCE_STEP_SECONDS", 10),
		MatchmakerPollSeconds:  getEnvInt("MATCHMAKER_POLL_SECONDS", 2),
		MaxConcurrentRooms:     getEnvInt("MAX_CONCURRENT_ROOMS", 200),
		ReadyUpSeconds:         getEnvInt("READY_UP_SECONDS", 10),

		// Connection Manager
		HeartbeatSeconds:         getEnvInt("HEARTBEAT_SECONDS", 30),
		ConnectionTimeoutSeconds: getEnvInt("CONNECTION_TIMEOUT_SECONDS", 60),
		MaxConnections:           getEnvInt("MAX_CONNECTIONS", 2000),
		ReconnectGraceSeconds:    getEnvInt("RECONNECT_GRACE_SECONDS", 10),

		// Room / simulation
		TickRate:            getEnvInt("TICK_RATE", 60),
		GoalCooldownSeconds: getEnvInt("GOAL_COOLDOWN_SECONDS", 3),
		PauseTimeoutSeconds: getEnvInt("PAUSE_TIMEOUT_SECONDS", 30),

		// Game end
		PostGameDelaySeconds:     getEnvInt("POST_GAME_DELAY_SECONDS", 5),
		CelebrationSeconds:       getEnvInt("CELEBRATION_SECONDS", 3),
		CleanupBroadcastLeadSecs: getEnvInt("CLEANUP_BROADCAST_LEAD_SECONDS", 2),
		PersistMaxRetries:        getEnvInt("PERSIST_MAX_RETRIES", 3),

		// Event pipeline queue caps
		CriticalQueueCap: getEnvInt("CRITICAL_QUEUE_CAP", 256),
		HighQueueCap:     getEnvInt("HIGH_QUEUE_CAP", 1024),
		NormalQueueCap:   getEnvInt("NORMAL_QUEUE_CAP", 4096),
		LowQueueCap:      getEnvInt("LOW_QUEUE_CAP", 1024),

		// Security
		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		AdminCodeHash: getEnv("ADMIN_CODE_HASH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
