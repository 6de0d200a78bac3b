package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DBDriver    string
	DatabaseURL string
	SQLitePath  string
	AutoMigrate bool

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryUploadFolder string

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel  string
	LogFormat string

	SchedulerEnabled      bool
	SchedulerSyncInterval time.Duration
	SchedulerLockTTL      time.Duration
	ScoreSyncInterval     time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "flowback.db"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "flowback"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.AutoMigrate, err = parseBool(getEnv("AUTO_MIGRATE", "true")); err != nil {
		return nil, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
	}
	if cfg.SchedulerEnabled, err = parseBool(getEnv("SCHEDULER_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
	}

	// Parsing durations
	if cfg.JWTTTL, err = parseDuration(getEnv("JWT_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.SchedulerSyncInterval, err = parseDuration(getEnv("SCHEDULER_SYNC_INTERVAL", "30s")); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_SYNC_INTERVAL: %w", err)
	}
	if cfg.SchedulerLockTTL, err = parseDuration(getEnv("SCHEDULER_LOCK_TTL", "1m")); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_LOCK_TTL: %w", err)
	}
	if cfg.ScoreSyncInterval, err = parseDuration(getEnv("SCORE_SYNC_INTERVAL", "1m")); err != nil {
		return nil, fmt.Errorf("invalid SCORE_SYNC_INTERVAL: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(s)
}
