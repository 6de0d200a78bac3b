package bootstrap

import (
	"context"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/config"
	"github.com/Gofven/flowback-backend-sub001/pkg/database"
	"github.com/Gofven/flowback-backend-sub001/pkg/storage"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Database opens the configured store.
func Database(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DBDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	return database.Connect(cfg.DBDriver, dsn)
}

// Redis connects when REDIS_URL is set. It returns nil when Redis is not
// configured or unreachable; callers degrade to their Redis-less behavior.
func Redis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, running without redis")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, running without redis")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, running without redis")
		_ = client.Close()
		return nil
	}
	log.Info().Msg("redis connected")
	return client
}

// Meili returns a search client, or nil when no host is configured.
func Meili(cfg *config.Config) meilisearch.ServiceManager {
	if cfg.MeiliSearchHost == "" {
		return nil
	}
	return meilisearch.New(cfg.MeiliSearchHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
}

// Storage returns Cloudinary storage, or nil when it cannot be configured.
func Storage(log zerolog.Logger) storage.FileStorage {
	fs, err := storage.NewCloudinaryStorage()
	if err != nil {
		log.Warn().Err(err).Msg("file storage disabled")
		return nil
	}
	return fs
}
