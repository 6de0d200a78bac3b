package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gofven/flowback-backend-sub001/internal/bootstrap"
	"github.com/Gofven/flowback-backend-sub001/internal/config"
	"github.com/Gofven/flowback-backend-sub001/internal/server"
	"github.com/Gofven/flowback-backend-sub001/pkg/logger"
	"github.com/Gofven/flowback-backend-sub001/pkg/validator"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	root := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := validator.Register(); err != nil {
		root.Fatal().Err(err).Msg("failed to register validators")
	}

	db, err := bootstrap.Database(cfg)
	if err != nil {
		root.Fatal().Err(err).Msg("failed to connect database")
	}

	if cfg.AutoMigrate {
		if err := bootstrap.Migrate(ctx, db, logger.Component("migration")); err != nil {
			root.Fatal().Err(err).Msg("migration failed")
		}
	}
	if cfg.IsDevelopment() {
		if err := bootstrap.SeedDevUser(ctx, db, root); err != nil {
			root.Fatal().Err(err).Msg("failed to seed dev user")
		}
	}

	redisClient := bootstrap.Redis(ctx, cfg, root)
	if redisClient != nil {
		defer redisClient.Close()
	}

	srv := server.NewServer(cfg, db, server.Options{
		Redis:   redisClient,
		Meili:   bootstrap.Meili(cfg),
		Storage: bootstrap.Storage(root),
		Logger:  root,
	})

	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		root.Fatal().Err(err).Msg("server exited with error")
	}
}
