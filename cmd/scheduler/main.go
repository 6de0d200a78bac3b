package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gofven/flowback-backend-sub001/internal/bootstrap"
	"github.com/Gofven/flowback-backend-sub001/internal/config"
	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/scheduler"
	"github.com/Gofven/flowback-backend-sub001/pkg/logger"
	"github.com/rs/zerolog/log"

	notifRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/repository"
	notifService "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/service"
	scheduleRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/repository"
	scheduleService "github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	root := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	schedLog := logger.Component("scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.Database(cfg)
	if err != nil {
		root.Fatal().Err(err).Msg("failed to connect database")
	}

	redisClient := bootstrap.Redis(ctx, cfg, root)
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		schedLog.Warn().Msg("no leader lock without redis, run a single scheduler")
	}

	notifications := notifService.NewNotificationService(db, notifRepo.NewNotificationRepository(db), contenttype.Default(), redisClient, logger.Component("notification"))
	registry := scheduler.NewRegistry(db, redisClient, schedLog)
	events := scheduleService.NewEventService(scheduleRepo.NewScheduleRepository(db), registry, notifications, logger.Component("schedule"))

	rt := scheduler.NewRuntime(registry, redisClient, scheduler.Options{
		SyncInterval: cfg.SchedulerSyncInterval,
		LockTTL:      cfg.SchedulerLockTTL,
		Logger:       schedLog,
	})
	rt.Handle(scheduleService.TaskEventFire, events.OnFire)

	if err := rt.Run(ctx); err != nil {
		root.Fatal().Err(err).Msg("scheduler exited with error")
	}
}
