package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/config"
	"github.com/Gofven/flowback-backend-sub001/internal/contenttype"
	"github.com/Gofven/flowback-backend-sub001/internal/middleware"
	"github.com/Gofven/flowback-backend-sub001/internal/scheduler"
	"github.com/Gofven/flowback-backend-sub001/pkg/storage"

	chatHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/chat/delivery/http"
	chatRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/chat/repository"
	chatService "github.com/Gofven/flowback-backend-sub001/internal/modules/chat/service"

	commentHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/comment/delivery/http"
	commentRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/comment/repository"
	commentService "github.com/Gofven/flowback-backend-sub001/internal/modules/comment/service"

	groupHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/group/delivery/http"
	groupRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/group/repository"
	groupService "github.com/Gofven/flowback-backend-sub001/internal/modules/group/service"

	notiHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/delivery/http"
	notifRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/repository"
	notifService "github.com/Gofven/flowback-backend-sub001/internal/modules/notification/service"

	scheduleHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/delivery/http"
	scheduleRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/repository"
	scheduleService "github.com/Gofven/flowback-backend-sub001/internal/modules/schedule/service"

	searchService "github.com/Gofven/flowback-backend-sub001/internal/modules/search/service"

	todoHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/todo/delivery/http"
	todoRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/todo/repository"
	todoService "github.com/Gofven/flowback-backend-sub001/internal/modules/todo/service"

	userHttp "github.com/Gofven/flowback-backend-sub001/internal/modules/user/delivery/http"
	userRepo "github.com/Gofven/flowback-backend-sub001/internal/modules/user/repository"
	userService "github.com/Gofven/flowback-backend-sub001/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	orphanCleanupInterval = 12 * time.Hour
	orphanFileAge         = 24 * time.Hour
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	log         zerolog.Logger
	workers     []func(ctx context.Context)
}

// Options carries the optional collaborators. A nil Redis client disables
// live notifications and the background score queue. A nil FileStorage
// rejects comment attachments.
type Options struct {
	Redis   *redis.Client
	Meili   meilisearch.ServiceManager
	Storage storage.FileStorage
	Logger  zerolog.Logger
}

func NewServer(cfg *config.Config, db *gorm.DB, opts Options) *Server {
	log := opts.Logger
	redisClient := opts.Redis
	types := contenttype.Default()

	var meiliSvc searchService.MeiliSearchService
	if opts.Meili != nil {
		meiliSvc = searchService.NewMeiliSearchService(opts.Meili, log.With().Str("component", "search").Logger())
	}

	userRepository := userRepo.NewUserRepository(db)
	authSvc := userService.NewAuthService(userRepository, cfg.JWTSecret, cfg.JWTTTL)
	authHandler := userHttp.NewAuthHandler(authSvc)

	todoSvc := todoService.NewTodoService(todoRepo.NewTodoRepository(db))
	todoHandler := todoHttp.NewTodoHandler(todoSvc)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(db, notificationRepository, types, redisClient, log.With().Str("component", "notification").Logger())
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient, log.With().Str("component", "http").Logger())

	chatSvc := chatService.NewChatService(chatRepo.NewChatRepository(db))
	chatHandler := chatHttp.NewChatHandler(chatSvc)

	groupRepository := groupRepo.NewGroupRepository(db)
	groupSvc := groupService.NewGroupService(groupRepository, notificationSvc, meiliSvc, log.With().Str("component", "group").Logger())
	workGroupSvc := groupService.NewWorkGroupService(groupRepository, chatSvc, log.With().Str("component", "group").Logger())
	groupHandler := groupHttp.NewGroupHandler(groupSvc, workGroupSvc)

	registry := scheduler.NewRegistry(db, redisClient, log.With().Str("component", "scheduler").Logger())
	eventSvc := scheduleService.NewEventService(scheduleRepo.NewScheduleRepository(db), registry, notificationSvc, log.With().Str("component", "schedule").Logger())
	scheduleHandler := scheduleHttp.NewScheduleHandler(eventSvc)

	commentRepository := commentRepo.NewCommentRepository(db)
	scores := commentService.NewScoreWorker(commentRepository, redisClient, log.With().Str("component", "comment.score").Logger())
	commentSvc := commentService.NewCommentService(db, commentRepository, types, opts.Storage, scores, cfg.CloudinaryUploadFolder, log.With().Str("component", "comment").Logger())
	commentHandler := commentHttp.NewCommentHandler(commentSvc)

	s := &Server{
		db:          db,
		redisClient: redisClient,
		log:         log,
	}

	// Start Score Sync Worker (Background)
	if redisClient != nil {
		interval := cfg.ScoreSyncInterval
		s.workers = append(s.workers, func(ctx context.Context) { scores.Run(ctx, interval) })
	}

	// Start Orphan Cleanup Job (Background)
	cleanupLog := log.With().Str("component", "comment.cleanup").Logger()
	s.workers = append(s.workers, func(ctx context.Context) {
		commentService.StartOrphanCleanup(ctx, commentSvc, orphanCleanupInterval, orphanFileAge, cleanupLog)
	})

	// In-process scheduler for single-node deployments; cmd/scheduler runs it standalone.
	if cfg.SchedulerEnabled {
		rt := scheduler.NewRuntime(registry, redisClient, scheduler.Options{
			SyncInterval: cfg.SchedulerSyncInterval,
			LockTTL:      cfg.SchedulerLockTTL,
			Logger:       log.With().Str("component", "scheduler").Logger(),
		})
		rt.Handle(scheduleService.TaskEventFire, eventSvc.OnFire)
		s.workers = append(s.workers, func(ctx context.Context) {
			if err := rt.Run(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		})
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(requestLogger(log.With().Str("component", "http").Logger(), "/notification/ws"))

	authMiddleware := middleware.NewAuthMiddleware(userRepository, cfg.JWTSecret)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public routes (no auth required)
	user := router.Group("/user")
	{
		user.POST("/register/", authHandler.Register)
		user.POST("/login/", authHandler.Login)
	}

	// Protected routes (apply auth middleware explicitly)
	protected := router.Group("")
	protected.Use(authMiddleware.RequireAuth(), authMiddleware.RequireActive())
	{
		todo := protected.Group("/todo")
		{
			todo.GET("/", todoHandler.List)
			todo.POST("/create/", todoHandler.Create)
			todo.POST("/update/", todoHandler.Update)
			todo.POST("/delete/", todoHandler.Delete)
		}

		group := protected.Group("/group")
		{
			group.GET("/list/", groupHandler.List)
			group.POST("/create/", groupHandler.Create)
			group.GET("/:id/", groupHandler.Get)
			group.POST("/:id/update/", groupHandler.Update)
			group.POST("/:id/delete/", groupHandler.Delete)
			group.POST("/:id/join/", groupHandler.Join)
			group.POST("/:id/leave/", groupHandler.Leave)
			group.GET("/:id/users/", groupHandler.Members)
			group.GET("/:id/workgroups/", groupHandler.WorkGroups)
			group.POST("/:id/workgroup/create/", groupHandler.CreateWorkGroup)
			group.POST("/workgroup/:id/join/", groupHandler.JoinWorkGroup)
			group.POST("/workgroup/:id/leave/", groupHandler.LeaveWorkGroup)
			group.POST("/workgroup/:id/delete/", groupHandler.DeleteWorkGroup)
			group.GET("/workgroup/:id/users/", groupHandler.WorkGroupMembers)
		}

		chat := protected.Group("/chat")
		{
			chat.GET("/channels/", chatHandler.MyChannels)
			chat.GET("/channel/:id/participants/", chatHandler.Participants)
		}

		notification := protected.Group("/notification")
		{
			notification.GET("/", notificationHandler.GetNotifications)
			notification.GET("/channel", notificationHandler.GetChannel)
			notification.GET("/ws", notificationHandler.HandleWebSocket)
		}

		schedule := protected.Group("/schedule")
		{
			schedule.POST("/create/", scheduleHandler.CreateSchedule)
			schedule.GET("/:id/", scheduleHandler.GetSchedule)
			schedule.POST("/:id/event/create/", scheduleHandler.CreateEvent)
			schedule.GET("/:id/events/", scheduleHandler.ListEvents)
			schedule.GET("/event/:id/", scheduleHandler.GetEvent)
			schedule.POST("/event/:id/update/", scheduleHandler.UpdateEvent)
			schedule.POST("/event/:id/cancel/", scheduleHandler.CancelEvent)
			schedule.POST("/event/:id/delete/", scheduleHandler.DeleteEvent)
		}

		comment := protected.Group("/comment")
		{
			comment.GET("/", commentHandler.List)
			comment.POST("/create/", commentHandler.Create)
			comment.POST("/:id/delete/", commentHandler.Delete)
			comment.POST("/:id/vote/", commentHandler.Vote)
			comment.POST("/:id/vote/delete/", commentHandler.RetractVote)
			comment.GET("/:id/votes/", commentHandler.Votes)
		}
	}

	s.engine = router
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the background workers and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	for _, w := range s.workers {
		go w(ctx)
	}

	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skip[c.Request.URL.Path] {
			return
		}

		status := c.Writer.Status()
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
