package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniplan/timetable-api/api/swagger"
	"github.com/uniplan/timetable-api/internal/handler"
	"github.com/uniplan/timetable-api/internal/middleware"
	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	"github.com/uniplan/timetable-api/internal/service"
	"github.com/uniplan/timetable-api/pkg/cache"
	"github.com/uniplan/timetable-api/pkg/config"
	"github.com/uniplan/timetable-api/pkg/database"
	"github.com/uniplan/timetable-api/pkg/logger"
	corsmiddleware "github.com/uniplan/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniplan/timetable-api/pkg/middleware/requestid"
	"github.com/uniplan/timetable-api/pkg/storage"
)

// @title UniPlan Timetable API
// @version 1.0.0
// @description Weekly scheduling grid with cross-department approval workflow
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	orgRepo := repository.NewOrgRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, metricsSvc, logr)
	txRunner := repository.NewTxRunner(db)

	// Services.
	validate := validator.New()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "uniplan-timetable-api",
	})
	notificationSvc := service.NewNotificationService(notificationRepo, cacheRepo, cfg.Notifications, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	ownershipSvc := service.NewOwnershipService(orgRepo, logr)
	conflictSvc := service.NewConflictService(logr)
	timetableSvc := service.NewTimetableService(
		assignmentRepo,
		requestRepo,
		sessionRepo,
		semesterRepo,
		orgRepo,
		ownershipSvc,
		conflictSvc,
		cacheRepo,
		notificationSvc,
		txRunner,
		userRepo,
		metricsSvc,
		cfg.Scheduling,
		logr,
	)
	approvalSvc := service.NewApprovalService(
		requestRepo,
		assignmentRepo,
		sessionRepo,
		semesterRepo,
		cacheRepo,
		notificationSvc,
		txRunner,
		userRepo,
		metricsSvc,
		logr,
	)
	sessionSvc := service.NewSessionService(
		sessionRepo,
		requestRepo,
		assignmentRepo,
		semesterRepo,
		orgRepo,
		cacheRepo,
		notificationSvc,
		txRunner,
		logr,
	)
	semesterSvc := service.NewSemesterService(semesterRepo, logr)

	var exportArchive *storage.LocalStorage
	var exportSigner *storage.DownloadSigner
	if cfg.Export.Enabled {
		exportArchive, err = storage.NewLocalStorage(cfg.Export.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export archive", "error", err)
		}
		exportSigner = storage.NewDownloadSigner(cfg.Export.DownloadSecret, cfg.Export.DownloadTTL)
	}
	exportSvc := service.NewExportService(assignmentRepo, semesterRepo, exportArchive, exportSigner, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	requestHandler := handler.NewRequestHandler(approvalSvc, notificationSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Export.Enabled {
		r.GET("/exports/download", exportHandler.Download)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	semesters := protected.Group("/semesters")
	{
		semesters.GET("", semesterHandler.List)
		semesters.GET("/active", semesterHandler.Active)
		semesters.GET("/:id", semesterHandler.Get)
		semesters.POST("/:id/activate", middleware.RequireRoles(models.RoleAdmin), semesterHandler.SetActive)
	}

	schedulers := middleware.RequireRoles(models.RoleAdmin, models.RoleProgramHead)

	sessions := protected.Group("/sessions")
	{
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("", schedulers, sessionHandler.Create)
		sessions.PUT("/:id", schedulers, sessionHandler.Update)
		sessions.DELETE("/:id", schedulers, sessionHandler.Delete)
	}

	timetable := protected.Group("/timetable")
	{
		timetable.POST("/assignments", schedulers, timetableHandler.Assign)
		timetable.POST("/assignments/move", schedulers, timetableHandler.Move)
		timetable.DELETE("/assignments", schedulers, timetableHandler.Remove)
		timetable.GET("/:semester_id", timetableHandler.Grid)
		if cfg.Export.Enabled {
			timetable.GET("/:semester_id/export/csv", exportHandler.CSV)
			timetable.GET("/:semester_id/export/pdf", exportHandler.PDF)
			timetable.GET("/:semester_id/export/link", exportHandler.Link)
		}
	}

	requests := protected.Group("/requests")
	{
		requests.GET("", requestHandler.List)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/approve", middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead), requestHandler.Approve)
		requests.POST("/:id/reject", middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead), requestHandler.Reject)
		requests.DELETE("/:id", requestHandler.Cancel)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead), requestHandler.Notifications)
		notifications.POST("/:id/read", middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead), requestHandler.MarkNotificationRead)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
