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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/messhall-api/api/swagger"
	"github.com/noah-isme/messhall-api/internal/handler"
	"github.com/noah-isme/messhall-api/internal/middleware"
	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/repository"
	"github.com/noah-isme/messhall-api/internal/service"
	"github.com/noah-isme/messhall-api/pkg/cache"
	"github.com/noah-isme/messhall-api/pkg/config"
	"github.com/noah-isme/messhall-api/pkg/database"
	"github.com/noah-isme/messhall-api/pkg/jobs"
	"github.com/noah-isme/messhall-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/messhall-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/messhall-api/pkg/middleware/requestid"
	"github.com/noah-isme/messhall-api/pkg/storage"
)

// @title Mess Hall API
// @version 1.0.0
// @description Meal attendance and mess management backend
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	location, err := time.LoadLocation(cfg.Meals.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid meal timezone", "timezone", cfg.Meals.Timezone, "error", err)
	}
	clock := func() time.Time { return time.Now().In(location) }

	windows, err := buildWindows(cfg.Meals)
	if err != nil {
		logr.Sugar().Fatalw("invalid meal schedule", "error", err)
	}

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	studentRepo := repository.NewStudentRepository(db)
	planRepo := repository.NewPlanRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	reportRepo := repository.NewReportRepository(db)

	cacheSvc := service.NewCacheService(redisClient, logr)
	metricsSvc := service.NewMetricsService()

	attendanceSvc := service.NewAttendanceService(studentRepo, planRepo, attendanceRepo, cacheSvc, metricsSvc, logr, service.AttendanceServiceConfig{
		StatsTTL: cfg.Stats.CacheTTL,
	}).WithClock(clock)
	checkInSvc := service.NewCheckInService(studentRepo, planRepo, attendanceRepo, attendanceSvc, windows, cfg.CheckIn.AcceptedTokens, metricsSvc, logr, clock)
	studentSvc := service.NewStudentService(studentRepo, planRepo, logr)
	planSvc := service.NewPlanService(planRepo, logr)
	reportSvc := service.NewReportService(reportRepo, attendanceRepo, studentRepo, files, signer, logr)

	reportQueue := jobs.NewQueue("reports", reportSvc.HandleRenderJob, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.AttachQueue(reportQueue)

	notifyQueue := jobs.NewQueue("notifications", notificationHandler(logr), jobs.QueueConfig{
		Workers: cfg.Announcements.QueueWorkers,
		Logger:  logr,
	})
	announcementSvc := service.NewAnnouncementService(announcementRepo, cacheSvc, notifyQueue, cfg.Announcements.CacheTTL, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportQueue.Start(ctx)
	defer reportQueue.Stop()
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	api.POST("/attendance/mark", attendanceHandler.Mark)
	api.POST("/attendance/bulk", attendanceHandler.Bulk)
	api.GET("/attendance/stats", attendanceHandler.Stats)
	api.GET("/attendance/records/:id", attendanceHandler.GetRecord)
	api.PATCH("/attendance/records/:id", attendanceHandler.UpdateRecord)
	api.DELETE("/attendance/records/:id", attendanceHandler.DeleteRecord)

	checkInHandler := handler.NewCheckInHandler(checkInSvc)
	api.POST("/checkin", checkInHandler.CheckIn)

	studentHandler := handler.NewStudentHandler(studentSvc)
	api.GET("/students", studentHandler.List)
	api.POST("/students", studentHandler.Create)
	api.GET("/students/:id", studentHandler.Get)
	api.PUT("/students/:id", studentHandler.Update)
	api.DELETE("/students/:id", studentHandler.Delete)

	planHandler := handler.NewPlanHandler(planSvc)
	api.GET("/plans", planHandler.List)
	api.POST("/plans", planHandler.Create)
	api.GET("/plans/:id", planHandler.Get)
	api.PUT("/plans/:id", planHandler.Update)
	api.DELETE("/plans/:id", planHandler.Delete)

	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	api.GET("/announcements", announcementHandler.List)
	api.POST("/announcements", announcementHandler.Create)
	api.GET("/announcements/:id", announcementHandler.Get)
	api.PUT("/announcements/:id", announcementHandler.Update)
	api.DELETE("/announcements/:id", announcementHandler.Delete)

	reportHandler := handler.NewReportHandler(reportSvc)
	api.POST("/reports", reportHandler.Create)
	api.GET("/reports/download", reportHandler.Download)
	api.GET("/reports/:id", reportHandler.Status)
	api.GET("/reports/:id/link", reportHandler.Link)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Meals.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

func buildWindows(cfg config.MealsConfig) ([]models.MealWindow, error) {
	breakfast, err := models.NewMealWindow(models.MealBreakfast, cfg.Breakfast.Start, cfg.Breakfast.End, cfg.Breakfast.GraceMinutes)
	if err != nil {
		return nil, err
	}
	lunch, err := models.NewMealWindow(models.MealLunch, cfg.Lunch.Start, cfg.Lunch.End, cfg.Lunch.GraceMinutes)
	if err != nil {
		return nil, err
	}
	dinner, err := models.NewMealWindow(models.MealDinner, cfg.Dinner.Start, cfg.Dinner.End, cfg.Dinner.GraceMinutes)
	if err != nil {
		return nil, err
	}
	return []models.MealWindow{breakfast, lunch, dinner}, nil
}

// notificationHandler dispatches announcement fan-out. Push delivery goes
// through the mobile gateway, which polls the announcements feed; the queue
// exists so publishing stays fast and dispatch has a single retryable seam.
func notificationHandler(logr *zap.Logger) jobs.Handler {
	return func(_ context.Context, job jobs.Job) error {
		a, ok := job.Payload.(*models.Announcement)
		if !ok {
			logr.Warn("notification job with malformed payload", zap.String("job_id", job.ID))
			return nil
		}
		logr.Info("announcement dispatched",
			zap.String("announcement_id", a.ID),
			zap.String("title", a.Title))
		return nil
	}
}
