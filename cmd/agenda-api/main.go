package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/vemfalar/agenda-api/api/swagger"
	"github.com/vemfalar/agenda-api/internal/handler"
	"github.com/vemfalar/agenda-api/internal/middleware"
	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/internal/notify"
	"github.com/vemfalar/agenda-api/internal/repository"
	"github.com/vemfalar/agenda-api/internal/service"
	"github.com/vemfalar/agenda-api/pkg/cache"
	"github.com/vemfalar/agenda-api/pkg/config"
	"github.com/vemfalar/agenda-api/pkg/database"
	"github.com/vemfalar/agenda-api/pkg/export"
	"github.com/vemfalar/agenda-api/pkg/logger"
	corsmiddleware "github.com/vemfalar/agenda-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vemfalar/agenda-api/pkg/middleware/requestid"
)

// @title Agenda API
// @version 1.0.0
// @description Lesson scheduling and change-request engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, audit report caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	lessonRepo := repository.NewLessonRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	recordRepo := repository.NewRecordRepository(db)

	metricsSvc := service.NewMetricsService()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notifications.Enabled {
		notifier = notify.NewLogNotifier(logr.Named("notify"))
	}

	authSvc := service.NewAuthService(cfg.JWT)
	lessonSvc := service.NewLessonService(lessonRepo, enrollmentRepo, teacherRepo, holidayRepo, requestRepo, notifier, metricsSvc, logr.Named("lessons"))
	requestSvc := service.NewRequestService(requestRepo, lessonRepo, lessonSvc, enrollmentRepo, teacherRepo, holidayRepo, notifier, metricsSvc, cfg.Scheduling, logr.Named("requests"))
	availabilitySvc := service.NewAvailabilityService(teacherRepo, lessonRepo, holidayRepo, cfg.Scheduling.SlotStepMinutes, logr.Named("availability"))
	teacherSvc := service.NewTeacherService(teacherRepo, availabilitySvc, logr.Named("teachers"))
	holidaySvc := service.NewHolidayService(holidayRepo, logr.Named("holidays"))
	auditSvc := service.NewAuditService(lessonRepo, enrollmentRepo, recordRepo, redisClient, cfg.Audit, cfg.Scheduling.FrequencySlackMinutes, metricsSvc, logr.Named("audit"))

	lessonHandler := handler.NewLessonHandler(lessonSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc, cfg.Scheduling.HorizonMonths)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	holidayHandler := handler.NewHolidayHandler(holidaySvc)
	auditHandler := handler.NewAuditHandler(auditSvc, export.NewPDFExporter(), export.NewCSVExporter())
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

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
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staffOnly := middleware.RequireRoles(models.RoleAdmin)
	anyRole := middleware.RequireRoles(models.RoleStudent, models.RoleTeacher, models.RoleAdmin)
	teacherOrAdmin := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)

	lessons := api.Group("/lessons")
	{
		lessons.POST("", staffOnly, lessonHandler.Create)
		lessons.GET("", anyRole, lessonHandler.List)
		lessons.GET("/:id", anyRole, lessonHandler.Get)
		lessons.PATCH("/:id", staffOnly, lessonHandler.Update)
		lessons.DELETE("/:id", staffOnly, lessonHandler.Delete)
		lessons.POST("/:id/requests", anyRole, requestHandler.Create)
	}

	requests := api.Group("/requests")
	{
		requests.GET("", anyRole, requestHandler.List)
		requests.GET("/:id", anyRole, requestHandler.Get)
		requests.POST("/:id/decision", teacherOrAdmin, requestHandler.Decide)
	}

	teachers := api.Group("/teachers")
	{
		teachers.GET("/:id", anyRole, teacherHandler.Get)
		teachers.GET("/:id/availability", anyRole, teacherHandler.Slots)
		teachers.PUT("/:id/availability", teacherOrAdmin, teacherHandler.ReplaceAvailability)
		teachers.GET("/:id/availability/slots", anyRole, availabilityHandler.FreeSlots)
		teachers.GET("/:id/availability/dates", anyRole, availabilityHandler.FreeDates)
	}

	holidays := api.Group("/holidays")
	{
		holidays.GET("", anyRole, holidayHandler.List)
		holidays.POST("", staffOnly, holidayHandler.Create)
		holidays.DELETE("/:date", staffOnly, holidayHandler.Delete)
	}

	api.GET("/audit/week", staffOnly, auditHandler.Week)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
