package main

import (
	"context"
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

	_ "github.com/campushq/attendance-api/api/swagger"
	"github.com/campushq/attendance-api/internal/handler"
	"github.com/campushq/attendance-api/internal/middleware"
	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/recognizer"
	"github.com/campushq/attendance-api/internal/repository"
	"github.com/campushq/attendance-api/internal/service"
	"github.com/campushq/attendance-api/pkg/cache"
	"github.com/campushq/attendance-api/pkg/config"
	"github.com/campushq/attendance-api/pkg/database"
	"github.com/campushq/attendance-api/pkg/logger"
	corsmiddleware "github.com/campushq/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/attendance-api/pkg/middleware/requestid"
	"github.com/campushq/attendance-api/pkg/storage"
)

// @title Campus Attendance API
// @version 1.0.0
// @description Biometric attendance tracking for courses: session lifecycle, face capture and reporting.
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	reportRepo := repository.NewReportRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)
	authSvc := service.NewAuthService(userRepo, cacheRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	sessionSvc := service.NewSessionService(sessionRepo, catalogRepo, userRepo, cacheSvc, validate, logr, cfg.Reports.StatsCacheTTL)
	faceRecognizer := recognizer.NewExec(cfg.Recognizer, logr)
	captureSvc := service.NewCaptureService(sessionRepo, attendanceRepo, faceRecognizer, userRepo, cacheSvc, metricsSvc, validate, logr, cfg.Recognizer.MaxImageKB)
	reportSvc := service.NewReportService(reportRepo, catalogRepo, cacheSvc, logr, cfg.Reports.ExamThreshold, cfg.Reports.StatsCacheTTL)
	exportSvc := service.NewExportService(sessionRepo, attendanceRepo, reportSvc, userRepo, exportRepo, exportStore, cfg.Exports, logr)
	lookupSvc := service.NewLookupService(catalogRepo, studentRepo, cacheSvc, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	captureHandler := handler.NewCaptureHandler(captureSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	lookupHandler := handler.NewLookupHandler(lookupSvc)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), middleware.CSRF(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.Use(middleware.CSRF(authSvc))

	staff := protected.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleHOD, models.RoleLecturer))
	{
		staff.GET("/departments", lookupHandler.Departments)
		staff.GET("/options", lookupHandler.Options)
		staff.GET("/courses", lookupHandler.Courses)
		staff.GET("/students", lookupHandler.Students)

		staff.POST("/sessions", sessionHandler.Create)
		staff.GET("/sessions/active", sessionHandler.Active)
		staff.GET("/sessions/status", sessionHandler.CourseStatus)
		staff.GET("/sessions/:id", sessionHandler.Detail)
		staff.POST("/sessions/:id/end", sessionHandler.End)
		staff.GET("/sessions/:id/stats", sessionHandler.Stats)
		staff.GET("/sessions/:id/records", captureHandler.Records)
		staff.GET("/sessions/:id/export", exportHandler.Session)

		staff.POST("/capture", captureHandler.Process)
		staff.POST("/capture/manual", captureHandler.MarkManual)
		staff.DELETE("/records/:id", captureHandler.Remove)

		reports := staff.Group("/reports")
		reports.Use(middleware.Audit(userRepo, "REPORT_VIEW", "report"))
		{
			reports.GET("", reportHandler.Generate)
			reports.GET("/statistics", reportHandler.Statistics)
			reports.GET("/students/:studentId", reportHandler.StudentDetail)
		}

		staff.POST("/exports/reports", exportHandler.RequestReport)
		staff.GET("/exports/jobs/:id", exportHandler.Job)
	}

	// Download links carry their own HMAC signature, no JWT needed.
	api.GET("/exports/download", exportHandler.Download)

	admin := protected.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/sessions/:id/force-end", sessionHandler.ForceEnd)
		admin.GET("/system/metrics", metricsHandler.Snapshot)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportSvc.Start(ctx)
	defer exportSvc.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
