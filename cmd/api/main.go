package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusworks/registry-api/api/swagger"
	"github.com/campusworks/registry-api/internal/handler"
	"github.com/campusworks/registry-api/internal/middleware"
	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/internal/repository"
	"github.com/campusworks/registry-api/internal/service"
	"github.com/campusworks/registry-api/pkg/cache"
	"github.com/campusworks/registry-api/pkg/config"
	"github.com/campusworks/registry-api/pkg/database"
	"github.com/campusworks/registry-api/pkg/logger"
	corsmiddleware "github.com/campusworks/registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusworks/registry-api/pkg/middleware/requestid"
	"github.com/campusworks/registry-api/pkg/storage"
)

// @title Campus Registry API
// @version 1.0.0
// @description Student records and course catalog backend
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories
	departmentRepo := repository.NewDepartmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	// Services
	metricsService := service.NewMetricsService()
	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)
	}

	departmentService := service.NewDepartmentService(departmentRepo, courseRepo, cacheService, validate, logr)
	courseService := service.NewCourseService(courseRepo, departmentRepo, cacheService, validate, logr)
	moduleService := service.NewModuleService(moduleRepo, courseRepo, departmentRepo, cacheService, validate, logr)
	catalogService := service.NewCatalogService(departmentRepo, courseRepo, moduleRepo, cacheService, logr)
	studentService := service.NewStudentService(studentRepo, departmentRepo, courseRepo, userRepo, validate, logr)
	userService := service.NewUserService(userRepo, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, courseRepo, logr)
	authService := service.NewAuthService(userRepo, cfg.JWT, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Export.URLTTL)
	exportJobService := service.NewExportJobService(studentService, exportStore, exportSigner, cfg.Export.Workers, logr)
	exportJobService.Start(context.Background())
	defer exportJobService.Stop()

	// Handlers
	departmentHandler := handler.NewDepartmentHandler(departmentService)
	courseHandler := handler.NewCourseHandler(courseService)
	moduleHandler := handler.NewModuleHandler(moduleService)
	studentHandler := handler.NewStudentHandler(studentService)
	userHandler := handler.NewUserHandler(userService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	authHandler := handler.NewAuthHandler(authService)
	exportHandler := handler.NewExportHandler(exportJobService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.Use(middleware.JWT(authService))
		auth.POST("/change-password", authHandler.ChangePassword)
		auth.GET("/me", authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staffOrAdmin := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)

	departments := protected.Group("/departments")
	{
		departments.GET("", departmentHandler.List)
		departments.GET("/:id", departmentHandler.Get)
		departments.POST("", admin, departmentHandler.Create)
		departments.PUT("/:id", admin, departmentHandler.Update)
		departments.DELETE("/:id", admin, departmentHandler.Delete)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", admin, courseHandler.Create)
		courses.PUT("/:id", admin, courseHandler.Update)
		courses.DELETE("/:id", admin, courseHandler.Delete)
	}

	modules := protected.Group("/modules")
	{
		modules.GET("", moduleHandler.List)
		modules.GET("/:id", moduleHandler.Get)
		modules.POST("", admin, moduleHandler.Create)
		modules.PUT("/:id", admin, moduleHandler.Update)
		modules.DELETE("/:id", admin, moduleHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", staffOrAdmin, studentHandler.List)
		students.GET("/export", staffOrAdmin, studentHandler.Export)
		// every role may reach Get; the handler grants students their own
		// record only, via the linked user id
		students.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleStudent), studentHandler.Get)
		students.POST("", admin, studentHandler.Create)
		students.PUT("/:id", admin, studentHandler.Update)
		students.DELETE("/:id", admin, studentHandler.Delete)
		students.POST("/:id/login", admin, studentHandler.CreateLogin)
	}

	users := protected.Group("/users")
	{
		users.GET("", admin, userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.POST("", admin, userHandler.Create)
		users.PUT("/:id", admin, userHandler.Update)
		users.DELETE("/:id", admin, userHandler.Deactivate)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.POST("", enrollmentHandler.Enroll)
		enrollments.GET("/mine", enrollmentHandler.Mine)
		enrollments.GET("", admin, enrollmentHandler.List)
		enrollments.DELETE("/:courseId", enrollmentHandler.Drop)
	}

	exportJobs := protected.Group("/export-jobs")
	{
		exportJobs.POST("", staffOrAdmin, exportHandler.CreateJob)
		exportJobs.GET("/:jobId", staffOrAdmin, exportHandler.GetJob)
	}
	r.GET("/downloads/:token", exportHandler.Download)

	protected.GET("/catalog", catalogHandler.Get)
	protected.GET("/metrics/summary", admin, metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
