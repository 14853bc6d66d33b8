package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soarify/internal/config"
	"soarify/internal/handlers"
	"soarify/internal/middleware"
	"soarify/internal/models"
	"soarify/internal/observability"
	"soarify/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// Read config.yml from the working directory, falling back to defaults.
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&models.Playbook{}, &models.PlaybookStep{}, &models.PlaybookExecution{},
		&models.WorkflowTrigger{}, &models.PlaybookTemplate{},
		&models.NotificationChannel{}, &models.NotificationTemplate{},
		&models.Notification{}, &models.NotificationDelivery{},
		&models.SecurityAlert{}, &models.Incident{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// Build the execution engine and supporting services.
	adapters := services.NewAdapterSet(appLogger, cfg.Notify.WebhookTimeout)
	registry := services.NewActionRegistry(db, appLogger)
	pool := services.NewWorkerPool(cfg.Engine.Workers, cfg.Engine.QueueSize, appLogger)
	hub := services.NewEventHub(appLogger)
	go hub.Run()

	executionService := services.NewExecutionService(db, appLogger, registry, pool)
	executionService.SetDefaultStepTimeout(cfg.Engine.DefaultStepTimeout)
	executionService.SetEventHub(hub)
	playbookService := services.NewPlaybookService(db, appLogger, registry)
	triggerService := services.NewTriggerService(db, appLogger, executionService)
	notificationService := services.NewNotificationService(db, appLogger, adapters)
	channelService := services.NewChannelService(db, appLogger, adapters)
	libraryService := services.NewLibraryService(db, appLogger, playbookService)

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}
	r.Use(middleware.RateLimitMiddleware(cfg))

	healthHandler := handlers.NewHealthHandler(cfg, db, appLogger)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	if cfg.Monitoring.Enabled {
		metricsPath := cfg.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, handlers.NewMetricsHandler(hub).GetMetrics)
	}

	api := r.Group("/api/v1")
	handlers.RegisterPlaybookRoutes(api, handlers.NewPlaybookHandler(playbookService))
	handlers.RegisterExecutionRoutes(api, handlers.NewExecutionHandler(executionService, triggerService))
	handlers.RegisterTriggerRoutes(api, handlers.NewTriggerHandler(triggerService))
	handlers.RegisterNotificationRoutes(api, handlers.NewNotificationHandler(notificationService, channelService))
	handlers.RegisterLibraryRoutes(api, handlers.NewLibraryHandler(libraryService))

	r.GET("/ws/executions", hub.HandleWebSocket)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	// Drain in-flight playbook executions before exiting.
	if err := pool.Shutdown(ctx); err != nil {
		appLogger.Warnf("Worker pool shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
