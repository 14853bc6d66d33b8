package cli

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
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the soarify service",
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	if shutdown, err := observability.SetupTracing(context.Background(), cfg); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	} else {
		appLogger.Warnf("init tracing: %v", err)
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

	if err := db.AutoMigrate(
		&models.Playbook{}, &models.PlaybookStep{}, &models.PlaybookExecution{},
		&models.WorkflowTrigger{}, &models.PlaybookTemplate{},
		&models.NotificationChannel{}, &models.NotificationTemplate{},
		&models.Notification{}, &models.NotificationDelivery{},
		&models.SecurityAlert{}, &models.Incident{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

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

	if cfg.Server.Host != "localhost" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	if cfg.Monitoring.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}
	router.Use(middleware.RateLimitMiddleware(cfg))

	healthHandler := handlers.NewHealthHandler(cfg, db, appLogger)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	if cfg.Monitoring.Enabled {
		router.GET(cfg.Monitoring.MetricsPath, handlers.NewMetricsHandler(hub).GetMetrics)
	}

	api := router.Group("/api/v1")
	handlers.RegisterPlaybookRoutes(api, handlers.NewPlaybookHandler(playbookService))
	handlers.RegisterExecutionRoutes(api, handlers.NewExecutionHandler(executionService, triggerService))
	handlers.RegisterTriggerRoutes(api, handlers.NewTriggerHandler(triggerService))
	handlers.RegisterNotificationRoutes(api, handlers.NewNotificationHandler(notificationService, channelService))
	handlers.RegisterLibraryRoutes(api, handlers.NewLibraryHandler(libraryService))

	router.GET("/ws/executions", hub.HandleWebSocket)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := pool.Shutdown(ctx); err != nil {
		appLogger.Warnf("Worker pool shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}
