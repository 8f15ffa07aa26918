package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"catalog-service/internal/app"
	"catalog-service/internal/clients"
	"catalog-service/internal/config"
	"catalog-service/internal/events"
	"catalog-service/internal/handlers"
	"catalog-service/internal/importer"
	"catalog-service/internal/jobs"
	"catalog-service/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Catalog Import API
// @version 2.0.0
// @description Bulk catalog import service: file upload, asynchronous processing and per-row reports
// @termsOfService http://swagger.io/terms/

// @contact.name Catalog API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8087
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	} else if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client. The import queue lives in Redis, so it is required.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (using localhost)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisOpts.Password = secrets.GetRedisPassword()
	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (imports will queue once it is reachable)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Background workers stop when rootCtx is cancelled
	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pipeline, err := app.NewPipeline(rootCtx, cfg, db, redisClient, logger)
	if err != nil {
		log.Fatal("Failed to initialize import pipeline:", err)
	}
	log.Printf("✓ File storage initialized (%s)", cfg.StorageBackend)

	// Report jobs go through JetStream when NATS is configured, otherwise they run in-process
	var reportQueue importer.ReportQueue = jobs.NewDirectReportQueue(pipeline.Attacher)
	var reportWorker *jobs.ReportWorker
	var natsConn *nats.Conn
	var eventsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		natsConn, err = jobs.ConnectNATS(cfg.NATSURL, "catalog-service", logger)
		if err != nil {
			log.Printf("WARNING: Failed to connect to NATS: %v (report jobs run in-process)", err)
		} else {
			jsQueue, err := jobs.NewJetStreamReportQueue(rootCtx, natsConn)
			if err != nil {
				log.Printf("WARNING: Failed to create report stream: %v (report jobs run in-process)", err)
			} else {
				reportQueue = jsQueue
				reportWorker = jobs.NewReportWorker(jsQueue, pipeline.Attacher, logger)
				log.Println("✓ Report queue initialized (JetStream)")
			}
		}

		eventsPublisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, report jobs run in-process and product events are disabled")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
		if natsConn != nil {
			natsConn.Close()
		}
	}()

	// Post-commit hooks run after each committed product group
	hooks := []importer.PostCommitHook{clients.NewInventoryClient(cfg.InventoryServiceURL)}
	if eventsPublisher != nil {
		hooks = append(hooks, eventsPublisher)
	}

	orchestrator := pipeline.Orchestrator(reportQueue, hooks...)
	importQueue := jobs.NewImportQueue(redisClient, cfg.ImportQueueKey)
	importWorker := jobs.NewImportWorker(importQueue, orchestrator, logger)
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		importWorker.Start(rootCtx)
	}()
	log.Println("✓ Import worker started")
	if reportWorker != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			reportWorker.Start(rootCtx)
		}()
		log.Println("✓ Report worker started")
	}

	// Initialize handlers
	importHandler := handlers.NewImportHandler(pipeline.Imports, pipeline.Files, importQueue, importer.NewSchemaResolver(pipeline.Schemas), handlers.ImportHandlerOptions{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("catalog-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("catalog-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "catalog_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	rbacMw := rbac.NewMiddlewareWithURL(cfg.RBACServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Environment == "development" {
		router.Use(gin.Logger())
	}

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("catalog-service"))
	router.Use(gosharedmw.CompressionMiddleware())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Authentication middleware
	// In development: use DevelopmentAuthMiddleware for local testing
	// In production: use IstioAuth which reads x-jwt-claim-* headers from Istio
	//                or falls back to X-* headers from auth-bff during migration
	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: true,
			Logger:             logrus.NewEntry(logger).WithField("component", "istio_auth"),
		}))
		api.Use(gosharedmw.VendorScopeFilter())
	}
	api.Use(middleware.SellerMiddleware())

	imports := api.Group("/imports")
	{
		imports.GET("/template", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.GetImportTemplate)
		imports.POST("", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.CreateImport)
		imports.GET("/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImport)
		imports.GET("/:id/results", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.ListImportResults)
		imports.POST("/:id/cancel", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.CancelImport)
		imports.GET("/:id/report", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.DownloadReport)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down catalog-service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Running imports finish their in-flight groups, then the run is marked failed so it can be resubmitted
	importWorker.Stop()
	if reportWorker != nil {
		reportWorker.Stop()
	}
	stopWorkers()

	workersDone := make(chan struct{})
	go func() {
		workers.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
		log.Println("✓ Workers stopped")
	case <-shutdownCtx.Done():
		log.Println("WARNING: Workers did not stop before the shutdown deadline")
	}

	// Shutdown tracer provider
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Catalog service stopped")
}
