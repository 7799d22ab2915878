package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/analytics"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/caching"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/dispatch"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/handlers"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/jobs"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/jobs/background"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/middleware"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/services"
	"github.com/sevvalsaygat/qr-menu-sub000/pkg/database"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()

	// Order store backend: memory (default), postgres, or mongo.
	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	var store repositories.OrderStore
	var catalog repositories.CatalogRepository

	switch backend {
	case "postgres":
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			log.Fatal("DATABASE_URL environment variable is required for the postgres backend")
		}
		pool, err := database.NewPool(databaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := repositories.EnsureOrdersSchema(ctx, pool); err != nil {
			log.Fatalf("Failed to prepare orders schema: %v", err)
		}
		store = repositories.NewPostgresOrderStore(pool)
		catalog = repositories.NewCatalogRepo(pool)

	case "mongo":
		mongoURI := os.Getenv("MONGO_URI")
		if mongoURI == "" {
			log.Fatal("MONGO_URI environment variable is required for the mongo backend")
		}
		dbName := os.Getenv("MONGO_DB")
		if dbName == "" {
			dbName = "qrmenu"
		}
		client, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(mongoURI))
		if err != nil {
			log.Fatalf("Failed to connect to mongo: %v", err)
		}
		defer client.Disconnect(ctx)
		store = repositories.NewMongoOrderStore(client.Database(dbName))
		catalog = repositories.NewMongoCatalogRepo(client.Database(dbName))

	case "memory":
		store = repositories.NewMemoryOrderStore()
		catalog = repositories.NewMemoryCatalog()

	default:
		log.Fatalf("Unknown STORE_BACKEND %q (want memory, postgres, or mongo)", backend)
	}

	// Redis configuration
	var cacheSvc caching.CacheService
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisDB := 0
		if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
			if db, err := strconv.Atoi(redisDBStr); err == nil {
				redisDB = db
			}
		}
		cacheSvc = caching.NewRedisCacheService(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	}

	// Tax rate, zero in the current domain.
	taxRate := 0.0
	if taxStr := os.Getenv("TAX_RATE"); taxStr != "" {
		rate, err := strconv.ParseFloat(taxStr, 64)
		if err != nil {
			log.Fatalf("Invalid TAX_RATE %s: %v", taxStr, err)
		}
		taxRate = rate
	}

	// Core services
	orderSvc := services.NewOrderService(store, catalog, cacheSvc, taxRate)
	analyticsSvc := analytics.NewAnalyticsService(store, cacheSvc)
	dispatcher := dispatch.NewDispatcher(store)

	// Optional archive export into object storage
	var archiveExport *jobs.ArchiveExportService
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
		if minioAccessKey == "" {
			minioAccessKey = "minioadmin" // Default for development
		}
		minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
		if minioSecretKey == "" {
			minioSecretKey = "minioadmin" // Default for development
		}
		bucket := os.Getenv("MINIO_BUCKET")
		if bucket == "" {
			bucket = "order-archives"
		}
		useSSL := os.Getenv("MINIO_USE_SSL") == "true"

		archiveSvc, err := services.NewMinioArchiveService(minioEndpoint, minioAccessKey, minioSecretKey, bucket, useSSL)
		if err != nil {
			log.Fatalf("Failed to initialize archive service: %v", err)
		}
		if err := archiveSvc.EnsureBucketExists(ctx); err != nil {
			log.Printf("WARN: could not ensure archive bucket: %v", err)
		}
		archiveExport = jobs.NewArchiveExportService(store, archiveSvc)
	}

	// Background jobs
	statsRefresh := jobs.NewStatsRefreshService(store, analyticsSvc)
	scheduler, err := background.NewJobScheduler(statsRefresh, archiveExport)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Handlers
	orderHandlers := handlers.NewOrderHandlers(orderSvc)
	analyticsHandlers := handlers.NewAnalyticsHandlers(analyticsSvc)
	streamHandlers := handlers.NewStreamHandlers(dispatcher)
	healthHandlers := handlers.NewHealthHandlers(store, cacheSvc, version)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())
	e.Use(middleware.VersionHeader("v1", version))

	// Health endpoints
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/detailed", healthHandlers.DetailedHealthCheck)

	v1 := e.Group("/v1")
	restaurants := v1.Group("/restaurants/:restaurantId")

	// Customer-facing submission
	restaurants.POST("/tables/:tableId/orders", orderHandlers.SubmitOrder)

	// Staff dashboard
	restaurants.GET("/orders", orderHandlers.ListOrders)
	restaurants.GET("/orders/search", analyticsHandlers.SearchOrders)
	restaurants.GET("/orders/suggestions", analyticsHandlers.SearchSuggestions)
	restaurants.GET("/orders/groups/daily", analyticsHandlers.GetDailyGroups)
	restaurants.GET("/orders/groups/weekly", analyticsHandlers.GetWeeklyGroups)
	restaurants.GET("/orders/stream", streamHandlers.StreamOrders)
	restaurants.GET("/orders/:id", orderHandlers.GetOrder)
	restaurants.POST("/orders/:id/complete", orderHandlers.CompleteOrder)
	restaurants.POST("/orders/:id/reopen", orderHandlers.ReopenOrder)
	restaurants.POST("/orders/:id/cancel", orderHandlers.CancelOrder)
	restaurants.POST("/orders/:id/uncancel", orderHandlers.UncancelOrder)
	restaurants.DELETE("/orders/:id/items/:productId", orderHandlers.RemoveItem)
	restaurants.GET("/stats", analyticsHandlers.GetStats)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("QR menu order engine v%s starting on port %d (store: %s)", version, port, backend)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
