package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stwalsh4118/schoolmap/api/internal/config"
	"github.com/stwalsh4118/schoolmap/api/internal/database"
	"github.com/stwalsh4118/schoolmap/api/internal/handlers"
	"github.com/stwalsh4118/schoolmap/api/internal/logger"
	"github.com/stwalsh4118/schoolmap/api/internal/middleware"
	"github.com/stwalsh4118/schoolmap/api/internal/repository"
	"github.com/stwalsh4118/schoolmap/api/internal/services"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Optional .env for local development; real deployments set env vars
	_ = godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting Schoolmap API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Create database connection pool
	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(db, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize repository and service layers
	districtRepo := repository.NewDistrictRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	runRepo := repository.NewImportRunRepository(db)
	importService := services.NewImportService(districtRepo, schoolRepo, runRepo, cfg.Import.ChunkSize, log)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(importService)

	// Rate limiter store is created here and injected, never held as
	// package state, so concurrent routers and tests stay isolated.
	rateLimit, err := middleware.RateLimit(memory.NewStore(), cfg.Import.RateLimit)
	if err != nil {
		log.Fatal("Failed to build rate limiter", err, map[string]interface{}{
			"rate": cfg.Import.RateLimit,
		})
	}

	// Register API v1 routes; all import routes sit behind the admin gate
	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		imports.Use(middleware.AdminAuth(cfg.Auth.AdminToken))
		{
			imports.POST("", importHandler.Create)
			imports.POST("/parse", rateLimit, importHandler.Parse)
			imports.GET("/:id", importHandler.Get)
			imports.POST("/:id/cancel", importHandler.Cancel)
			imports.POST("/:id/batches", importHandler.ProcessBatch)
			imports.POST("/:id/file", rateLimit, importHandler.RunFile)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
