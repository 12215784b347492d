package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/queue"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/middleware"
	"recipe-vault-backend/models"
	"recipe-vault-backend/routes"
	"recipe-vault-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitTracer("recipe-vault-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err.Error())
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	objects, err := store.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init object store:", err)
	}

	catalog := store.NewVersionedStore[models.Recipe](objects, cfg.CatalogKey)
	index := store.NewVersionedStore[[]float64](objects, cfg.EmbeddingKey)

	status := services.NewStatusService(objects, cfg.StatusPrefix)
	deleter := services.NewAtomicDeleter(catalog, index, cfg.MaxRetries, metrics)
	images := services.NewImageService(objects, cfg.ImagePrefix, cfg.FallbackImageKey, cfg.MaxFileSize)
	export := services.NewExportService(catalog)
	sweeper := services.NewSweeper(catalog, index, status, cfg.MaxRetries, cfg.StatusRetentionDays)

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to parse Redis config for queue:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	auth := middleware.NewAuthMiddleware(cfg)

	routes.Setup(router, routes.Deps{
		Config:  cfg,
		Objects: objects,
		Catalog: catalog,
		Status:  status,
		Deleter: deleter,
		Images:  images,
		Export:  export,
		Sweeper: sweeper,
		Queue:   queueClient,
		Redis:   rdb,
		Auth:    auth,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "store_backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
