package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"recipe-vault-backend/internal/ai"
	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/queue"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/models"
	"recipe-vault-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitTracer("recipe-vault-worker", cfg.OTLPEndpoint)
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

	quota := ai.NewQuotaGuard(rdb, cfg.AIDailyQuota)
	gemini, err := ai.NewGeminiClient(ctx, cfg, quota, metrics)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	var images services.ImageFinder
	if cfg.SearchAPIKey != "" && cfg.SearchCX != "" {
		search, err := services.NewImageSearchService(ctx, cfg.SearchAPIKey, cfg.SearchCX, cfg.ProblematicDomains)
		if err != nil {
			logger.Warn("image search disabled", "error", err.Error())
		} else {
			images = search
		}
	}

	catalog := store.NewVersionedStore[models.Recipe](objects, cfg.CatalogKey)
	index := store.NewVersionedStore[[]float64](objects, cfg.EmbeddingKey)

	status := services.NewStatusService(objects, cfg.StatusPrefix)
	writer := services.NewCatalogWriter(catalog, cfg.MaxRetries, metrics)
	embeddings := services.NewEmbeddingStore(index, cfg.MaxRetries)
	detector := services.NewDuplicateDetector(cfg.SimilarityThreshold)
	pdfService := services.NewPDFService(cfg.PDFMaxPages)

	pipeline := services.NewPipeline(
		objects, status, gemini, pdfService, images,
		writer, catalog, embeddings, detector, metrics,
	)

	sweeper := services.NewSweeper(catalog, index, status, cfg.MaxRetries, cfg.StatusRetentionDays)
	if err := sweeper.Start(cfg.SweepCron); err != nil {
		log.Fatal("Failed to schedule sweeper:", err)
	}
	defer sweeper.Stop()

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to parse Redis config for queue:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err.Error())
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessUpload, pipeline.ProcessUpload)

	logger.Info("worker starting",
		"store_backend", cfg.StoreBackend,
		"sweep_cron", cfg.SweepCron,
		"redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
