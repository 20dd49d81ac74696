package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/api/handlers"
	redisCache "github.com/askdesk/backend/internal/cache/redis"
	"github.com/askdesk/backend/internal/classify"
	"github.com/askdesk/backend/internal/embedding"
	"github.com/askdesk/backend/internal/embedding/hashing"
	openaiEmbedding "github.com/askdesk/backend/internal/embedding/openai"
	"github.com/askdesk/backend/internal/ingestion"
	"github.com/askdesk/backend/internal/metrics"
	"github.com/askdesk/backend/internal/middleware/ratelimit"
	"github.com/askdesk/backend/internal/middleware/security"
	"github.com/askdesk/backend/internal/middleware/validation"
	"github.com/askdesk/backend/internal/query"
	"github.com/askdesk/backend/internal/rerank"
	"github.com/askdesk/backend/internal/retriever"
	"github.com/askdesk/backend/internal/status"
	"github.com/askdesk/backend/internal/storage/sqlite"
	"github.com/askdesk/backend/internal/synthesis"
	"github.com/askdesk/backend/internal/vectorindex"
	"github.com/askdesk/backend/internal/vectorindex/memory"
	"github.com/askdesk/backend/internal/vectorindex/milvus"
	"github.com/askdesk/backend/pkg/config"
	appLogger "github.com/askdesk/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AskDesk API server")

	metrics.Init()

	store, err := sqlite.New(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open SQLite storage", zap.Error(err))
	}
	defer store.Close()

	var index vectorindex.Index
	switch cfg.Vector.Provider {
	case "milvus":
		milvusIndex, err := milvus.New(context.Background(), cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Vector.Dim)
		if err != nil {
			appLogger.Fatal("Failed to connect to Milvus", zap.Error(err))
		}
		defer milvusIndex.Close()
		index = milvusIndex
	case "memory":
		index = memory.New()
	default:
		appLogger.Fatal("Unknown vector provider", zap.String("provider", cfg.Vector.Provider))
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		embedder = embedding.NewLazy(cfg.Embedding.Dim, func() (embedding.Embedder, error) {
			return openaiEmbedding.New(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dim), nil
		})
	case "hashing":
		embedder = hashing.New(cfg.Embedding.Dim)
	default:
		appLogger.Fatal("Unknown embedding provider", zap.String("provider", cfg.Embedding.Provider))
	}

	var statuses status.Store = status.NewMemoryStore()
	var answerCache query.AnswerCache
	var invalidator ingestion.AnswerInvalidator
	if cfg.Redis.Enabled {
		cache, err := redisCache.New(
			fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer cache.Close()

		embedder = embedding.NewCached(embedder, cache)
		statuses = cache.StatusStore()
		answerCache = cache
		invalidator = cache
	}

	processor, err := ingestion.NewProcessor(
		store, index, embedder, statuses, invalidator,
		cfg.Ingestion.Strategy, cfg.Ingestion.MaxChunkWords, cfg.Ingestion.OverlapWords,
	)
	if err != nil {
		appLogger.Fatal("Invalid ingestion config", zap.Error(err))
	}

	classifier, err := classify.New(embedder, cfg.Classifier.Categories, cfg.Classifier.Threshold)
	if err != nil {
		appLogger.Fatal("Invalid classifier config", zap.Error(err))
	}

	reranker := rerank.New(func() (rerank.Scorer, error) {
		return rerank.NewEmbeddingScorer(embedder), nil
	})

	synth := synthesis.New(
		cfg.Synthesis.APIKey,
		cfg.Synthesis.Model,
		cfg.Synthesis.Temperature,
		cfg.Synthesis.MaxTokens,
	)

	queryEngine := query.NewEngine(
		embedder,
		retriever.New(index, store),
		reranker,
		classifier,
		synth,
		answerCache,
		store,
		query.Options{
			TopK:          cfg.Retrieval.TopK,
			Mode:          retriever.Mode(cfg.Retrieval.Mode),
			RerankEnabled: cfg.Retrieval.Rerank,
		},
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimit,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	queryHandler := handlers.NewQueryHandler(queryEngine)
	documentHandler := handlers.NewDocumentHandler(processor)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	api.Post("/documents", documentHandler.HandleUpload)
	api.Post("/documents/batch", documentHandler.HandleBatchUpload)
	api.Get("/documents/:id/status", documentHandler.GetStatus)
	api.Delete("/documents/:id", documentHandler.HandleDelete)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
