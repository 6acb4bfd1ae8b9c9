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
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/api/handlers"
	"github.com/starteams/coaching-backend/internal/cache/redis"
	"github.com/starteams/coaching-backend/internal/coach"
	"github.com/starteams/coaching-backend/internal/conversation"
	"github.com/starteams/coaching-backend/internal/ingestion"
	"github.com/starteams/coaching-backend/internal/llm"
	"github.com/starteams/coaching-backend/internal/metrics"
	"github.com/starteams/coaching-backend/internal/middleware/ratelimit"
	"github.com/starteams/coaching-backend/internal/middleware/security"
	"github.com/starteams/coaching-backend/internal/middleware/validation"
	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/internal/storage/sqlite"
	"github.com/starteams/coaching-backend/internal/usage"
	"github.com/starteams/coaching-backend/internal/vector/tfidf"
	"github.com/starteams/coaching-backend/pkg/config"
	appLogger "github.com/starteams/coaching-backend/pkg/logger"
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

	appLogger.Info("Starting Coaching AI Backend")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	seedFeatureConfigs(sqliteClient, cfg)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without retrieval cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	index := tfidf.NewService(sqliteClient)
	if err := index.Initialize(context.Background()); err != nil {
		appLogger.Fatal("Failed to build retrieval index", zap.Error(err))
	}
	stats := index.Stats()
	metrics.IndexChunks.Set(float64(stats.ChunkCount))
	metrics.IndexVocabulary.Set(float64(stats.VocabularySize))
	appLogger.Info("Retrieval index ready",
		zap.Int("chunks", stats.ChunkCount),
		zap.Int("vocabulary", stats.VocabularySize),
	)

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	gate := usage.NewGate(sqliteClient, time.Duration(cfg.Usage.ConfigCacheTTLSec)*time.Second)
	convLog := conversation.NewLogger(sqliteClient)
	escalations := conversation.NewEscalations(sqliteClient)

	var contextCache coach.ContextCache
	var cacheInvalidator ingestion.CacheInvalidator
	var searchCache handlers.SearchCache
	if redisClient != nil {
		contextCache = redisClient
		cacheInvalidator = redisClient
		searchCache = redisClient
	}

	engine := coach.NewEngine(
		sqliteClient,
		index,
		llmClient,
		gate,
		convLog,
		escalations,
		contextCache,
		coach.Options{
			Retrieval: tfidf.SearchOptions{
				MaxResults:    cfg.Retrieval.MaxResults,
				MaxTokens:     cfg.Retrieval.MaxTokens,
				MinSimilarity: cfg.Retrieval.MinSimilarity,
			},
			EscalationConfidence: cfg.Usage.EscalationConfidence,
			CacheTTL:             time.Duration(cfg.Retrieval.CacheTTLSec) * time.Second,
		},
	)

	processor := ingestion.NewProcessor(sqliteClient, index, cacheInvalidator)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(engine, convLog)
	wsHandler := handlers.NewWebSocketHandler(engine)
	documentHandler := handlers.NewDocumentHandler(processor, index, searchCache,
		time.Duration(cfg.Retrieval.CacheTTLSec)*time.Second)
	escalationHandler := handlers.NewEscalationHandler(escalations)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Post("/feedback", chatHandler.HandleFeedback)

	api.Post("/documents", documentHandler.HandleUpload)
	api.Post("/documents/refresh", documentHandler.HandleRefresh)
	api.Get("/documents/stats", documentHandler.HandleStats)
	api.Post("/documents/search", documentHandler.HandleSearch)

	api.Post("/escalations", escalationHandler.HandleCreate)
	api.Get("/escalations", escalationHandler.HandlePending)
	api.Post("/escalations/:id/resolve", escalationHandler.HandleResolve)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

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

// seedFeatureConfigs writes the default usage gate rows so a fresh
// install starts with AI enabled under sane limits.
func seedFeatureConfigs(db *sqlite.Client, cfg *config.Config) {
	ctx := context.Background()

	features := []string{usage.GlobalFeature, "coach_chat", "report_chat", "trainer_chat"}
	for _, name := range features {
		existing, err := db.GetFeatureConfig(ctx, name)
		if err != nil || existing != nil {
			continue
		}
		err = db.UpsertFeatureConfig(ctx, &models.FeatureConfig{
			FeatureName:      name,
			Enabled:          true,
			RateLimitPerHour: cfg.Usage.DefaultHourlyLimit,
			RateLimitPerDay:  cfg.Usage.DefaultDailyLimit,
			MaxTokens:        cfg.LLM.MaxTokens,
			TimeoutMs:        cfg.LLM.TimeoutSec * 1000,
		})
		if err != nil {
			appLogger.Warn("Failed to seed feature config", zap.String("feature", name), zap.Error(err))
		}
	}
}
