package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/adforge/api/internal/auth"
	"github.com/adforge/api/internal/batch"
	"github.com/adforge/api/internal/client"
	"github.com/adforge/api/internal/config"
	"github.com/adforge/api/internal/handler"
	"github.com/adforge/api/internal/middleware"
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/service"
	"github.com/adforge/api/internal/store"
	"github.com/adforge/api/internal/worker"
	ws "github.com/adforge/api/internal/websocket"
)

// @title          AdForge API
// @version        1.0
// @description    Backend API for AdForge — AI-powered short-form video ad generation.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	jobStore := store.NewRedis(redisClient)

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(jobStore)
	go hub.Run()

	// Initialize external clients
	llmClient := client.NewLLMClient(&cfg.LLM)
	imageClient := client.NewImageClient(&cfg.Image)
	videoClient := client.NewVideoClient(&cfg.Video)
	speechClient := client.NewSpeechClient(&cfg.Speech)
	compositorClient := client.NewCompositorClient(&cfg.Compositor)
	scorerClient := client.NewScorerClient(&cfg.Scorer)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Pipeline collaborators. An unconfigured scorer disables consistency
	// gating rather than failing jobs.
	collaborators := pipeline.Collaborators{
		Text:       llmClient,
		Image:      imageClient,
		Video:      videoClient,
		Speech:     speechClient,
		Compositor: compositorClient,
	}
	if scorerClient.IsConfigured() {
		collaborators.Scorer = scorerClient
	} else {
		log.Println("Info: scorer not configured, storyboard consistency gating disabled")
	}
	pipelineCfg := pipeline.Config{
		MaxRetries:          cfg.Pipeline.MaxRetries,
		ApprovalTimeout:     time.Duration(cfg.Pipeline.ApprovalTimeoutSec) * time.Second,
		StoryboardThreshold: cfg.Pipeline.StoryboardThreshold,
		MaxRegenAttempts:    cfg.Pipeline.MaxRegenAttempts,
		MaxClipSeconds:      cfg.Pipeline.MaxClipSeconds,
	}

	// Variant batches run in-process; fall back to mock generators the same
	// way the worker does when upstream clients are unconfigured.
	mocks := client.MockCollaborators()
	var variantText pipeline.TextGenerator = mocks.Text
	var variantImage pipeline.ImageGenerator = mocks.Image
	if llmClient.IsConfigured() {
		variantText = llmClient
	}
	if imageClient.IsConfigured() {
		variantImage = imageClient
	}

	// Initialize services
	adService := service.NewAdService(jobStore, asynqClient)
	variantService := service.NewVariantService(batch.NewController(jobStore), variantText, variantImage)
	var storage client.StorageClient
	if r2Client != nil {
		storage = r2Client
	}
	uploadService := service.NewUploadService(storage)
	var archiver service.AssetArchiver
	if compositorClient.IsConfigured() {
		archiver = compositorClient
	}
	exportService := service.NewExportService(jobStore, archiver)

	// Initialize handlers
	adHandler := handler.NewAdHandler(adService, validate)
	batchHandler := handler.NewBatchHandler(variantService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	exportHandler := handler.NewExportHandler(exportService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"llm":        llmClient.IsConfigured(),
				"image":      imageClient.IsConfigured(),
				"video":      videoClient.IsConfigured(),
				"speech":     speechClient.IsConfigured(),
				"compositor": compositorClient.IsConfigured(),
				"scorer":     scorerClient.IsConfigured(),
				"r2":         r2Client != nil,
				"auth":       jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Ad generation routes
	ads := api.Group("/ads")
	ads.Post("/generate", rateLimiter.AdsLimit(cfg.RateLimit.AdsPerHour), adHandler.Start)
	ads.Get("/status/:jobId", adHandler.Status)
	ads.Get("/result/:jobId", adHandler.Result)
	ads.Post("/cancel/:jobId", adHandler.Cancel)
	ads.Post("/approve/:jobId", adHandler.Approve)
	ads.Post("/decision/:jobId", adHandler.Decision)

	// Variant batch routes
	batches := api.Group("/batch")
	batches.Post("/variants", rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour), batchHandler.Start)
	batches.Get("/status/:batchId", batchHandler.Status)
	batches.Post("/pause/:batchId", batchHandler.Pause)
	batches.Post("/resume/:batchId", batchHandler.Resume)
	batches.Post("/cancel/:batchId", batchHandler.Cancel)

	// Export routes
	export := api.Group("/export", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour))
	export.Post("/assets", exportHandler.Assets)

	// Upload routes
	upload := api.Group("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour))
	upload.Post("/reference", uploadHandler.Reference)
	upload.Delete("/reference/*", uploadHandler.DeleteReference)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, collaborators, pipelineCfg)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobStore store.JobStore,
	collaborators pipeline.Collaborators,
	pipelineCfg pipeline.Config,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"ads": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	adWorker := worker.NewAdWorker(jobStore, collaborators, pipelineCfg)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAdGenerate, adWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
