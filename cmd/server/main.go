package main

import (
	"context"
	"errors"
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

	"github.com/yonalabs/videogen/internal/client"
	"github.com/yonalabs/videogen/internal/config"
	"github.com/yonalabs/videogen/internal/handler"
	"github.com/yonalabs/videogen/internal/middleware"
	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/poller"
	"github.com/yonalabs/videogen/internal/service"
	"github.com/yonalabs/videogen/internal/store"
	"github.com/yonalabs/videogen/internal/worker"
	ws "github.com/yonalabs/videogen/internal/websocket"
)

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
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)

	var clipClient client.ClipGenerator
	switch model.ClipProvider(cfg.Pipeline.ClipProvider) {
	case model.ProviderKling:
		clipClient = client.NewKlingClient(&cfg.Kling, cfg.Pipeline.WorkDir)
	default:
		clipClient = client.NewRunwayClient(&cfg.Runway, cfg.Pipeline.WorkDir)
	}
	log.Printf("Using clip provider: %s", clipClient.Name())

	stitcher := client.NewFFmpegStitcher(cfg.Pipeline.FFmpegPath, cfg.Pipeline.WorkDir)

	// Initialize R2 client (optional - jobs fail at the upload stage without it)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Warning: R2 storage not configured")
	}
	var uploader client.Uploader
	var signer client.URLSigner
	if r2Client != nil {
		uploader = r2Client
		signer = r2Client
	}

	// Initialize stores
	songStore := store.NewRedisSongStore(redisClient)
	processingStore := store.NewRedisProcessingStore(redisClient)

	// Initialize services
	songService := service.NewSongService(songStore)
	processingService := service.NewProcessingService(songStore, processingStore, asynqClient)

	// Initialize handlers
	songHandler := handler.NewSongHandler(songService, validate)
	processingHandler := handler.NewProcessingHandler(songService, processingService, signer)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
				"openai": openaiClient.IsConfigured(),
				"clips":  clipClient.Name(),
				"r2":     r2Client != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	songs := api.Group("/songs", rateLimiter.SongsLimit(cfg.RateLimit.SongsPerMin))
	songs.Post("/", songHandler.Create)
	songs.Get("/:id", songHandler.Get)

	processing := api.Group("/processing", rateLimiter.ProcessingLimit(cfg.RateLimit.ProcessingPerMin))
	processing.Post("/:songId/start", processingHandler.Start)
	processing.Get("/", processingHandler.List)
	processing.Get("/:id", processingHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/processing/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, songStore, processingStore, openaiClient, clipClient, stitcher, uploader, hub)

	// Start the poll loop
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	go runPollLoop(pollCtx, cfg, poller.New(songStore, processingStore), processingService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancelPoll()
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
	songs store.SongStore,
	processing store.ProcessingStore,
	scripts client.ScriptGenerator,
	clips client.ClipGenerator,
	stitcher client.Stitcher,
	uploader client.Uploader,
	hub *ws.Hub,
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
			Concurrency: cfg.Pipeline.Concurrency,
			Queues: map[string]int{
				service.QueueVideo: cfg.Pipeline.Concurrency,
			},
			LogLevel: asynqLogLevel,
		},
	)

	videoWorker := worker.NewVideoWorker(&cfg.Pipeline, songs, processing, scripts, clips, stitcher, uploader, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcessVideo, videoWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

// runPollLoop runs one poll pass immediately, then one per interval. A failed
// pass is logged and skipped; the loop itself never exits except on shutdown.
func runPollLoop(ctx context.Context, cfg *config.Config, p *poller.Poller, processing *service.ProcessingService) {
	log.Printf("Poller started (interval %s, batch size %d)", cfg.Pipeline.PollInterval, cfg.Pipeline.BatchSize)

	ticker := time.NewTicker(cfg.Pipeline.PollInterval)
	defer ticker.Stop()

	for {
		pollOnce(ctx, cfg.Pipeline.BatchSize, p, processing)

		select {
		case <-ctx.Done():
			log.Println("Poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, batchSize int, p *poller.Poller, processing *service.ProcessingService) {
	songs, err := p.GetPendingSongs(ctx, batchSize)
	if err != nil {
		log.Printf("Poll pass failed: %v", err)
		return
	}
	if len(songs) == 0 {
		return
	}

	log.Printf("Found %d song(s) without videos", len(songs))
	for _, song := range songs {
		record, err := processing.StartProcessing(ctx, song)
		if err != nil {
			// Another poller instance may have grabbed the song between the
			// eligibility scan and the record insert.
			if errors.Is(err, store.ErrDuplicateActiveRecord) {
				continue
			}
			log.Printf("Failed to start processing for song %s: %v", song.ID, err)
			continue
		}
		log.Printf("Queued video job %s for song %s", record.ID, song.ID)
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
