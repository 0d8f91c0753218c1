package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/clipwise/clipwise/config"
	"github.com/clipwise/clipwise/internal/agents"
	"github.com/clipwise/clipwise/internal/api/handlers"
	"github.com/clipwise/clipwise/internal/api/middleware"
	"github.com/clipwise/clipwise/internal/api/routes"
	"github.com/clipwise/clipwise/internal/cache"
	"github.com/clipwise/clipwise/internal/clips"
	"github.com/clipwise/clipwise/internal/clock"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/logger"
	"github.com/clipwise/clipwise/internal/providers/llm"
	"github.com/clipwise/clipwise/internal/providers/media"
	"github.com/clipwise/clipwise/internal/providers/stt"
	mongorepo "github.com/clipwise/clipwise/internal/repositories/mongo"
	pgrepo "github.com/clipwise/clipwise/internal/repositories/postgres"
	"github.com/clipwise/clipwise/internal/services"
	"github.com/clipwise/clipwise/internal/storage"
)

func main() {
	_ = godotenv.Load()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	fmt.Println("MongoDB connected")

	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	fmt.Println("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	fmt.Println("Redis connected")

	lg := logger.New()
	ctx := context.Background()

	mdb := config.MongoClient.Database(config.MongoDatabaseName())

	// Providers
	sttProvider, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.Fatalf("Speech client init error: %v", err)
	}
	defer sttProvider.Close()

	llmProvider, err := llm.NewVertexGemini(ctx,
		os.Getenv("GOOGLE_PROJECT_ID"),
		getenvDefault("GOOGLE_LOCATION", "us-central1"),
		getenvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		getenvDefault("EMBED_MODEL", "text-embedding-004"),
	)
	if err != nil {
		log.Fatalf("Vertex client init error: %v", err)
	}
	defer llmProvider.Close()

	var uploader storage.Uploader
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		uploader = gcs
	}

	trimmer := media.NewFFmpeg(getenvDefault("CLIP_OUT_DIR", os.TempDir()))

	// Repositories
	sessionRepo := mongorepo.NewSessionRepo(mdb)
	queueRepo := mongorepo.NewClipQueueRepo(mdb)
	transcriptRepo := mongorepo.NewTranscriptRepo(mdb)
	triggerRepo := pgrepo.NewTriggerRepo(config.PostgresDB)
	clipRepo := pgrepo.NewClipRepo(config.PostgresDB)
	draftRepo := pgrepo.NewDraftRepo(config.PostgresDB)

	// Event plumbing: in-process bus fanned out over Redis pub/sub.
	bus := events.NewBus(events.NewRedisPublisher(config.RedisClient))
	redisCache := cache.NewRedisCache(config.RedisClient)

	// Services
	sessionSvc := services.NewSessionService(sessionRepo, transcriptRepo)
	triggerSvc := services.NewTriggerService(triggerRepo, redisCache)
	queueSvc := services.NewQueueService(queueRepo)
	clipSvc := services.NewClipService(clipRepo)
	draftSvc := services.NewDraftService(draftRepo, llmProvider, lg)

	validator := agents.NewValidator(llmProvider, agents.DefaultValidatorConfig())
	router := agents.NewRouter(validator, draftSvc, bus, lg)

	liveSvc := services.NewLiveService(
		sessionSvc, triggerSvc, queueSvc, transcriptRepo,
		sttProvider, llmProvider, bus, router, clock.Real(), lg,
	)

	// Clip job processor
	processor := clips.NewProcessor(queueRepo, sessionRepo, clipRepo, trimmer, uploader, bus, lg, clips.Options{
		Concurrency:  getenvInt("CLIP_CONCURRENCY", 0),
		PollInterval: time.Duration(getenvInt("CLIP_POLL_MS", 0)) * time.Millisecond,
	})
	processor.Start()
	defer processor.Stop()

	// Start Gin server
	r := gin.Default()
	r.Use(middleware.RequestLogger(lg))

	routes.RegisterRoutes(r, routes.Deps{
		Session: handlers.NewSessionHandler(sessionSvc, liveSvc),
		Trigger: handlers.NewTriggerHandler(triggerSvc),
		Queue:   handlers.NewQueueHandler(queueSvc, sessionSvc, processor, bus),
		Content: handlers.NewContentHandler(clipSvc, draftSvc, sessionSvc),
		WS:      handlers.NewWSHandler(sessionSvc, liveSvc, queueSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("ignoring %s=%q: not an integer", key, v)
	}
	return fallback
}
