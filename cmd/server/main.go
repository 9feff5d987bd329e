package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatsurvey/internal/cache"
	"chatsurvey/internal/config"
	"chatsurvey/internal/event"
	"chatsurvey/internal/repository"
	"chatsurvey/internal/service"
	"chatsurvey/internal/transport/chat"
	"chatsurvey/internal/transport/rest"
	"chatsurvey/internal/transport/ws"

	_ "chatsurvey/docs"
)

// @title Chat Survey API
// @version 1.0
// @description Chat-driven survey collection over WhatsApp
// @host localhost:8080
// @BasePath /v1
func main() {
	log.Println("started")
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := config.Load()

	// Speech config and log model settings
	speechCfg := config.DefaultSpeechConfig()
	log.Printf("Speech Config:")
	log.Printf("  Transcribe: %s", speechCfg.Models.Transcribe)
	log.Printf("  Translate:  %s", speechCfg.Models.Translate)
	log.Printf("  Summarize:  %s", speechCfg.Models.Summarize)
	if speechCfg.IsEnabled() {
		log.Println("  API Key:    configured ✓")
	} else {
		log.Println("  API Key:    NOT SET (voice notes will be declined)")
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDatabase)

	// Redis connection
	redisAddr := strings.TrimPrefix(cfg.RedisAddr, "redis://")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize repositories
	surveyRepo := repository.NewSurveyRepo(db)
	participantRepo := repository.NewParticipantRepo(db)
	participationRepo := repository.NewParticipationRepo(db)
	responseRepo := repository.NewResponseRepo(db)

	indexCtx, indexCancel := context.WithTimeout(ctx, 10*time.Second)
	defer indexCancel()
	if err := participantRepo.EnsureIndexes(indexCtx); err != nil {
		log.Fatal("Failed to ensure participant indexes:", err)
	}
	if err := participationRepo.EnsureIndexes(indexCtx); err != nil {
		log.Fatal("Failed to ensure participation indexes:", err)
	}
	if err := responseRepo.EnsureIndexes(indexCtx); err != nil {
		log.Fatal("Failed to ensure response indexes:", err)
	}
	log.Println("Mongo indexes ensured")

	// Initialize caches
	sessionCache := cache.NewSessionCache(rdb)
	catalogCache := cache.NewCatalogCache(rdb)

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize services
	authSvc := service.NewAuthServiceFromEnv()
	catalogSvc := service.NewCatalogService(surveyRepo, catalogCache)
	surveySvc := service.NewSurveyService(surveyRepo, catalogSvc)
	reportSvc := service.NewReportService(surveyRepo, participationRepo, responseRepo)
	sessionSvc := service.NewSessionService(sessionCache)
	speechSvc := service.NewSpeechService(speechCfg)
	voiceSvc := service.NewVoiceService(speechSvc, speechCfg)

	// Outbound messaging client
	chatClient := chat.NewClient()

	engine := service.NewConversationEngine(
		catalogSvc,
		sessionSvc,
		participantRepo,
		participationRepo,
		responseRepo,
		voiceSvc,
		chatClient,
	)
	engine.SetBroadcaster(wsHub)

	// Optional AMQP publisher for the reporting surface
	if cfg.AMQPURL != "" {
		publisher, err := event.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("Warning: AMQP unavailable, events disabled: %v", err)
		} else {
			defer publisher.Close()
			engine.SetPublisher(publisher)
			log.Println("Connected to RabbitMQ")
		}
	}

	// Inbound message pipeline
	dispatcher := chat.NewDispatcher(engine.HandleInboundMessage)
	webhookHandler := chat.NewWebhookHandler(dispatcher)

	// Create router with container
	container := &rest.Container{
		AuthService:       authSvc,
		SurveyService:     surveySvc,
		ReportService:     reportSvc,
		ParticipationRepo: participationRepo,
		ResponseRepo:      responseRepo,
		WebhookHandler:    webhookHandler,
		WSHub:             wsHub,
	}

	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  GET/POST /v1/webhook/whatsapp")
		log.Println("  POST/GET /v1/surveys")
		log.Println("  POST /v1/surveys/{surveyId}/activate")
		log.Println("  GET  /v1/surveys/{surveyId}/results")
		log.Println("  WS   /v1/ws/surveys/{surveyId}/dashboard")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
