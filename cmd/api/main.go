package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"sendhorn/internal/config"
	"sendhorn/internal/dedup"
	"sendhorn/internal/handler"
	"sendhorn/internal/logging"
	"sendhorn/internal/middleware"
	"sendhorn/internal/queue"
	"sendhorn/internal/repository"
	"sendhorn/internal/service"
)

const version = "1.0.0"

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "json")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "api").Logger()

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("connected to database")

	// Connect to RabbitMQ
	conn, err := queue.NewConnection(cfg.GetRabbitMQURL(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer conn.Close()
	log.Info().Msg("connected to RabbitMQ")

	publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create publisher")
	}

	// Optional Redis for webhook dedup; the merge logic stays correct
	// without it, so a missing address just disables the cache.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, webhook dedup degraded")
		}
		cancel()
	}
	dedupCache := dedup.New(redisClient, cfg.Redis.DedupTTL, log)

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	messageLogRepo := repository.NewMessageLogRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	listRepo := repository.NewRecipientListRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	// Services
	campaignService := service.NewCampaignService(campaignRepo, templateRepo, recipientRepo, listRepo)
	reconciler := service.NewCompletionReconciler(campaignRepo, messageLogRepo, log)
	dispatcher := service.NewDispatcher(
		campaignRepo, messageLogRepo, recipientRepo, listRepo, templateRepo,
		publisher, db, log,
	)
	webhookReceiver := service.NewWebhookReceiver(
		messageLogRepo, templateRepo, recipientRepo, reconciler, dedupCache, log,
	)
	healthService := service.NewHealthService(db, cfg.GetRabbitMQURL(), version)

	// Handlers
	campaignHandler := handler.NewCampaignHandler(campaignService, dispatcher, reconciler)
	webhookHandler := handler.NewWebhookHandler(webhookReceiver, cfg.Provider.VerifyToken, log)
	healthHandler := handler.NewHealthHandler(healthService)

	// Router
	router := mux.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLog(log))
	router.Use(middleware.Metrics)

	router.HandleFunc("/campaigns", campaignHandler.Create).Methods("POST")
	router.HandleFunc("/campaigns", campaignHandler.List).Methods("GET")
	router.HandleFunc("/campaigns/{id}", campaignHandler.GetByID).Methods("GET")
	router.HandleFunc("/campaigns/{id}/start", campaignHandler.Start).Methods("POST")
	router.HandleFunc("/campaigns/{id}/reconcile", campaignHandler.Reconcile).Methods("POST")

	router.HandleFunc("/webhook", webhookHandler.Verify).Methods("GET")
	router.HandleFunc("/webhook", webhookHandler.Receive).Methods("POST")

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Env).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("API server stopped")
}
