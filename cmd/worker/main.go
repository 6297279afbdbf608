package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"sendhorn/internal/config"
	"sendhorn/internal/logging"
	"sendhorn/internal/provider"
	"sendhorn/internal/queue"
	"sendhorn/internal/repository"
	"sendhorn/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "json")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "worker").Logger()

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

	// Repositories and services
	campaignRepo := repository.NewCampaignRepository(db)
	messageLogRepo := repository.NewMessageLogRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)

	providerClient := provider.NewHTTPClient(
		cfg.Provider.BaseURL,
		cfg.Provider.PhoneNumberID,
		cfg.Provider.AccessToken,
	)

	reconciler := service.NewCompletionReconciler(campaignRepo, messageLogRepo, log)
	sender := service.NewSender(
		campaignRepo, messageLogRepo, recipientRepo,
		providerClient, reconciler, log,
	)

	handler := func(job *queue.SendJob) error {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return sender.Send(ctx, job)
	}

	consumer, err := queue.NewConsumer(conn, cfg.RabbitMQ.QueueName, cfg.Worker.Concurrency, handler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consumer")
	}

	if err := consumer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}
	log.Info().
		Str("queue", cfg.RabbitMQ.QueueName).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("worker started")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")

	if err := consumer.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping consumer")
	}

	log.Info().Msg("worker stopped")
}
