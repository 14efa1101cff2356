package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/audit"
	"github.com/enterprise/aml-screening/internal/enrichment"
	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/metrics"
	"github.com/enterprise/aml-screening/internal/queue"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/internal/scoring"
	"github.com/enterprise/aml-screening/pkg/reasoner"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Dur("interval", cfg.Screening.Interval).
		Bool("enrichment", cfg.Enrichment.Enabled() && cfg.Screening.RunEnrichment).
		Msg("Starting AML Screening Worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// The cache doubles as the batch lock so replicas never screen concurrently
	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cacheClient.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Kafka")
		}
		publisher = kp
	}
	defer publisher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	txRepo := repositories.NewTransactionRepository(db)
	customerRepo := repositories.NewCustomerRepository(db)
	sanctionsRepo := repositories.NewSanctionsRepository(db)
	flagRepo := repositories.NewFlagRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	engine := scoring.NewEngine(repositories.NewHistory(txRepo, customerRepo, sanctionsRepo), flagRepo, publisher, m)

	var enricher scoring.Enricher
	if cfg.Enrichment.Enabled() {
		client := reasoner.NewClient(reasoner.Config{
			APIKey:            cfg.Enrichment.APIKey,
			BaseURL:           cfg.Enrichment.BaseURL,
			Timeout:           cfg.Enrichment.Timeout,
			RequestsPerMinute: cfg.Enrichment.RequestsPerMinute,
		})
		enricher = enrichment.NewClassifier(client, txRepo, customerRepo, flagRepo, audit.NewLogger(auditRepo), publisher, m, cfg.Enrichment)
	}

	orchestrator := scoring.NewOrchestrator(engine, txRepo, enricher, cfg.Screening, m)

	hostname, _ := os.Hostname()
	worker := scoring.NewWorker("worker-"+hostname, orchestrator, cacheClient, cfg.Screening, cfg.Redis.LockTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Let an in-flight batch finish before cancelling
	worker.Stop()
	cancel()

	stats := worker.GetMetrics()
	log.Info().
		Int64("runs", stats.Runs).
		Int64("processed", stats.ProcessedCount).
		Int64("flagged", stats.FlaggedCount).
		Msg("Worker shutdown complete")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
