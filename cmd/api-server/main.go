package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/analytics"
	"github.com/enterprise/aml-screening/internal/audit"
	"github.com/enterprise/aml-screening/internal/auth"
	"github.com/enterprise/aml-screening/internal/enrichment"
	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/ingestion"
	"github.com/enterprise/aml-screening/internal/metrics"
	"github.com/enterprise/aml-screening/internal/queue"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/internal/scoring"
	"github.com/enterprise/aml-screening/internal/services"
	"github.com/enterprise/aml-screening/pkg/reasoner"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Bool("enrichment", cfg.Enrichment.Enabled()).
		Bool("kafka", cfg.Kafka.Enabled()).
		Msg("Starting AML Screening API Server")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, summary caching disabled")
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

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

	app := buildApp(cfg, db, cacheClient, publisher, m)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg.Server, app)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// app holds the services the HTTP handlers call into
type app struct {
	db           *repositories.Database
	cache        *queue.CacheClient
	redis        configs.RedisConfig
	jwtManager   *auth.JWTManager
	authService  *services.AuthService
	reviews      *services.ReviewService
	ingestion    *ingestion.IngestionService
	engine       *scoring.Engine
	orchestrator *scoring.Orchestrator
	backtest     *scoring.BacktestService
	classifier   *enrichment.Classifier
	flags        *repositories.FlagRepository
	transactions *repositories.TransactionRepository
	customers    *repositories.CustomerRepository
	auditLogger  *audit.Logger
	analytics    *analytics.AnalyticsService
}

func buildApp(cfg *configs.Config, db *repositories.Database, cacheClient *queue.CacheClient, publisher events.Publisher, m *metrics.Metrics) *app {
	txRepo := repositories.NewTransactionRepository(db)
	customerRepo := repositories.NewCustomerRepository(db)
	sanctionsRepo := repositories.NewSanctionsRepository(db)
	flagRepo := repositories.NewFlagRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	analystRepo := repositories.NewAnalystRepository(db)

	auditLogger := audit.NewLogger(auditRepo)
	engine := scoring.NewEngine(repositories.NewHistory(txRepo, customerRepo, sanctionsRepo), flagRepo, publisher, m)

	var cache analytics.Cache
	if cacheClient != nil {
		cache = cacheClient
	}
	analyticsService := analytics.NewAnalyticsService(flagRepo, auditLogger, txRepo, customerRepo, cache, cfg.Redis.SummaryCacheTTL)

	var classifier *enrichment.Classifier
	var enricher scoring.Enricher
	if cfg.Enrichment.Enabled() {
		client := reasoner.NewClient(reasoner.Config{
			APIKey:            cfg.Enrichment.APIKey,
			BaseURL:           cfg.Enrichment.BaseURL,
			Timeout:           cfg.Enrichment.Timeout,
			RequestsPerMinute: cfg.Enrichment.RequestsPerMinute,
		})
		classifier = enrichment.NewClassifier(client, txRepo, customerRepo, flagRepo, auditLogger, publisher, m, cfg.Enrichment)
		enricher = classifier
	}

	orchestrator := scoring.NewOrchestrator(engine, txRepo, enricher, cfg.Screening, m)
	jwtManager := auth.NewJWTManager(cfg.JWT)

	return &app{
		db:           db,
		cache:        cacheClient,
		redis:        cfg.Redis,
		jwtManager:   jwtManager,
		authService:  services.NewAuthService(analystRepo, jwtManager),
		reviews:      services.NewReviewService(flagRepo, analyticsService),
		ingestion:    ingestion.NewIngestionService(txRepo, customerRepo, orchestrator),
		engine:       engine,
		orchestrator: orchestrator,
		backtest:     scoring.NewBacktestService(engine, txRepo, flagRepo),
		classifier:   classifier,
		flags:        flagRepo,
		transactions: txRepo,
		customers:    customerRepo,
		auditLogger:  auditLogger,
		analytics:    analyticsService,
	}
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
