package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/analytics"
	"github.com/enterprise/aml-screening/internal/audit"
	"github.com/enterprise/aml-screening/internal/enrichment"
	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/queue"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/internal/scoring"
	"github.com/enterprise/aml-screening/internal/services"
	"github.com/enterprise/aml-screening/pkg/reasoner"
)

// deps is everything a command may need, built from a single connection pool
type deps struct {
	db           *repositories.Database
	cache        *queue.CacheClient
	publisher    events.Publisher
	orchestrator *scoring.Orchestrator
	backtest     *scoring.BacktestService
	classifier   *enrichment.Classifier
	auditLogger  *audit.Logger
	analytics    *analytics.AnalyticsService
	authService  *services.AuthService
}

func openDeps(ctx context.Context) (*deps, error) {
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		return nil, eris.Wrap(err, "connect database")
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "database health check")
	}

	d := &deps{db: db, publisher: events.NoopPublisher{}}

	if cacheClient, err := queue.NewCacheClient(cfg.Redis); err != nil {
		log.Debug().Err(err).Msg("Redis unavailable, summary cache disabled")
	} else {
		d.cache = cacheClient
	}

	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			d.Close()
			return nil, eris.Wrap(err, "connect kafka")
		}
		d.publisher = kp
	}

	txRepo := repositories.NewTransactionRepository(db)
	customerRepo := repositories.NewCustomerRepository(db)
	flagRepo := repositories.NewFlagRepository(db)
	d.auditLogger = audit.NewLogger(repositories.NewAuditRepository(db))

	engine := scoring.NewEngine(
		repositories.NewHistory(txRepo, customerRepo, repositories.NewSanctionsRepository(db)),
		flagRepo, d.publisher, nil)

	var enricher scoring.Enricher
	if cfg.Enrichment.Enabled() {
		client := reasoner.NewClient(reasoner.Config{
			APIKey:            cfg.Enrichment.APIKey,
			BaseURL:           cfg.Enrichment.BaseURL,
			Timeout:           cfg.Enrichment.Timeout,
			RequestsPerMinute: cfg.Enrichment.RequestsPerMinute,
		})
		d.classifier = enrichment.NewClassifier(client, txRepo, customerRepo, flagRepo, d.auditLogger, d.publisher, nil, cfg.Enrichment)
		enricher = d.classifier
	}

	var cache analytics.Cache
	if d.cache != nil {
		cache = d.cache
	}

	d.orchestrator = scoring.NewOrchestrator(engine, txRepo, enricher, cfg.Screening, nil)
	d.backtest = scoring.NewBacktestService(engine, txRepo, flagRepo)
	d.analytics = analytics.NewAnalyticsService(flagRepo, d.auditLogger, txRepo, customerRepo, cache, cfg.Redis.SummaryCacheTTL)
	d.authService = services.NewAuthService(repositories.NewAnalystRepository(db), nil)
	return d, nil
}

func (d *deps) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.cache != nil {
		_ = d.cache.Close()
	}
	d.db.Close()
}
