package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/enrichment"
	"github.com/enterprise/aml-screening/internal/metrics"
	"github.com/enterprise/aml-screening/internal/models"
)

// Run modes
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// TransactionSource loads transactions for screening
type TransactionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListUnflagged(ctx context.Context, after *uuid.UUID, limit int) ([]*models.Transaction, error)
}

// Enricher assesses flags with the reasoning service
type Enricher interface {
	Analyze(ctx context.Context, transactionID, flagID uuid.UUID) (*enrichment.Result, error)
	AnalyzePending(ctx context.Context, limit int) ([]*enrichment.Result, error)
}

// RunRequest selects what a run covers
type RunRequest struct {
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	RunEnrichment bool       `json:"run_enrichment"`
}

// RunResult summarizes one run
type RunResult struct {
	Mode              string `json:"mode"`
	ProcessedCount    int    `json:"processed_count"`
	FlaggedCount      int    `json:"flagged_count"`
	EnrichmentCount   int    `json:"enrichment_count"`
	EnrichmentFailed  int    `json:"enrichment_failed"`
	EnrichmentEnabled bool   `json:"enrichment_enabled"`
	CapReached        bool   `json:"cap_reached"`
	DurationMs        int64  `json:"duration_ms"`
}

// ChangedFlags reports whether the run may have written flags or assessments,
// fallbacks included
func (r *RunResult) ChangedFlags() bool {
	return r.FlaggedCount > 0 || r.EnrichmentCount > 0 || r.EnrichmentFailed > 0
}

// Orchestrator drives the engine over one transaction or a bounded batch
type Orchestrator struct {
	engine       *Engine
	transactions TransactionSource
	enricher     Enricher
	config       configs.ScreeningConfig
	metrics      *metrics.Metrics
}

// NewOrchestrator creates a new orchestrator. enricher may be nil when no
// reasoning service is configured.
func NewOrchestrator(engine *Engine, transactions TransactionSource, enricher Enricher, config configs.ScreeningConfig, m *metrics.Metrics) *Orchestrator {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxTransactions <= 0 {
		config.MaxTransactions = 1000
	}
	if config.EnrichmentBatch <= 0 {
		config.EnrichmentBatch = 10
	}
	return &Orchestrator{
		engine:       engine,
		transactions: transactions,
		enricher:     enricher,
		config:       config,
		metrics:      m,
	}
}

// EnrichmentEnabled reports whether a reasoning service is configured
func (o *Orchestrator) EnrichmentEnabled() bool {
	return o.enricher != nil
}

// Run screens a single transaction when req.TransactionID is set, otherwise
// a bounded batch of transactions that have no flags yet.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{EnrichmentEnabled: o.EnrichmentEnabled()}

	var err error
	if req.TransactionID != nil {
		result.Mode = ModeSingle
		err = o.runSingle(ctx, *req.TransactionID, req.RunEnrichment, result)
	} else {
		result.Mode = ModeBatch
		err = o.runBatch(ctx, req.RunEnrichment, result)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	o.metrics.RunFinished(result.Mode, err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mode", result.Mode).
		Int("processed", result.ProcessedCount).
		Int("flagged", result.FlaggedCount).
		Int("enriched", result.EnrichmentCount).
		Int("enrichment_failed", result.EnrichmentFailed).
		Int64("duration_ms", result.DurationMs).
		Msg("Screening run finished")

	return result, nil
}

func (o *Orchestrator) runSingle(ctx context.Context, id uuid.UUID, runEnrichment bool, result *RunResult) error {
	tx, err := o.transactions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	created, err := o.engine.EvaluateTransaction(ctx, tx)
	if err != nil {
		return err
	}
	result.ProcessedCount = 1
	result.FlaggedCount = len(created)

	if !runEnrichment || o.enricher == nil {
		return nil
	}
	for _, flag := range created {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := o.enricher.Analyze(ctx, tx.ID, flag.ID)
		if err != nil {
			log.Error().Err(err).Str("flag_id", flag.ID.String()).Msg("Failed to enrich flag")
			result.EnrichmentFailed++
			continue
		}
		tally(result, res)
	}
	return nil
}

func (o *Orchestrator) runBatch(ctx context.Context, runEnrichment bool, result *RunResult) error {
	var after *uuid.UUID

	for result.ProcessedCount < o.config.MaxTransactions {
		if err := ctx.Err(); err != nil {
			return err
		}

		limit := min(o.config.PageSize, o.config.MaxTransactions-result.ProcessedCount)
		page, err := o.transactions.ListUnflagged(ctx, after, limit)
		if err != nil {
			return fmt.Errorf("failed to fetch screening page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, tx := range page {
			created, err := o.engine.EvaluateTransaction(ctx, tx)
			if err != nil {
				return err
			}
			result.ProcessedCount++
			result.FlaggedCount += len(created)
		}

		last := page[len(page)-1].ID
		after = &last

		log.Debug().
			Int("page_size", len(page)).
			Int("processed", result.ProcessedCount).
			Msg("Screened page")
	}
	result.CapReached = result.ProcessedCount >= o.config.MaxTransactions

	if !runEnrichment || o.enricher == nil {
		return nil
	}

	results, err := o.enricher.AnalyzePending(ctx, o.config.EnrichmentBatch)
	if err != nil {
		log.Error().Err(err).Msg("Enrichment pass failed")
	}
	for _, res := range results {
		tally(result, res)
	}
	return nil
}

func tally(result *RunResult, res *enrichment.Result) {
	if res.Outcome == enrichment.OutcomeCompleted {
		result.EnrichmentCount++
		return
	}
	result.EnrichmentFailed++
}
