package scoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
)

const batchLockKey = "aml:screening:batch-lock"

// Locker provides a cross-process mutual exclusion lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Worker runs batch screening on a fixed interval. When a Locker is set only
// one replica screens at a time.
type Worker struct {
	id           string
	orchestrator *Orchestrator
	locker       Locker
	config       configs.ScreeningConfig
	lockTTL      time.Duration
	wg           sync.WaitGroup
	stopOnce     sync.Once
	stopCh       chan struct{}
	mu           sync.RWMutex
	metrics      WorkerMetrics
}

// WorkerMetrics tracks worker performance
type WorkerMetrics struct {
	Runs              int64     `json:"runs"`
	SkippedRuns       int64     `json:"skipped_runs"`
	FailedRuns        int64     `json:"failed_runs"`
	ProcessedCount    int64     `json:"processed_count"`
	FlaggedCount      int64     `json:"flagged_count"`
	EnrichedCount     int64     `json:"enriched_count"`
	TotalProcessingMs int64     `json:"total_processing_ms"`
	LastRunAt         time.Time `json:"last_run_at"`
}

// NewWorker creates a new screening worker. locker may be nil.
func NewWorker(id string, orchestrator *Orchestrator, locker Locker, config configs.ScreeningConfig, lockTTL time.Duration) *Worker {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Worker{
		id:           id,
		orchestrator: orchestrator,
		locker:       locker,
		config:       config,
		lockTTL:      lockTTL,
		stopCh:       make(chan struct{}),
	}
}

// Start runs a batch immediately and then on every interval until ctx is
// cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) {
	log.Info().
		Str("worker_id", w.id).
		Dur("interval", w.config.Interval).
		Int("max_transactions", w.config.MaxTransactions).
		Bool("run_enrichment", w.config.RunEnrichment).
		Msg("Starting screening worker")

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop stops the worker and waits for an in-flight batch to finish
func (w *Worker) Stop() {
	log.Info().Str("worker_id", w.id).Msg("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	log.Info().Str("worker_id", w.id).Msg("Worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single batch if the lock can be taken. It reports whether
// a batch ran.
func (w *Worker) RunOnce(ctx context.Context) bool {
	if w.locker != nil {
		token, ok, err := w.locker.AcquireLock(ctx, batchLockKey, w.lockTTL)
		if err != nil {
			log.Error().Err(err).Str("worker_id", w.id).Msg("Failed to acquire screening lock")
			w.recordSkip()
			return false
		}
		if !ok {
			log.Debug().Str("worker_id", w.id).Msg("Another worker holds the screening lock")
			w.recordSkip()
			return false
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), batchLockKey, token); err != nil {
				log.Warn().Err(err).Str("worker_id", w.id).Msg("Failed to release screening lock")
			}
		}()
	}

	start := time.Now()
	result, err := w.orchestrator.Run(ctx, RunRequest{RunEnrichment: w.config.RunEnrichment})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics.Runs++
	w.metrics.LastRunAt = time.Now()
	w.metrics.TotalProcessingMs += time.Since(start).Milliseconds()
	if err != nil {
		w.metrics.FailedRuns++
		log.Error().Err(err).Str("worker_id", w.id).Msg("Screening batch failed")
		return true
	}
	w.metrics.ProcessedCount += int64(result.ProcessedCount)
	w.metrics.FlaggedCount += int64(result.FlaggedCount)
	w.metrics.EnrichedCount += int64(result.EnrichmentCount)
	return true
}

func (w *Worker) recordSkip() {
	w.mu.Lock()
	w.metrics.SkippedRuns++
	w.mu.Unlock()
}

// GetMetrics returns a snapshot of the worker metrics
func (w *Worker) GetMetrics() WorkerMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.metrics
}
