package audit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	writeTimeout = 5 * time.Second
)

// Store persists audit entries
type Store interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, int, error)
	Stats(ctx context.Context, q models.AuditQuery) (models.AuditStats, error)
}

// Page is one page of audit entries plus aggregates over every matching entry
type Page struct {
	Logs        []*models.AuditLogEntry `json:"logs"`
	Total       int                     `json:"total"`
	SuccessRate float64                 `json:"success_rate"`
	TotalCost   float64                 `json:"total_cost"`
	Limit       int                     `json:"limit"`
	Offset      int                     `json:"offset"`
}

// Logger is the append-only ledger of enrichment attempts
type Logger struct {
	store Store
}

// NewLogger creates a new audit logger
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Record appends an entry. Failures are logged and never returned, and the
// write outlives cancellation of the caller's context.
func (l *Logger) Record(ctx context.Context, entry *models.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := l.store.Create(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("transaction_id", entry.TransactionID.String()).
			Str("status", entry.Status).
			Msg("Failed to write audit log entry")
	}
}

// Query lists entries newest first and aggregates success rate and cost
func (l *Logger) Query(ctx context.Context, q models.AuditQuery) (*Page, error) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	logs, total, err := l.store.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	stats, err := l.store.Stats(ctx, q)
	if err != nil {
		return nil, err
	}

	if logs == nil {
		logs = []*models.AuditLogEntry{}
	}

	return &Page{
		Logs:        logs,
		Total:       total,
		SuccessRate: SuccessRate(stats),
		TotalCost:   round2(stats.TotalCost),
		Limit:       q.Limit,
		Offset:      q.Offset,
	}, nil
}

// Stats aggregates every entry matching q
func (l *Logger) Stats(ctx context.Context, q models.AuditQuery) (models.AuditStats, error) {
	stats, err := l.store.Stats(ctx, q)
	if err != nil {
		return stats, err
	}
	stats.SuccessRate = SuccessRate(stats)
	return stats, nil
}

// SuccessRate is the percentage of successful entries, 0 when there are none
func SuccessRate(stats models.AuditStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return round2(float64(stats.Successful) / float64(stats.Total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
