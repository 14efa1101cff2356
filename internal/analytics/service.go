package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/queue"
)

const (
	summaryCacheKey = "aml:summary"
	topRulesLimit   = 5
	activityDays    = 7
)

// FlagStats are the flag aggregates the summary is built from
type FlagStats interface {
	Counts(ctx context.Context) (models.FlagCounts, error)
	CountByRiskLevel(ctx context.Context) (map[string]int, error)
	CountByEnrichmentLevel(ctx context.Context) (map[string]int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	TopRules(ctx context.Context, limit int) ([]models.RuleCount, error)
	CountByDay(ctx context.Context, since time.Time) ([]models.DailyCount, error)
}

// AuditStats aggregates the enrichment audit log
type AuditStats interface {
	Stats(ctx context.Context, q models.AuditQuery) (models.AuditStats, error)
}

// TransactionCounter counts stored transactions
type TransactionCounter interface {
	Count(ctx context.Context, filter models.TransactionFilter) (int, error)
}

// CustomerCounter counts stored customers
type CustomerCounter interface {
	Count(ctx context.Context, filter models.CustomerFilter) (int, error)
}

// Cache stores computed summaries
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// AnalyticsService provides reporting over flags and enrichment
type AnalyticsService struct {
	flags        FlagStats
	audit        AuditStats
	transactions TransactionCounter
	customers    CustomerCounter
	cache        Cache
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewAnalyticsService creates a new analytics service. cache may be nil.
func NewAnalyticsService(flags FlagStats, audit AuditStats, transactions TransactionCounter, customers CustomerCounter, cache Cache, cacheTTL time.Duration) *AnalyticsService {
	return &AnalyticsService{
		flags:        flags,
		audit:        audit,
		transactions: transactions,
		customers:    customers,
		cache:        cache,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// GetSummary returns flag histograms, enrichment coverage, top rules and volume totals
func (s *AnalyticsService) GetSummary(ctx context.Context) (*models.Summary, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		var cached models.Summary
		err := s.cache.Get(ctx, summaryCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, queue.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Failed to read cached summary")
		}
	}

	summary := &models.Summary{GeneratedAt: s.now().UTC()}
	var counts models.FlagCounts
	var auditStats models.AuditStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.flags.Counts(gctx)
		return wrap("flag counts", err)
	})
	g.Go(func() (err error) {
		summary.ByRiskLevel, err = s.flags.CountByRiskLevel(gctx)
		return wrap("risk level histogram", err)
	})
	g.Go(func() (err error) {
		summary.ByEnrichmentLevel, err = s.flags.CountByEnrichmentLevel(gctx)
		return wrap("enrichment level histogram", err)
	})
	g.Go(func() (err error) {
		summary.ByStatus, err = s.flags.CountByStatus(gctx)
		return wrap("status histogram", err)
	})
	g.Go(func() (err error) {
		summary.TopRules, err = s.flags.TopRules(gctx, topRulesLimit)
		return wrap("top rules", err)
	})
	g.Go(func() (err error) {
		since := s.now().UTC().AddDate(0, 0, -activityDays)
		summary.RecentActivity, err = s.flags.CountByDay(gctx, since)
		return wrap("recent activity", err)
	})
	g.Go(func() (err error) {
		auditStats, err = s.audit.Stats(gctx, models.AuditQuery{})
		return wrap("audit stats", err)
	})
	g.Go(func() (err error) {
		summary.TotalCustomers, err = s.customers.Count(gctx, models.CustomerFilter{})
		return wrap("customer count", err)
	})
	g.Go(func() (err error) {
		summary.TotalTransactions, err = s.transactions.Count(gctx, models.TransactionFilter{})
		return wrap("transaction count", err)
	})
	g.Go(func() (err error) {
		since := s.now().UTC().AddDate(0, 0, -activityDays)
		summary.TransactionsLast7Days, err = s.transactions.Count(gctx, models.TransactionFilter{Since: since})
		return wrap("recent transaction count", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.TotalFlagged = counts.Total
	summary.Analyzed = counts.Analyzed
	summary.FallbackCount = counts.Fallback
	summary.CoveragePct = Coverage(counts.Analyzed, counts.Total)
	summary.FlagRate = FlagRate(counts.Total, summary.TotalTransactions)
	summary.EnrichmentRequests = auditStats.Total
	summary.EnrichmentSuccessRate = auditStats.SuccessRate
	summary.EnrichmentTotalCost = math.Round(auditStats.TotalCost*100) / 100

	if summary.TopRules == nil {
		summary.TopRules = []models.RuleCount{}
	}
	if summary.RecentActivity == nil {
		summary.RecentActivity = []models.DailyCount{}
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, summaryCacheKey, summary, s.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache summary")
		}
	}

	return summary, nil
}

// InvalidateSummary drops the cached summary so the next read recomputes it
func (s *AnalyticsService) InvalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached summary")
	}
}

// Coverage is analyzed/total as a percentage rounded to 2 decimals, 0 when total is 0
func Coverage(analyzed, total int) float64 {
	return percent(analyzed, total)
}

// FlagRate is flags per hundred transactions rounded to 2 decimals, 0 with no transactions
func FlagRate(flagged, transactions int) float64 {
	return percent(flagged, transactions)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
