package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/models"
)

// ErrInvalidRange is returned when a backtest window is empty or inverted
var ErrInvalidRange = errors.New("start_date must be before end_date")

const (
	defaultBacktestSample = 1000
	maxDetailedResults    = 100
)

// HistoricalSource lists transactions in a date range
type HistoricalSource interface {
	ListInRange(ctx context.Context, senderID *uuid.UUID, from, to time.Time, limit int) ([]*models.Transaction, error)
}

// RecordedFlags lists the flags already stored for a transaction
type RecordedFlags interface {
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*models.Flag, error)
}

// BacktestService replays the rule catalog over historical transactions
// without recording anything, and compares the outcome to stored flags
type BacktestService struct {
	engine       *Engine
	transactions HistoricalSource
	flags        RecordedFlags
}

// NewBacktestService creates a new backtest service
func NewBacktestService(engine *Engine, transactions HistoricalSource, flags RecordedFlags) *BacktestService {
	return &BacktestService{
		engine:       engine,
		transactions: transactions,
		flags:        flags,
	}
}

// BacktestRequest represents a backtest request
type BacktestRequest struct {
	SenderID   *uuid.UUID `json:"sender_id,omitempty"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	SampleSize int        `json:"sample_size,omitempty"`
}

// BacktestResult represents the result of backtesting
type BacktestResult struct {
	TotalTransactions  int                   `json:"total_transactions"`
	FlaggedCount       int                   `json:"flagged_count"`
	FindingCount       int                   `json:"finding_count"`
	RiskDistribution   map[string]int        `json:"risk_distribution"`
	TopTriggeredRules  []models.RuleCount    `json:"top_triggered_rules"`
	Comparison         BacktestComparison    `json:"comparison_with_recorded"`
	ProcessingTimeMs   int64                 `json:"processing_time_ms"`
	TransactionResults []TransactionBacktest `json:"transaction_results,omitempty"`
}

// TransactionBacktest is the replay of a single transaction
type TransactionBacktest struct {
	TransactionID  string   `json:"transaction_id"`
	RulesTriggered []string `json:"rules_triggered"`
	RecordedRules  []string `json:"recorded_rules"`
	NewRules       []string `json:"new_rules,omitempty"`
	MissingRules   []string `json:"missing_rules,omitempty"`
}

// BacktestComparison compares replayed findings with stored flags
type BacktestComparison struct {
	Matching     int `json:"matching"`
	NewFindings  int `json:"new_findings"`
	NoLongerFire int `json:"no_longer_fire"`
}

// RunBacktest replays the catalog over transactions in [StartDate, EndDate)
func (s *BacktestService) RunBacktest(ctx context.Context, req *BacktestRequest) (*BacktestResult, error) {
	startTime := time.Now()

	if req.EndDate.IsZero() {
		req.EndDate = startTime.UTC()
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, ErrInvalidRange
	}
	if req.SampleSize <= 0 {
		req.SampleSize = defaultBacktestSample
	}

	log.Info().
		Time("start_date", req.StartDate).
		Time("end_date", req.EndDate).
		Int("sample_size", req.SampleSize).
		Msg("Starting backtest")

	transactions, err := s.transactions.ListInRange(ctx, req.SenderID, req.StartDate, req.EndDate, req.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result := &BacktestResult{
		TotalTransactions:  len(transactions),
		RiskDistribution:   make(map[string]int),
		TopTriggeredRules:  make([]models.RuleCount, 0),
		TransactionResults: make([]TransactionBacktest, 0),
	}
	ruleTriggers := make(map[string]int)

	for _, tx := range transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		findings := s.engine.Preview(ctx, tx)
		recorded, err := s.flags.ListByTransaction(ctx, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags for %s: %w", tx.ID, err)
		}

		txResult := TransactionBacktest{
			TransactionID:  tx.ID.String(),
			RulesTriggered: make([]string, 0, len(findings)),
			RecordedRules:  make([]string, 0, len(recorded)),
		}

		fired := make(map[string]bool, len(findings))
		for _, f := range findings {
			fired[f.RuleName] = true
			ruleTriggers[f.RuleName]++
			result.RiskDistribution[f.RiskLevel]++
			txResult.RulesTriggered = append(txResult.RulesTriggered, f.RuleName)
		}
		stored := make(map[string]bool, len(recorded))
		for _, f := range recorded {
			stored[f.RuleName] = true
			txResult.RecordedRules = append(txResult.RecordedRules, f.RuleName)
			if !fired[f.RuleName] {
				txResult.MissingRules = append(txResult.MissingRules, f.RuleName)
				result.Comparison.NoLongerFire++
			}
		}
		for _, name := range txResult.RulesTriggered {
			if stored[name] {
				result.Comparison.Matching++
			} else {
				txResult.NewRules = append(txResult.NewRules, name)
				result.Comparison.NewFindings++
			}
		}

		result.FindingCount += len(findings)
		if len(findings) > 0 {
			result.FlaggedCount++
		}
		if len(result.TransactionResults) < maxDetailedResults {
			result.TransactionResults = append(result.TransactionResults, txResult)
		}
	}

	for name, count := range ruleTriggers {
		result.TopTriggeredRules = append(result.TopTriggeredRules, models.RuleCount{RuleName: name, Count: count})
	}
	sort.Slice(result.TopTriggeredRules, func(i, j int) bool {
		a, b := result.TopTriggeredRules[i], result.TopTriggeredRules[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.RuleName < b.RuleName
	})

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	log.Info().
		Int("total", result.TotalTransactions).
		Int("flagged", result.FlaggedCount).
		Int("new_findings", result.Comparison.NewFindings).
		Int64("processing_ms", result.ProcessingTimeMs).
		Msg("Backtest completed")

	return result, nil
}
