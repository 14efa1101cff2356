package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/metrics"
	"github.com/enterprise/aml-screening/internal/models"
)

// FlagStore records fired rules, at most once per (transaction, rule)
type FlagStore interface {
	Flag(ctx context.Context, transactionID uuid.UUID, ruleName, description, riskLevel string, riskScore int) (*models.Flag, bool, error)
}

// Engine evaluates transactions against the rule catalog
type Engine struct {
	rules     []Rule
	history   HistoryContext
	flags     FlagStore
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// NewEngine creates an engine over the default rule catalog
func NewEngine(history HistoryContext, flags FlagStore, publisher events.Publisher, m *metrics.Metrics) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		rules:     DefaultRules(),
		history:   history,
		flags:     flags,
		publisher: publisher,
		metrics:   m,
	}
}

// Rules lists the catalog
func (e *Engine) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Info())
	}
	return out
}

// Preview evaluates every rule without recording anything
func (e *Engine) Preview(ctx context.Context, tx *models.Transaction) []Finding {
	var findings []Finding
	for _, rule := range e.rules {
		if finding, ok := rule.Evaluate(ctx, tx, e.history); ok {
			findings = append(findings, *finding)
		}
	}
	return findings
}

// EvaluateTransaction runs every rule and records findings in the flag store.
// It returns only the flags created by this call.
func (e *Engine) EvaluateTransaction(ctx context.Context, tx *models.Transaction) ([]*models.Flag, error) {
	e.metrics.TransactionScreened()

	var created []*models.Flag
	for _, finding := range e.Preview(ctx, tx) {
		flag, isNew, err := e.flags.Flag(ctx, tx.ID, finding.RuleName, finding.Description, finding.RiskLevel, finding.RiskScore)
		if err != nil {
			return created, fmt.Errorf("failed to record %s for transaction %s: %w", finding.RuleName, tx.ID, err)
		}
		if !isNew {
			continue
		}

		created = append(created, flag)
		e.metrics.RuleFired(flag.RuleName)
		e.publish(ctx, flag)

		log.Info().
			Str("transaction_id", tx.ID.String()).
			Str("rule", flag.RuleName).
			Str("risk_level", flag.RiskLevel).
			Msg("Transaction flagged")
	}

	return created, nil
}

func (e *Engine) publish(ctx context.Context, flag *models.Flag) {
	event := models.FlagEvent{
		Type:          models.FlagEventCreated,
		FlagID:        flag.ID.String(),
		TransactionID: flag.TransactionID.String(),
		RuleName:      flag.RuleName,
		RiskLevel:     flag.RiskLevel,
		Timestamp:     time.Now().UTC(),
	}
	if err := e.publisher.PublishFlagEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("flag_id", event.FlagID).Msg("Failed to publish flag event")
	}
}
