package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/metrics"
	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/pkg/reasoner"
)

// Outcome tags how an enrichment attempt ended
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeSchemaError    Outcome = "schema_error"
	OutcomeTransportError Outcome = "transport_error"
)

// Result is the outcome of analyzing one flag
type Result struct {
	Outcome         Outcome  `json:"outcome"`
	FlagID          string   `json:"flag_id"`
	RiskLevel       string   `json:"risk_level"`
	Explanation     string   `json:"explanation"`
	SuggestedAction string   `json:"suggested_action"`
	ConfidenceScore float64  `json:"confidence_score"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	ComplianceNotes string   `json:"compliance_notes,omitempty"`
	Model           string   `json:"model"`
	TokensUsed      int      `json:"tokens_used"`
	Error           string   `json:"error,omitempty"`
}

// Persisted reports whether the result was written onto the flag
func (r *Result) Persisted() bool {
	return r.Outcome != OutcomeTransportError
}

// TransactionStore loads transactions
type TransactionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// CustomerStore loads customers
type CustomerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// FlagStore loads flags and stores their assessments
type FlagStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Flag, error)
	ListUnenriched(ctx context.Context, limit int) ([]*models.Flag, error)
	SaveEnrichment(ctx context.Context, flagID uuid.UUID, e *models.Enrichment) error
}

// AuditRecorder appends audit entries and never fails the caller
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLogEntry)
}

// Classifier enriches flags with an assessment from the reasoning service
type Classifier struct {
	client       reasoner.Client
	transactions TransactionStore
	customers    CustomerStore
	flags        FlagStore
	audit        AuditRecorder
	publisher    events.Publisher
	metrics      *metrics.Metrics
	config       configs.EnrichmentConfig
	now          func() time.Time
}

// NewClassifier creates a new classifier
func NewClassifier(
	client reasoner.Client,
	transactions TransactionStore,
	customers CustomerStore,
	flags FlagStore,
	audit AuditRecorder,
	publisher events.Publisher,
	m *metrics.Metrics,
	config configs.EnrichmentConfig,
) *Classifier {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Classifier{
		client:       client,
		transactions: transactions,
		customers:    customers,
		flags:        flags,
		audit:        audit,
		publisher:    publisher,
		metrics:      m,
		config:       config,
		now:          time.Now,
	}
}

// Analyze assesses one flag. Missing records are returned as errors wrapping
// repositories.ErrNotFound; service and validation failures are reported in
// the result. Every call writes exactly one audit entry.
func (c *Classifier) Analyze(ctx context.Context, transactionID, flagID uuid.UUID) (*Result, error) {
	start := c.now()
	entry := &models.AuditLogEntry{
		TransactionID: transactionID,
		FlagID:        &flagID,
		Model:         c.config.Model,
		Temperature:   c.config.Temperature,
		MaxTokens:     c.config.MaxTokens,
		Status:        models.AuditStatusError,
	}
	defer func() {
		entry.LatencyMs = c.now().Sub(start).Milliseconds()
		c.audit.Record(ctx, entry)
	}()

	tx, customer, flag, err := c.load(ctx, transactionID, flagID)
	if err != nil {
		entry.ErrorMessage = strPtr(err.Error())
		return nil, err
	}

	prompt, err := RenderPrompt(BuildContext(tx, customer, flag))
	if err != nil {
		entry.ErrorMessage = strPtr(err.Error())
		return nil, err
	}
	entry.Prompt = prompt

	resp, err := c.client.Complete(ctx, reasoner.Request{
		Model:       c.config.Model,
		System:      systemPrompt,
		Prompt:      prompt,
		Schema:      ResponseSchema,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		if reasoner.IsTimeout(err) {
			entry.Status = models.AuditStatusTimeout
		}
		entry.ErrorMessage = strPtr(err.Error())
		c.metrics.EnrichmentAttempt(string(OutcomeTransportError), c.now().Sub(start), 0)

		log.Error().
			Err(err).
			Str("flag_id", flagID.String()).
			Str("transaction_id", transactionID.String()).
			Msg("Enrichment request failed")

		return &Result{
			Outcome:         OutcomeTransportError,
			FlagID:          flagID.String(),
			RiskLevel:       RiskUnknown,
			Explanation:     "Enrichment analysis failed",
			SuggestedAction: ActionManualReview,
			Model:           c.config.Model,
			Error:           err.Error(),
		}, nil
	}

	model := resp.Model
	if model == "" {
		model = c.config.Model
	}
	tokens := int(resp.Usage.Total())
	cost := resp.Usage.EstimateCost(model, c.config.CostPer1KTokens)

	entry.Model = model
	entry.Response = strPtr(resp.Text)
	entry.TokensUsed = &tokens
	entry.CostEstimate = &cost

	result := c.assess(resp.Text)
	result.FlagID = flagID.String()
	result.Model = model
	result.TokensUsed = tokens

	if result.Outcome != OutcomeCompleted {
		entry.ErrorMessage = strPtr(result.Error)
		log.Warn().
			Str("flag_id", flagID.String()).
			Str("reason", result.Error).
			Msg("Enrichment response failed validation, storing fallback assessment")
	}

	if err := c.flags.SaveEnrichment(ctx, flagID, result.enrichment(c.now().UTC())); err != nil {
		err = fmt.Errorf("failed to store assessment for flag %s: %w", flagID, err)
		entry.ErrorMessage = strPtr(err.Error())
		return nil, err
	}
	// Success only once the assessment is stored
	if result.Outcome == OutcomeCompleted {
		entry.Status = models.AuditStatusSuccess
	}

	c.metrics.EnrichmentAttempt(string(result.Outcome), c.now().Sub(start), cost)
	c.publish(ctx, flag, result.Outcome)

	log.Info().
		Str("flag_id", flagID.String()).
		Str("outcome", string(result.Outcome)).
		Str("risk_level", result.RiskLevel).
		Int("tokens", tokens).
		Msg("Flag enriched")

	return result, nil
}

// AnalyzePending enriches up to limit of the most recently flagged records
// lacking an assessment, one at a time. A failure on one flag never stops
// the rest.
func (c *Classifier) AnalyzePending(ctx context.Context, limit int) ([]*Result, error) {
	pending, err := c.flags.ListUnenriched(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenriched flags: %w", err)
	}

	results := make([]*Result, 0, len(pending))
	for _, flag := range pending {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := c.Analyze(ctx, flag.TransactionID, flag.ID)
		if err != nil {
			log.Error().Err(err).Str("flag_id", flag.ID.String()).Msg("Failed to enrich flag")
			results = append(results, &Result{
				Outcome:         OutcomeTransportError,
				FlagID:          flag.ID.String(),
				RiskLevel:       RiskUnknown,
				Explanation:     "Enrichment analysis failed",
				SuggestedAction: ActionManualReview,
				Error:           err.Error(),
			})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Classifier) load(ctx context.Context, transactionID, flagID uuid.UUID) (*models.Transaction, *models.Customer, *models.Flag, error) {
	tx, err := c.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, nil, nil, err
	}
	flag, err := c.flags.GetByID(ctx, flagID)
	if err != nil {
		return nil, nil, nil, err
	}
	if flag.TransactionID != transactionID {
		return nil, nil, nil, fmt.Errorf("flag %s does not belong to transaction %s: %w", flagID, transactionID, repositories.ErrFlagNotFound)
	}
	customer, err := c.customers.GetByID(ctx, tx.SenderID)
	if err != nil {
		return nil, nil, nil, err
	}
	return tx, customer, flag, nil
}

func (c *Classifier) assess(text string) *Result {
	assessment, err := ValidateResponse(reasoner.ExtractJSON(text))
	if err != nil {
		return &Result{
			Outcome:         OutcomeSchemaError,
			RiskLevel:       RiskMedium,
			Explanation:     fmt.Sprintf("Error parsing enrichment response: %v", err),
			SuggestedAction: ActionManualReview,
			ConfidenceScore: 0.0,
			Error:           err.Error(),
		}
	}
	return &Result{
		Outcome:         OutcomeCompleted,
		RiskLevel:       assessment.RiskLevel,
		Explanation:     assessment.Explanation,
		SuggestedAction: assessment.SuggestedAction,
		ConfidenceScore: assessment.ConfidenceScore,
		RiskFactors:     assessment.RiskFactors,
		ComplianceNotes: assessment.ComplianceNotes,
	}
}

func (r *Result) enrichment(analyzedAt time.Time) *models.Enrichment {
	outcome := models.EnrichmentCompleted
	if r.Outcome != OutcomeCompleted {
		outcome = models.EnrichmentFallback
	}
	return &models.Enrichment{
		RiskLevel:       r.RiskLevel,
		Explanation:     r.Explanation,
		SuggestedAction: r.SuggestedAction,
		ConfidenceScore: r.ConfidenceScore,
		RiskFactors:     r.RiskFactors,
		ComplianceNotes: r.ComplianceNotes,
		Model:           r.Model,
		Outcome:         outcome,
		AnalyzedAt:      analyzedAt,
	}
}

func (c *Classifier) publish(ctx context.Context, flag *models.Flag, outcome Outcome) {
	event := models.FlagEvent{
		Type:          models.FlagEventEnriched,
		FlagID:        flag.ID.String(),
		TransactionID: flag.TransactionID.String(),
		RuleName:      flag.RuleName,
		RiskLevel:     flag.RiskLevel,
		Outcome:       string(outcome),
		Timestamp:     c.now().UTC(),
	}
	if err := c.publisher.PublishFlagEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("flag_id", event.FlagID).Msg("Failed to publish flag event")
	}
}

// IsNotFound reports whether err means a transaction, flag or customer is missing
func IsNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}

func strPtr(s string) *string {
	return &s
}
