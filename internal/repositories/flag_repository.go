package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/enterprise/aml-screening/internal/models"
)

var (
	ErrFlagNotFound = fmt.Errorf("flag %w", ErrNotFound)
)

const flagColumns = `
	id, transaction_id, rule_name, rule_description, risk_level, risk_score,
	status, flagged_by, flagged_at, ai_risk_level, ai_explanation,
	ai_suggested_action, ai_confidence_score, ai_risk_factors, ai_compliance_notes,
	ai_model, ai_outcome, analyzed_at, review_verdict, review_notes, reviewed_by,
	reviewed_at`

// FlagRepository is the flag store. Uniqueness of (transaction_id, rule_name)
// is enforced by the flags_transaction_rule_key constraint.
type FlagRepository struct {
	db *Database
}

// NewFlagRepository creates a new flag repository
func NewFlagRepository(db *Database) *FlagRepository {
	return &FlagRepository{db: db}
}

// Flag records that a rule fired for a transaction. It returns created=false
// without error when the pair is already flagged.
func (r *FlagRepository) Flag(ctx context.Context, transactionID uuid.UUID, ruleName, description, riskLevel string, riskScore int) (*models.Flag, bool, error) {
	query := `
		INSERT INTO flagged_transactions (
			id, transaction_id, rule_name, rule_description, risk_level,
			risk_score, status, flagged_by, flagged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, rule_name) DO NOTHING
	`

	flag := &models.Flag{
		ID:              uuid.New(),
		TransactionID:   transactionID,
		RuleName:        ruleName,
		RuleDescription: description,
		RiskLevel:       riskLevel,
		RiskScore:       riskScore,
		Status:          models.FlagStatusPending,
		FlaggedBy:       "system",
		FlaggedAt:       time.Now().UTC(),
	}

	tag, err := r.db.Pool.Exec(ctx, query,
		flag.ID,
		flag.TransactionID,
		flag.RuleName,
		flag.RuleDescription,
		flag.RiskLevel,
		flag.RiskScore,
		flag.Status,
		flag.FlaggedBy,
		flag.FlaggedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	return flag, true, nil
}

// GetByID retrieves a flag by ID
func (r *FlagRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flagged_transactions WHERE id = $1`

	flag, err := scanFlag(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return flag, nil
}

// ListByTransaction returns every flag raised for a transaction
func (r *FlagRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*models.Flag, error) {
	query := `
		SELECT ` + flagColumns + `
		FROM flagged_transactions
		WHERE transaction_id = $1
		ORDER BY flagged_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFlags(rows)
}

// ListUnenriched returns the most recently flagged records that have no assessment yet
func (r *FlagRepository) ListUnenriched(ctx context.Context, limit int) ([]*models.Flag, error) {
	query := `
		SELECT ` + flagColumns + `
		FROM flagged_transactions
		WHERE analyzed_at IS NULL
		ORDER BY flagged_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenriched flags: %w", err)
	}
	defer rows.Close()

	return scanFlags(rows)
}

// List returns flags matching the filter, newest first, with the total match count
func (r *FlagRepository) List(ctx context.Context, filter models.FlagFilter) ([]*models.Flag, int, error) {
	where, args := flagFilterClause(filter)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM flagged_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM flagged_transactions%s
		ORDER BY flagged_at DESC
		LIMIT $%d OFFSET $%d
	`, flagColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	flags, err := scanFlags(rows)
	return flags, total, err
}

// SaveEnrichment attaches an assessment to a flag
func (r *FlagRepository) SaveEnrichment(ctx context.Context, flagID uuid.UUID, e *models.Enrichment) error {
	query := `
		UPDATE flagged_transactions SET
			ai_risk_level = $2,
			ai_explanation = $3,
			ai_suggested_action = $4,
			ai_confidence_score = $5,
			ai_risk_factors = $6,
			ai_compliance_notes = $7,
			ai_model = $8,
			ai_outcome = $9,
			analyzed_at = $10
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		flagID,
		e.RiskLevel,
		e.Explanation,
		e.SuggestedAction,
		e.ConfidenceScore,
		pq.Array(e.RiskFactors),
		e.ComplianceNotes,
		e.Model,
		e.Outcome,
		e.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

// SaveReview records an analyst's disposition and moves the flag to the given status
func (r *FlagRepository) SaveReview(ctx context.Context, flagID uuid.UUID, review *models.Review, status string) error {
	query := `
		UPDATE flagged_transactions SET
			status = $2,
			review_verdict = $3,
			review_notes = $4,
			reviewed_by = $5,
			reviewed_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, flagID, status, review.Verdict, review.Notes, review.Reviewer, review.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

// Counts returns the total number of flags, those with a completed assessment and fallbacks
func (r *FlagRepository) Counts(ctx context.Context) (models.FlagCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE ai_outcome = 'completed'),
			COUNT(*) FILTER (WHERE ai_outcome = 'fallback')
		FROM flagged_transactions
	`

	var c models.FlagCounts
	err := r.db.Pool.QueryRow(ctx, query).Scan(&c.Total, &c.Analyzed, &c.Fallback)
	return c, err
}

// CountByRiskLevel groups flags by rule risk level
func (r *FlagRepository) CountByRiskLevel(ctx context.Context) (map[string]int, error) {
	return r.groupCount(ctx, `SELECT risk_level, COUNT(*) FROM flagged_transactions GROUP BY risk_level`)
}

// CountByEnrichmentLevel groups completed assessments by their risk level
func (r *FlagRepository) CountByEnrichmentLevel(ctx context.Context) (map[string]int, error) {
	return r.groupCount(ctx, `
		SELECT ai_risk_level, COUNT(*)
		FROM flagged_transactions
		WHERE ai_outcome = 'completed'
		GROUP BY ai_risk_level
	`)
}

// CountByStatus groups flags by workflow status
func (r *FlagRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	return r.groupCount(ctx, `SELECT status, COUNT(*) FROM flagged_transactions GROUP BY status`)
}

// TopRules returns the most frequently fired rules
func (r *FlagRepository) TopRules(ctx context.Context, limit int) ([]models.RuleCount, error) {
	query := `
		SELECT rule_name, COUNT(*) AS count
		FROM flagged_transactions
		GROUP BY rule_name
		ORDER BY count DESC, rule_name
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RuleCount
	for rows.Next() {
		var rc models.RuleCount
		if err := rows.Scan(&rc.RuleName, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CountByDay returns the number of flags raised per UTC day since the given time
func (r *FlagRepository) CountByDay(ctx context.Context, since time.Time) ([]models.DailyCount, error) {
	query := `
		SELECT to_char(date_trunc('day', flagged_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM flagged_transactions
		WHERE flagged_at >= $1
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyCount
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (r *FlagRepository) groupCount(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

func flagFilterClause(filter models.FlagFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("risk_level", filter.RiskLevel)
	add("rule_name", filter.RuleName)
	add("status", filter.Status)

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanFlags(rows pgx.Rows) ([]*models.Flag, error) {
	var flags []*models.Flag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func scanFlag(row pgx.Row) (*models.Flag, error) {
	flag := &models.Flag{}
	var (
		description, flaggedBy                    *string
		aiLevel, aiExplanation, aiAction, aiNotes *string
		aiModel, aiOutcome                        *string
		aiConfidence                              *float64
		aiFactors                                 []string
		analyzedAt                                *time.Time
		reviewVerdict, reviewNotes, reviewedBy    *string
		reviewedAt                                *time.Time
	)

	err := row.Scan(
		&flag.ID,
		&flag.TransactionID,
		&flag.RuleName,
		&description,
		&flag.RiskLevel,
		&flag.RiskScore,
		&flag.Status,
		&flaggedBy,
		&flag.FlaggedAt,
		&aiLevel,
		&aiExplanation,
		&aiAction,
		&aiConfidence,
		&aiFactors,
		&aiNotes,
		&aiModel,
		&aiOutcome,
		&analyzedAt,
		&reviewVerdict,
		&reviewNotes,
		&reviewedBy,
		&reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	flag.RuleDescription = deref(description)
	flag.FlaggedBy = deref(flaggedBy)

	if analyzedAt != nil {
		flag.Enrichment = &models.Enrichment{
			RiskLevel:       deref(aiLevel),
			Explanation:     deref(aiExplanation),
			SuggestedAction: deref(aiAction),
			RiskFactors:     aiFactors,
			ComplianceNotes: deref(aiNotes),
			Model:           deref(aiModel),
			Outcome:         deref(aiOutcome),
			AnalyzedAt:      *analyzedAt,
		}
		if aiConfidence != nil {
			flag.Enrichment.ConfidenceScore = *aiConfidence
		}
	}

	if reviewedAt != nil {
		flag.Review = &models.Review{
			Verdict:    deref(reviewVerdict),
			Notes:      deref(reviewNotes),
			Reviewer:   deref(reviewedBy),
			ReviewedAt: *reviewedAt,
		}
	}

	return flag, nil
}
