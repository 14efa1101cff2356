package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/aml-screening/internal/models"
)

// AuditRepository handles the append-only enrichment audit log
type AuditRepository struct {
	db *Database
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO llm_audit_logs (
			id, transaction_id, flag_id, prompt, model, temperature, max_tokens,
			response, tokens_used, latency_ms, status, error_message, cost_estimate,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.TransactionID,
		entry.FlagID,
		entry.Prompt,
		entry.Model,
		entry.Temperature,
		entry.MaxTokens,
		entry.Response,
		entry.TokensUsed,
		entry.LatencyMs,
		entry.Status,
		entry.ErrorMessage,
		entry.CostEstimate,
		entry.CreatedAt,
	)

	return err
}

// List retrieves audit entries matching the query, newest first, with the total match count
func (r *AuditRepository) List(ctx context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	where, args := auditFilterClause(q)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM llm_audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(`
		SELECT id, transaction_id, flag_id, prompt, model, temperature, max_tokens,
			   response, tokens_used, latency_ms, status, error_message, cost_estimate,
			   created_at
		FROM llm_audit_logs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return r.scanAuditLogs(rows, total)
}

// Stats aggregates request count, success rate and cost over entries matching the query
func (r *AuditRepository) Stats(ctx context.Context, q models.AuditQuery) (models.AuditStats, error) {
	where, args := auditFilterClause(q)
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COALESCE(SUM(cost_estimate), 0)
		FROM llm_audit_logs` + where

	var stats models.AuditStats
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&stats.Total, &stats.Successful, &stats.TotalCost); err != nil {
		return stats, fmt.Errorf("failed to aggregate audit logs: %w", err)
	}
	return stats, nil
}

func auditFilterClause(q models.AuditQuery) (string, []any) {
	var conds []string
	var args []any
	if q.TransactionID != nil {
		args = append(args, *q.TransactionID)
		conds = append(conds, fmt.Sprintf("transaction_id = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *AuditRepository) scanAuditLogs(rows pgx.Rows, total int) ([]*models.AuditLogEntry, int, error) {
	var logs []*models.AuditLogEntry
	for rows.Next() {
		entry := &models.AuditLogEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.FlagID,
			&entry.Prompt,
			&entry.Model,
			&entry.Temperature,
			&entry.MaxTokens,
			&entry.Response,
			&entry.TokensUsed,
			&entry.LatencyMs,
			&entry.Status,
			&entry.ErrorMessage,
			&entry.CostEstimate,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		logs = append(logs, entry)
	}

	return logs, total, rows.Err()
}
