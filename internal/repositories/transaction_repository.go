package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/aml-screening/internal/models"
)

var (
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrDuplicateReference  = errors.New("duplicate transaction (reference number exists)")
)

const transactionColumns = `
	id, sender_id, receiver_id, transaction_type, amount, currency, description,
	channel, counterparty_name, counterparty_account, counterparty_country,
	transaction_date, reference_number, status, ip_address, location_lat,
	location_lng, created_at`

const insertTransactionQuery = `
	INSERT INTO transactions (` + transactionColumns + `
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create stores a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	prepareTransaction(tx)

	if _, err := r.db.Pool.Exec(ctx, insertTransactionQuery, transactionArgs(tx)...); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// CreateBatch stores transactions atomically; either all are stored or none
func (r *TransactionRepository) CreateBatch(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	return r.db.WithTransaction(ctx, func(dbtx pgx.Tx) error {
		for _, tx := range transactions {
			prepareTransaction(tx)
			if _, err := dbtx.Exec(ctx, insertTransactionQuery, transactionArgs(tx)...); err != nil {
				if isDuplicateKeyError(err) {
					return fmt.Errorf("reference %s: %w", tx.ReferenceNumber, ErrDuplicateReference)
				}
				return fmt.Errorf("failed to insert transaction: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListUnflagged returns transactions without any flag, ordered by id, starting after the given id
func (r *TransactionRepository) ListUnflagged(ctx context.Context, after *uuid.UUID, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE NOT EXISTS (SELECT 1 FROM flagged_transactions f WHERE f.transaction_id = t.id)
		  AND ($1::uuid IS NULL OR t.id > $1)
		ORDER BY t.id
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unflagged transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// ListInRange returns transactions dated in [from, to), optionally for one sender, oldest first
func (r *TransactionRepository) ListInRange(ctx context.Context, senderID *uuid.UUID, from, to time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		  AND ($3::uuid IS NULL OR sender_id = $3)
		ORDER BY transaction_date, id
		LIMIT $4
	`

	rows, err := r.db.Pool.Query(ctx, query, from, to, senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions in range: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// List returns a page of transactions, newest first, with the total matching the filter
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, int, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := transactionFilterClause(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions%s
		ORDER BY transaction_date DESC, id
		LIMIT $%d OFFSET $%d
	`, transactionColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, total, rows.Err()
}

// Count counts transactions matching the filter; Limit and Offset are ignored
func (r *TransactionRepository) Count(ctx context.Context, filter models.TransactionFilter) (int, error) {
	where, args := transactionFilterClause(filter)

	var count int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountSenderTransactions counts a sender's other transactions matching the query window
func (r *TransactionRepository) CountSenderTransactions(ctx context.Context, q models.HistoryQuery) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) FROM transactions WHERE sender_id = $1 AND id <> $2 AND transaction_date >= $3`)
	args := []any{q.SenderID, q.ExcludeID, q.From}

	if !q.To.IsZero() {
		args = append(args, q.To)
		if q.InclusiveTo {
			fmt.Fprintf(&sb, " AND transaction_date <= $%d", len(args))
		} else {
			fmt.Fprintf(&sb, " AND transaction_date < $%d", len(args))
		}
	}
	if q.MinAmount != nil {
		args = append(args, *q.MinAmount)
		fmt.Fprintf(&sb, " AND amount >= $%d", len(args))
	}
	if q.MaxAmount != nil {
		args = append(args, *q.MaxAmount)
		fmt.Fprintf(&sb, " AND amount <= $%d", len(args))
	}

	var count int
	if err := r.db.Pool.QueryRow(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sender history: %w", err)
	}
	return count, nil
}

func transactionFilterClause(filter models.TransactionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TransactionType != "" {
		add("transaction_type = $%d", filter.TransactionType)
	}
	if filter.MinAmount != nil {
		add("amount >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		add("amount <= $%d", *filter.MaxAmount)
	}
	if !filter.Since.IsZero() {
		add("transaction_date >= $%d", filter.Since)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func prepareTransaction(tx *models.Transaction) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now().UTC()
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = tx.CreatedAt
	}
	if tx.Status == "" {
		tx.Status = models.TransactionStatusCompleted
	}
	if tx.Currency == "" {
		tx.Currency = "USD"
	}
}

func transactionArgs(tx *models.Transaction) []any {
	return []any{
		tx.ID,
		tx.SenderID,
		tx.ReceiverID,
		tx.TransactionType,
		tx.Amount,
		tx.Currency,
		tx.Description,
		tx.Channel,
		tx.CounterpartyName,
		tx.CounterpartyAccount,
		tx.CounterpartyCountry,
		tx.TransactionDate,
		nullIfEmpty(tx.ReferenceNumber),
		tx.Status,
		tx.IPAddress,
		tx.LocationLat,
		tx.LocationLng,
		tx.CreatedAt,
	}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var description, counterpartyName, counterpartyAccount, counterpartyCountry, reference, ip *string

	err := row.Scan(
		&tx.ID,
		&tx.SenderID,
		&tx.ReceiverID,
		&tx.TransactionType,
		&tx.Amount,
		&tx.Currency,
		&description,
		&tx.Channel,
		&counterpartyName,
		&counterpartyAccount,
		&counterpartyCountry,
		&tx.TransactionDate,
		&reference,
		&tx.Status,
		&ip,
		&tx.LocationLat,
		&tx.LocationLng,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Description = deref(description)
	tx.CounterpartyName = deref(counterpartyName)
	tx.CounterpartyAccount = deref(counterpartyAccount)
	tx.CounterpartyCountry = deref(counterpartyCountry)
	tx.ReferenceNumber = deref(reference)
	tx.IPAddress = deref(ip)
	return tx, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullIfEmpty stores blank optional strings as NULL so unique columns allow many of them
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
