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
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
)

// CustomerRepository handles customer database operations
type CustomerRepository struct {
	db *Database
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *Database) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Create creates a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (
			id, name, account_number, account_type, balance, risk_score,
			is_sanctioned, country_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool.Exec(ctx, query,
		c.ID,
		c.Name,
		c.AccountNumber,
		c.AccountType,
		c.Balance,
		c.RiskScore,
		c.IsSanctioned,
		c.CountryCode,
		c.CreatedAt,
	)
	return err
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	c, err := scanCustomer(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns a page of customers ordered by name, with the total matching the filter
func (r *CustomerRepository) List(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, int, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := customerFilterClause(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM customers%s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d
	`, customerColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []*models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

// Count counts customers matching the filter; Limit and Offset are ignored
func (r *CustomerRepository) Count(ctx context.Context, filter models.CustomerFilter) (int, error) {
	where, args := customerFilterClause(filter)

	var count int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

const customerColumns = `
	id, name, account_number, account_type, balance, risk_score,
	is_sanctioned, country_code, created_at`

func customerFilterClause(filter models.CustomerFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.MinRiskScore > 0 {
		args = append(args, filter.MinRiskScore)
		conds = append(conds, fmt.Sprintf("risk_score >= $%d", len(args)))
	}
	if filter.CountryCode != "" {
		args = append(args, filter.CountryCode)
		conds = append(conds, fmt.Sprintf("country_code = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	c := &models.Customer{}
	var countryCode *string
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.AccountNumber,
		&c.AccountType,
		&c.Balance,
		&c.RiskScore,
		&c.IsSanctioned,
		&countryCode,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CountryCode = deref(countryCode)
	return c, nil
}
