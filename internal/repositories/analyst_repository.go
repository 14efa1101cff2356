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
	ErrAnalystNotFound = fmt.Errorf("analyst %w", ErrNotFound)
	ErrAnalystExists   = errors.New("analyst with this email already exists")
)

// AnalystRepository handles analyst accounts
type AnalystRepository struct {
	db *Database
}

// NewAnalystRepository creates a new analyst repository
func NewAnalystRepository(db *Database) *AnalystRepository {
	return &AnalystRepository{db: db}
}

// Create creates a new analyst
func (r *AnalystRepository) Create(ctx context.Context, a *models.Analyst) error {
	query := `
		INSERT INTO analysts (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	a.ID = uuid.New()
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool.Exec(ctx, query, a.ID, a.Email, a.PasswordHash, a.Role, a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrAnalystExists
		}
		return err
	}
	return nil
}

// GetByEmail retrieves an analyst by email
func (r *AnalystRepository) GetByEmail(ctx context.Context, email string) (*models.Analyst, error) {
	query := `
		SELECT id, email, password_hash, role, created_at
		FROM analysts
		WHERE email = $1
	`

	a := &models.Analyst{}
	err := r.db.Pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalystNotFound
		}
		return nil, err
	}
	return a, nil
}
