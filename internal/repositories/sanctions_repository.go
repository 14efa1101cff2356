package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/aml-screening/internal/models"
)

// SanctionsRepository reads the sanctioned-entity watch list
type SanctionsRepository struct {
	db *Database
}

// NewSanctionsRepository creates a new sanctions repository
func NewSanctionsRepository(db *Database) *SanctionsRepository {
	return &SanctionsRepository{db: db}
}

// FindByCounterparty returns the first watch-list entry whose name contains the
// counterparty name, case-insensitively. Returns nil when nothing matches.
func (r *SanctionsRepository) FindByCounterparty(ctx context.Context, counterpartyName string) (*models.SanctionedEntity, error) {
	name := strings.TrimSpace(counterpartyName)
	if name == "" {
		return nil, nil
	}

	query := `
		SELECT id, name, entity_type, country_code, sanctions_program
		FROM sanctioned_entities
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT 1
	`

	e := &models.SanctionedEntity{}
	var entityType, countryCode, program *string
	err := r.db.Pool.QueryRow(ctx, query, escapeLike(name)).Scan(
		&e.ID,
		&e.Name,
		&entityType,
		&countryCode,
		&program,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sanctioned entities: %w", err)
	}

	e.EntityType = deref(entityType)
	e.CountryCode = deref(countryCode)
	e.SanctionsProgram = deref(program)
	return e, nil
}

// Create adds a watch-list entry
func (r *SanctionsRepository) Create(ctx context.Context, e *models.SanctionedEntity) error {
	query := `
		INSERT INTO sanctioned_entities (id, name, entity_type, country_code, sanctions_program)
		VALUES ($1, $2, $3, $4, $5)
	`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.Pool.Exec(ctx, query, e.ID, e.Name, e.EntityType, e.CountryCode, e.SanctionsProgram)
	return err
}

// escapeLike keeps user-supplied wildcards from widening the match
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
