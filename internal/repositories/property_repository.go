package repositories

import (
	"context"
	"database/sql"

	"ledger-service/internal/models"
)

type PropertyRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Property, error)
	FindByID(ctx context.Context, id int64) (*models.Property, error)
}

type propertyRepository struct {
	db *sql.DB
}

func NewPropertyRepository(db *sql.DB) PropertyRepository {
	return &propertyRepository{db: db}
}

func (r *propertyRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Property, error) {
	query := `
		SELECT id, external_id, owner_id, name
		FROM properties
		WHERE external_id = ?
	`
	return r.findOne(ctx, query, externalID)
}

func (r *propertyRepository) FindByID(ctx context.Context, id int64) (*models.Property, error) {
	query := `
		SELECT id, external_id, owner_id, name
		FROM properties
		WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *propertyRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.Property, error) {
	p := &models.Property{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.ExternalID,
		&p.OwnerID,
		&p.Name,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
