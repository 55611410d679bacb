package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// speedDialRepo implements SpeedDialRepository.
type speedDialRepo struct {
	db *DB
}

// NewSpeedDialRepository creates a new SpeedDialRepository.
func NewSpeedDialRepository(db *DB) SpeedDialRepository {
	return &speedDialRepo{db: db}
}

// Find returns the entry for code, preferring the extension's personal one.
func (r *speedDialRepo) Find(ctx context.Context, tenantID, extensionID, code string) (*models.SpeedDial, error) {
	var out []models.SpeedDial
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM speed_dials
		 WHERE tenant_id = ? AND code = ? AND (extension_id IS NULL OR extension_id = ?)`,
		tenantID, code, extensionID)
	if err != nil {
		return nil, fmt.Errorf("querying speed dial: %w", err)
	}
	var shared *models.SpeedDial
	for i := range out {
		if out[i].ExtensionID != nil {
			return &out[i], nil
		}
		if shared == nil {
			shared = &out[i]
		}
	}
	return shared, nil
}

// ListByTenant returns every entry of a tenant ordered by code.
func (r *speedDialRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.SpeedDial, error) {
	var out []models.SpeedDial
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM speed_dials WHERE tenant_id = ? ORDER BY code, id`, tenantID); err != nil {
		return nil, fmt.Errorf("querying speed dials: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates an entry.
func (r *speedDialRepo) Upsert(ctx context.Context, s *models.SpeedDial) error {
	r.db.stamp(ctx, &s.ID, &s.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO speed_dials (id, tenant_id, extension_id, code, destination, description,
		 created, updated, updated_by)
		 VALUES (:id, :tenant_id, :extension_id, :code, :destination, :description,
		 :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET extension_id = excluded.extension_id,
		 code = excluded.code, destination = excluded.destination,
		 description = excluded.description, updated = excluded.updated,
		 updated_by = excluded.updated_by`, s)
	if err != nil {
		return fmt.Errorf("upserting speed dial: %w", err)
	}
	r.db.notify(ctx, Change{Kind: KindSpeedDial, Key: s.ID})
	return nil
}

// Delete removes an entry.
func (r *speedDialRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM speed_dials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting speed dial: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindSpeedDial, Key: id})
	return nil
}
