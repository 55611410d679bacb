package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// recordingRepo implements RecordingRepository.
type recordingRepo struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) RecordingRepository {
	return &recordingRepo{db: db}
}

// GetByFilename returns a tenant recording by filename.
func (r *recordingRepo) GetByFilename(ctx context.Context, tenantID, filename string) (*models.Recording, error) {
	var rec models.Recording
	found, err := r.db.get(ctx, r.db, &rec,
		`SELECT * FROM recordings WHERE tenant_id = ? AND filename = ?`, tenantID, filename)
	if err != nil {
		return nil, fmt.Errorf("querying recording: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ListByTenant returns a tenant's recordings ordered by filename.
func (r *recordingRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.Recording, error) {
	var out []models.Recording
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM recordings WHERE tenant_id = ? ORDER BY filename`, tenantID); err != nil {
		return nil, fmt.Errorf("querying recordings: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a recording. A second save of the same filename
// updates the existing row.
func (r *recordingRepo) Upsert(ctx context.Context, rec *models.Recording) error {
	if rec.ID == "" {
		existing, err := r.GetByFilename(ctx, rec.TenantID, rec.Filename)
		if err != nil {
			return err
		}
		if existing != nil {
			rec.ID = existing.ID
			rec.Created = existing.Created
		}
	}
	r.db.stamp(ctx, &rec.ID, &rec.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO recordings (id, tenant_id, filename, name, description,
		 created, updated, updated_by)
		 VALUES (:id, :tenant_id, :filename, :name, :description,
		 :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET filename = excluded.filename,
		 name = excluded.name, description = excluded.description,
		 updated = excluded.updated, updated_by = excluded.updated_by`, rec)
	if err != nil {
		return fmt.Errorf("upserting recording: %w", err)
	}
	r.db.notify(ctx, Change{Kind: KindRecording, Key: rec.ID})
	return nil
}

// Delete removes a recording row. The audio file is the caller's to remove.
func (r *recordingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindRecording, Key: id})
	return nil
}
