package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// callBlockRepo implements CallBlockRepository.
type callBlockRepo struct {
	db *DB
}

// NewCallBlockRepository creates a new CallBlockRepository.
func NewCallBlockRepository(db *DB) CallBlockRepository {
	return &callBlockRepo{db: db}
}

// ListEnabled returns a tenant's enabled rules, number rules first.
func (r *callBlockRepo) ListEnabled(ctx context.Context, tenantID string) ([]models.CallBlock, error) {
	var out []models.CallBlock
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM call_blocks WHERE tenant_id = ? AND enabled = ?
		 ORDER BY number DESC, name, id`, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("querying call blocks: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a rule.
func (r *callBlockRepo) Upsert(ctx context.Context, b *models.CallBlock) error {
	r.db.stamp(ctx, &b.ID, &b.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO call_blocks (id, tenant_id, name, number, app, data, block_count,
		 enabled, description, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :name, :number, :app, :data, :block_count,
		 :enabled, :description, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, number = excluded.number,
		 app = excluded.app, data = excluded.data, enabled = excluded.enabled,
		 description = excluded.description, updated = excluded.updated,
		 updated_by = excluded.updated_by`, b)
	if err != nil {
		return fmt.Errorf("upserting call block: %w", err)
	}
	r.db.notify(ctx, Change{Kind: KindCallBlock, Key: b.ID})
	return nil
}

// Delete removes a rule.
func (r *callBlockRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM call_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call block: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindCallBlock, Key: id})
	return nil
}

// IncrementCount bumps the number of calls a rule has blocked.
func (r *callBlockRepo) IncrementCount(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db,
		`UPDATE call_blocks SET block_count = block_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing call block count: %w", err)
	}
	return checkAffected(res)
}
