package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// ringGroupRepo implements RingGroupRepository.
type ringGroupRepo struct {
	db *DB
}

// NewRingGroupRepository creates a new RingGroupRepository.
func NewRingGroupRepository(db *DB) RingGroupRepository {
	return &ringGroupRepo{db: db}
}

// GetByID returns an enabled group with its destinations.
func (r *ringGroupRepo) GetByID(ctx context.Context, id string) (*models.RingGroup, error) {
	return r.getWithDestinations(ctx, `SELECT * FROM ring_groups WHERE id = ? AND enabled = ?`, id, true)
}

// GetByExtension returns the tenant's enabled group reached at extension.
func (r *ringGroupRepo) GetByExtension(ctx context.Context, tenantID, extension string) (*models.RingGroup, error) {
	return r.getWithDestinations(ctx,
		`SELECT * FROM ring_groups WHERE tenant_id = ? AND extension = ? AND enabled = ?`,
		tenantID, extension, true)
}

func (r *ringGroupRepo) getWithDestinations(ctx context.Context, query string, args ...any) (*models.RingGroup, error) {
	var g models.RingGroup
	found, err := r.db.get(ctx, r.db, &g, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ring group: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.db.list(ctx, r.db, &g.Destinations,
		`SELECT * FROM ring_group_destinations WHERE ring_group_id = ? ORDER BY sequence, id`, g.ID); err != nil {
		return nil, fmt.Errorf("querying ring group destinations: %w", err)
	}
	return &g, nil
}

// Upsert writes the group. Non-nil Destinations replace the stored members.
func (r *ringGroupRepo) Upsert(ctx context.Context, g *models.RingGroup) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &g.ID, &g.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO ring_groups (id, tenant_id, name, extension, strategy, call_timeout,
			 timeout_app, timeout_data, cid_name_prefix, ringback, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :tenant_id, :name, :extension, :strategy, :call_timeout,
			 :timeout_app, :timeout_data, :cid_name_prefix, :ringback, :enabled, :description,
			 :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 extension = excluded.extension, strategy = excluded.strategy,
			 call_timeout = excluded.call_timeout, timeout_app = excluded.timeout_app,
			 timeout_data = excluded.timeout_data, cid_name_prefix = excluded.cid_name_prefix,
			 ringback = excluded.ringback, enabled = excluded.enabled,
			 description = excluded.description, updated = excluded.updated,
			 updated_by = excluded.updated_by`, g)
		if err != nil {
			return fmt.Errorf("upserting ring group: %w", err)
		}
		if g.Destinations == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM ring_group_destinations WHERE ring_group_id = ?`, g.ID); err != nil {
			return fmt.Errorf("clearing ring group destinations: %w", err)
		}
		for i := range g.Destinations {
			d := &g.Destinations[i]
			d.ID = ""
			d.RingGroupID = g.ID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO ring_group_destinations (id, ring_group_id, destination, delay,
				 timeout, prompt, sequence, created, updated, updated_by)
				 VALUES (:id, :ring_group_id, :destination, :delay,
				 :timeout, :prompt, :sequence, :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting ring group destination: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindRingGroup, Key: g.ID})
	return nil
}

// Delete removes a group and its destinations.
func (r *ringGroupRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM ring_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ring group: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindRingGroup, Key: id})
	return nil
}
