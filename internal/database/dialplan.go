package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// dialplanRepo implements DialplanRepository.
type dialplanRepo struct {
	db *DB
}

// NewDialplanRepository creates a new DialplanRepository.
func NewDialplanRepository(db *DB) DialplanRepository {
	return &dialplanRepo{db: db}
}

// GetByID returns a dialplan row by ID.
func (r *dialplanRepo) GetByID(ctx context.Context, id string) (*models.Dialplan, error) {
	var d models.Dialplan
	found, err := r.db.get(ctx, r.db, &d, `SELECT * FROM dialplans WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying dialplan: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

// ListContext returns enabled rows of the contexts, pinned to hostname or
// unpinned, in ascending sequence.
func (r *dialplanRepo) ListContext(ctx context.Context, hostname string, contexts ...string) ([]models.Dialplan, error) {
	if len(contexts) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM dialplans
		 WHERE context IN (?) AND enabled = ? AND (hostname IS NULL OR hostname = ?)
		 ORDER BY sequence, name, id`, contexts, true, hostname)
	if err != nil {
		return nil, fmt.Errorf("building dialplan query: %w", err)
	}
	var out []models.Dialplan
	if err := r.db.list(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("querying dialplans: %w", err)
	}
	return out, nil
}

// ListInbound returns the public rows relevant to one destination: inbound
// routes for that number plus every public row that is not an inbound route.
func (r *dialplanRepo) ListInbound(ctx context.Context, hostname, destination string) ([]models.Dialplan, error) {
	var out []models.Dialplan
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM dialplans
		 WHERE context = ? AND enabled = ? AND (hostname IS NULL OR hostname = ?)
		 AND ((category = ? AND number = ?) OR category <> ?)
		 ORDER BY sequence, name, id`,
		models.ContextPublic, true, hostname,
		models.CategoryInbound, destination, models.CategoryInbound)
	if err != nil {
		return nil, fmt.Errorf("querying inbound routes: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a dialplan row. Both the previous and the new
// context are invalidated so a move between contexts leaves nothing stale.
func (r *dialplanRepo) Upsert(ctx context.Context, d *models.Dialplan) error {
	var previous []string
	if d.ID != "" {
		if err := r.db.list(ctx, r.db, &previous, `SELECT context FROM dialplans WHERE id = ?`, d.ID); err != nil {
			return fmt.Errorf("querying previous dialplan: %w", err)
		}
	}
	if err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		return upsertDialplan(ctx, r.db, tx, d)
	}); err != nil {
		return err
	}
	r.db.notify(ctx, dialplanChange(d.ID, tenantName(ctx, r.db, d.TenantID), append(previous, d.Context)...))
	return nil
}

func upsertDialplan(ctx context.Context, db *DB, tx *sqlx.Tx, d *models.Dialplan) error {
	db.stamp(ctx, &d.ID, &d.Meta)
	pinHost(&d.Hostname)
	_, err := sqlx.NamedExecContext(ctx, tx,
		`INSERT INTO dialplans (id, tenant_id, app_id, context, name, number, hostname,
		 sequence, category, xml, enabled, description, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :app_id, :context, :name, :number, :hostname,
		 :sequence, :category, :xml, :enabled, :description, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET tenant_id = excluded.tenant_id,
		 app_id = excluded.app_id, context = excluded.context, name = excluded.name,
		 number = excluded.number, hostname = excluded.hostname,
		 sequence = excluded.sequence, category = excluded.category, xml = excluded.xml,
		 enabled = excluded.enabled, description = excluded.description,
		 updated = excluded.updated, updated_by = excluded.updated_by`, d)
	if err != nil {
		return fmt.Errorf("upserting dialplan: %w", err)
	}
	return nil
}

// Delete removes a dialplan row.
func (r *dialplanRepo) Delete(ctx context.Context, id string) error {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM dialplans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting dialplan: %w", err)
	}
	r.db.notify(ctx, dialplanChange(id, tenantName(ctx, r.db, d.TenantID), d.Context))
	return nil
}

// Excludes returns the application kinds suppressed for a tenant.
func (r *dialplanRepo) Excludes(ctx context.Context, tenantID string) ([]string, error) {
	var out []string
	err := r.db.list(ctx, r.db, &out,
		`SELECT app_id FROM dialplan_excludes WHERE tenant_id = ? AND enabled = ? ORDER BY app_id`,
		tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("querying dialplan excludes: %w", err)
	}
	return out, nil
}

// UpsertExclude writes one exclusion.
func (r *dialplanRepo) UpsertExclude(ctx context.Context, e *models.DialplanExclude) error {
	r.db.stamp(ctx, &e.ID, &e.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO dialplan_excludes (id, tenant_id, app_id, enabled, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :app_id, :enabled, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET app_id = excluded.app_id,
		 enabled = excluded.enabled, updated = excluded.updated,
		 updated_by = excluded.updated_by`, e)
	if err != nil {
		return fmt.Errorf("upserting dialplan exclude: %w", err)
	}
	r.db.notify(ctx, r.excludeChange(ctx, e.ID, e.TenantID))
	return nil
}

// DeleteExclude removes one exclusion.
func (r *dialplanRepo) DeleteExclude(ctx context.Context, id string) error {
	var tenantID string
	found, err := r.db.get(ctx, r.db, &tenantID, `SELECT tenant_id FROM dialplan_excludes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("querying dialplan exclude: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM dialplan_excludes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting dialplan exclude: %w", err)
	}
	r.db.notify(ctx, r.excludeChange(ctx, id, tenantID))
	return nil
}

// excludeChange covers the exclude list and the rendered tenant context,
// which both depend on the exclusions.
func (r *dialplanRepo) excludeChange(ctx context.Context, id, tenantID string) Change {
	domain := tenantName(ctx, r.db, &tenantID)
	c := dialplanChange(id, domain, domain)
	c.Kind = KindExclude
	c.Keys = append(c.Keys, cachekey.DialplanExclude(domain))
	return c
}

func dialplanChange(id, tenant string, contexts ...string) Change {
	c := Change{Kind: KindDialplan, Tenant: tenant, Key: id}
	seen := make(map[string]bool)
	for _, name := range contexts {
		if seen[name] {
			continue
		}
		seen[name] = true
		keys, prefixes := dialplanInvalidation(name)
		c.Keys = append(c.Keys, keys...)
		c.Prefixes = append(c.Prefixes, prefixes...)
	}
	return c
}

// tenantName resolves a tenant ID to its domain. Lookup failures yield an
// empty name; the caller only uses it to label change notices and keys.
func tenantName(ctx context.Context, db *DB, tenantID *string) string {
	if tenantID == nil || *tenantID == "" {
		return ""
	}
	var name string
	if _, err := db.get(ctx, db, &name, `SELECT name FROM tenants WHERE id = ?`, *tenantID); err != nil {
		return ""
	}
	return name
}
