package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// tenantRepo implements TenantRepository.
type tenantRepo struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) TenantRepository {
	return &tenantRepo{db: db}
}

// GetByID returns a tenant by ID.
func (r *tenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	found, err := r.db.get(ctx, r.db, &t, `SELECT * FROM tenants WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &t, nil
}

// GetByName returns a tenant by domain name.
func (r *tenantRepo) GetByName(ctx context.Context, name string) (*models.Tenant, error) {
	var t models.Tenant
	found, err := r.db.get(ctx, r.db, &t, `SELECT * FROM tenants WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("querying tenant by name: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &t, nil
}

// List returns all tenants ordered by name.
func (r *tenantRepo) List(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	if err := r.db.list(ctx, r.db, &out, `SELECT * FROM tenants ORDER BY name`); err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a tenant. A tenant's name is the domain of every
// directory and dialplan key under it, so both families are dropped.
func (r *tenantRepo) Upsert(ctx context.Context, t *models.Tenant) error {
	r.db.stamp(ctx, &t.ID, &t.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO tenants (id, name, description, enabled, home_switch,
		 number_as_presence_id, language, hold_music, created, updated, updated_by)
		 VALUES (:id, :name, :description, :enabled, :home_switch,
		 :number_as_presence_id, :language, :hold_music, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
		 description = excluded.description, enabled = excluded.enabled,
		 home_switch = excluded.home_switch,
		 number_as_presence_id = excluded.number_as_presence_id,
		 language = excluded.language, hold_music = excluded.hold_music,
		 updated = excluded.updated, updated_by = excluded.updated_by`, t)
	if err != nil {
		return fmt.Errorf("upserting tenant: %w", err)
	}
	r.db.notify(ctx, Change{
		Kind:     KindTenant,
		Tenant:   t.Name,
		Key:      t.ID,
		Prefixes: []string{cachekey.PrefixDirectory, cachekey.PrefixDialplan, cachekey.PrefixDialplanExclude},
	})
	return nil
}

// Delete removes a tenant and, through cascades, everything scoped to it.
func (r *tenantRepo) Delete(ctx context.Context, id string) error {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM tenants WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	r.db.notify(ctx, Change{
		Kind:     KindTenant,
		Tenant:   t.Name,
		Key:      id,
		Prefixes: []string{cachekey.PrefixDirectory, cachekey.PrefixDialplan, cachekey.PrefixDialplanExclude},
	})
	return nil
}

// Settings returns the tenant's force-settings ordered by category and name.
func (r *tenantRepo) Settings(ctx context.Context, tenantID string) ([]models.TenantSetting, error) {
	var out []models.TenantSetting
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM tenant_settings WHERE tenant_id = ? ORDER BY category, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying tenant settings: %w", err)
	}
	return out, nil
}

// UpsertSetting writes one force-setting. Every user record in the tenant
// embeds these, so all of the tenant's directory keys are dropped.
func (r *tenantRepo) UpsertSetting(ctx context.Context, s *models.TenantSetting) error {
	r.db.stamp(ctx, &s.ID, &s.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO tenant_settings (id, tenant_id, category, name, value, enabled,
		 created, updated, updated_by)
		 VALUES (:id, :tenant_id, :category, :name, :value, :enabled,
		 :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET category = excluded.category,
		 name = excluded.name, value = excluded.value, enabled = excluded.enabled,
		 updated = excluded.updated, updated_by = excluded.updated_by`, s)
	if err != nil {
		return fmt.Errorf("upserting tenant setting: %w", err)
	}
	return r.notifyTenantUsers(ctx, KindTenantSetting, s.TenantID, s.ID)
}

// DeleteSetting removes one force-setting.
func (r *tenantRepo) DeleteSetting(ctx context.Context, id string) error {
	var tenantID string
	found, err := r.db.get(ctx, r.db, &tenantID, `SELECT tenant_id FROM tenant_settings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("querying tenant setting: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM tenant_settings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting tenant setting: %w", err)
	}
	return r.notifyTenantUsers(ctx, KindTenantSetting, tenantID, id)
}

func (r *tenantRepo) notifyTenantUsers(ctx context.Context, kind, tenantID, key string) error {
	var users []userRef
	err := r.db.list(ctx, r.db, &users,
		`SELECT e.number, e.number_alias, t.name AS domain
		 FROM extensions e JOIN tenants t ON t.id = e.tenant_id
		 WHERE e.tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("querying tenant users: %w", err)
	}
	var domain string
	if len(users) > 0 {
		domain = users[0].Domain
	}
	r.db.notify(ctx, Change{Kind: kind, Tenant: domain, Key: key, Keys: directoryKeys(users...)})
	return nil
}
