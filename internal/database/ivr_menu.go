package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// ivrMenuRepo implements IVRMenuRepository.
type ivrMenuRepo struct {
	db *DB
}

// NewIVRMenuRepository creates a new IVRMenuRepository.
func NewIVRMenuRepository(db *DB) IVRMenuRepository {
	return &ivrMenuRepo{db: db}
}

// GetByID returns an enabled menu with its options.
func (r *ivrMenuRepo) GetByID(ctx context.Context, id string) (*models.IVRMenu, error) {
	var m models.IVRMenu
	found, err := r.db.get(ctx, r.db, &m, `SELECT * FROM ivr_menus WHERE id = ? AND enabled = ?`, id, true)
	if err != nil {
		return nil, fmt.Errorf("querying ivr menu: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.db.list(ctx, r.db, &m.Options,
		`SELECT * FROM ivr_menu_options WHERE ivr_menu_id = ? ORDER BY sequence, id`, id); err != nil {
		return nil, fmt.Errorf("querying ivr menu options: %w", err)
	}
	return &m, nil
}

// ListByTenant returns a tenant's menus ordered by name, without options.
func (r *ivrMenuRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.IVRMenu, error) {
	var out []models.IVRMenu
	err := r.db.list(ctx, r.db, &out, `SELECT * FROM ivr_menus WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying ivr menus: %w", err)
	}
	return out, nil
}

// Upsert writes the menu. Non-nil Options replace the stored options.
func (r *ivrMenuRepo) Upsert(ctx context.Context, m *models.IVRMenu) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &m.ID, &m.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO ivr_menus (id, tenant_id, name, extension, greet_long, greet_short,
			 invalid_sound, exit_sound, confirm_macro, confirm_key, tts_engine, tts_voice,
			 confirm_attempts, timeout, inter_digit_timeout, max_failures, max_timeouts,
			 digit_len, direct_dial, ringback, cid_prefix, exit_app, exit_data, enabled,
			 description, created, updated, updated_by)
			 VALUES (:id, :tenant_id, :name, :extension, :greet_long, :greet_short,
			 :invalid_sound, :exit_sound, :confirm_macro, :confirm_key, :tts_engine, :tts_voice,
			 :confirm_attempts, :timeout, :inter_digit_timeout, :max_failures, :max_timeouts,
			 :digit_len, :direct_dial, :ringback, :cid_prefix, :exit_app, :exit_data, :enabled,
			 :description, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 extension = excluded.extension, greet_long = excluded.greet_long,
			 greet_short = excluded.greet_short, invalid_sound = excluded.invalid_sound,
			 exit_sound = excluded.exit_sound, confirm_macro = excluded.confirm_macro,
			 confirm_key = excluded.confirm_key, tts_engine = excluded.tts_engine,
			 tts_voice = excluded.tts_voice, confirm_attempts = excluded.confirm_attempts,
			 timeout = excluded.timeout, inter_digit_timeout = excluded.inter_digit_timeout,
			 max_failures = excluded.max_failures, max_timeouts = excluded.max_timeouts,
			 digit_len = excluded.digit_len, direct_dial = excluded.direct_dial,
			 ringback = excluded.ringback, cid_prefix = excluded.cid_prefix,
			 exit_app = excluded.exit_app, exit_data = excluded.exit_data,
			 enabled = excluded.enabled, description = excluded.description,
			 updated = excluded.updated, updated_by = excluded.updated_by`, m)
		if err != nil {
			return fmt.Errorf("upserting ivr menu: %w", err)
		}
		if m.Options == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM ivr_menu_options WHERE ivr_menu_id = ?`, m.ID); err != nil {
			return fmt.Errorf("clearing ivr menu options: %w", err)
		}
		for i := range m.Options {
			o := &m.Options[i]
			o.ID = ""
			o.IVRMenuID = m.ID
			r.db.stamp(ctx, &o.ID, &o.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO ivr_menu_options (id, ivr_menu_id, digits, action, param,
				 sequence, description, created, updated, updated_by)
				 VALUES (:id, :ivr_menu_id, :digits, :action, :param,
				 :sequence, :description, :created, :updated, :updated_by)`, o); err != nil {
				return fmt.Errorf("inserting ivr menu option: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, ivrChange(m.ID, tenantName(ctx, r.db, &m.TenantID)))
	return nil
}

// Delete removes a menu and its options.
func (r *ivrMenuRepo) Delete(ctx context.Context, id string) error {
	var tenantID string
	found, err := r.db.get(ctx, r.db, &tenantID, `SELECT tenant_id FROM ivr_menus WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("querying ivr menu: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM ivr_menus WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting ivr menu: %w", err)
	}
	r.db.notify(ctx, ivrChange(id, tenantName(ctx, r.db, &tenantID)))
	return nil
}

// ivrChange drops every rendered menu, since submenus embed their parents'
// option targets.
func ivrChange(id, tenant string) Change {
	return Change{
		Kind:     KindIVRMenu,
		Tenant:   tenant,
		Key:      id,
		Prefixes: []string{cachekey.Configuration("ivr.conf") + ":"},
	}
}
