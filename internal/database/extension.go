package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// extensionRepo implements ExtensionRepository.
type extensionRepo struct {
	db *DB
}

// NewExtensionRepository creates a new ExtensionRepository.
func NewExtensionRepository(db *DB) ExtensionRepository {
	return &extensionRepo{db: db}
}

// GetByID returns an extension by ID.
func (r *extensionRepo) GetByID(ctx context.Context, id string) (*models.Extension, error) {
	var e models.Extension
	found, err := r.db.get(ctx, r.db, &e, `SELECT * FROM extensions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying extension: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// GetByNumber returns the extension whose number or alias matches. An exact
// number match wins over an alias match.
func (r *extensionRepo) GetByNumber(ctx context.Context, tenantID, number string) (*models.Extension, error) {
	var e models.Extension
	found, err := r.db.get(ctx, r.db, &e,
		`SELECT * FROM extensions
		 WHERE tenant_id = ? AND (number = ? OR (number_alias <> '' AND number_alias = ?))
		 ORDER BY CASE WHEN number = ? THEN 0 ELSE 1 END
		 LIMIT 1`, tenantID, number, number, number)
	if err != nil {
		return nil, fmt.Errorf("querying extension by number: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// ListByTenant returns a tenant's extensions ordered by number.
func (r *extensionRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.Extension, error) {
	var out []models.Extension
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM extensions WHERE tenant_id = ? ORDER BY number`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying extensions: %w", err)
	}
	return out, nil
}

// ListCallGroups returns enabled extensions carrying a call group, ordered by
// group then number.
func (r *extensionRepo) ListCallGroups(ctx context.Context, tenantID string) ([]models.Extension, error) {
	var out []models.Extension
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM extensions
		 WHERE tenant_id = ? AND enabled = ? AND call_group <> ''
		 ORDER BY call_group, number`, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("querying call groups: %w", err)
	}
	return out, nil
}

// ListWithCIDR returns every enabled CIDR-constrained extension across all
// tenants.
func (r *extensionRepo) ListWithCIDR(ctx context.Context) ([]DirectoryUser, error) {
	var out []DirectoryUser
	err := r.db.list(ctx, r.db, &out,
		`SELECT e.*, t.name AS domain FROM extensions e
		 JOIN tenants t ON t.id = e.tenant_id
		 WHERE e.enabled = ? AND t.enabled = ? AND e.cidr <> ''
		 ORDER BY t.name, e.number`, true, true)
	if err != nil {
		return nil, fmt.Errorf("querying cidr users: %w", err)
	}
	return out, nil
}

// Settings returns an extension's param and variable overrides.
func (r *extensionRepo) Settings(ctx context.Context, extensionID string) ([]models.ExtensionSetting, error) {
	var out []models.ExtensionSetting
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM extension_settings WHERE extension_id = ? ORDER BY category, name`, extensionID)
	if err != nil {
		return nil, fmt.Errorf("querying extension settings: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates an extension together with its inline children.
func (r *extensionRepo) Upsert(ctx context.Context, ext *models.Extension) error {
	r.db.stamp(ctx, &ext.ID, &ext.Meta)

	var before []userRef
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.db.list(ctx, tx, &before,
			`SELECT e.number, e.number_alias, t.name AS domain
			 FROM extensions e JOIN tenants t ON t.id = e.tenant_id
			 WHERE e.id = ?`, ext.ID); err != nil {
			return fmt.Errorf("querying previous extension: %w", err)
		}

		_, err := sqlx.NamedExecContext(ctx, tx, upsertExtensionSQL, ext)
		if err != nil {
			return fmt.Errorf("upserting extension: %w", err)
		}

		if ext.Settings != nil {
			if _, err := r.db.exec(ctx, tx, `DELETE FROM extension_settings WHERE extension_id = ?`, ext.ID); err != nil {
				return fmt.Errorf("clearing extension settings: %w", err)
			}
			for i := range ext.Settings {
				s := &ext.Settings[i]
				s.ExtensionID = ext.ID
				r.db.stamp(ctx, &s.ID, &s.Meta)
				if _, err := sqlx.NamedExecContext(ctx, tx,
					`INSERT INTO extension_settings (id, extension_id, category, name, value,
					 enabled, created, updated, updated_by)
					 VALUES (:id, :extension_id, :category, :name, :value,
					 :enabled, :created, :updated, :updated_by)`, s); err != nil {
					return fmt.Errorf("inserting extension setting: %w", err)
				}
			}
		}

		if ext.Voicemail != nil {
			ext.Voicemail.ExtensionID = ext.ID
			if err := upsertVoicemail(ctx, r.db, tx, ext.Voicemail); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	after, err := r.userRef(ctx, ext.ID)
	if err != nil {
		return err
	}
	users := append(before, after...)
	r.db.notify(ctx, Change{Kind: KindExtension, Tenant: domainOf(users), Key: ext.ID, Keys: directoryKeys(users...)})
	return nil
}

const upsertExtensionSQL = `INSERT INTO extensions (id, tenant_id, number, number_alias, password,
 accountcode, effective_cid_name, effective_cid_number, outbound_cid_name,
 outbound_cid_number, emergency_cid_name, emergency_cid_number,
 directory_first_name, directory_last_name, directory_visible,
 directory_exten_visible, call_group, user_context, limit_max, limit_destination,
 hold_music, toll_allow, call_timeout, bypass_media, cidr, sip_force_contact,
 sip_force_expires, mwi_account, absolute_codec_string, forward_all_enabled,
 forward_all_destination, forward_busy_enabled, forward_busy_destination,
 forward_no_answer_enabled, forward_no_answer_destination,
 forward_not_registered_enabled, forward_not_registered_destination,
 follow_me_enabled, do_not_disturb, missed_call_app, missed_call_data, enabled,
 description, created, updated, updated_by)
 VALUES (:id, :tenant_id, :number, :number_alias, :password,
 :accountcode, :effective_cid_name, :effective_cid_number, :outbound_cid_name,
 :outbound_cid_number, :emergency_cid_name, :emergency_cid_number,
 :directory_first_name, :directory_last_name, :directory_visible,
 :directory_exten_visible, :call_group, :user_context, :limit_max, :limit_destination,
 :hold_music, :toll_allow, :call_timeout, :bypass_media, :cidr, :sip_force_contact,
 :sip_force_expires, :mwi_account, :absolute_codec_string, :forward_all_enabled,
 :forward_all_destination, :forward_busy_enabled, :forward_busy_destination,
 :forward_no_answer_enabled, :forward_no_answer_destination,
 :forward_not_registered_enabled, :forward_not_registered_destination,
 :follow_me_enabled, :do_not_disturb, :missed_call_app, :missed_call_data, :enabled,
 :description, :created, :updated, :updated_by)
 ON CONFLICT (id) DO UPDATE SET number = excluded.number,
 number_alias = excluded.number_alias, password = excluded.password,
 accountcode = excluded.accountcode,
 effective_cid_name = excluded.effective_cid_name,
 effective_cid_number = excluded.effective_cid_number,
 outbound_cid_name = excluded.outbound_cid_name,
 outbound_cid_number = excluded.outbound_cid_number,
 emergency_cid_name = excluded.emergency_cid_name,
 emergency_cid_number = excluded.emergency_cid_number,
 directory_first_name = excluded.directory_first_name,
 directory_last_name = excluded.directory_last_name,
 directory_visible = excluded.directory_visible,
 directory_exten_visible = excluded.directory_exten_visible,
 call_group = excluded.call_group, user_context = excluded.user_context,
 limit_max = excluded.limit_max, limit_destination = excluded.limit_destination,
 hold_music = excluded.hold_music, toll_allow = excluded.toll_allow,
 call_timeout = excluded.call_timeout, bypass_media = excluded.bypass_media,
 cidr = excluded.cidr, sip_force_contact = excluded.sip_force_contact,
 sip_force_expires = excluded.sip_force_expires, mwi_account = excluded.mwi_account,
 absolute_codec_string = excluded.absolute_codec_string,
 forward_all_enabled = excluded.forward_all_enabled,
 forward_all_destination = excluded.forward_all_destination,
 forward_busy_enabled = excluded.forward_busy_enabled,
 forward_busy_destination = excluded.forward_busy_destination,
 forward_no_answer_enabled = excluded.forward_no_answer_enabled,
 forward_no_answer_destination = excluded.forward_no_answer_destination,
 forward_not_registered_enabled = excluded.forward_not_registered_enabled,
 forward_not_registered_destination = excluded.forward_not_registered_destination,
 follow_me_enabled = excluded.follow_me_enabled,
 do_not_disturb = excluded.do_not_disturb,
 missed_call_app = excluded.missed_call_app,
 missed_call_data = excluded.missed_call_data, enabled = excluded.enabled,
 description = excluded.description, updated = excluded.updated,
 updated_by = excluded.updated_by`

// Delete removes an extension with its voicemail and overrides.
func (r *extensionRepo) Delete(ctx context.Context, id string) error {
	users, err := r.userRef(ctx, id)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM extensions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting extension: %w", err)
	}
	r.db.notify(ctx, Change{Kind: KindExtension, Tenant: domainOf(users), Key: id, Keys: directoryKeys(users...)})
	return nil
}

// FollowMe returns an extension's follow-me destinations in sequence order.
func (r *extensionRepo) FollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error) {
	var out []models.FollowMeDestination
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM follow_me_destinations WHERE extension_id = ? ORDER BY sequence, id`, extensionID)
	if err != nil {
		return nil, fmt.Errorf("querying follow-me destinations: %w", err)
	}
	return out, nil
}

// ReplaceFollowMe replaces an extension's follow-me list. The user record's
// dial-string depends on it, so the directory keys are dropped too.
func (r *extensionRepo) ReplaceFollowMe(ctx context.Context, extensionID string, dests []models.FollowMeDestination) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.db.exec(ctx, tx, `DELETE FROM follow_me_destinations WHERE extension_id = ?`, extensionID); err != nil {
			return fmt.Errorf("clearing follow-me destinations: %w", err)
		}
		for i := range dests {
			d := &dests[i]
			d.ExtensionID = extensionID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO follow_me_destinations (id, extension_id, sequence, destination,
				 delay, timeout, prompt, created, updated, updated_by)
				 VALUES (:id, :extension_id, :sequence, :destination,
				 :delay, :timeout, :prompt, :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting follow-me destination: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	users, err := r.userRef(ctx, extensionID)
	if err != nil {
		return err
	}
	r.db.notify(ctx, Change{Kind: KindFollowMe, Tenant: domainOf(users), Key: extensionID, Keys: directoryKeys(users...)})
	return nil
}

func (r *extensionRepo) userRef(ctx context.Context, id string) ([]userRef, error) {
	var users []userRef
	err := r.db.list(ctx, r.db, &users,
		`SELECT e.number, e.number_alias, t.name AS domain
		 FROM extensions e JOIN tenants t ON t.id = e.tenant_id
		 WHERE e.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying extension user: %w", err)
	}
	return users, nil
}

func domainOf(users []userRef) string {
	for _, u := range users {
		if u.Domain != "" {
			return u.Domain
		}
	}
	return ""
}
