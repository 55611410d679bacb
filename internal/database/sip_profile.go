package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// sipProfileRepo implements SIPProfileRepository.
type sipProfileRepo struct {
	db *DB
}

// NewSIPProfileRepository creates a new SIPProfileRepository.
func NewSIPProfileRepository(db *DB) SIPProfileRepository {
	return &sipProfileRepo{db: db}
}

// GetByID returns a profile with its domains and settings.
func (r *sipProfileRepo) GetByID(ctx context.Context, id string) (*models.SIPProfile, error) {
	var p models.SIPProfile
	found, err := r.db.get(ctx, r.db, &p, `SELECT * FROM sip_profiles WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying sip profile: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.loadChildren(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns enabled profiles for hostname, or unpinned ones.
func (r *sipProfileRepo) List(ctx context.Context, hostname string) ([]models.SIPProfile, error) {
	var out []models.SIPProfile
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM sip_profiles
		 WHERE enabled = ? AND (hostname IS NULL OR hostname = ?)
		 ORDER BY name`, true, hostname)
	if err != nil {
		return nil, fmt.Errorf("querying sip profiles: %w", err)
	}
	for i := range out {
		if err := r.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *sipProfileRepo) loadChildren(ctx context.Context, p *models.SIPProfile) error {
	if err := r.db.list(ctx, r.db, &p.Domains,
		`SELECT * FROM sip_profile_domains WHERE sip_profile_id = ? ORDER BY name`, p.ID); err != nil {
		return fmt.Errorf("querying sip profile domains: %w", err)
	}
	if err := r.db.list(ctx, r.db, &p.Settings,
		`SELECT * FROM sip_profile_settings WHERE sip_profile_id = ? AND enabled = ? ORDER BY name`,
		p.ID, true); err != nil {
		return fmt.Errorf("querying sip profile settings: %w", err)
	}
	return nil
}

// Upsert writes the profile. Non-nil Domains and Settings replace the stored
// rows in the same transaction.
func (r *sipProfileRepo) Upsert(ctx context.Context, p *models.SIPProfile) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &p.ID, &p.Meta)
		pinHost(&p.Hostname)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO sip_profiles (id, name, hostname, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :name, :hostname, :enabled, :description,
			 :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 hostname = excluded.hostname, enabled = excluded.enabled,
			 description = excluded.description, updated = excluded.updated,
			 updated_by = excluded.updated_by`, p)
		if err != nil {
			return fmt.Errorf("upserting sip profile: %w", err)
		}

		if p.Domains != nil {
			if _, err := r.db.exec(ctx, tx, `DELETE FROM sip_profile_domains WHERE sip_profile_id = ?`, p.ID); err != nil {
				return fmt.Errorf("clearing sip profile domains: %w", err)
			}
			for i := range p.Domains {
				d := &p.Domains[i]
				d.ID = ""
				d.SIPProfileID = p.ID
				r.db.stamp(ctx, &d.ID, &d.Meta)
				if _, err := sqlx.NamedExecContext(ctx, tx,
					`INSERT INTO sip_profile_domains (id, sip_profile_id, name, alias, parse,
					 created, updated, updated_by)
					 VALUES (:id, :sip_profile_id, :name, :alias, :parse,
					 :created, :updated, :updated_by)`, d); err != nil {
					return fmt.Errorf("inserting sip profile domain: %w", err)
				}
			}
		}

		if p.Settings != nil {
			if _, err := r.db.exec(ctx, tx, `DELETE FROM sip_profile_settings WHERE sip_profile_id = ?`, p.ID); err != nil {
				return fmt.Errorf("clearing sip profile settings: %w", err)
			}
			for i := range p.Settings {
				s := &p.Settings[i]
				s.ID = ""
				s.SIPProfileID = p.ID
				r.db.stamp(ctx, &s.ID, &s.Meta)
				if _, err := sqlx.NamedExecContext(ctx, tx,
					`INSERT INTO sip_profile_settings (id, sip_profile_id, name, value, enabled,
					 description, created, updated, updated_by)
					 VALUES (:id, :sip_profile_id, :name, :value, :enabled,
					 :description, :created, :updated, :updated_by)`, s); err != nil {
					return fmt.Errorf("inserting sip profile setting: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, sofiaChange(KindSIPProfile, p.ID))
	return nil
}

// Delete removes a profile and its gateways.
func (r *sipProfileRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM sip_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sip profile: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, sofiaChange(KindSIPProfile, id))
	return nil
}

func sofiaChange(kind, id string) Change {
	return Change{
		Kind:     kind,
		Key:      id,
		Keys:     []string{cachekey.Configuration("sofia.conf")},
		Prefixes: []string{cachekey.Configuration("sofia.conf") + ":"},
	}
}
