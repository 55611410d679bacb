package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// translationRepo implements TranslationRepository.
type translationRepo struct {
	db *DB
}

// NewTranslationRepository creates a new TranslationRepository.
func NewTranslationRepository(db *DB) TranslationRepository {
	return &translationRepo{db: db}
}

// List returns enabled profiles with their rules in sequence order.
func (r *translationRepo) List(ctx context.Context) ([]models.NumberTranslation, error) {
	var out []models.NumberTranslation
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM number_translations WHERE enabled = ? ORDER BY name`, true)
	if err != nil {
		return nil, fmt.Errorf("querying number translations: %w", err)
	}
	for i := range out {
		if err := r.db.list(ctx, r.db, &out[i].Details,
			`SELECT * FROM number_translation_details WHERE number_translation_id = ?
			 ORDER BY sequence, id`, out[i].ID); err != nil {
			return nil, fmt.Errorf("querying number translation details: %w", err)
		}
	}
	return out, nil
}

// Upsert writes the profile. Non-nil Details replace the stored rules.
func (r *translationRepo) Upsert(ctx context.Context, t *models.NumberTranslation) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &t.ID, &t.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO number_translations (id, name, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :name, :enabled, :description, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 enabled = excluded.enabled, description = excluded.description,
			 updated = excluded.updated, updated_by = excluded.updated_by`, t)
		if err != nil {
			return fmt.Errorf("upserting number translation: %w", err)
		}
		if t.Details == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx,
			`DELETE FROM number_translation_details WHERE number_translation_id = ?`, t.ID); err != nil {
			return fmt.Errorf("clearing number translation details: %w", err)
		}
		for i := range t.Details {
			d := &t.Details[i]
			d.ID = ""
			d.NumberTranslationID = t.ID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO number_translation_details (id, number_translation_id, regex,
				 replacement, sequence, created, updated, updated_by)
				 VALUES (:id, :number_translation_id, :regex,
				 :replacement, :sequence, :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting number translation detail: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, translationChange(t.ID))
	return nil
}

// Delete removes a profile and its rules.
func (r *translationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM number_translations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting number translation: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, translationChange(id))
	return nil
}

func translationChange(id string) Change {
	return Change{Kind: KindTranslation, Key: id, Keys: []string{cachekey.Configuration("translate.conf")}}
}
