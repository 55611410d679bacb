package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// phraseRepo implements PhraseRepository.
type phraseRepo struct {
	db *DB
}

// NewPhraseRepository creates a new PhraseRepository.
func NewPhraseRepository(db *DB) PhraseRepository {
	return &phraseRepo{db: db}
}

// GetByID returns an enabled phrase with its details.
func (r *phraseRepo) GetByID(ctx context.Context, id string) (*models.Phrase, error) {
	var p models.Phrase
	found, err := r.db.get(ctx, r.db, &p, `SELECT * FROM phrases WHERE id = ? AND enabled = ?`, id, true)
	if err != nil {
		return nil, fmt.Errorf("querying phrase: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.db.list(ctx, r.db, &p.Details,
		`SELECT * FROM phrase_details WHERE phrase_id = ? ORDER BY sequence, id`, id); err != nil {
		return nil, fmt.Errorf("querying phrase details: %w", err)
	}
	return &p, nil
}

// Upsert writes the phrase. Non-nil Details replace the stored steps.
func (r *phraseRepo) Upsert(ctx context.Context, p *models.Phrase) error {
	var previous []string
	if p.ID != "" {
		if err := r.db.list(ctx, r.db, &previous, `SELECT language FROM phrases WHERE id = ?`, p.ID); err != nil {
			return fmt.Errorf("querying previous phrase: %w", err)
		}
	}
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &p.ID, &p.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO phrases (id, tenant_id, name, language, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :tenant_id, :name, :language, :enabled, :description,
			 :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET tenant_id = excluded.tenant_id,
			 name = excluded.name, language = excluded.language,
			 enabled = excluded.enabled, description = excluded.description,
			 updated = excluded.updated, updated_by = excluded.updated_by`, p)
		if err != nil {
			return fmt.Errorf("upserting phrase: %w", err)
		}
		if p.Details == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM phrase_details WHERE phrase_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clearing phrase details: %w", err)
		}
		for i := range p.Details {
			d := &p.Details[i]
			d.ID = ""
			d.PhraseID = p.ID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO phrase_details (id, phrase_id, sequence, function, data,
				 created, updated, updated_by)
				 VALUES (:id, :phrase_id, :sequence, :function, :data,
				 :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting phrase detail: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, phraseChange(p.ID, append(previous, p.Language)...))
	return nil
}

// Delete removes a phrase.
func (r *phraseRepo) Delete(ctx context.Context, id string) error {
	var languages []string
	if err := r.db.list(ctx, r.db, &languages, `SELECT language FROM phrases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("querying phrase: %w", err)
	}
	if len(languages) == 0 {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM phrases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting phrase: %w", err)
	}
	r.db.notify(ctx, phraseChange(id, languages...))
	return nil
}

// phraseChange drops the macro under each language it was served for.
func phraseChange(id string, languages ...string) Change {
	c := Change{Kind: KindPhrase, Key: id}
	seen := make(map[string]bool)
	for _, lang := range languages {
		if seen[lang] {
			continue
		}
		seen[lang] = true
		c.Keys = append(c.Keys, cachekey.Languages(lang, id))
	}
	return c
}
