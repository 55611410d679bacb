package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// CategoryXMLHandler holds tunables of the XML lookup service. Each one is
// cached under its own key.
const CategoryXMLHandler = "xmlhandler"

// Categories rendered into configuration documents.
const (
	CategorySofia      = "sofia"
	CategoryCallcenter = "callcenter"
)

// CategoryEmail holds notification template overrides, named
// <kind>_subject and <kind>_body.
const CategoryEmail = "email"

// settingRepo implements SettingRepository.
type settingRepo struct {
	db *DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *DB) SettingRepository {
	return &settingRepo{db: db}
}

// Get returns the value of an enabled setting.
func (r *settingRepo) Get(ctx context.Context, category, name string) (string, bool, error) {
	var value string
	found, err := r.db.get(ctx, r.db, &value,
		`SELECT value FROM settings WHERE category = ? AND name = ? AND enabled = ?`,
		category, name, true)
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s/%s: %w", category, name, err)
	}
	return value, found, nil
}

// List returns every setting in a category ordered by name.
func (r *settingRepo) List(ctx context.Context, category string) ([]models.Setting, error) {
	var out []models.Setting
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM settings WHERE category = ? ORDER BY name`, category)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	return out, nil
}

// Set creates or replaces an enabled setting.
func (r *settingRepo) Set(ctx context.Context, category, name, value string) error {
	s := models.Setting{Category: category, Name: name, Value: value, Enabled: true}
	r.db.stamp(ctx, &s.ID, &s.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO settings (id, category, name, value, enabled, description,
		 created, updated, updated_by)
		 VALUES (:id, :category, :name, :value, :enabled, :description,
		 :created, :updated, :updated_by)
		 ON CONFLICT (category, name) DO UPDATE SET value = excluded.value,
		 enabled = excluded.enabled, updated = excluded.updated,
		 updated_by = excluded.updated_by`, &s)
	if err != nil {
		return fmt.Errorf("setting %s/%s: %w", category, name, err)
	}
	r.db.notify(ctx, settingChange(category, name))
	return nil
}

// Delete removes a setting.
func (r *settingRepo) Delete(ctx context.Context, category, name string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM settings WHERE category = ? AND name = ?`, category, name)
	if err != nil {
		return fmt.Errorf("deleting setting %s/%s: %w", category, name, err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, settingChange(category, name))
	return nil
}

func settingChange(category, name string) Change {
	c := Change{Kind: KindSetting, Key: category + "/" + name}
	switch category {
	case CategoryXMLHandler:
		c.Keys = []string{cachekey.XMLHandler(name)}
	case CategorySofia:
		c.Keys = []string{cachekey.Configuration("sofia.conf")}
		c.Prefixes = []string{cachekey.Configuration("sofia.conf") + ":"}
	case CategoryCallcenter:
		c.Keys = []string{cachekey.Configuration("callcenter.conf")}
	}
	return c
}
