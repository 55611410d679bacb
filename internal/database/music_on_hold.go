package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// musicOnHoldRepo implements MusicOnHoldRepository.
type musicOnHoldRepo struct {
	db *DB
}

// NewMusicOnHoldRepository creates a new MusicOnHoldRepository.
func NewMusicOnHoldRepository(db *DB) MusicOnHoldRepository {
	return &musicOnHoldRepo{db: db}
}

// List returns enabled streams ordered by name then rate.
func (r *musicOnHoldRepo) List(ctx context.Context) ([]models.MusicOnHold, error) {
	var out []models.MusicOnHold
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM music_on_hold WHERE enabled = ? ORDER BY name, rate`, true)
	if err != nil {
		return nil, fmt.Errorf("querying music on hold: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a stream.
func (r *musicOnHoldRepo) Upsert(ctx context.Context, m *models.MusicOnHold) error {
	r.db.stamp(ctx, &m.ID, &m.Meta)
	m.Synchronised = nil
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO music_on_hold (id, tenant_id, name, path, rate, shuffle, channels,
		 interval_ms, timer_name, chime_list, chime_freq, chime_max, enabled,
		 created, updated, updated_by, synchronised)
		 VALUES (:id, :tenant_id, :name, :path, :rate, :shuffle, :channels,
		 :interval_ms, :timer_name, :chime_list, :chime_freq, :chime_max, :enabled,
		 :created, :updated, :updated_by, :synchronised)
		 ON CONFLICT (id) DO UPDATE SET tenant_id = excluded.tenant_id,
		 name = excluded.name, path = excluded.path, rate = excluded.rate,
		 shuffle = excluded.shuffle, channels = excluded.channels,
		 interval_ms = excluded.interval_ms, timer_name = excluded.timer_name,
		 chime_list = excluded.chime_list, chime_freq = excluded.chime_freq,
		 chime_max = excluded.chime_max, enabled = excluded.enabled,
		 updated = excluded.updated, updated_by = excluded.updated_by,
		 synchronised = excluded.synchronised`, m)
	if err != nil {
		return fmt.Errorf("upserting music on hold: %w", err)
	}
	r.db.notify(ctx, mohChange(m.ID))
	return nil
}

// Delete removes a stream.
func (r *musicOnHoldRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM music_on_hold WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting music on hold: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, mohChange(id))
	return nil
}

func mohChange(id string) Change {
	return Change{Kind: KindMusicOnHold, Key: id, Keys: []string{cachekey.Configuration("local_stream.conf")}}
}
