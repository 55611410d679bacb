package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// conferenceRepo implements ConferenceRepository.
type conferenceRepo struct {
	db *DB
}

// NewConferenceRepository creates a new ConferenceRepository.
func NewConferenceRepository(db *DB) ConferenceRepository {
	return &conferenceRepo{db: db}
}

// Profiles returns enabled profiles with their enabled params.
func (r *conferenceRepo) Profiles(ctx context.Context) ([]models.ConferenceProfile, error) {
	var out []models.ConferenceProfile
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM conference_profiles WHERE enabled = ? ORDER BY name`, true); err != nil {
		return nil, fmt.Errorf("querying conference profiles: %w", err)
	}
	for i := range out {
		if err := r.db.list(ctx, r.db, &out[i].Params,
			`SELECT * FROM conference_profile_params
			 WHERE conference_profile_id = ? AND enabled = ? ORDER BY name`, out[i].ID, true); err != nil {
			return nil, fmt.Errorf("querying conference profile params: %w", err)
		}
	}
	return out, nil
}

// Controls returns enabled caller-control groups with their enabled details.
func (r *conferenceRepo) Controls(ctx context.Context) ([]models.ConferenceControl, error) {
	var out []models.ConferenceControl
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM conference_controls WHERE enabled = ? ORDER BY name`, true); err != nil {
		return nil, fmt.Errorf("querying conference controls: %w", err)
	}
	for i := range out {
		if err := r.db.list(ctx, r.db, &out[i].Details,
			`SELECT * FROM conference_control_details
			 WHERE conference_control_id = ? AND enabled = ? ORDER BY digits`, out[i].ID, true); err != nil {
			return nil, fmt.Errorf("querying conference control details: %w", err)
		}
	}
	return out, nil
}

// GetRoom returns a room by ID.
func (r *conferenceRepo) GetRoom(ctx context.Context, id string) (*models.ConferenceRoom, error) {
	var room models.ConferenceRoom
	found, err := r.db.get(ctx, r.db, &room, `SELECT * FROM conference_rooms WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying conference room: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &room, nil
}

// FindRoomByPIN matches pin against enabled rooms of the tenant. A moderator
// PIN match wins over a participant PIN match on another room.
func (r *conferenceRepo) FindRoomByPIN(ctx context.Context, tenantID, pin string) (*models.ConferenceRoom, bool, error) {
	if pin == "" {
		return nil, false, nil
	}
	var rooms []models.ConferenceRoom
	err := r.db.list(ctx, r.db, &rooms,
		`SELECT * FROM conference_rooms
		 WHERE tenant_id = ? AND enabled = ? AND (moderator_pin = ? OR participant_pin = ?)
		 ORDER BY name, id`, tenantID, true, pin, pin)
	if err != nil {
		return nil, false, fmt.Errorf("querying conference room by pin: %w", err)
	}
	for i := range rooms {
		if rooms[i].ModeratorPIN == pin {
			return &rooms[i], true, nil
		}
	}
	if len(rooms) == 0 {
		return nil, false, nil
	}
	return &rooms[0], false, nil
}

// UpsertProfile writes the profile. Non-nil Params replace the stored params.
func (r *conferenceRepo) UpsertProfile(ctx context.Context, p *models.ConferenceProfile) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &p.ID, &p.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO conference_profiles (id, name, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :name, :enabled, :description, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name, enabled = excluded.enabled,
			 description = excluded.description, updated = excluded.updated,
			 updated_by = excluded.updated_by`, p)
		if err != nil {
			return fmt.Errorf("upserting conference profile: %w", err)
		}
		if p.Params == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx,
			`DELETE FROM conference_profile_params WHERE conference_profile_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clearing conference profile params: %w", err)
		}
		for i := range p.Params {
			param := &p.Params[i]
			param.ID = ""
			param.ConferenceProfileID = p.ID
			r.db.stamp(ctx, &param.ID, &param.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO conference_profile_params (id, conference_profile_id, name, value,
				 enabled, created, updated, updated_by)
				 VALUES (:id, :conference_profile_id, :name, :value,
				 :enabled, :created, :updated, :updated_by)`, param); err != nil {
				return fmt.Errorf("inserting conference profile param: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, conferenceChange(p.ID))
	return nil
}

// UpsertControl writes the control group. Non-nil Details replace the stored
// digit bindings.
func (r *conferenceRepo) UpsertControl(ctx context.Context, c *models.ConferenceControl) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &c.ID, &c.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO conference_controls (id, name, enabled, created, updated, updated_by)
			 VALUES (:id, :name, :enabled, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name, enabled = excluded.enabled,
			 updated = excluded.updated, updated_by = excluded.updated_by`, c)
		if err != nil {
			return fmt.Errorf("upserting conference control: %w", err)
		}
		if c.Details == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx,
			`DELETE FROM conference_control_details WHERE conference_control_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clearing conference control details: %w", err)
		}
		for i := range c.Details {
			d := &c.Details[i]
			d.ID = ""
			d.ConferenceControlID = c.ID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO conference_control_details (id, conference_control_id, digits,
				 action, data, enabled, created, updated, updated_by)
				 VALUES (:id, :conference_control_id, :digits,
				 :action, :data, :enabled, :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting conference control detail: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, conferenceChange(c.ID))
	return nil
}

// UpsertRoom inserts or updates a room. Rooms are not part of conference.conf.
func (r *conferenceRepo) UpsertRoom(ctx context.Context, room *models.ConferenceRoom) error {
	r.db.stamp(ctx, &room.ID, &room.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO conference_rooms (id, tenant_id, name, profile, moderator_pin,
		 participant_pin, max_members, start_time, stop_time, record, wait_mod,
		 announce_name, mute, sounds, enabled, description, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :name, :profile, :moderator_pin,
		 :participant_pin, :max_members, :start_time, :stop_time, :record, :wait_mod,
		 :announce_name, :mute, :sounds, :enabled, :description, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, profile = excluded.profile,
		 moderator_pin = excluded.moderator_pin, participant_pin = excluded.participant_pin,
		 max_members = excluded.max_members, start_time = excluded.start_time,
		 stop_time = excluded.stop_time, record = excluded.record,
		 wait_mod = excluded.wait_mod, announce_name = excluded.announce_name,
		 mute = excluded.mute, sounds = excluded.sounds, enabled = excluded.enabled,
		 description = excluded.description, updated = excluded.updated,
		 updated_by = excluded.updated_by`, room)
	if err != nil {
		return fmt.Errorf("upserting conference room: %w", err)
	}
	return nil
}

// DeleteRoom removes a room.
func (r *conferenceRepo) DeleteRoom(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM conference_rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conference room: %w", err)
	}
	return checkAffected(res)
}

func conferenceChange(id string) Change {
	return Change{Kind: KindConference, Key: id, Keys: []string{cachekey.Configuration("conference.conf")}}
}
