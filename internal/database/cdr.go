package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// cdrRepo implements CDRRepository.
type cdrRepo struct {
	db *DB
}

// NewCDRRepository creates a new CDRRepository.
func NewCDRRepository(db *DB) CDRRepository {
	return &cdrRepo{db: db}
}

// Insert stores a CDR unless (core_uuid, call_uuid, leg) already exists.
func (r *cdrRepo) Insert(ctx context.Context, c *models.CDR) (bool, error) {
	r.db.stamp(ctx, &c.ID, &c.Meta)
	res, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO cdrs (id, tenant_id, extension_id, core_uuid, call_uuid, leg, direction,
		 hostname, context, caller_id_name, caller_id_number, caller_destination,
		 destination_number, start_epoch, answer_epoch, end_epoch, start_stamp,
		 answer_stamp, end_stamp, duration, billsec, bridge_uuid, hangup_cause,
		 hangup_cause_q850, sip_hangup_disposition, cc_side, cc_queue, cc_member_uuid,
		 cc_agent, cc_cause, recording_path, missed_call, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :extension_id, :core_uuid, :call_uuid, :leg, :direction,
		 :hostname, :context, :caller_id_name, :caller_id_number, :caller_destination,
		 :destination_number, :start_epoch, :answer_epoch, :end_epoch, :start_stamp,
		 :answer_stamp, :end_stamp, :duration, :billsec, :bridge_uuid, :hangup_cause,
		 :hangup_cause_q850, :sip_hangup_disposition, :cc_side, :cc_queue, :cc_member_uuid,
		 :cc_agent, :cc_cause, :recording_path, :missed_call, :created, :updated, :updated_by)
		 ON CONFLICT (core_uuid, call_uuid, leg) DO NOTHING`, c)
	if err != nil {
		return false, fmt.Errorf("inserting cdr: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking cdr insert: %w", err)
	}
	return n > 0, nil
}

// Get returns one leg's CDR.
func (r *cdrRepo) Get(ctx context.Context, coreUUID, callUUID, leg string) (*models.CDR, error) {
	var c models.CDR
	found, err := r.db.get(ctx, r.db, &c,
		`SELECT * FROM cdrs WHERE core_uuid = ? AND call_uuid = ? AND leg = ?`,
		coreUUID, callUUID, leg)
	if err != nil {
		return nil, fmt.Errorf("querying cdr: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// AddRecording links a recording file to a call. Linking the same path twice
// is a no-op.
func (r *cdrRepo) AddRecording(ctx context.Context, rec *models.CallRecording) error {
	r.db.stamp(ctx, &rec.ID, &rec.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO call_recordings (id, tenant_id, call_uuid, path, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :call_uuid, :path, :created, :updated, :updated_by)
		 ON CONFLICT (call_uuid, path) DO NOTHING`, rec)
	if err != nil {
		return fmt.Errorf("inserting call recording: %w", err)
	}
	return nil
}

// Recordings returns a call's recordings.
func (r *cdrRepo) Recordings(ctx context.Context, callUUID string) ([]models.CallRecording, error) {
	var out []models.CallRecording
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM call_recordings WHERE call_uuid = ? ORDER BY created, path`, callUUID); err != nil {
		return nil, fmt.Errorf("querying call recordings: %w", err)
	}
	return out, nil
}

// AppendTimeline stores one channel event.
func (r *cdrRepo) AppendTimeline(ctx context.Context, e *models.CallTimelineEvent) error {
	r.db.stamp(ctx, &e.ID, &e.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO call_timelines (id, tenant_id, core_uuid, call_uuid, hostname,
		 event_name, event_subclass, event_epoch, event_sequence, channel_state, call_state,
		 direction, caller_id_name, caller_id_number, destination_number, context,
		 application, application_data, other_leg_uuid, hangup_cause,
		 created, updated, updated_by)
		 VALUES (:id, :tenant_id, :core_uuid, :call_uuid, :hostname,
		 :event_name, :event_subclass, :event_epoch, :event_sequence, :channel_state, :call_state,
		 :direction, :caller_id_name, :caller_id_number, :destination_number, :context,
		 :application, :application_data, :other_leg_uuid, :hangup_cause,
		 :created, :updated, :updated_by)
		 ON CONFLICT (core_uuid, call_uuid, event_sequence) DO NOTHING`, e)
	if err != nil {
		return fmt.Errorf("inserting timeline event: %w", err)
	}
	return nil
}

// Timeline returns a call's events in the order they happened.
func (r *cdrRepo) Timeline(ctx context.Context, callUUID string) ([]models.CallTimelineEvent, error) {
	var out []models.CallTimelineEvent
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM call_timelines WHERE call_uuid = ?
		 ORDER BY event_epoch, event_sequence`, callUUID); err != nil {
		return nil, fmt.Errorf("querying call timeline: %w", err)
	}
	return out, nil
}
