package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// voicemailRepo implements VoicemailRepository.
type voicemailRepo struct {
	db *DB
}

// NewVoicemailRepository creates a new VoicemailRepository.
func NewVoicemailRepository(db *DB) VoicemailRepository {
	return &voicemailRepo{db: db}
}

// GetByID returns a mailbox by ID.
func (r *voicemailRepo) GetByID(ctx context.Context, id string) (*models.Voicemail, error) {
	var vm models.Voicemail
	found, err := r.db.get(ctx, r.db, &vm, `SELECT * FROM voicemails WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &vm, nil
}

// GetByExtension returns the mailbox owned by an extension.
func (r *voicemailRepo) GetByExtension(ctx context.Context, extensionID string) (*models.Voicemail, error) {
	var vm models.Voicemail
	found, err := r.db.get(ctx, r.db, &vm, `SELECT * FROM voicemails WHERE extension_id = ?`, extensionID)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail by extension: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &vm, nil
}

// Upsert inserts or updates a mailbox. The owner's directory record carries
// the voicemail params, so its keys are dropped.
func (r *voicemailRepo) Upsert(ctx context.Context, vm *models.Voicemail) error {
	if err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		return upsertVoicemail(ctx, r.db, tx, vm)
	}); err != nil {
		return err
	}
	return r.notifyOwner(ctx, vm.ID)
}

func upsertVoicemail(ctx context.Context, db *DB, tx *sqlx.Tx, vm *models.Voicemail) error {
	// The mailbox is unique per extension; adopt the stored ID so callers can
	// upsert by extension without knowing it.
	if vm.ID == "" {
		var id string
		found, err := db.get(ctx, tx, &id, `SELECT id FROM voicemails WHERE extension_id = ?`, vm.ExtensionID)
		if err != nil {
			return fmt.Errorf("querying voicemail id: %w", err)
		}
		if found {
			vm.ID = id
		}
	}
	db.stamp(ctx, &vm.ID, &vm.Meta)
	if vm.AttachFile == "" {
		vm.AttachFile = models.AttachNone
	}
	_, err := sqlx.NamedExecContext(ctx, tx,
		`INSERT INTO voicemails (id, extension_id, password, greeting_id, mail_to,
		 attach_file, local_after_email, enabled, description, created, updated, updated_by)
		 VALUES (:id, :extension_id, :password, :greeting_id, :mail_to,
		 :attach_file, :local_after_email, :enabled, :description, :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET password = excluded.password,
		 greeting_id = excluded.greeting_id, mail_to = excluded.mail_to,
		 attach_file = excluded.attach_file, local_after_email = excluded.local_after_email,
		 enabled = excluded.enabled, description = excluded.description,
		 updated = excluded.updated, updated_by = excluded.updated_by`, vm)
	if err != nil {
		return fmt.Errorf("upserting voicemail: %w", err)
	}
	return nil
}

// Greetings returns a mailbox's greetings ordered by number.
func (r *voicemailRepo) Greetings(ctx context.Context, voicemailID string) ([]models.VoicemailGreeting, error) {
	var out []models.VoicemailGreeting
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM voicemail_greetings WHERE voicemail_id = ? ORDER BY greeting_number`, voicemailID)
	if err != nil {
		return nil, fmt.Errorf("querying greetings: %w", err)
	}
	return out, nil
}

// UpsertGreeting writes a greeting, replacing any greeting with the same
// number in the mailbox.
func (r *voicemailRepo) UpsertGreeting(ctx context.Context, g *models.VoicemailGreeting) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if g.ID == "" {
			var id string
			found, err := r.db.get(ctx, tx, &id,
				`SELECT id FROM voicemail_greetings WHERE voicemail_id = ? AND greeting_number = ?`,
				g.VoicemailID, g.GreetingNumber)
			if err != nil {
				return fmt.Errorf("querying greeting id: %w", err)
			}
			if found {
				g.ID = id
			}
		}
		r.db.stamp(ctx, &g.ID, &g.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO voicemail_greetings (id, voicemail_id, greeting_number, filename,
			 description, created, updated, updated_by)
			 VALUES (:id, :voicemail_id, :greeting_number, :filename,
			 :description, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET filename = excluded.filename,
			 description = excluded.description, updated = excluded.updated,
			 updated_by = excluded.updated_by`, g)
		if err != nil {
			return fmt.Errorf("upserting greeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.notifyOwner(ctx, g.VoicemailID)
}

// DeleteGreeting removes a greeting.
func (r *voicemailRepo) DeleteGreeting(ctx context.Context, id string) error {
	var vmID string
	found, err := r.db.get(ctx, r.db, &vmID, `SELECT voicemail_id FROM voicemail_greetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("querying greeting: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM voicemail_greetings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting greeting: %w", err)
	}
	return r.notifyOwner(ctx, vmID)
}

// Messages lists messages in the given states, oldest first. No states means
// every message that is not deleted.
func (r *voicemailRepo) Messages(ctx context.Context, voicemailID string, statuses ...string) ([]models.VoicemailMessage, error) {
	if len(statuses) == 0 {
		statuses = []string{models.MessageNew, models.MessageSaved}
	}
	query, args, err := sqlx.In(
		`SELECT * FROM voicemail_messages WHERE voicemail_id = ? AND status IN (?)
		 ORDER BY created, id`, voicemailID, statuses)
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}
	var out []models.VoicemailMessage
	if err := r.db.list(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return out, nil
}

// GetMessage returns a message by ID.
func (r *voicemailRepo) GetMessage(ctx context.Context, id string) (*models.VoicemailMessage, error) {
	var m models.VoicemailMessage
	found, err := r.db.get(ctx, r.db, &m, `SELECT * FROM voicemail_messages WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &m, nil
}

// CreateMessage inserts a new message.
func (r *voicemailRepo) CreateMessage(ctx context.Context, m *models.VoicemailMessage) error {
	r.db.stamp(ctx, &m.ID, &m.Meta)
	if m.Status == "" {
		m.Status = models.MessageNew
	}
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO voicemail_messages (id, voicemail_id, caller_id_name, caller_id_number,
		 duration, filename, status, read_at, created, updated, updated_by)
		 VALUES (:id, :voicemail_id, :caller_id_name, :caller_id_number,
		 :duration, :filename, :status, :read_at, :created, :updated, :updated_by)`, m)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// SetMessageStatus moves a message between new, saved and deleted. Leaving
// the new state stamps read_at.
func (r *voicemailRepo) SetMessageStatus(ctx context.Context, id, status string) error {
	now := r.db.now()
	query := `UPDATE voicemail_messages SET status = ?, updated = ?, updated_by = ? WHERE id = ?`
	args := []any{status, now, actorFrom(ctx), id}
	if status != models.MessageNew {
		query = `UPDATE voicemail_messages SET status = ?, updated = ?, updated_by = ?,
		 read_at = COALESCE(read_at, ?) WHERE id = ?`
		args = []any{status, now, actorFrom(ctx), now, id}
	}
	res, err := r.db.exec(ctx, r.db, query, args...)
	if err != nil {
		return fmt.Errorf("updating message status: %w", err)
	}
	return checkAffected(res)
}

// CountMessages returns the new and saved message counts.
func (r *voicemailRepo) CountMessages(ctx context.Context, voicemailID string) (int, int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	err := r.db.list(ctx, r.db, &rows,
		`SELECT status, COUNT(*) AS n FROM voicemail_messages
		 WHERE voicemail_id = ? GROUP BY status`, voicemailID)
	if err != nil {
		return 0, 0, fmt.Errorf("counting messages: %w", err)
	}
	var newCount, saved int
	for _, row := range rows {
		switch row.Status {
		case models.MessageNew:
			newCount = row.Count
		case models.MessageSaved:
			saved = row.Count
		}
	}
	return newCount, saved, nil
}

// PurgeDeleted hard-deletes soft-deleted messages last touched before the
// cutoff and returns them so the caller can remove their audio.
func (r *voicemailRepo) PurgeDeleted(ctx context.Context, before time.Time) ([]models.VoicemailMessage, error) {
	var out []models.VoicemailMessage
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.db.list(ctx, tx, &out,
			`SELECT * FROM voicemail_messages WHERE status = ? AND updated < ?`,
			models.MessageDeleted, before); err != nil {
			return fmt.Errorf("querying deleted messages: %w", err)
		}
		if _, err := r.db.exec(ctx, tx,
			`DELETE FROM voicemail_messages WHERE status = ? AND updated < ?`,
			models.MessageDeleted, before); err != nil {
			return fmt.Errorf("purging deleted messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FileReferenced reports whether any message still points at filename.
// Forwarded and fanned-out copies share their original's audio.
func (r *voicemailRepo) FileReferenced(ctx context.Context, filename string) (bool, error) {
	var n []int
	if err := r.db.list(ctx, r.db, &n,
		`SELECT 1 FROM voicemail_messages WHERE filename = ? LIMIT 1`, filename); err != nil {
		return false, fmt.Errorf("querying message files: %w", err)
	}
	return len(n) > 0, nil
}

// Options returns the mailbox's greeting options in sequence order.
func (r *voicemailRepo) Options(ctx context.Context, voicemailID string) ([]models.VoicemailOption, error) {
	var out []models.VoicemailOption
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM voicemail_options WHERE voicemail_id = ? ORDER BY sequence, digits`, voicemailID)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail options: %w", err)
	}
	return out, nil
}

// ReplaceOptions replaces the mailbox's greeting options.
func (r *voicemailRepo) ReplaceOptions(ctx context.Context, voicemailID string, opts []models.VoicemailOption) error {
	return r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.db.exec(ctx, tx, `DELETE FROM voicemail_options WHERE voicemail_id = ?`, voicemailID); err != nil {
			return fmt.Errorf("clearing voicemail options: %w", err)
		}
		for i := range opts {
			o := &opts[i]
			o.VoicemailID = voicemailID
			r.db.stamp(ctx, &o.ID, &o.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO voicemail_options (id, voicemail_id, digits, action, param,
				 sequence, description, created, updated, updated_by)
				 VALUES (:id, :voicemail_id, :digits, :action, :param,
				 :sequence, :description, :created, :updated, :updated_by)`, o); err != nil {
				return fmt.Errorf("inserting voicemail option: %w", err)
			}
		}
		return nil
	})
}

// Destinations returns the mailbox's fan-out list.
func (r *voicemailRepo) Destinations(ctx context.Context, voicemailID string) ([]models.VoicemailDestination, error) {
	var out []models.VoicemailDestination
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM voicemail_destinations WHERE voicemail_id = ? ORDER BY created, id`, voicemailID)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail destinations: %w", err)
	}
	return out, nil
}

// ReplaceDestinations replaces the mailbox's fan-out list. A mailbox never
// forwards to itself.
func (r *voicemailRepo) ReplaceDestinations(ctx context.Context, voicemailID string, dests []models.VoicemailDestination) error {
	return r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.db.exec(ctx, tx, `DELETE FROM voicemail_destinations WHERE voicemail_id = ?`, voicemailID); err != nil {
			return fmt.Errorf("clearing voicemail destinations: %w", err)
		}
		for i := range dests {
			d := &dests[i]
			if d.DestinationVoicemailID == voicemailID {
				continue
			}
			d.VoicemailID = voicemailID
			r.db.stamp(ctx, &d.ID, &d.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO voicemail_destinations (id, voicemail_id, destination_voicemail_id,
				 created, updated, updated_by)
				 VALUES (:id, :voicemail_id, :destination_voicemail_id,
				 :created, :updated, :updated_by)`, d); err != nil {
				return fmt.Errorf("inserting voicemail destination: %w", err)
			}
		}
		return nil
	})
}

// Mailbox returns the extension owning a mailbox, joined with its domain.
func (r *voicemailRepo) Mailbox(ctx context.Context, voicemailID string) (*DirectoryUser, error) {
	var u DirectoryUser
	found, err := r.db.get(ctx, r.db, &u,
		`SELECT e.*, t.name AS domain FROM voicemails v
		 JOIN extensions e ON e.id = v.extension_id
		 JOIN tenants t ON t.id = e.tenant_id
		 WHERE v.id = ?`, voicemailID)
	if err != nil {
		return nil, fmt.Errorf("querying mailbox owner: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (r *voicemailRepo) notifyOwner(ctx context.Context, voicemailID string) error {
	owner, err := r.Mailbox(ctx, voicemailID)
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}
	ref := userRef{Number: owner.Number, Alias: owner.NumberAlias, Domain: owner.Domain}
	r.db.notify(ctx, Change{
		Kind:   KindVoicemail,
		Tenant: owner.Domain,
		Key:    voicemailID,
		Keys:   directoryKeys(ref),
	})
	return nil
}
