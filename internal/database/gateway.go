package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// gatewayRepo implements GatewayRepository.
type gatewayRepo struct {
	db *DB
}

// NewGatewayRepository creates a new GatewayRepository.
func NewGatewayRepository(db *DB) GatewayRepository {
	return &gatewayRepo{db: db}
}

// GetByID returns a gateway by ID.
func (r *gatewayRepo) GetByID(ctx context.Context, id string) (*models.Gateway, error) {
	var g models.Gateway
	found, err := r.db.get(ctx, r.db, &g, `SELECT * FROM gateways WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &g, nil
}

// ListByProfile returns enabled gateways of a profile for hostname.
func (r *gatewayRepo) ListByProfile(ctx context.Context, profileID, hostname string) ([]models.Gateway, error) {
	var out []models.Gateway
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM gateways
		 WHERE sip_profile_id = ? AND enabled = ? AND (hostname IS NULL OR hostname = ?)
		 ORDER BY name`, profileID, true, hostname)
	if err != nil {
		return nil, fmt.Errorf("querying profile gateways: %w", err)
	}
	return out, nil
}

// List returns every gateway ordered by name.
func (r *gatewayRepo) List(ctx context.Context) ([]models.Gateway, error) {
	var out []models.Gateway
	if err := r.db.list(ctx, r.db, &out, `SELECT * FROM gateways ORDER BY name`); err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates a gateway and clears its synchronised stamp so
// the next switch sync pushes it again.
func (r *gatewayRepo) Upsert(ctx context.Context, g *models.Gateway) error {
	r.db.stamp(ctx, &g.ID, &g.Meta)
	g.Synchronised = nil
	pinHost(&g.Hostname)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO gateways (id, tenant_id, sip_profile_id, name, username, password,
		 realm, from_user, from_domain, proxy, register_proxy, outbound_proxy,
		 expire_seconds, register, register_transport, retry_seconds, extension, ping,
		 caller_id_in_from, context, hostname, enabled, description,
		 created, updated, updated_by, synchronised)
		 VALUES (:id, :tenant_id, :sip_profile_id, :name, :username, :password,
		 :realm, :from_user, :from_domain, :proxy, :register_proxy, :outbound_proxy,
		 :expire_seconds, :register, :register_transport, :retry_seconds, :extension, :ping,
		 :caller_id_in_from, :context, :hostname, :enabled, :description,
		 :created, :updated, :updated_by, :synchronised)
		 ON CONFLICT (id) DO UPDATE SET tenant_id = excluded.tenant_id,
		 sip_profile_id = excluded.sip_profile_id, name = excluded.name,
		 username = excluded.username, password = excluded.password,
		 realm = excluded.realm, from_user = excluded.from_user,
		 from_domain = excluded.from_domain, proxy = excluded.proxy,
		 register_proxy = excluded.register_proxy, outbound_proxy = excluded.outbound_proxy,
		 expire_seconds = excluded.expire_seconds, register = excluded.register,
		 register_transport = excluded.register_transport,
		 retry_seconds = excluded.retry_seconds, extension = excluded.extension,
		 ping = excluded.ping, caller_id_in_from = excluded.caller_id_in_from,
		 context = excluded.context, hostname = excluded.hostname,
		 enabled = excluded.enabled, description = excluded.description,
		 updated = excluded.updated, updated_by = excluded.updated_by,
		 synchronised = excluded.synchronised`, g)
	if err != nil {
		return fmt.Errorf("upserting gateway: %w", err)
	}
	r.db.notify(ctx, sofiaChange(KindGateway, g.ID))
	return nil
}

// Delete removes a gateway.
func (r *gatewayRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM gateways WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gateway: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, sofiaChange(KindGateway, id))
	return nil
}

// MarkSynchronised records when the gateway was last pushed to every switch.
func (r *gatewayRepo) MarkSynchronised(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.exec(ctx, r.db, `UPDATE gateways SET synchronised = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("marking gateway synchronised: %w", err)
	}
	return checkAffected(res)
}
