package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// callFlowRepo implements CallFlowRepository.
type callFlowRepo struct {
	db *DB
}

// NewCallFlowRepository creates a new CallFlowRepository.
func NewCallFlowRepository(db *DB) CallFlowRepository {
	return &callFlowRepo{db: db}
}

// GetByID returns a call flow by ID.
func (r *callFlowRepo) GetByID(ctx context.Context, id string) (*models.CallFlow, error) {
	var f models.CallFlow
	found, err := r.db.get(ctx, r.db, &f, `SELECT * FROM call_flows WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying call flow: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &f, nil
}

// GetByFeatureCode returns the enabled tenant flow toggled by code.
func (r *callFlowRepo) GetByFeatureCode(ctx context.Context, tenantID, code string) (*models.CallFlow, error) {
	var f models.CallFlow
	found, err := r.db.get(ctx, r.db, &f,
		`SELECT * FROM call_flows WHERE tenant_id = ? AND feature_code = ? AND enabled = ?`,
		tenantID, code, true)
	if err != nil {
		return nil, fmt.Errorf("querying call flow by feature code: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &f, nil
}

// ListByTenant returns a tenant's flows ordered by name.
func (r *callFlowRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.CallFlow, error) {
	var out []models.CallFlow
	if err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM call_flows WHERE tenant_id = ? ORDER BY name`, tenantID); err != nil {
		return nil, fmt.Errorf("querying call flows: %w", err)
	}
	return out, nil
}

// Upsert writes the flow and, when dp is non-nil, its dialplan row. The flow
// is linked to the dialplan before either is written.
func (r *callFlowRepo) Upsert(ctx context.Context, f *models.CallFlow, dp *models.Dialplan) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if dp != nil {
			if dp.ID == "" && f.DialplanID != nil {
				dp.ID = *f.DialplanID
			}
			if err := upsertDialplan(ctx, r.db, tx, dp); err != nil {
				return err
			}
			f.DialplanID = &dp.ID
		}
		r.db.stamp(ctx, &f.ID, &f.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO call_flows (id, tenant_id, dialplan_id, name, extension, feature_code,
			 status, pin, day_label, day_app, day_data, night_label, night_app, night_data,
			 enabled, description, created, updated, updated_by)
			 VALUES (:id, :tenant_id, :dialplan_id, :name, :extension, :feature_code,
			 :status, :pin, :day_label, :day_app, :day_data, :night_label, :night_app, :night_data,
			 :enabled, :description, :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET dialplan_id = excluded.dialplan_id,
			 name = excluded.name, extension = excluded.extension,
			 feature_code = excluded.feature_code, status = excluded.status, pin = excluded.pin,
			 day_label = excluded.day_label, day_app = excluded.day_app,
			 day_data = excluded.day_data, night_label = excluded.night_label,
			 night_app = excluded.night_app, night_data = excluded.night_data,
			 enabled = excluded.enabled, description = excluded.description,
			 updated = excluded.updated, updated_by = excluded.updated_by`, f)
		if err != nil {
			return fmt.Errorf("upserting call flow: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	domain := tenantName(ctx, r.db, &f.TenantID)
	contexts := []string{domain}
	if dp != nil {
		contexts = append(contexts, dp.Context)
	}
	c := dialplanChange(f.ID, domain, contexts...)
	c.Kind = KindCallFlow
	r.db.notify(ctx, c)
	return nil
}

// Delete removes a flow together with its dialplan row.
func (r *callFlowRepo) Delete(ctx context.Context, id string) error {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return ErrNotFound
	}
	err = r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.db.exec(ctx, tx, `DELETE FROM call_flows WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting call flow: %w", err)
		}
		if f.DialplanID != nil {
			if _, err := r.db.exec(ctx, tx, `DELETE FROM dialplans WHERE id = ?`, *f.DialplanID); err != nil {
				return fmt.Errorf("deleting call flow dialplan: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	domain := tenantName(ctx, r.db, &f.TenantID)
	c := dialplanChange(id, domain, domain)
	c.Kind = KindCallFlow
	r.db.notify(ctx, c)
	return nil
}
