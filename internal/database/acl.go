package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// aclRepo implements ACLRepository.
type aclRepo struct {
	db *DB
}

// NewACLRepository creates a new ACLRepository.
func NewACLRepository(db *DB) ACLRepository {
	return &aclRepo{db: db}
}

// List returns every list with its nodes in sequence order.
func (r *aclRepo) List(ctx context.Context) ([]models.ACLList, error) {
	var out []models.ACLList
	if err := r.db.list(ctx, r.db, &out, `SELECT * FROM acl_lists ORDER BY name`); err != nil {
		return nil, fmt.Errorf("querying acl lists: %w", err)
	}
	for i := range out {
		if err := r.db.list(ctx, r.db, &out[i].Nodes,
			`SELECT * FROM acl_nodes WHERE acl_list_id = ? ORDER BY sequence, id`, out[i].ID); err != nil {
			return nil, fmt.Errorf("querying acl nodes: %w", err)
		}
	}
	return out, nil
}

// Upsert writes the list. Non-nil Nodes replace the stored nodes.
func (r *aclRepo) Upsert(ctx context.Context, l *models.ACLList) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &l.ID, &l.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO acl_lists (id, name, default_action, description,
			 created, updated, updated_by)
			 VALUES (:id, :name, :default_action, :description,
			 :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 default_action = excluded.default_action, description = excluded.description,
			 updated = excluded.updated, updated_by = excluded.updated_by`, l)
		if err != nil {
			return fmt.Errorf("upserting acl list: %w", err)
		}
		if l.Nodes == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM acl_nodes WHERE acl_list_id = ?`, l.ID); err != nil {
			return fmt.Errorf("clearing acl nodes: %w", err)
		}
		for i := range l.Nodes {
			n := &l.Nodes[i]
			n.ID = ""
			n.ACLListID = l.ID
			r.db.stamp(ctx, &n.ID, &n.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO acl_nodes (id, acl_list_id, node_type, cidr, domain, sequence,
				 description, created, updated, updated_by)
				 VALUES (:id, :acl_list_id, :node_type, :cidr, :domain, :sequence,
				 :description, :created, :updated, :updated_by)`, n); err != nil {
				return fmt.Errorf("inserting acl node: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, aclChange(l.ID))
	return nil
}

// Delete removes a list and its nodes.
func (r *aclRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM acl_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting acl list: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, aclChange(id))
	return nil
}

func aclChange(id string) Change {
	return Change{Kind: KindACL, Key: id, Keys: []string{cachekey.Configuration("acl.conf")}}
}
