package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// callCentreRepo implements CallCentreRepository.
type callCentreRepo struct {
	db *DB
}

// NewCallCentreRepository creates a new CallCentreRepository.
func NewCallCentreRepository(db *DB) CallCentreRepository {
	return &callCentreRepo{db: db}
}

// Queues returns enabled queues with their tiers.
func (r *callCentreRepo) Queues(ctx context.Context) ([]CallCentreQueue, error) {
	var out []CallCentreQueue
	err := r.db.list(ctx, r.db, &out,
		`SELECT q.*, t.name AS domain
		 FROM call_centre_queues q JOIN tenants t ON t.id = q.tenant_id
		 WHERE q.enabled = ? ORDER BY t.name, q.name`, true)
	if err != nil {
		return nil, fmt.Errorf("querying call centre queues: %w", err)
	}
	for i := range out {
		if err := r.db.list(ctx, r.db, &out[i].Tiers,
			`SELECT * FROM call_centre_tiers WHERE queue_id = ? ORDER BY level, position`, out[i].ID); err != nil {
			return nil, fmt.Errorf("querying call centre tiers: %w", err)
		}
	}
	return out, nil
}

// Agents returns enabled agents.
func (r *callCentreRepo) Agents(ctx context.Context) ([]CallCentreAgent, error) {
	var out []CallCentreAgent
	err := r.db.list(ctx, r.db, &out,
		`SELECT a.*, t.name AS domain
		 FROM call_centre_agents a JOIN tenants t ON t.id = a.tenant_id
		 WHERE a.enabled = ? ORDER BY t.name, a.name`, true)
	if err != nil {
		return nil, fmt.Errorf("querying call centre agents: %w", err)
	}
	return out, nil
}

// GetQueue returns a queue with its tiers.
func (r *callCentreRepo) GetQueue(ctx context.Context, id string) (*models.CallCentreQueue, error) {
	var q models.CallCentreQueue
	found, err := r.db.get(ctx, r.db, &q, `SELECT * FROM call_centre_queues WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying call centre queue: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.db.list(ctx, r.db, &q.Tiers,
		`SELECT * FROM call_centre_tiers WHERE queue_id = ? ORDER BY level, position`, id); err != nil {
		return nil, fmt.Errorf("querying call centre tiers: %w", err)
	}
	return &q, nil
}

// GetAgent returns an agent by ID.
func (r *callCentreRepo) GetAgent(ctx context.Context, id string) (*models.CallCentreAgent, error) {
	return r.getAgent(ctx, `SELECT * FROM call_centre_agents WHERE id = ?`, id)
}

// GetAgentByExtension returns the agent bound to an extension.
func (r *callCentreRepo) GetAgentByExtension(ctx context.Context, extensionID string) (*models.CallCentreAgent, error) {
	return r.getAgent(ctx, `SELECT * FROM call_centre_agents WHERE extension_id = ? AND enabled = ?`, extensionID, true)
}

// GetAgentByLogin returns the tenant agent with the given login code.
func (r *callCentreRepo) GetAgentByLogin(ctx context.Context, tenantID, loginCode string) (*models.CallCentreAgent, error) {
	return r.getAgent(ctx,
		`SELECT * FROM call_centre_agents WHERE tenant_id = ? AND login_code = ? AND enabled = ?`,
		tenantID, loginCode, true)
}

func (r *callCentreRepo) getAgent(ctx context.Context, query string, args ...any) (*models.CallCentreAgent, error) {
	var a models.CallCentreAgent
	found, err := r.db.get(ctx, r.db, &a, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying call centre agent: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &a, nil
}

// SetAgentStatus records an agent's current status.
func (r *callCentreRepo) SetAgentStatus(ctx context.Context, id, status string) error {
	res, err := r.db.exec(ctx, r.db,
		`UPDATE call_centre_agents SET status = ?, updated = ?, updated_by = ? WHERE id = ?`,
		status, r.db.now(), actorFrom(ctx), id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, callCentreChange(id))
	return nil
}

// UpsertQueue writes the queue and, when Tiers is non-nil, replaces its tiers.
func (r *callCentreRepo) UpsertQueue(ctx context.Context, q *models.CallCentreQueue) error {
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r.db.stamp(ctx, &q.ID, &q.Meta)
		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO call_centre_queues (id, tenant_id, name, extension, strategy,
			 moh_sound, record_template, time_base_score, max_wait_time,
			 max_wait_time_with_no_agent, max_wait_time_with_no_agent_time_reached,
			 tier_rules_apply, tier_rule_wait_second, tier_rule_wait_multiply_level,
			 tier_rule_no_agent_no_wait, discard_abandoned_after, abandoned_resume_allowed,
			 announce_sound, announce_frequency, cid_name_prefix, enabled, description,
			 created, updated, updated_by)
			 VALUES (:id, :tenant_id, :name, :extension, :strategy,
			 :moh_sound, :record_template, :time_base_score, :max_wait_time,
			 :max_wait_time_with_no_agent, :max_wait_time_with_no_agent_time_reached,
			 :tier_rules_apply, :tier_rule_wait_second, :tier_rule_wait_multiply_level,
			 :tier_rule_no_agent_no_wait, :discard_abandoned_after, :abandoned_resume_allowed,
			 :announce_sound, :announce_frequency, :cid_name_prefix, :enabled, :description,
			 :created, :updated, :updated_by)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name,
			 extension = excluded.extension, strategy = excluded.strategy,
			 moh_sound = excluded.moh_sound, record_template = excluded.record_template,
			 time_base_score = excluded.time_base_score, max_wait_time = excluded.max_wait_time,
			 max_wait_time_with_no_agent = excluded.max_wait_time_with_no_agent,
			 max_wait_time_with_no_agent_time_reached = excluded.max_wait_time_with_no_agent_time_reached,
			 tier_rules_apply = excluded.tier_rules_apply,
			 tier_rule_wait_second = excluded.tier_rule_wait_second,
			 tier_rule_wait_multiply_level = excluded.tier_rule_wait_multiply_level,
			 tier_rule_no_agent_no_wait = excluded.tier_rule_no_agent_no_wait,
			 discard_abandoned_after = excluded.discard_abandoned_after,
			 abandoned_resume_allowed = excluded.abandoned_resume_allowed,
			 announce_sound = excluded.announce_sound,
			 announce_frequency = excluded.announce_frequency,
			 cid_name_prefix = excluded.cid_name_prefix, enabled = excluded.enabled,
			 description = excluded.description, updated = excluded.updated,
			 updated_by = excluded.updated_by`, q)
		if err != nil {
			return fmt.Errorf("upserting call centre queue: %w", err)
		}
		if q.Tiers == nil {
			return nil
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM call_centre_tiers WHERE queue_id = ?`, q.ID); err != nil {
			return fmt.Errorf("clearing call centre tiers: %w", err)
		}
		for i := range q.Tiers {
			t := &q.Tiers[i]
			t.ID = ""
			t.QueueID = q.ID
			r.db.stamp(ctx, &t.ID, &t.Meta)
			if _, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO call_centre_tiers (id, queue_id, agent_id, level, position,
				 created, updated, updated_by)
				 VALUES (:id, :queue_id, :agent_id, :level, :position,
				 :created, :updated, :updated_by)`, t); err != nil {
				return fmt.Errorf("inserting call centre tier: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.db.notify(ctx, callCentreChange(q.ID))
	return nil
}

// DeleteQueue removes a queue and its tiers.
func (r *callCentreRepo) DeleteQueue(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM call_centre_queues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call centre queue: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, callCentreChange(id))
	return nil
}

// UpsertAgent inserts or updates an agent.
func (r *callCentreRepo) UpsertAgent(ctx context.Context, a *models.CallCentreAgent) error {
	r.db.stamp(ctx, &a.ID, &a.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO call_centre_agents (id, tenant_id, extension_id, name, login_code, pin,
		 agent_type, call_timeout, contact, status, max_no_answer, wrap_up_time,
		 reject_delay_time, busy_delay_time, no_answer_delay_time, enabled,
		 created, updated, updated_by)
		 VALUES (:id, :tenant_id, :extension_id, :name, :login_code, :pin,
		 :agent_type, :call_timeout, :contact, :status, :max_no_answer, :wrap_up_time,
		 :reject_delay_time, :busy_delay_time, :no_answer_delay_time, :enabled,
		 :created, :updated, :updated_by)
		 ON CONFLICT (id) DO UPDATE SET extension_id = excluded.extension_id,
		 name = excluded.name, login_code = excluded.login_code, pin = excluded.pin,
		 agent_type = excluded.agent_type, call_timeout = excluded.call_timeout,
		 contact = excluded.contact, status = excluded.status,
		 max_no_answer = excluded.max_no_answer, wrap_up_time = excluded.wrap_up_time,
		 reject_delay_time = excluded.reject_delay_time,
		 busy_delay_time = excluded.busy_delay_time,
		 no_answer_delay_time = excluded.no_answer_delay_time, enabled = excluded.enabled,
		 updated = excluded.updated, updated_by = excluded.updated_by`, a)
	if err != nil {
		return fmt.Errorf("upserting call centre agent: %w", err)
	}
	r.db.notify(ctx, callCentreChange(a.ID))
	return nil
}

// DeleteAgent removes an agent and its tiers.
func (r *callCentreRepo) DeleteAgent(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM call_centre_agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call centre agent: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.db.notify(ctx, callCentreChange(id))
	return nil
}

// LogStatus appends an agent status history entry.
func (r *callCentreRepo) LogStatus(ctx context.Context, entry *models.AgentStatusLog) error {
	r.db.stamp(ctx, &entry.ID, &entry.Meta)
	_, err := sqlx.NamedExecContext(ctx, r.db,
		`INSERT INTO agent_status_log (id, tenant_id, agent_name, queue_name, action, status,
		 state, call_uuid, created, updated, updated_by)
		 VALUES (:id, :tenant_id, :agent_name, :queue_name, :action, :status,
		 :state, :call_uuid, :created, :updated, :updated_by)`, entry)
	if err != nil {
		return fmt.Errorf("inserting agent status log: %w", err)
	}
	return nil
}

// StatusLog returns an agent's most recent history entries, newest first.
func (r *callCentreRepo) StatusLog(ctx context.Context, agentName string, limit int) ([]models.AgentStatusLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.AgentStatusLog
	err := r.db.list(ctx, r.db, &out,
		`SELECT * FROM agent_status_log WHERE agent_name = ? ORDER BY created DESC, id DESC LIMIT ?`,
		agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying agent status log: %w", err)
	}
	return out, nil
}

func callCentreChange(id string) Change {
	return Change{Kind: KindCallCentre, Key: id, Keys: []string{cachekey.Configuration("callcenter.conf")}}
}
