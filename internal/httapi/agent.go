package httapi

import (
	"context"
	"fmt"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// Agent statuses understood by mod_callcenter.
const (
	AgentAvailable = "Available"
	AgentLoggedOut = "Logged Out"
)

type agentState struct {
	Step     string `json:"step"`
	Attempts int    `json:"attempts,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
}

// agentStatusHandler logs a call-centre agent in or out. The agent is the
// caller's extension or is identified by login code.
type agentStatusHandler struct {
	core *Core
}

func (h *agentStatusHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st agentState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	p, err := h.step(ctx, c, &st)
	if err != nil {
		return nil, err
	}
	return p, c.SetState(st)
}

func (h *agentStatusHandler) step(ctx context.Context, c *Call, st *agentState) (*Program, error) {
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return errorProgram(), nil
	}
	repo := h.core.Store.CallCentre

	var agent *models.CallCentreAgent
	switch st.Step {
	case "":
		ext, err := h.core.caller(ctx, c, tenant)
		if err != nil {
			return nil, err
		}
		if ext != nil {
			if agent, err = repo.GetAgentByExtension(ctx, ext.ID); err != nil {
				return nil, err
			}
		}
		if agent == nil {
			st.Step = "awaiting-id"
			return NewProgram().Collect(soundEnterID, digitsPound, "#"), nil
		}
	case "awaiting-id":
		if agent, err = repo.GetAgentByLogin(ctx, tenant.ID, c.Input()); err != nil {
			return nil, err
		}
		if agent == nil {
			c.Done()
			return NewProgram().Playback(soundInvalid).Hangup(""), nil
		}
	case "awaiting-pin":
		if agent, err = repo.GetAgent(ctx, st.AgentID); err != nil {
			return nil, err
		}
		if agent == nil {
			return errorProgram(), nil
		}
		if p, ok := checkPIN(c, agent.PIN, &st.Attempts); !ok {
			return p, nil
		}
	default:
		return errorProgram(), nil
	}

	if agent.TenantID != tenant.ID || !agent.Enabled {
		return errorProgram(), nil
	}
	if agent.PIN != "" && st.Step != "awaiting-pin" {
		st.Step = "awaiting-pin"
		st.AgentID = agent.ID
		return askPIN(NewProgram()), nil
	}

	status, action, sound := AgentAvailable, "login", soundLoggedIn
	if agent.Status != "" && agent.Status != AgentLoggedOut {
		status, action, sound = AgentLoggedOut, "logout", soundLoggedOut
	}
	if err := SetAgentStatus(ctx, h.core, c.Hostname(), agent, status); err != nil {
		return nil, err
	}
	tenantID := tenant.ID
	entry := &models.AgentStatusLog{
		TenantID:  &tenantID,
		AgentName: agent.ID,
		Action:    action,
		Status:    status,
		CallUUID:  c.Var("call_uuid"),
	}
	if err := repo.LogStatus(ctx, entry); err != nil {
		h.core.Logger.Warn("logging agent status", "agent", agent.ID, "error", err)
	}
	c.Done()
	return NewProgram().Playback(sound).Hangup(""), nil
}

// SetAgentStatus pushes status to the switch and stores it.
func SetAgentStatus(ctx context.Context, core *Core, host string, agent *models.CallCentreAgent, status string) error {
	if core.Bus != nil {
		cmd := fmt.Sprintf("callcenter_config agent set status %s '%s'", agent.ID, status)
		if err := core.Bus.Send(ctx, host, cmd); err != nil {
			core.Logger.Warn("setting switch agent status", "agent", agent.ID, "error", err)
		}
	}
	return core.Store.CallCentre.SetAgentStatus(ctx, agent.ID, status)
}

// ccEventHandler records call-centre events posted by the switch.
type ccEventHandler struct {
	core *Core
}

func (h *ccEventHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	c.Done()
	name := c.Var("CC-Agent")
	if name == "" {
		return NewProgram(), nil
	}
	entry := &models.AgentStatusLog{
		AgentName: name,
		QueueName: c.Var("CC-Queue"),
		Action:    c.Var("CC-Action"),
		Status:    c.Var("CC-Agent-Status"),
		State:     c.Var("CC-Agent-State"),
		CallUUID:  c.Var("CC-Member-Session-UUID"),
	}
	if entry.CallUUID == "" {
		entry.CallUUID = c.Var("call_uuid")
	}
	agent, err := h.core.Store.CallCentre.GetAgent(ctx, name)
	if err != nil {
		return nil, err
	}
	if agent != nil {
		entry.TenantID = &agent.TenantID
	}
	if err := h.core.Store.CallCentre.LogStatus(ctx, entry); err != nil {
		return nil, err
	}
	return NewProgram(), nil
}
