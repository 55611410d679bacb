package httapi

import (
	"context"

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/fsxml"
)

type callFlowState struct {
	Step     string `json:"step"`
	Attempts int    `json:"attempts,omitempty"`
	FlowID   string `json:"flow_id,omitempty"`
}

// callFlowHandler flips a call flow between its day and night routes.
type callFlowHandler struct {
	core *Core
}

func (h *callFlowHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st callFlowState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return errorProgram(), nil
	}

	var flow *models.CallFlow
	if st.FlowID != "" {
		flow, err = h.core.Store.CallFlows.GetByID(ctx, st.FlowID)
	} else if id := c.Var("call_flow_uuid"); id != "" {
		flow, err = h.core.Store.CallFlows.GetByID(ctx, id)
	} else {
		flow, err = h.core.Store.CallFlows.GetByFeatureCode(ctx, tenant.ID, c.Var("destination_number"))
	}
	if err != nil {
		return nil, err
	}
	if flow == nil || flow.TenantID != tenant.ID {
		return errorProgram(), nil
	}
	st.FlowID = flow.ID

	if flow.PIN != "" {
		switch st.Step {
		case "":
			st.Step = "awaiting-pin"
			return askPIN(NewProgram()), c.SetState(st)
		case "awaiting-pin":
			if p, ok := checkPIN(c, flow.PIN, &st.Attempts); !ok {
				return p, c.SetState(st)
			}
		}
	}

	if err := ToggleCallFlow(ctx, h.core, tenant, flow); err != nil {
		return nil, err
	}
	c.Done()
	sound := soundNightMode
	if flow.Status {
		sound = soundDayMode
	}
	return NewProgram().Playback(sound).Hangup(""), nil
}

// ToggleCallFlow flips flow's status, rewrites its dialplan and lights the
// feature code's presence. The dialplan write invalidates the tenant's
// context.
func ToggleCallFlow(ctx context.Context, core *Core, tenant *models.Tenant, flow *models.CallFlow) error {
	flow.Status = !flow.Status
	dp, err := CallFlowDialplan(ctx, core, tenant, flow)
	if err != nil {
		return err
	}
	if err := core.Store.CallFlows.Upsert(ctx, flow, dp); err != nil {
		return err
	}
	if core.Bus == nil || flow.FeatureCode == "" {
		return nil
	}
	if err := core.Bus.PublishEvent(ctx, CallFlowPresence(flow, tenant.Name)); err != nil {
		core.Logger.Warn("publishing call flow presence", "call_flow", flow.ID, "error", err)
	}
	return nil
}

// CallFlowDialplan regenerates the dialplan row for flow.
func CallFlowDialplan(ctx context.Context, core *Core, tenant *models.Tenant, flow *models.CallFlow) (*models.Dialplan, error) {
	var existing *models.Dialplan
	if flow.DialplanID != nil {
		var err error
		if existing, err = core.Store.Dialplans.GetByID(ctx, *flow.DialplanID); err != nil {
			return nil, err
		}
	}
	return fsxml.CallFlowDialplan(*flow, tenant.Name, core.Settings.BaseURL, existing)
}

// CallFlowPresence is the PRESENCE_IN event for a flow's feature code. Night
// mode shows as an active dialog so a monitoring lamp lights.
func CallFlowPresence(flow *models.CallFlow, domain string) bus.Event {
	state := "terminated"
	if !flow.Status {
		state = "confirmed"
	}
	account := flow.FeatureCode + "@" + domain
	return bus.NewEvent(bus.EventPresenceIn).
		Set("proto", "flow").
		Set("event_type", "presence").
		Set("alt_event_type", "dialog").
		Set("Presence-Call-Direction", "outbound").
		Set("from", account).
		Set("login", account).
		Set("unique-id", flow.ID).
		Set("answer-state", state)
}
