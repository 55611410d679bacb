package httapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// Ring strategies.
const (
	StrategySimultaneous = "simultaneous"
	StrategySequence     = "sequence"
	StrategyRollover     = "rollover"
	StrategyEnterprise   = "enterprise"
)

const confirmFile = "ivr/ivr-accept_reject_voicemail.wav"

// leg is one destination of a bridge.
type leg struct {
	destination string
	delay       int
	timeout     int
	prompt      bool
}

// separator joins legs for a strategy: "," rings together, "|" rings in
// turn and ":_:" forks each leg as its own originate.
func separator(strategy string) string {
	switch strategy {
	case StrategySequence, StrategyRollover:
		return "|"
	case StrategyEnterprise:
		return ":_:"
	}
	return ","
}

// endpoint dials local extensions directly and everything else through the
// tenant dialplan.
func (c *Core) endpoint(ctx context.Context, tenant *models.Tenant, destination string) (string, error) {
	ext, err := c.Store.Extensions.GetByNumber(ctx, tenant.ID, destination)
	if err != nil {
		return "", err
	}
	if ext != nil && ext.Enabled {
		return "user/" + ext.Number + "@" + tenant.Name, nil
	}
	return "loopback/" + destination + "/" + tenant.Name, nil
}

// dialString renders legs for bridge. Sequential strategies ignore delays.
func (c *Core) dialString(ctx context.Context, tenant *models.Tenant, strategy string, legs []leg) (string, error) {
	sequential := separator(strategy) == "|"
	parts := make([]string, 0, len(legs))
	for _, l := range legs {
		ep, err := c.endpoint(ctx, tenant, l.destination)
		if err != nil {
			return "", err
		}
		var vars []string
		if l.delay > 0 && !sequential {
			vars = append(vars, "leg_delay_start="+strconv.Itoa(l.delay))
		}
		if l.timeout > 0 {
			vars = append(vars, "leg_timeout="+strconv.Itoa(l.timeout))
		}
		if l.prompt {
			vars = append(vars, "group_confirm_file="+confirmFile, "group_confirm_key=1")
		}
		if len(vars) > 0 {
			ep = "[" + strings.Join(vars, ",") + "]" + ep
		}
		parts = append(parts, ep)
	}
	return strings.Join(parts, separator(strategy)), nil
}

// longest is the longest time any leg can ring.
func longest(legs []leg) int {
	n := 0
	for _, l := range legs {
		if t := l.delay + l.timeout; t > n {
			n = t
		}
	}
	return n
}

// ringGroupHandler bridges a caller to a ring group's members.
type ringGroupHandler struct {
	core *Core
}

func (h *ringGroupHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return errorProgram(), nil
	}

	var rg *models.RingGroup
	if id := c.Var("ring_group_uuid"); id != "" {
		rg, err = h.core.Store.RingGroups.GetByID(ctx, id)
	} else {
		rg, err = h.core.Store.RingGroups.GetByExtension(ctx, tenant.ID, c.Var("destination_number"))
		if err == nil && rg != nil {
			rg, err = h.core.Store.RingGroups.GetByID(ctx, rg.ID)
		}
	}
	if err != nil {
		return nil, err
	}
	if rg == nil || !rg.Enabled || rg.TenantID != tenant.ID {
		return errorProgram(), nil
	}

	legs := make([]leg, 0, len(rg.Destinations))
	for _, d := range rg.Destinations {
		legs = append(legs, leg{destination: d.Destination, delay: d.Delay, timeout: d.Timeout, prompt: d.Prompt})
	}
	c.Done()

	p := NewProgram()
	if len(legs) > 0 {
		dial, err := h.core.dialString(ctx, tenant, rg.Strategy, legs)
		if err != nil {
			return nil, err
		}
		timeout := rg.CallTimeout
		if timeout <= 0 {
			timeout = longest(legs)
		}
		if timeout > 0 {
			p.Var("call_timeout", strconv.Itoa(timeout))
		}
		if rg.Ringback != "" {
			p.Var("ringback", rg.Ringback).Var("transfer_ringback", rg.Ringback)
		}
		if rg.CIDNamePrefix != "" {
			p.Var("effective_caller_id_name", rg.CIDNamePrefix+"#"+c.Var("caller_id_name"))
		}
		p.Var("ring_group_uuid", rg.ID).
			Var("hangup_after_bridge", "true").
			Var("continue_on_fail", "true").
			Execute("bridge", dial)
	}
	return timeoutAction(p, rg.TimeoutApp, rg.TimeoutData), nil
}

// timeoutAction runs app after an unanswered bridge, defaulting to a
// NO_ANSWER hangup.
func timeoutAction(p *Program, app, data string) *Program {
	if app == "" {
		return p.Hangup("NO_ANSWER")
	}
	return p.Execute(app, data)
}

// followMeHandler rings an extension's follow-me list, or the extension
// itself when follow-me is off.
type followMeHandler struct {
	core *Core
}

func (h *followMeHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return errorProgram(), nil
	}
	number := c.Var("dialed_user")
	if number == "" {
		number = c.Var("destination_number")
	}
	ext, err := h.core.Store.Extensions.GetByNumber(ctx, tenant.ID, number)
	if err != nil {
		return nil, err
	}
	if ext == nil || !ext.Enabled {
		return errorProgram(), nil
	}
	c.Done()

	legs := []leg{{destination: ext.Number, timeout: ext.CallTimeout}}
	if ext.FollowMeEnabled {
		dests, err := h.core.Store.Extensions.FollowMe(ctx, ext.ID)
		if err != nil {
			return nil, err
		}
		if len(dests) > 0 {
			legs = legs[:0]
			for _, d := range dests {
				legs = append(legs, leg{destination: d.Destination, delay: d.Delay, timeout: d.Timeout, prompt: d.Prompt})
			}
		}
	}
	dial, err := h.core.dialString(ctx, tenant, StrategySimultaneous, legs)
	if err != nil {
		return nil, err
	}

	p := NewProgram()
	if t := longest(legs); t > 0 {
		p.Var("call_timeout", strconv.Itoa(t))
	}
	p.Var("hangup_after_bridge", "true").
		Var("continue_on_fail", "true").
		Execute("bridge", dial)
	if ext.ForwardNoAnswerEnabled && ext.ForwardNoAnswerDestination != "" {
		return p.Transfer(ext.ForwardNoAnswerDestination, userContext(ext, tenant)), nil
	}
	return p.Transfer(voicemailCode+ext.Number, userContext(ext, tenant)), nil
}

// voicemailCode prefixes an extension number to reach its mailbox.
const voicemailCode = "*99"

func userContext(ext *models.Extension, tenant *models.Tenant) string {
	if ext.UserContext != "" {
		return ext.UserContext
	}
	return tenant.Name
}
