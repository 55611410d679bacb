package httapi

import (
	"context"

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// featurePresence lights or clears a feature lamp such as dnd+1001@domain.
func featurePresence(feature, number, domain string, on bool) bus.Event {
	state := "terminated"
	if on {
		state = "confirmed"
	}
	account := feature + "+" + number + "@" + domain
	return bus.NewEvent(bus.EventPresenceIn).
		Set("proto", feature).
		Set("event_type", "presence").
		Set("alt_event_type", "dialog").
		Set("Presence-Call-Direction", "outbound").
		Set("from", account).
		Set("login", account).
		Set("unique-id", account).
		Set("answer-state", state)
}

// callerExtension resolves the tenant and the calling extension.
func (c *Core) callerExtension(ctx context.Context, call *Call) (*models.Tenant, *models.Extension, error) {
	tenant, err := c.tenant(ctx, call)
	if err != nil || tenant == nil {
		return nil, nil, err
	}
	ext, err := c.caller(ctx, call, tenant)
	if err != nil || ext == nil {
		return nil, nil, err
	}
	return tenant, ext, nil
}

// saveFeature writes ext and publishes the feature's presence.
func (c *Core) saveFeature(ctx context.Context, tenant *models.Tenant, ext *models.Extension, feature string, on bool) error {
	ext.Settings = nil
	ext.Voicemail = nil
	if err := c.Store.Extensions.Upsert(ctx, ext); err != nil {
		return err
	}
	if c.Bus == nil {
		return nil
	}
	if err := c.Bus.PublishEvent(ctx, featurePresence(feature, ext.Number, tenant.Name, on)); err != nil {
		c.Logger.Warn("publishing feature presence", "feature", feature, "extension", ext.ID, "error", err)
	}
	return nil
}

func featureSound(on bool) string {
	if on {
		return soundFeatureOn
	}
	return soundFeatureOff
}

// dndHandler serves donotdisturb/{on|off|toggle}.
type dndHandler struct {
	core *Core
}

func (h *dndHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	tenant, ext, err := h.core.callerExtension(ctx, c)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return errorProgram(), nil
	}
	switch c.Request.Arg(0) {
	case "on":
		ext.DoNotDisturb = true
	case "off":
		ext.DoNotDisturb = false
	case "toggle", "":
		ext.DoNotDisturb = !ext.DoNotDisturb
	default:
		return errorProgram(), nil
	}
	if ext.DoNotDisturb {
		ext.FollowMeEnabled = false
	}
	if err := h.core.saveFeature(ctx, tenant, ext, "dnd", ext.DoNotDisturb); err != nil {
		return nil, err
	}
	c.Done()
	sound := soundDNDOff
	if ext.DoNotDisturb {
		sound = soundDNDOn
	}
	return NewProgram().Playback(sound).Hangup(""), nil
}

// followMeToggleHandler flips the caller's follow-me.
type followMeToggleHandler struct {
	core *Core
}

func (h *followMeToggleHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	tenant, ext, err := h.core.callerExtension(ctx, c)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return errorProgram(), nil
	}
	ext.FollowMeEnabled = !ext.FollowMeEnabled
	if ext.FollowMeEnabled {
		ext.DoNotDisturb = false
		ext.ForwardAllEnabled = false
	}
	if err := h.core.saveFeature(ctx, tenant, ext, "followme", ext.FollowMeEnabled); err != nil {
		return nil, err
	}
	c.Done()
	return NewProgram().Playback(featureSound(ext.FollowMeEnabled)).Hangup(""), nil
}

type forwardState struct {
	Step string `json:"step"`
}

// callForwardHandler serves callforward/{all|busy|noans}/[destination]. An
// enabled forward is switched off; a disabled one is switched on to the
// given destination, the stored one, or one the caller enters.
type callForwardHandler struct {
	core *Core
}

func (h *callForwardHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st forwardState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	tenant, ext, err := h.core.callerExtension(ctx, c)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return errorProgram(), nil
	}
	enabled, dest := forwardFields(ext, c.Request.Arg(0))
	if enabled == nil {
		return errorProgram(), nil
	}

	switch st.Step {
	case "":
		if *enabled {
			*enabled = false
			break
		}
		if d := c.Request.Arg(1); d != "" {
			*dest = d
		}
		if *dest == "" {
			st.Step = "awaiting-destination"
			return NewProgram().Collect(soundEnterNumber, digitsPound, "#"), c.SetState(st)
		}
		*enabled = true
	case "awaiting-destination":
		d := c.Input()
		if d == "" {
			c.Done()
			return NewProgram().Playback(soundInvalid).Hangup(""), nil
		}
		*dest = d
		*enabled = true
	}

	if *enabled && c.Request.Arg(0) == "all" {
		ext.DoNotDisturb = false
		ext.FollowMeEnabled = false
	}
	if err := h.core.saveFeature(ctx, tenant, ext, "forward", *enabled); err != nil {
		return nil, err
	}
	c.Done()
	return NewProgram().Playback(featureSound(*enabled)).Hangup(""), nil
}

func forwardFields(ext *models.Extension, kind string) (*bool, *string) {
	switch kind {
	case "all":
		return &ext.ForwardAllEnabled, &ext.ForwardAllDestination
	case "busy":
		return &ext.ForwardBusyEnabled, &ext.ForwardBusyDestination
	case "noans":
		return &ext.ForwardNoAnswerEnabled, &ext.ForwardNoAnswerDestination
	}
	return nil, nil
}
