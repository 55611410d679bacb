package httapi

import (
	"context"
	"fmt"
)

// RegisterDefaults registers every built-in handler on e.
func RegisterDefaults(e *Engine, core *Core) {
	e.Register("test", &testHandler{core: core})
	e.Register("register", &registerHandler{core: core}, "sofia_profile_name")
	e.Register("voicemail", &voicemailHandler{core: core, temp: e.temp})
	e.Register("conference", &conferenceHandler{core: core, temp: e.temp})
	e.Register("disa", &disaHandler{core: core},
		"pin_number", "destination", "privacy", "disa_context")
	e.Register("recordings", &recordingsHandler{core: core, temp: e.temp},
		"pin_number", "recording_prefix")
	e.Register("callflowtoggle", &callFlowHandler{core: core}, "call_flow_uuid")
	e.Register("ringgroup", &ringGroupHandler{core: core}, "ring_group_uuid")
	e.Register("followme", &followMeHandler{core: core})
	e.Register("followmetoggle", &followMeToggleHandler{core: core})
	e.Register("donotdisturb", &dndHandler{core: core})
	e.Register("callforward", &callForwardHandler{core: core})
	e.Register("callblock", &callBlockHandler{core: core})
	e.Register("speeddial", &speedDialHandler{core: core}, "speed_dial")
	e.Register("agentstatus", &agentStatusHandler{core: core})
	e.Register("ccevent", &ccEventHandler{core: core})
	e.Register("failurehandler", &failureHandler{core: core}, "originate_disposition")
	e.Register("hangup", &hangupHandler{core: core}, "originate_disposition")
}

// testHandler answers with a fixed program for checking switch wiring.
type testHandler struct {
	core *Core
}

func (h *testHandler) Handle(_ context.Context, c *Call) (*Program, error) {
	c.Done()
	h.core.Logger.Info("httapi test request", "session_id", c.Session.ID, "vars", len(c.Request.Params))
	return NewProgram().
		Playback(soundWelcome).
		Log("INFO", "httapi test session "+c.Session.ID).
		Hangup(""), nil
}

// registerHandler asks the caller's phone to resync its provisioning.
type registerHandler struct {
	core *Core
}

func (h *registerHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	c.Done()
	tenant, ext, err := h.core.callerExtension(ctx, c)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return errorProgram(), nil
	}
	profile := c.Var("sofia_profile_name")
	if profile == "" {
		profile = "internal"
	}
	cmd := fmt.Sprintf("sofia profile %s check_sync %s@%s", profile, ext.Number, tenant.Name)
	if err := h.core.Bus.Send(ctx, c.Hostname(), cmd); err != nil {
		h.core.Logger.Warn("resyncing phone", "extension", ext.ID, "error", err)
		return errorProgram(), nil
	}
	return NewProgram().Playback(soundThankYou).Hangup(""), nil
}
