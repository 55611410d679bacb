package httapi

import (
	"context"
	"strconv"
)

type disaState struct {
	Step     string `json:"step"`
	Attempts int    `json:"attempts,omitempty"`
}

// disaHandler gives PIN holders an outside line. The dialplan supplies
// pin_number and optionally destination, privacy and the dial context.
type disaHandler struct {
	core *Core
}

func (h *disaHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st disaState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	p := h.step(c, &st)
	return p, c.SetState(st)
}

func (h *disaHandler) step(c *Call, st *disaState) *Program {
	switch st.Step {
	case "":
		if c.Var("pin_number") == "" {
			c.Done()
			return errorProgram()
		}
		st.Step = "awaiting-pin"
		return askPIN(NewProgram())

	case "awaiting-pin":
		p, ok := checkPIN(c, c.Var("pin_number"), &st.Attempts)
		if !ok {
			return p
		}
		if dest := c.Var("destination"); dest != "" {
			return h.transfer(c, dest)
		}
		st.Step = "awaiting-destination"
		return NewProgram().Collect(soundEnterNumber, digitsPound, "#")

	case "awaiting-destination":
		dest := c.Input()
		if dest == "" {
			c.Done()
			return NewProgram().Playback(soundInvalid).Hangup("")
		}
		return h.transfer(c, dest)
	}
	return errorProgram()
}

func (h *disaHandler) transfer(c *Call, dest string) *Program {
	c.Done()
	dialContext := c.Var("disa_context")
	if dialContext == "" {
		dialContext = c.Var("domain_name")
	}
	p := NewProgram()
	if private, _ := strconv.ParseBool(c.Var("privacy")); private {
		p.Var("sip_h_Privacy", "id").Var("privacy", "yes")
	}
	return p.Transfer(dest, dialContext)
}
