package httapi

import (
	"context"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// Call block actions.
const (
	BlockReject    = "reject"
	BlockBusy      = "busy"
	BlockHold      = "hold"
	BlockVoicemail = "voicemail"
)

// callBlockHandler screens inbound calls by caller ID. An unmatched call
// gets an empty program and continues through the dialplan.
type callBlockHandler struct {
	core *Core
}

func (h *callBlockHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	c.Done()
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return NewProgram(), nil
	}
	blocks, err := h.core.Store.CallBlocks.ListEnabled(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	number, name := c.Var("caller_id_number"), c.Var("caller_id_name")
	for _, b := range blocks {
		if !blockMatches(b, number, name) {
			continue
		}
		if err := h.core.Store.CallBlocks.IncrementCount(ctx, b.ID); err != nil {
			h.core.Logger.Warn("counting blocked call", "call_block", b.ID, "error", err)
		}
		h.core.Logger.Info("blocked call", "tenant", tenant.Name, "call_block", b.ID, "caller_id_number", number)
		return blockAction(b, tenant), nil
	}
	return NewProgram(), nil
}

// blockMatches requires every non-empty field of b to match.
func blockMatches(b models.CallBlock, number, name string) bool {
	if b.Number == "" && b.Name == "" {
		return false
	}
	if b.Number != "" && b.Number != number {
		return false
	}
	if b.Name != "" && b.Name != name {
		return false
	}
	return true
}

func blockAction(b models.CallBlock, tenant *models.Tenant) *Program {
	p := NewProgram()
	switch b.App {
	case BlockReject, "":
		return p.Hangup("CALL_REJECTED")
	case BlockBusy:
		return p.Hangup("USER_BUSY")
	case BlockHold:
		return p.Execute("endless_playback", "local_stream://default")
	case BlockVoicemail:
		return p.Transfer(voicemailCode+b.Data, tenant.Name)
	}
	return p.Execute(b.App, b.Data)
}

// speedDialHandler transfers a speed dial code to its destination.
type speedDialHandler struct {
	core *Core
}

func (h *speedDialHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	c.Done()
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return errorProgram(), nil
	}
	code := c.Request.Arg(0)
	if code == "" {
		code = c.Var("speed_dial")
	}
	if code == "" {
		code = c.Var("destination_number")
	}
	var extID string
	if ext, err := h.core.caller(ctx, c, tenant); err != nil {
		return nil, err
	} else if ext != nil {
		extID = ext.ID
	}
	sd, err := h.core.Store.SpeedDials.Find(ctx, tenant.ID, extID, code)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return NewProgram().Playback(soundInvalid).Hangup(""), nil
	}
	return NewProgram().Transfer(sd.Destination, tenant.Name), nil
}
