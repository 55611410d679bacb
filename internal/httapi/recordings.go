package httapi

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/flowpbx/switchyard/internal/database/models"
)

const maxRecordingSeconds = 600

type recordingsState struct {
	Step     string `json:"step"`
	Attempts int    `json:"attempts,omitempty"`
	Number   string `json:"number,omitempty"`
	Take     string `json:"take,omitempty"`
}

// recordingsHandler records tenant prompts by phone. The dialplan supplies
// pin_number and recording_prefix; the caller picks a number and the take is
// saved as <tenant>/<prefix><number>.wav.
type recordingsHandler struct {
	core *Core
	temp *TempFiles
}

func (h *recordingsHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st recordingsState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	p, err := h.step(ctx, c, &st)
	if err != nil {
		return nil, err
	}
	return p, c.SetState(st)
}

func askNumber(p *Program) *Program {
	return p.Collect(soundEnterID, digitsPound, "#")
}

func (h *recordingsHandler) record(c *Call, p *Program) *Program {
	return p.Playback(soundRecordMessage).
		Record(h.temp.Path(c.Session.ID, "recording.wav"), maxRecordingSeconds)
}

func (h *recordingsHandler) step(ctx context.Context, c *Call, st *recordingsState) (*Program, error) {
	switch st.Step {
	case "":
		if c.Var("pin_number") != "" {
			st.Step = "awaiting-pin"
			return askPIN(NewProgram()), nil
		}
		st.Step = "awaiting-number"
		return askNumber(NewProgram()), nil

	case "awaiting-pin":
		if p, ok := checkPIN(c, c.Var("pin_number"), &st.Attempts); !ok {
			return p, nil
		}
		st.Step = "awaiting-number"
		return askNumber(NewProgram()), nil

	case "awaiting-number":
		n := c.Input()
		if n == "" {
			c.Done()
			return NewProgram().Playback(soundInvalid).Hangup(""), nil
		}
		st.Number = n
		st.Step = "recording"
		return h.record(c, NewProgram()), nil

	case "recording":
		if c.Upload == "" {
			return h.record(c, NewProgram()), nil
		}
		st.Take = c.Upload
		st.Step = "review"
		return reviewMenu(NewProgram()), nil

	case "review":
		switch c.Input() {
		case "1":
			return reviewMenu(NewProgram().Playback(st.Take)), nil
		case "2":
			if err := h.save(ctx, c, st); err != nil {
				return nil, err
			}
			c.Done()
			return NewProgram().Playback(soundSaved).Hangup(""), nil
		case "3":
			if err := h.temp.Remove(c.Session, st.Take); err != nil {
				h.core.Logger.Warn("removing recording take", "path", st.Take, "error", err)
			}
			st.Take = ""
			st.Step = "recording"
			return h.record(c, NewProgram()), nil
		}
		return reviewMenu(NewProgram()), nil
	}
	return errorProgram(), nil
}

func (h *recordingsHandler) save(ctx context.Context, c *Call, st *recordingsState) error {
	tenant, err := h.core.tenant(ctx, c)
	if err != nil {
		return err
	}
	if tenant == nil {
		return fmt.Errorf("recording for unknown tenant %q", c.Var("domain_name"))
	}
	name := c.Var("recording_prefix") + st.Number + ".wav"

	f, err := os.Open(st.Take)
	if err != nil {
		return fmt.Errorf("opening take: %w", err)
	}
	err = h.core.Recordings.Save(ctx, path.Join(tenant.Name, name), f)
	f.Close()
	if err != nil {
		return fmt.Errorf("saving recording %s: %w", name, err)
	}
	if err := h.temp.Remove(c.Session, st.Take); err != nil {
		h.core.Logger.Warn("removing recording take", "path", st.Take, "error", err)
	}

	rec, err := h.core.Store.Recordings.GetByFilename(ctx, tenant.ID, name)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.Recording{TenantID: tenant.ID, Filename: name, Name: c.Var("recording_prefix") + st.Number}
	}
	return h.core.Store.Recordings.Upsert(ctx, rec)
}
