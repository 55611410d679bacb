package httapi

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/recording"
)

const (
	confAwaitingPIN  = "awaiting-pin"
	confAwaitingJoin = "awaiting-conf-join"
)

// announceDelay gives a joining member time to enter before their name is
// played to the room.
const announceDelay = 2

type conferenceState struct {
	Step      string `json:"step"`
	Attempts  int    `json:"attempts,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	Moderator bool   `json:"moderator,omitempty"`
}

// conferenceHandler admits callers to a tenant's conference rooms by PIN.
type conferenceHandler struct {
	core *Core
	temp *TempFiles
}

func (h *conferenceHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st conferenceState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	p, err := h.step(ctx, c, &st)
	if err != nil {
		return nil, err
	}
	return p, c.SetState(st)
}

func (h *conferenceHandler) step(ctx context.Context, c *Call, st *conferenceState) (*Program, error) {
	switch st.Step {
	case "":
		st.Step = confAwaitingPIN
		return NewProgram().Collect(soundConfPIN, digitsPound, "#"), nil

	case confAwaitingPIN:
		tenant, err := h.core.tenant(ctx, c)
		if err != nil {
			return nil, err
		}
		if tenant == nil {
			return errorProgram(), nil
		}
		room, moderator, err := h.core.Store.Conferences.FindRoomByPIN(ctx, tenant.ID, c.Input())
		if err != nil {
			return nil, err
		}
		if room == nil || !h.open(room) {
			st.Attempts++
			if st.Attempts >= maxPINAttempts {
				c.Done()
				return NewProgram().Playback(soundConfBadPIN).Hangup(""), nil
			}
			return NewProgram().Playback(soundConfBadPIN).Collect(soundConfPIN, digitsPound, "#"), nil
		}

		if room.MaxMembers > 0 {
			n, err := h.members(ctx, c.Hostname(), conferenceName(tenant, room))
			if err != nil {
				return nil, err
			}
			if n >= room.MaxMembers {
				c.Done()
				return NewProgram().Playback(soundConfLocked).Hangup(""), nil
			}
		}

		st.RoomID = room.ID
		st.Moderator = moderator
		st.Step = confAwaitingJoin
		if room.AnnounceName {
			return NewProgram().
				Playback(soundConfSayName).
				Record(h.temp.Path(c.Session.ID, "name.wav"), 5), nil
		}
		return h.join(ctx, c, tenant, room, st.Moderator, "")

	case confAwaitingJoin:
		tenant, err := h.core.tenant(ctx, c)
		if err != nil {
			return nil, err
		}
		room, err := h.core.Store.Conferences.GetRoom(ctx, st.RoomID)
		if err != nil {
			return nil, err
		}
		if tenant == nil || room == nil {
			return errorProgram(), nil
		}
		return h.join(ctx, c, tenant, room, st.Moderator, c.Upload)
	}
	return errorProgram(), nil
}

// open reports whether the room is enabled and inside its schedule.
func (h *conferenceHandler) open(room *models.ConferenceRoom) bool {
	if !room.Enabled {
		return false
	}
	now := h.core.now()
	if room.StartTime != nil && now.Before(*room.StartTime) {
		return false
	}
	if room.StopTime != nil && now.After(*room.StopTime) {
		return false
	}
	return true
}

// members asks the switch how many are in the room. A room that does not
// exist yet has none.
func (h *conferenceHandler) members(ctx context.Context, host, name string) (int, error) {
	out, err := h.core.Bus.Execute(ctx, host, "conference "+name+" list count")
	if err != nil {
		return 0, fmt.Errorf("counting conference members: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func conferenceName(tenant *models.Tenant, room *models.ConferenceRoom) string {
	return tenant.Name + "-" + room.Name
}

func memberFlags(room *models.ConferenceRoom, moderator bool) string {
	if moderator {
		return "moderator"
	}
	var flags []string
	if room.Mute {
		flags = append(flags, "mute")
	}
	if room.WaitMod {
		flags = append(flags, "wait-mod")
	}
	return strings.Join(flags, "|")
}

func (h *conferenceHandler) join(ctx context.Context, c *Call, tenant *models.Tenant, room *models.ConferenceRoom, moderator bool, nameFile string) (*Program, error) {
	name := conferenceName(tenant, room)
	host := c.Hostname()
	p := NewProgram()

	if nameFile != "" {
		cmd := fmt.Sprintf("sched_api +%d none conference %s play %s", announceDelay, name, nameFile)
		if err := h.core.Bus.Send(ctx, host, cmd); err != nil {
			h.core.Logger.Warn("scheduling name announcement", "conference", name, "error", err)
		}
	}

	if room.Record {
		if err := h.arm(ctx, c, tenant, name); err != nil {
			h.core.Logger.Warn("arming conference recording", "conference", name, "error", err)
		}
		p.Playback(soundConfRecording)
	}

	profile := room.Profile
	if profile == "" {
		profile = "default"
	}
	return p.Conference(profile, memberFlags(room, moderator), name), nil
}

// arm starts the room recording if no other joiner has.
func (h *conferenceHandler) arm(ctx context.Context, c *Call, tenant *models.Tenant, name string) error {
	if h.core.Flags == nil {
		return nil
	}
	won, err := h.core.Flags.Acquire(name)
	if err != nil || !won {
		return err
	}
	id := c.Var("call_uuid")
	if id == "" {
		id = c.Session.ID
	}
	now := h.core.now().In(h.core.location())
	file := path.Join(h.core.Settings.RecordingsDir, recording.ArchiveFile(tenant.Name, now, id, ".wav"))
	cmd := fmt.Sprintf("sched_api +%d none conference %s recording start %s", announceDelay, name, file)
	if err := h.core.Bus.Send(ctx, c.Hostname(), cmd); err != nil {
		if rerr := h.core.Flags.Release(name); rerr != nil {
			h.core.Logger.Warn("releasing conference flag", "conference", name, "error", rerr)
		}
		return err
	}
	return nil
}
