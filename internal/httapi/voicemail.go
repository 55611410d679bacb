package httapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/email"
	"github.com/flowpbx/switchyard/internal/voicemail"
)

// maxPINAttempts is how many wrong PINs a caller may enter.
const maxPINAttempts = 3

const defaultMaxMessageSeconds = 300

// wavBytesPerSecond is 8 kHz 16-bit mono, the switch's recording default.
const wavBytesPerSecond = 16000

type vmStep string

const (
	vmIdle         vmStep = ""
	vmAwaitingPIN  vmStep = "awaiting-pin"
	vmMainMenu     vmStep = "main-menu"
	vmListen       vmStep = "listen"
	vmForward      vmStep = "fwd"
	vmConfigMenu   vmStep = "config-menu"
	vmChooseGreet  vmStep = "choose-greet"
	vmRecordGreet  vmStep = "record"
	vmRecordReview vmStep = "record-review"
	vmChangePass1  vmStep = "chg-pass-1"
	vmChangePass2  vmStep = "chg-pass-2"
	vmGreeting     vmStep = "greeting"
	vmRecording    vmStep = "recording"
)

// voicemailState is the voicemail handler's per-call progress. Messages is
// the snapshot being listened to, so deliveries during the call do not move
// the cursor.
type voicemailState struct {
	Step      vmStep   `json:"step"`
	Attempts  int      `json:"attempts,omitempty"`
	Folder    string   `json:"folder,omitempty"`
	Messages  []string `json:"messages,omitempty"`
	Cursor    int      `json:"cursor,omitempty"`
	Slot      int      `json:"slot,omitempty"`
	Recording string   `json:"recording,omitempty"`
	NewPass   string   `json:"new_pass,omitempty"`
}

type mailbox struct {
	tenant *models.Tenant
	ext    *models.Extension
	vm     *models.Voicemail
	user   string
	domain string
}

// voicemailHandler serves voicemail/check and voicemail/record, optionally
// followed by /<user>/<domain>.
type voicemailHandler struct {
	core *Core
	temp *TempFiles
}

func (h *voicemailHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	var st voicemailState
	if err := c.State(&st); err != nil {
		return nil, err
	}
	mode := c.Request.Arg(0)
	box, err := h.mailbox(ctx, c, mode)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return errorProgram(), nil
	}

	var p *Program
	switch mode {
	case "record":
		p, err = h.leave(ctx, c, box, &st)
	case "check":
		p, err = h.check(ctx, c, box, &st)
	default:
		return errorProgram(), nil
	}
	if err != nil {
		return nil, err
	}
	return p, c.SetState(st)
}

// Exit keeps a message the caller recorded before hanging up on the
// record prompt.
func (h *voicemailHandler) Exit(ctx context.Context, c *Call) error {
	if c.Request.Arg(0) != "record" || c.Upload == "" {
		return nil
	}
	var st voicemailState
	if err := c.State(&st); err != nil {
		return err
	}
	if st.Step != vmRecording {
		return nil
	}
	box, err := h.mailbox(ctx, c, "record")
	if err != nil || box == nil {
		return err
	}
	return h.store(ctx, c, box)
}

func (h *voicemailHandler) mailbox(ctx context.Context, c *Call, mode string) (*mailbox, error) {
	user, domain := c.Request.Arg(1), c.Request.Arg(2)
	if domain == "" {
		domain = c.Var("domain_name")
	}
	if user == "" {
		switch mode {
		case "check":
			user = c.Var("sip_from_user")
		default:
			user = c.Var("dialed_user")
			if user == "" {
				user = c.Var("destination_number")
			}
		}
	}
	if user == "" || domain == "" {
		return nil, nil
	}

	tenant, err := h.core.Store.Tenants.GetByName(ctx, domain)
	if err != nil || tenant == nil || !tenant.Enabled {
		return nil, err
	}
	ext, err := h.core.Store.Extensions.GetByNumber(ctx, tenant.ID, user)
	if err != nil || ext == nil {
		return nil, err
	}
	vm, err := h.core.Store.Voicemail.GetByExtension(ctx, ext.ID)
	if err != nil || vm == nil || !vm.Enabled {
		return nil, err
	}
	return &mailbox{tenant: tenant, ext: ext, vm: vm, user: ext.Number, domain: tenant.Name}, nil
}

// switchPath is where the switch finds a voicemail blob.
func (h *voicemailHandler) switchPath(name string) string {
	return path.Join(h.core.Settings.VoicemailDir, name)
}

func (h *voicemailHandler) greeting(ctx context.Context, box *mailbox) (string, error) {
	if box.vm.GreetingID > 0 {
		greetings, err := h.core.Store.Voicemail.Greetings(ctx, box.vm.ID)
		if err != nil {
			return "", err
		}
		for _, g := range greetings {
			if g.GreetingNumber == box.vm.GreetingID {
				return h.switchPath(g.Filename), nil
			}
		}
	}
	return phrase("voicemail_play_greeting", box.user), nil
}

func (h *voicemailHandler) maxSeconds() int {
	if n := h.core.Settings.MaxMessageSeconds; n > 0 {
		return n
	}
	return defaultMaxMessageSeconds
}

// leave runs the unauthenticated leg: greeting, options, record, store.
func (h *voicemailHandler) leave(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	switch st.Step {
	case vmIdle:
		greeting, err := h.greeting(ctx, box)
		if err != nil {
			return nil, err
		}
		opts, err := h.core.Store.Voicemail.Options(ctx, box.vm.ID)
		if err != nil {
			return nil, err
		}
		if len(opts) > 0 {
			st.Step = vmGreeting
			return NewProgram().Collect(greeting, oneDigit, ""), nil
		}
		st.Step = vmRecording
		return h.recordMessage(c, NewProgram().Playback(greeting)), nil

	case vmGreeting:
		if digits := c.Input(); digits != "" {
			opts, err := h.core.Store.Voicemail.Options(ctx, box.vm.ID)
			if err != nil {
				return nil, err
			}
			for _, o := range opts {
				if o.Digits == digits {
					return NewProgram().Execute(o.Action, o.Param), nil
				}
			}
		}
		st.Step = vmRecording
		return h.recordMessage(c, NewProgram()), nil

	case vmRecording:
		if c.Upload == "" {
			return NewProgram().Hangup(""), nil
		}
		if err := h.store(ctx, c, box); err != nil {
			return nil, err
		}
		c.Done()
		return NewProgram().Playback(soundGoodbye).Hangup(""), nil
	}
	return errorProgram(), nil
}

func (h *voicemailHandler) recordMessage(c *Call, p *Program) *Program {
	return p.Record(h.temp.Path(c.Session.ID, "message.wav"), h.maxSeconds())
}

// store persists an uploaded message, clones it into fan-out mailboxes,
// lights message-waiting and sends the notification email.
func (h *voicemailHandler) store(ctx context.Context, c *Call, box *mailbox) error {
	id := uuid.NewString()
	file := voicemail.MessageFile(box.domain, box.user, id)
	size, err := h.saveBlob(ctx, c.Upload, file)
	if err != nil {
		return err
	}
	if err := h.temp.Remove(c.Session, c.Upload); err != nil {
		h.core.Logger.Warn("removing voicemail upload", "path", c.Upload, "error", err)
	}

	msg := &models.VoicemailMessage{
		ID:             id,
		VoicemailID:    box.vm.ID,
		CallerIDName:   c.Var("caller_id_name"),
		CallerIDNumber: c.Var("caller_id_number"),
		Duration:       int(size / wavBytesPerSecond),
		Filename:       file,
	}
	if err := h.core.Store.Voicemail.CreateMessage(ctx, msg); err != nil {
		return err
	}
	h.mwi(ctx, box.vm.ID)

	dests, err := h.core.Store.Voicemail.Destinations(ctx, box.vm.ID)
	if err != nil {
		return err
	}
	for _, d := range dests {
		clone := &models.VoicemailMessage{
			VoicemailID:    d.DestinationVoicemailID,
			CallerIDName:   msg.CallerIDName,
			CallerIDNumber: msg.CallerIDNumber,
			Duration:       msg.Duration,
			Filename:       msg.Filename,
		}
		if err := h.core.Store.Voicemail.CreateMessage(ctx, clone); err != nil {
			return err
		}
		h.mwi(ctx, d.DestinationVoicemailID)
	}

	if box.vm.MailTo == "" || h.core.Mailer == nil {
		return nil
	}
	policy := box.vm.AttachFile
	if err := h.email(ctx, box, msg, policy); err != nil {
		h.core.Logger.Warn("sending voicemail email", "mailbox", box.vm.ID, "error", err)
		return nil
	}
	if policy == models.AttachFile && !box.vm.LocalAfterEmail {
		if err := h.core.Store.Voicemail.SetMessageStatus(ctx, msg.ID, models.MessageDeleted); err != nil {
			return err
		}
		h.mwi(ctx, box.vm.ID)
	}
	return nil
}

func (h *voicemailHandler) saveBlob(ctx context.Context, src, name string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := h.core.Voicemail.Save(ctx, name, f); err != nil {
		return 0, fmt.Errorf("saving %s: %w", name, err)
	}
	return fi.Size(), nil
}

func (h *voicemailHandler) mwi(ctx context.Context, voicemailID string) {
	if err := voicemail.Notify(ctx, h.core.Store.Voicemail, h.core.Bus, voicemailID); err != nil {
		h.core.Logger.Warn("sending message waiting", "mailbox", voicemailID, "error", err)
	}
}

func (h *voicemailHandler) email(ctx context.Context, box *mailbox, msg *models.VoicemailMessage, policy string) error {
	notice := email.VoicemailNotice{
		To:     box.vm.MailTo,
		Policy: policy,
		Vars: map[string]string{
			email.CallerIDName:           msg.CallerIDName,
			email.CallerIDNumber:         msg.CallerIDNumber,
			email.VoicemailNameFormatted: voicemail.Account(box.user, box.domain),
			email.MessageDate:            msg.Created.In(h.core.location()).Format("Monday, January 2 2006 3:04 PM"),
			email.MessageDuration:        email.FormatDuration(msg.Duration),
			email.SIPToUser:              box.user,
			email.DialedUser:             box.user,
		},
		Store: h.core.Voicemail,
		File:  msg.Filename,
	}
	if (policy == models.AttachLink || policy == models.AttachBoth) && h.core.Link != nil {
		link, err := h.core.Link(msg.ID)
		if err != nil {
			return err
		}
		notice.Link = link
	}
	return h.core.Mailer.SendVoicemail(ctx, h.core.templates(ctx, "voicemail", email.VoicemailTemplates()), notice)
}

// check runs the owner's authenticated session.
func (h *voicemailHandler) check(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	switch st.Step {
	case vmIdle:
		st.Step = vmAwaitingPIN
		return enterPassword(NewProgram()), nil

	case vmAwaitingPIN:
		if pin := c.Input(); pin != "" && pin == box.vm.Password {
			st.Attempts = 0
			st.Step = vmMainMenu
			newCount, saved, err := h.core.Store.Voicemail.CountMessages(ctx, box.vm.ID)
			if err != nil {
				return nil, err
			}
			p := NewProgram().
				Playback(phrase("voicemail_message_count", strconv.Itoa(newCount), models.MessageNew)).
				Playback(phrase("voicemail_message_count", strconv.Itoa(saved), models.MessageSaved))
			return mainMenu(p), nil
		}
		st.Attempts++
		p := NewProgram().Playback(phrase("voicemail_fail_auth"))
		if st.Attempts >= maxPINAttempts {
			c.Done()
			return p.Hangup(""), nil
		}
		return enterPassword(p), nil

	case vmMainMenu:
		switch c.Input() {
		case "1":
			return h.startListen(ctx, box, st, models.MessageNew)
		case "2":
			return h.startListen(ctx, box, st, models.MessageSaved)
		case "5":
			st.Step = vmConfigMenu
			return configMenu(NewProgram()), nil
		case "*":
			c.Done()
			return NewProgram().Playback(soundGoodbye).Hangup(""), nil
		}
		return mainMenu(NewProgram()), nil

	case vmListen:
		return h.listen(ctx, c, box, st)

	case vmForward:
		return h.forward(ctx, c, box, st)

	case vmConfigMenu:
		switch c.Input() {
		case "1":
			st.Step = vmChooseGreet
			return chooseGreeting(NewProgram()), nil
		case "3":
			st.Step = vmRecordGreet
			st.Slot = 0
			return chooseGreeting(NewProgram()), nil
		case "6":
			st.Step = vmChangePass1
			return enterNewPassword(NewProgram()), nil
		case "*":
			st.Step = vmMainMenu
			return mainMenu(NewProgram()), nil
		}
		return configMenu(NewProgram()), nil

	case vmChooseGreet:
		return h.chooseGreeting(ctx, c, box, st)

	case vmRecordGreet:
		slot, err := strconv.Atoi(c.Input())
		if err != nil || slot < 1 || slot > 9 {
			st.Step = vmConfigMenu
			return configMenu(NewProgram().Playback(soundInvalid)), nil
		}
		st.Slot = slot
		st.Step = vmRecordReview
		st.Recording = ""
		return h.recordGreeting(c, NewProgram()), nil

	case vmRecordReview:
		return h.reviewGreeting(ctx, c, box, st)

	case vmChangePass1:
		pass := c.Input()
		if pass == "" {
			st.Step = vmConfigMenu
			return configMenu(NewProgram()), nil
		}
		st.NewPass = pass
		st.Step = vmChangePass2
		return NewProgram().Collect(phrase("voicemail_reenter_pass", "#"), digitsPound, "#"), nil

	case vmChangePass2:
		if c.Input() != st.NewPass {
			st.NewPass = ""
			st.Step = vmChangePass1
			return enterNewPassword(NewProgram().Playback(phrase("voicemail_change_pass_mismatch"))), nil
		}
		box.vm.Password = st.NewPass
		st.NewPass = ""
		if err := h.core.Store.Voicemail.Upsert(ctx, box.vm); err != nil {
			return nil, err
		}
		st.Step = vmConfigMenu
		return configMenu(NewProgram().Playback(phrase("voicemail_change_pass_done"))), nil
	}
	return errorProgram(), nil
}

func enterPassword(p *Program) *Program {
	return p.Collect(phrase("voicemail_enter_pass", "#"), digitsPound, "#")
}

func enterNewPassword(p *Program) *Program {
	return p.Collect(phrase("voicemail_enter_new_pass", "#"), digitsPound, "#")
}

func mainMenu(p *Program) *Program {
	return p.Collect(phrase("voicemail_menu", "1", "2", "5", "*"), oneDigit, "")
}

func configMenu(p *Program) *Program {
	return p.Collect(phrase("voicemail_config_menu", "1", "3", "6", "*"), oneDigit, "")
}

func chooseGreeting(p *Program) *Program {
	return p.Collect(phrase("voicemail_choose_greeting"), oneDigit, "")
}

func messageMenu(p *Program) *Program {
	return p.Collect(phrase("voicemail_listen_file_check", "1", "2", "5", "7", "8", "9"), oneDigit, "")
}

func (h *voicemailHandler) startListen(ctx context.Context, box *mailbox, st *voicemailState, folder string) (*Program, error) {
	msgs, err := h.core.Store.Voicemail.Messages(ctx, box.vm.ID, folder)
	if err != nil {
		return nil, err
	}
	st.Folder = folder
	st.Messages = st.Messages[:0]
	for _, m := range msgs {
		st.Messages = append(st.Messages, m.ID)
	}
	st.Cursor = 0
	if len(st.Messages) == 0 {
		st.Messages = nil
		st.Step = vmMainMenu
		return mainMenu(NewProgram().Playback(phrase("voicemail_no_messages", folder))), nil
	}
	st.Step = vmListen
	return h.play(ctx, st, NewProgram())
}

// current returns the message under the cursor, skipping ones removed since
// the snapshot.
func (h *voicemailHandler) current(ctx context.Context, st *voicemailState) (*models.VoicemailMessage, error) {
	for st.Cursor < len(st.Messages) {
		m, err := h.core.Store.Voicemail.GetMessage(ctx, st.Messages[st.Cursor])
		if err != nil {
			return nil, err
		}
		if m != nil && m.Status != models.MessageDeleted {
			return m, nil
		}
		st.Cursor++
	}
	return nil, nil
}

func (h *voicemailHandler) play(ctx context.Context, st *voicemailState, p *Program) (*Program, error) {
	m, err := h.current(ctx, st)
	if err != nil {
		return nil, err
	}
	if m == nil {
		st.Step = vmMainMenu
		st.Messages = nil
		return mainMenu(p.Playback(phrase("voicemail_no_more_messages"))), nil
	}
	p.Playback(phrase("voicemail_message_number", st.Folder, strconv.Itoa(st.Cursor+1))).
		Playback(h.switchPath(m.Filename))
	return messageMenu(p), nil
}

func (h *voicemailHandler) next(ctx context.Context, st *voicemailState, p *Program) (*Program, error) {
	st.Cursor++
	return h.play(ctx, st, p)
}

func (h *voicemailHandler) listen(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	m, err := h.current(ctx, st)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return h.play(ctx, st, NewProgram())
	}
	repo := h.core.Store.Voicemail

	switch c.Input() {
	case "1":
		return h.play(ctx, st, NewProgram())
	case "2":
		if err := repo.SetMessageStatus(ctx, m.ID, models.MessageSaved); err != nil {
			return nil, err
		}
		h.mwi(ctx, box.vm.ID)
		return h.next(ctx, st, NewProgram().Playback(phrase("voicemail_ack", "saved")))
	case "5":
		if m.CallerIDNumber == "" {
			return messageMenu(NewProgram().Playback(soundInvalid)), nil
		}
		dialContext := box.ext.UserContext
		if dialContext == "" {
			dialContext = box.domain
		}
		c.Done()
		return NewProgram().Transfer(m.CallerIDNumber, dialContext), nil
	case "7":
		if err := repo.SetMessageStatus(ctx, m.ID, models.MessageDeleted); err != nil {
			return nil, err
		}
		h.mwi(ctx, box.vm.ID)
		return h.next(ctx, st, NewProgram().Playback(phrase("voicemail_ack", "deleted")))
	case "8":
		st.Step = vmForward
		return NewProgram().Collect(phrase("voicemail_forward_enter_extension", "#"), digitsPound, "#"), nil
	case "9":
		if box.vm.MailTo == "" || h.core.Mailer == nil {
			return messageMenu(NewProgram().Playback(soundInvalid)), nil
		}
		policy := box.vm.AttachFile
		if policy == models.AttachNone || policy == "" {
			policy = models.AttachFile
		}
		if err := h.email(ctx, box, m, policy); err != nil {
			h.core.Logger.Warn("emailing voicemail", "message", m.ID, "error", err)
			return messageMenu(NewProgram().Playback(soundInvalid)), nil
		}
		return h.next(ctx, st, NewProgram().Playback(phrase("voicemail_ack", "emailed")))
	case "":
		return h.next(ctx, st, NewProgram())
	}
	return messageMenu(NewProgram().Playback(soundInvalid)), nil
}

// forward saves the current message and gives the target mailbox a new
// copy of it that plays the same audio.
func (h *voicemailHandler) forward(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	st.Step = vmListen
	m, err := h.current(ctx, st)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return h.play(ctx, st, NewProgram())
	}

	invalid := func() (*Program, error) {
		return messageMenu(NewProgram().Playback(phrase("voicemail_invalid_extension"))), nil
	}
	number := c.Input()
	if number == "" {
		return invalid()
	}
	target, err := h.core.Store.Extensions.GetByNumber(ctx, box.tenant.ID, number)
	if err != nil {
		return nil, err
	}
	if target == nil || target.ID == box.ext.ID {
		return invalid()
	}
	dest, err := h.core.Store.Voicemail.GetByExtension(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if dest == nil || !dest.Enabled {
		return invalid()
	}

	if err := h.core.Store.Voicemail.SetMessageStatus(ctx, m.ID, models.MessageSaved); err != nil {
		return nil, err
	}
	clone := &models.VoicemailMessage{
		VoicemailID:    dest.ID,
		CallerIDName:   m.CallerIDName,
		CallerIDNumber: m.CallerIDNumber,
		Duration:       m.Duration,
		Filename:       m.Filename,
	}
	if err := h.core.Store.Voicemail.CreateMessage(ctx, clone); err != nil {
		return nil, err
	}
	h.mwi(ctx, box.vm.ID)
	h.mwi(ctx, dest.ID)
	return h.next(ctx, st, NewProgram().Playback(phrase("voicemail_ack", "forwarded")))
}

func (h *voicemailHandler) chooseGreeting(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	st.Step = vmConfigMenu
	n, err := strconv.Atoi(c.Input())
	if err != nil || n < 0 || n > 9 {
		return configMenu(NewProgram().Playback(soundInvalid)), nil
	}
	if n > 0 {
		greetings, err := h.core.Store.Voicemail.Greetings(ctx, box.vm.ID)
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(greetings, func(g models.VoicemailGreeting) bool { return g.GreetingNumber == n }) {
			return configMenu(NewProgram().Playback(phrase("voicemail_choose_greeting_fail"))), nil
		}
	}
	box.vm.GreetingID = n
	if err := h.core.Store.Voicemail.Upsert(ctx, box.vm); err != nil {
		return nil, err
	}
	return configMenu(NewProgram().Playback(phrase("voicemail_greeting_selected", strconv.Itoa(n)))), nil
}

func (h *voicemailHandler) recordGreeting(c *Call, p *Program) *Program {
	return p.Playback(phrase("voicemail_record_greeting")).
		Record(h.temp.Path(c.Session.ID, "greeting.wav"), 120)
}

func reviewMenu(p *Program) *Program {
	return p.Collect(phrase("voicemail_record_file_check", "1", "2", "3"), oneDigit, "")
}

func (h *voicemailHandler) reviewGreeting(ctx context.Context, c *Call, box *mailbox, st *voicemailState) (*Program, error) {
	if c.Upload != "" {
		st.Recording = c.Upload
		return reviewMenu(NewProgram()), nil
	}
	if st.Recording == "" {
		return h.recordGreeting(c, NewProgram()), nil
	}

	switch c.Input() {
	case "1":
		return reviewMenu(NewProgram().Playback(st.Recording)), nil
	case "2":
		if err := h.saveGreeting(ctx, c, box, st); err != nil {
			return nil, err
		}
		st.Step = vmConfigMenu
		st.Recording = ""
		return configMenu(NewProgram().Playback(soundSaved)), nil
	case "3":
		if err := h.temp.Remove(c.Session, st.Recording); err != nil {
			h.core.Logger.Warn("removing greeting take", "path", st.Recording, "error", err)
		}
		st.Recording = ""
		return h.recordGreeting(c, NewProgram()), nil
	}
	return reviewMenu(NewProgram()), nil
}

func (h *voicemailHandler) saveGreeting(ctx context.Context, c *Call, box *mailbox, st *voicemailState) error {
	file := voicemail.GreetingFile(box.domain, box.user, st.Slot)
	if _, err := h.saveBlob(ctx, st.Recording, file); err != nil {
		return err
	}
	if err := h.temp.Remove(c.Session, st.Recording); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.core.Logger.Warn("removing greeting take", "path", st.Recording, "error", err)
	}

	greetings, err := h.core.Store.Voicemail.Greetings(ctx, box.vm.ID)
	if err != nil {
		return err
	}
	g := &models.VoicemailGreeting{VoicemailID: box.vm.ID, GreetingNumber: st.Slot}
	for _, existing := range greetings {
		if existing.GreetingNumber == st.Slot {
			g = &existing
			break
		}
	}
	g.Filename = file
	if err := h.core.Store.Voicemail.UpsertGreeting(ctx, g); err != nil {
		return err
	}
	box.vm.GreetingID = st.Slot
	return h.core.Store.Voicemail.Upsert(ctx, box.vm)
}
