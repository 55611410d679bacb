package httapi

import (
	"context"

	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/email"
)

// Originate dispositions the failure handler acts on.
const (
	DispositionBusy          = "USER_BUSY"
	DispositionNoAnswer      = "NO_ANSWER"
	DispositionNotRegistered = "USER_NOT_REGISTERED"
	DispositionAbsent        = "SUBSCRIBER_ABSENT"
	DispositionRejected      = "CALL_REJECTED"
	DispositionCancel        = "ORIGINATOR_CANCEL"
)

// dialedExtension resolves the tenant and the extension that was called.
func (c *Core) dialedExtension(ctx context.Context, call *Call) (*models.Tenant, *models.Extension, error) {
	tenant, err := c.tenant(ctx, call)
	if err != nil || tenant == nil {
		return nil, nil, err
	}
	number := call.Var("dialed_user")
	if number == "" {
		number = call.Var("destination_number")
	}
	if number == "" {
		return tenant, nil, nil
	}
	ext, err := c.Store.Extensions.GetByNumber(ctx, tenant.ID, number)
	if err != nil {
		return nil, nil, err
	}
	return tenant, ext, nil
}

// failureHandler routes a failed bridge to the dialed extension's forward
// for the failure, then its mailbox, then a hangup with the same cause.
type failureHandler struct {
	core *Core
}

func (h *failureHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	c.Done()
	disposition := c.Var("originate_disposition")
	tenant, ext, err := h.core.dialedExtension(ctx, c)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return NewProgram().Hangup(disposition), nil
	}

	var enabled bool
	var dest string
	switch disposition {
	case DispositionBusy:
		enabled, dest = ext.ForwardBusyEnabled, ext.ForwardBusyDestination
	case DispositionNoAnswer:
		enabled, dest = ext.ForwardNoAnswerEnabled, ext.ForwardNoAnswerDestination
	case DispositionNotRegistered, DispositionAbsent:
		enabled, dest = ext.ForwardNotRegisteredEnabled, ext.ForwardNotRegisteredDestination
	case DispositionRejected:
	default:
		return NewProgram().Hangup(disposition), nil
	}

	dialContext := userContext(ext, tenant)
	if enabled && dest != "" {
		return NewProgram().
			Var("forwarded_by", ext.Number).
			Transfer(dest, dialContext), nil
	}
	vm, err := h.core.Store.Voicemail.GetByExtension(ctx, ext.ID)
	if err != nil {
		return nil, err
	}
	if vm != nil && vm.Enabled {
		return NewProgram().Transfer(voicemailCode+ext.Number, dialContext), nil
	}
	return NewProgram().Hangup(disposition), nil
}

// hangupHandler runs after teardown. A call the caller abandoned sends the
// dialed extension a missed-call email when it asks for one. The switch may
// report the cancel on a normal post, on the exiting post, or both; the email
// goes out once.
type hangupHandler struct {
	core *Core
}

type hangupState struct {
	Notified bool `json:"notified,omitempty"`
}

func (h *hangupHandler) Handle(ctx context.Context, c *Call) (*Program, error) {
	if err := h.notify(ctx, c); err != nil {
		return nil, err
	}
	return NewProgram(), nil
}

// Exit sends the missed-call email for calls whose only post is the exit.
func (h *hangupHandler) Exit(ctx context.Context, c *Call) error {
	return h.notify(ctx, c)
}

func (h *hangupHandler) notify(ctx context.Context, c *Call) error {
	var st hangupState
	if err := c.State(&st); err != nil {
		return err
	}
	if st.Notified || c.Var("originate_disposition") != DispositionCancel {
		return nil
	}
	_, ext, err := h.core.dialedExtension(ctx, c)
	if err != nil {
		return err
	}
	if ext == nil || ext.MissedCallApp != "email" || ext.MissedCallData == "" || h.core.Mailer == nil {
		return nil
	}
	vars := map[string]string{
		email.CallerIDName:   c.Var("caller_id_name"),
		email.CallerIDNumber: c.Var("caller_id_number"),
		email.SIPToUser:      c.Var("sip_to_user"),
		email.DialedUser:     ext.Number,
		email.MessageDate:    h.core.now().In(h.core.location()).Format("Monday, January 2 2006 3:04 PM"),
	}
	t := h.core.templates(ctx, "missed", email.MissedCallTemplates())
	if err := h.core.Mailer.SendMissedCall(ctx, t, ext.MissedCallData, vars); err != nil {
		h.core.Logger.Warn("sending missed call email", "extension", ext.ID, "error", err)
	}
	st.Notified = true
	return c.SetState(st)
}
