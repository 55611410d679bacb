package email

import (
	"context"
	"fmt"
	"path"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// Templates is a subject/body pair.
type Templates struct {
	Subject string
	Body    string
}

// VoicemailTemplates returns the default voicemail templates.
func VoicemailTemplates() Templates {
	return Templates{Subject: DefaultVoicemailSubject, Body: DefaultVoicemailBody}
}

// MissedCallTemplates returns the default missed-call templates.
func MissedCallTemplates() Templates {
	return Templates{Subject: DefaultMissedCallSubject, Body: DefaultMissedCallBody}
}

// VoicemailNotice describes a new voicemail message to announce.
type VoicemailNotice struct {
	To string
	// Policy is one of the models.Attach* values.
	Policy string
	Vars   map[string]string
	// Link is the download URL rendered into {message} for link policies.
	Link string
	// Store and File locate the audio for attach policies.
	Store blob.Blob
	File  string
}

// SendVoicemail renders t with n.Vars and sends it. The audio is attached for
// the attach and both policies; link policies place n.Link in {message}.
func (s *Sender) SendVoicemail(ctx context.Context, t Templates, n VoicemailNotice) error {
	vars := make(map[string]string, len(n.Vars)+1)
	for k, v := range n.Vars {
		vars[k] = v
	}
	if n.Policy == models.AttachLink || n.Policy == models.AttachBoth {
		vars[PlaceholderMessage] = n.Link
	}

	msg, err := renderMessage(t, n.To, vars)
	if err != nil {
		return err
	}

	if n.Policy == models.AttachFile || n.Policy == models.AttachBoth {
		if n.Store == nil || n.File == "" {
			return fmt.Errorf("voicemail attachment requested without audio")
		}
		r, err := n.Store.Open(ctx, n.File)
		if err != nil {
			return fmt.Errorf("reading audio file: %w", err)
		}
		defer r.Close()
		msg.Attachment = &Attachment{
			Filename:    path.Base(n.File),
			ContentType: audioType(n.File),
			Data:        r,
		}
	}
	return s.Send(ctx, msg)
}

// SendMissedCall renders t with vars and sends it to to.
func (s *Sender) SendMissedCall(ctx context.Context, t Templates, to string, vars map[string]string) error {
	msg, err := renderMessage(t, to, vars)
	if err != nil {
		return err
	}
	return s.Send(ctx, msg)
}

func renderMessage(t Templates, to string, vars map[string]string) (Message, error) {
	subject, err := Render(t.Subject, vars)
	if err != nil {
		return Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	body, err := Render(t.Body, vars)
	if err != nil {
		return Message{}, fmt.Errorf("rendering body: %w", err)
	}
	return Message{To: to, Subject: subject, Body: body}, nil
}

func audioType(name string) string {
	if path.Ext(name) == ".mp3" {
		return "audio/mpeg"
	}
	return "audio/wav"
}
