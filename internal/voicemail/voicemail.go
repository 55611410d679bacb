// Package voicemail holds mailbox storage layout, message-waiting
// notification and retention for voicemail audio.
package voicemail

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/database"
)

// MessageFile is the blob name of a message's audio.
func MessageFile(domain, user, messageID string) string {
	return path.Join(domain, user, "msg_"+messageID+".wav")
}

// GreetingFile is the blob name of a numbered greeting.
func GreetingFile(domain, user string, n int) string {
	return path.Join(domain, user, fmt.Sprintf("greeting_%d.wav", n))
}

// Account is the MWI account of a mailbox owner.
func Account(user, domain string) string {
	return user + "@" + domain
}

// MWIEvent builds the message-waiting event for a mailbox with the given
// new and saved counts.
func MWIEvent(user, domain string, newCount, saved int) bus.Event {
	waiting := "no"
	if newCount > 0 {
		waiting = "yes"
	}
	return bus.NewEvent(bus.EventMessageWaiting).
		Set("MWI-Messages-Waiting", waiting).
		Set("MWI-Message-Account", "sip:"+Account(user, domain)).
		Set("MWI-Voice-Message", fmt.Sprintf("%d/%d (0/0)", newCount, saved))
}

// Publisher emits bus events.
type Publisher interface {
	PublishEvent(ctx context.Context, ev bus.Event) error
}

// Notify recounts a mailbox and publishes its message-waiting state.
func Notify(ctx context.Context, repo database.VoicemailRepository, pub Publisher, voicemailID string) error {
	owner, err := repo.Mailbox(ctx, voicemailID)
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}
	newCount, saved, err := repo.CountMessages(ctx, voicemailID)
	if err != nil {
		return err
	}
	user, domain := owner.Number, owner.Domain
	if owner.MWIAccount != "" {
		user = owner.MWIAccount
		if u, d, ok := strings.Cut(owner.MWIAccount, "@"); ok {
			user, domain = u, d
		}
	}
	return pub.PublishEvent(ctx, MWIEvent(user, domain, newCount, saved))
}
