package bus

import (
	"strings"
)

// Event names used by the platform.
const (
	EventCustom                = "CUSTOM"
	EventBackgroundJob         = "BACKGROUND_JOB"
	EventPresenceIn            = "PRESENCE_IN"
	EventMessageWaiting        = "MESSAGE_WAITING"
	EventChannelCreate         = "CHANNEL_CREATE"
	EventChannelAnswer         = "CHANNEL_ANSWER"
	EventChannelBridge         = "CHANNEL_BRIDGE"
	EventChannelUnbridge       = "CHANNEL_UNBRIDGE"
	EventChannelHold           = "CHANNEL_HOLD"
	EventChannelUnhold         = "CHANNEL_UNHOLD"
	EventChannelHangup         = "CHANNEL_HANGUP"
	EventChannelHangupComplete = "CHANNEL_HANGUP_COMPLETE"
	EventDTMF                  = "DTMF"
)

// TimelineEvents are the channel events recorded on a call timeline.
var TimelineEvents = []string{
	EventChannelCreate, EventChannelAnswer, EventChannelBridge, EventChannelUnbridge,
	EventChannelHold, EventChannelUnhold, EventChannelHangup, EventDTMF,
}

// Event is a named switch event. Header names are case sensitive as the
// switch sends them.
type Event struct {
	Name     string
	Subclass string
	Headers  map[string]string
	Body     string
}

// NewEvent creates an event with an empty header set.
func NewEvent(name string) Event {
	return Event{Name: name, Headers: make(map[string]string)}
}

// Header returns a header value or "". Names match case-insensitively since
// MIME parsing canonicalizes them.
func (e Event) Header(name string) string {
	return lookup(e.Headers, name)
}

func lookup(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Set stores a header.
func (e Event) Set(name, value string) Event {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[name] = value
	return e
}

// Hostname is the switch that emitted the event.
func (e Event) Hostname() string {
	return e.Header("FreeSWITCH-Hostname")
}

// fromHeaders builds an event from a parsed header block.
func fromHeaders(h map[string]string, body string) Event {
	return Event{
		Name:     lookup(h, "Event-Name"),
		Subclass: lookup(h, "Event-Subclass"),
		Headers:  h,
		Body:     body,
	}
}

// RoutingKey is the topic key the switch's AMQP module publishes the event
// under: prefix, hostname, event name, subclass and unique id.
func RoutingKey(prefix string, e Event) string {
	parts := []string{
		prefix,
		e.Hostname(),
		e.Name,
		e.Subclass,
		e.Header("Unique-ID"),
	}
	for i, p := range parts {
		parts[i] = escapeKeyPart(p)
	}
	return strings.Join(parts, ".")
}

// EventBinding is the binding key matching every event called name.
func EventBinding(name string) string {
	return "*.*." + escapeKeyPart(name) + ".*.*"
}

func escapeKeyPart(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", "#", "_").Replace(s)
}
