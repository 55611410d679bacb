package cdr

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// Subscriber is the part of the switch bus that delivers events.
type Subscriber interface {
	Subscribe(ctx context.Context, fn bus.EventHandler, names ...string)
}

// Subscribe feeds hangup-complete events to Ingest and every other channel
// event to the call timeline until ctx ends.
func (i *Ingestor) Subscribe(ctx context.Context, s Subscriber) {
	s.Subscribe(ctx, i.handleHangup, bus.EventChannelHangupComplete)
	s.Subscribe(ctx, i.handleTimeline, bus.TimelineEvents...)
}

func (i *Ingestor) handleHangup(ctx context.Context, ev bus.Event) {
	if err := i.Timeline(ctx, ev); err != nil {
		i.logger.Warn("appending hangup to timeline", "error", err)
	}
	_, err := i.Ingest(ctx, SourceEvent, FromEvent(ev))
	switch {
	case err == nil, errors.Is(err, ErrDuplicateCDR), errors.Is(err, ErrSkippedLeg):
	default:
		i.logger.Error("ingesting cdr event", "unique_id", ev.Header("Unique-ID"), "error", err)
	}
}

func (i *Ingestor) handleTimeline(ctx context.Context, ev bus.Event) {
	if err := i.Timeline(ctx, ev); err != nil {
		i.logger.Warn("appending timeline event", "event", ev.Name, "unique_id", ev.Header("Unique-ID"), "error", err)
	}
}

// Timeline appends a channel event to its call's timeline. Events already
// recorded under the same sequence are ignored.
func (i *Ingestor) Timeline(ctx context.Context, ev bus.Event) error {
	callUUID := ev.Header("Unique-ID")
	if callUUID == "" {
		return fmt.Errorf("%w: event %s without Unique-ID", ErrInvalidCDRData, ev.Name)
	}
	e := &models.CallTimelineEvent{
		CoreUUID:          ev.Header("Core-UUID"),
		CallUUID:          callUUID,
		Hostname:          ev.Hostname(),
		EventName:         ev.Name,
		EventSubclass:     ev.Subclass,
		EventEpoch:        parseInt64(ev.Header("Event-Date-Timestamp")),
		EventSequence:     parseInt64(ev.Header("Event-Sequence")),
		ChannelState:      ev.Header("Channel-State"),
		CallState:         ev.Header("Channel-Call-State"),
		Direction:         ev.Header("Call-Direction"),
		CallerIDName:      ev.Header("Caller-Caller-ID-Name"),
		CallerIDNumber:    ev.Header("Caller-Caller-ID-Number"),
		DestinationNumber: ev.Header("Caller-Destination-Number"),
		Context:           ev.Header("Caller-Context"),
		Application:       ev.Header("Application"),
		ApplicationData:   ev.Header("Application-Data"),
		OtherLegUUID:      ev.Header("Other-Leg-Unique-ID"),
		HangupCause:       ev.Header("Hangup-Cause"),
	}
	if e.Direction == "" {
		e.Direction = ev.Header("variable_call_direction")
	}

	tenant, err := i.tenant(ctx, FromEvent(ev))
	if err != nil {
		return err
	}
	if tenant != nil {
		e.TenantID = &tenant.ID
	}
	return i.store.CDRs.AppendTimeline(ctx, e)
}

// CallTimeline returns a call's events in the order they happened.
func (i *Ingestor) CallTimeline(ctx context.Context, callUUID string) ([]models.CallTimelineEvent, error) {
	return i.store.CDRs.Timeline(ctx, callUUID)
}
