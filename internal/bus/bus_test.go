package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCommand struct {
	target, id, command string
}

// fakeTransport records commands and lets the test answer them.
type fakeTransport struct {
	mu        sync.Mutex
	sink      Sink
	done      chan struct{}
	commands  []sentCommand
	published []Event
	onCommand func(c sentCommand)
	failDial  int
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Connect(_ context.Context, sink Sink) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDial > 0 {
		f.failDial--
		return nil, errors.New("refused")
	}
	f.sink = sink
	f.done = make(chan struct{})
	return f.done, nil
}

func (f *fakeTransport) Command(_ context.Context, target, id, command string) error {
	c := sentCommand{target, id, command}
	f.mu.Lock()
	f.commands = append(f.commands, c)
	hook := f.onCommand
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	f.published = append(f.published, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) drop() {
	f.mu.Lock()
	close(f.done)
	f.mu.Unlock()
}

func (f *fakeTransport) sent() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.commands...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T, tr Transport, timeout time.Duration) *Bus {
	t.Helper()
	b := New(tr, timeout, NewBackoff(time.Millisecond, 5*time.Millisecond), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	require.Eventually(t, b.Connected, time.Second, time.Millisecond)
	return b
}

func TestSessionResponsesInRequestOrder(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	s := b.NewSession()
	for _, cmd := range []string{"status", "show calls", "version"} {
		require.NoError(t, s.Send(context.Background(), cmd, "fs1"))
	}

	// Answer in reverse.
	sent := tr.sent()
	for i := len(sent) - 1; i >= 0; i-- {
		b.Reply(sent[i].id, "reply to "+sent[i].command, nil)
	}

	require.NoError(t, s.Process(context.Background(), 0))
	got := s.Responses()
	require.Len(t, got, 3)
	assert.Equal(t, "reply to status", got[0].Body)
	assert.Equal(t, "reply to show calls", got[1].Body)
	assert.Equal(t, "reply to version", got[2].Body)
	assert.Equal(t, "fs1", got[0].Target)
}

func TestSessionTimeoutKeepsArrived(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	s := b.NewSession()
	require.NoError(t, s.Send(context.Background(), "status", ""))
	require.NoError(t, s.Send(context.Background(), "never answered", ""))
	b.Reply(tr.sent()[0].id, "UP", nil)

	err := s.Process(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	got := s.Responses()
	require.Len(t, got, 1)
	assert.Equal(t, "UP", got[0].Body)

	// A late reply for the abandoned request is discarded.
	b.Reply(tr.sent()[1].id, "late", nil)
	assert.Len(t, s.Responses(), 1)
}

func TestSessionClear(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	s := b.NewSession()
	require.NoError(t, s.Send(context.Background(), "status", ""))
	b.Reply(tr.sent()[0].id, "UP", nil)
	s.Clear()

	require.NoError(t, s.Process(context.Background(), 10*time.Millisecond))
	assert.Empty(t, s.Responses())
}

func TestSessionIgnoresRepliesToOtherRequests(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	s := b.NewSession()
	require.NoError(t, s.Send(context.Background(), "status", ""))
	s.deliver(Response{ID: "cleared-request", Body: "stale"})

	err := s.Process(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, s.Responses())
}

func TestExecute(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)
	tr.onCommand = func(c sentCommand) {
		go b.Reply(c.id, "+OK", nil)
	}

	body, err := b.Execute(context.Background(), "fs1", "reloadacl")
	require.NoError(t, err)
	assert.Equal(t, "+OK", body)
}

func TestNotConnected(t *testing.T) {
	b := New(&fakeTransport{}, time.Second, NewBackoff(time.Second, time.Second), discardLogger())

	assert.ErrorIs(t, b.Send(context.Background(), "", "status"), ErrNotConnected)
	assert.ErrorIs(t, b.NewSession().Send(context.Background(), "status", ""), ErrNotConnected)
	assert.ErrorIs(t, b.PublishEvent(context.Background(), NewEvent(EventPresenceIn)), ErrNotConnected)
}

func TestDisconnectFailsPending(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	s := b.NewSession()
	require.NoError(t, s.Send(context.Background(), "status", ""))
	tr.drop()

	require.NoError(t, s.Process(context.Background(), time.Second))
	got := s.Responses()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, ErrNotConnected)

	// Run reconnects after the drop.
	require.Eventually(t, b.Connected, time.Second, time.Millisecond)
}

func TestRunRetriesConnect(t *testing.T) {
	tr := &fakeTransport{failDial: 3}
	b := startBus(t, tr, time.Second)
	assert.True(t, b.Connected())
}

func TestSubscribeByNameAndSubclass(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)

	var mu sync.Mutex
	var names []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Subscribe(ctx, func(_ context.Context, ev Event) {
		mu.Lock()
		names = append(names, ev.Name+"/"+ev.Subclass)
		mu.Unlock()
	}, EventChannelHangupComplete, "switchyard::cache_flush")

	b.Event(Event{Name: EventChannelCreate})
	b.Event(Event{Name: EventChannelHangupComplete})
	b.Event(Event{Name: EventCustom, Subclass: "switchyard::cache_flush"})
	b.Event(Event{Name: EventCustom, Subclass: "other::thing"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"CHANNEL_HANGUP_COMPLETE/", "CUSTOM/switchyard::cache_flush"}, names)
	mu.Unlock()
}

func TestStalledSubscriberDoesNotBlockEvents(t *testing.T) {
	tr := &fakeTransport{}
	b := startBus(t, tr, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stall := make(chan struct{})
	defer close(stall)
	b.Subscribe(ctx, func(context.Context, Event) { <-stall }, EventChannelHangupComplete)

	var mu sync.Mutex
	var seen int
	b.Subscribe(ctx, func(context.Context, Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	}, EventChannelHangupComplete)

	done := make(chan struct{})
	go func() {
		for range subscriberBuffer + 10 {
			b.Event(Event{Name: EventChannelHangupComplete})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event delivery blocked on a stalled subscriber")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen > 0
	}, time.Second, time.Millisecond)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)
	b.jitter = func() float64 { return 0 }

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		2500 * time.Millisecond,
		2500 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i)
	}

	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.Next())

	b.jitter = func() float64 { return 0.999 }
	d := b.Next()
	assert.True(t, d >= time.Second && d < 2*time.Second, "jittered wait %v", d)
}

func TestRoutingKey(t *testing.T) {
	ev := NewEvent(EventChannelHangupComplete).
		Set("FreeSWITCH-Hostname", "fs1.example.com").
		Set("Unique-ID", "abc")
	assert.Equal(t, "FreeSWITCH.fs1_example_com.CHANNEL_HANGUP_COMPLETE..abc", RoutingKey("FreeSWITCH", ev))
	assert.Equal(t, "*.*.PRESENCE_IN.*.*", EventBinding(EventPresenceIn))
}
