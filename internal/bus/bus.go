// Package bus carries commands to the media switches and events back from
// them. Two transports sit behind one Bus: the switch's event socket for a
// single local switch, and a topic-routed AMQP broker for a cluster.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConnected is returned when the transport has no live connection.
	ErrNotConnected = errors.New("switch bus not connected")

	// ErrTimeout is returned by Session.Process when replies are still
	// outstanding at the deadline.
	ErrTimeout = errors.New("switch bus timeout")
)

// DefaultTimeout bounds Session.Process when no timeout is given.
const DefaultTimeout = 3 * time.Second

// subscriberBuffer is the per-subscriber event queue depth.
const subscriberBuffer = 1024

// Response is the reply to one command.
type Response struct {
	ID      string
	Target  string
	Command string
	Body    string
	Err     error
}

// Sink receives what a transport reads off the wire.
type Sink interface {
	Reply(id, body string, err error)
	Event(ev Event)
}

// Transport is one way of reaching the switches.
type Transport interface {
	Name() string
	// Connect dials and starts delivering replies and events to sink. The
	// returned channel is closed when the connection drops.
	Connect(ctx context.Context, sink Sink) (<-chan struct{}, error)
	// Command submits command to target under the correlation id. An empty
	// target means the local switch.
	Command(ctx context.Context, target, id, command string) error
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// EventHandler consumes subscribed events.
type EventHandler func(ctx context.Context, ev Event)

type subscriber struct {
	names []string
	ch    chan Event
}

// Bus multiplexes sessions and subscribers over one transport.
type Bus struct {
	transport Transport
	timeout   time.Duration
	backoff   *Backoff
	logger    *slog.Logger

	mu          sync.Mutex
	connected   bool
	pending     map[string]*Session
	subscribers []*subscriber
}

// New creates a bus over transport. Call Run to connect.
func New(t Transport, timeout time.Duration, backoff *Backoff, logger *slog.Logger) *Bus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bus{
		transport: t,
		timeout:   timeout,
		backoff:   backoff,
		logger:    logger.With("component", "bus", "transport", t.Name()),
		pending:   make(map[string]*Session),
	}
}

// Run keeps the transport connected until ctx is cancelled, reconnecting
// with backoff after every failure or drop.
func (b *Bus) Run(ctx context.Context) {
	for {
		done, err := b.transport.Connect(ctx, b)
		if err != nil {
			wait := b.backoff.Next()
			b.logger.Warn("switch bus connect failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		b.backoff.Reset()
		b.setConnected(true)
		b.logger.Info("switch bus connected")

		select {
		case <-ctx.Done():
			b.setConnected(false)
			if err := b.transport.Close(); err != nil {
				b.logger.Debug("closing transport", "error", err)
			}
			return
		case <-done:
			b.setConnected(false)
			b.logger.Warn("switch bus connection lost")
		}
	}
}

// Connected reports whether the transport currently has a live connection.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bus) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	orphaned := make(map[string]*Session)
	if !v {
		for id, s := range b.pending {
			orphaned[id] = s
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()
	for id, s := range orphaned {
		s.deliver(Response{ID: id, Err: ErrNotConnected})
	}
}

// NewSession starts a request/response session.
func (b *Bus) NewSession() *Session {
	return &Session{bus: b, replies: make(chan Response, 16), got: make(map[string]Response)}
}

// Send fires a command and does not wait for its reply.
func (b *Bus) Send(ctx context.Context, target, command string) error {
	if !b.Connected() {
		return ErrNotConnected
	}
	if err := b.transport.Command(ctx, target, uuid.NewString(), command); err != nil {
		return fmt.Errorf("sending %q: %w", command, err)
	}
	return nil
}

// Execute runs one command and waits up to the bus timeout for its reply.
func (b *Bus) Execute(ctx context.Context, target, command string) (string, error) {
	s := b.NewSession()
	if err := s.Send(ctx, command, target); err != nil {
		return "", err
	}
	if err := s.Process(ctx, 0); err != nil {
		return "", err
	}
	r := s.Responses()
	if len(r) == 0 {
		return "", ErrTimeout
	}
	return r[0].Body, r[0].Err
}

// PublishEvent emits a named event with headers.
func (b *Bus) PublishEvent(ctx context.Context, ev Event) error {
	if !b.Connected() {
		return ErrNotConnected
	}
	if err := b.transport.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Name, err)
	}
	return nil
}

// Subscribe delivers events whose name or subclass is in names to fn. Each
// subscriber runs on its own goroutine in arrival order until ctx ends.
func (b *Bus) Subscribe(ctx context.Context, fn EventHandler, names ...string) {
	sub := &subscriber{names: names, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.ch:
				fn(ctx, ev)
			}
		}
	}()
}

// Reply implements Sink.
func (b *Bus) Reply(id, body string, err error) {
	b.mu.Lock()
	s, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("reply for unknown request", "id", id)
		return
	}
	s.deliver(Response{ID: id, Body: body, Err: err})
}

// Event implements Sink. It never blocks the transport's reader: a
// subscriber whose queue is full misses the event.
func (b *Bus) Event(ev Event) {
	b.mu.Lock()
	subs := slices.Clone(b.subscribers)
	b.mu.Unlock()
	for _, s := range subs {
		if !slices.Contains(s.names, ev.Name) && (ev.Subclass == "" || !slices.Contains(s.names, ev.Subclass)) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("subscriber queue full, dropping event", "event", ev.Name, "subclass", ev.Subclass)
		}
	}
}

func (b *Bus) register(id string, s *Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return false
	}
	b.pending[id] = s
	return true
}

func (b *Bus) forget(ids []string) {
	b.mu.Lock()
	for _, id := range ids {
		delete(b.pending, id)
	}
	b.mu.Unlock()
}
