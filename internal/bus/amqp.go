package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange names shared with the switches' AMQP module.
const (
	EventsExchange   = "TAP.Events"
	CommandsExchange = "TAP.Commands"
	routingPrefix    = "FreeSWITCH"
)

// AMQPChannel is the part of an amqp091 channel the transport uses.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDialer opens a channel on a broker connection.
type AMQPDialer func(url string) (AMQPChannel, error)

// connChannel closes its connection along with the channel.
type connChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c *connChannel) Close() error {
	err := c.Channel.Close()
	if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

// DialAMQP is the amqp091 dialer.
func DialAMQP(url string) (AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	return &connChannel{Channel: ch, conn: conn}, nil
}

// AMQP reaches every switch through a topic-routed broker. Commands are
// published to the commands exchange under the switch's name and answered on
// an exclusive reply queue; events arrive from the events exchange.
type AMQP struct {
	url           string
	origin        string
	defaultTarget string
	events        []string
	dial          AMQPDialer
	logger        *slog.Logger

	mu         sync.Mutex
	ch         AMQPChannel
	replyQueue string
}

// NewAMQP creates a broker transport. origin names this node in published
// events; commands without a target go to defaultTarget.
func NewAMQP(url, origin, defaultTarget string, events []string, logger *slog.Logger) *AMQP {
	return &AMQP{
		url:           url,
		origin:        origin,
		defaultTarget: defaultTarget,
		events:        events,
		dial:          DialAMQP,
		logger:        logger.With("component", "amqp"),
	}
}

func (a *AMQP) Name() string { return "amqp" }

func (a *AMQP) Connect(_ context.Context, sink Sink) (<-chan struct{}, error) {
	ch, err := a.dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}
	replies, events, replyQueue, err := a.declare(ch)
	if err != nil {
		ch.Close()
		return nil, err
	}

	a.mu.Lock()
	a.ch = ch
	a.replyQueue = replyQueue
	a.mu.Unlock()

	done := make(chan struct{})
	go a.consume(ch, replies, events, sink, done)
	return done, nil
}

func (a *AMQP) declare(ch AMQPChannel) (replies, events <-chan amqp.Delivery, replyQueue string, err error) {
	for _, ex := range []string{EventsExchange, CommandsExchange} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return nil, nil, "", fmt.Errorf("declaring exchange %s: %w", ex, err)
		}
	}

	rq, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("declaring reply queue: %w", err)
	}
	replies, err = ch.Consume(rq.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("consuming reply queue: %w", err)
	}

	eq, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("declaring event queue: %w", err)
	}
	for _, name := range a.events {
		key := EventBinding(name)
		if strings.Contains(name, "::") {
			key = "*.*." + EventCustom + "." + escapeKeyPart(name) + ".*"
		}
		if err := ch.QueueBind(eq.Name, key, EventsExchange, false, nil); err != nil {
			return nil, nil, "", fmt.Errorf("binding %s: %w", key, err)
		}
	}
	events, err = ch.Consume(eq.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("consuming event queue: %w", err)
	}
	return replies, events, rq.Name, nil
}

func (a *AMQP) consume(ch AMQPChannel, replies, events <-chan amqp.Delivery, sink Sink, done chan struct{}) {
	defer close(done)
	defer func() {
		a.mu.Lock()
		if a.ch == ch {
			a.ch = nil
		}
		a.mu.Unlock()
		ch.Close()
	}()
	for {
		select {
		case d, ok := <-replies:
			if !ok {
				return
			}
			body := strings.TrimRight(string(d.Body), "\n")
			var err error
			if strings.HasPrefix(body, "-ERR") {
				err = errors.New(strings.TrimSpace(strings.TrimPrefix(body, "-ERR")))
			}
			sink.Reply(d.CorrelationId, body, err)
		case d, ok := <-events:
			if !ok {
				return
			}
			ev, err := decodeEvent(d.Body)
			if err != nil {
				a.logger.Warn("dropping undecodable event", "routing_key", d.RoutingKey, "error", err)
				continue
			}
			sink.Event(ev)
		}
	}
}

func (a *AMQP) current() (AMQPChannel, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return nil, "", ErrNotConnected
	}
	return a.ch, a.replyQueue, nil
}

// Command publishes command to target's routing key with a reply address.
func (a *AMQP) Command(ctx context.Context, target, id, command string) error {
	ch, replyQueue, err := a.current()
	if err != nil {
		return err
	}
	if target == "" {
		target = a.defaultTarget
	}
	return ch.PublishWithContext(ctx, CommandsExchange, escapeKeyPart(target), false, false, amqp.Publishing{
		ContentType:   "text/plain",
		CorrelationId: id,
		ReplyTo:       replyQueue,
		Timestamp:     time.Now(),
		Body:          []byte(command),
	})
}

// Publish emits ev on the events exchange in the switches' JSON format.
func (a *AMQP) Publish(ctx context.Context, ev Event) error {
	ch, _, err := a.current()
	if err != nil {
		return err
	}
	ev.Headers = maps.Clone(ev.Headers)
	if ev.Hostname() == "" {
		ev = ev.Set("FreeSWITCH-Hostname", a.origin)
	}
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, EventsExchange, RoutingKey(routingPrefix, ev), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	ch := a.ch
	a.ch = nil
	a.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

// decodeEvent reads a flat JSON event object. Non-string values keep their
// raw text; the _body member becomes the event body.
func decodeEvent(data []byte) (Event, error) {
	headers := make(map[string]string)
	var body string
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		v := string(value)
		if dataType == jsonparser.String {
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return err
			}
			v = s
		}
		if string(key) == "_body" {
			body = v
			return nil
		}
		headers[string(key)] = v
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	ev := fromHeaders(headers, body)
	if ev.Name == "" {
		return Event{}, errors.New("decoding event: missing Event-Name")
	}
	return ev, nil
}

func encodeEvent(ev Event) ([]byte, error) {
	m := make(map[string]string, len(ev.Headers)+3)
	for k, v := range ev.Headers {
		m[k] = v
	}
	m["Event-Name"] = ev.Name
	if ev.Subclass != "" {
		m["Event-Subclass"] = ev.Subclass
	}
	if ev.Body != "" {
		m["_body"] = ev.Body
	}
	return json.Marshal(m)
}
