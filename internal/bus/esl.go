package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/0x19/goesl"
)

// ESLConn is the part of a goesl client the transport uses.
type ESLConn interface {
	Send(cmd string) error
	ReadMessage() (*goesl.Message, error)
	Close() error
}

// ESLDialer opens an authenticated event socket connection.
type ESLDialer func(host string, port uint, password string, timeout int) (ESLConn, error)

// DialESL is the goesl dialer.
func DialESL(host string, port uint, password string, timeout int) (ESLConn, error) {
	c, err := goesl.NewClient(host, port, password, timeout)
	if err != nil {
		return nil, err
	}
	go c.Handle()
	return c, nil
}

// ESL talks to the local switch over its inbound event socket. Commands go
// out as bgapi jobs tagged with the correlation id; the BACKGROUND_JOB event
// for that id carries the reply.
type ESL struct {
	host     string
	port     uint
	password string
	timeout  int
	events   []string
	dial     ESLDialer
	logger   *slog.Logger

	mu   sync.Mutex
	conn ESLConn
}

// NewESL creates an event socket transport subscribing to events.
func NewESL(host string, port int, password string, events []string, logger *slog.Logger) *ESL {
	return &ESL{
		host:     host,
		port:     uint(port),
		password: password,
		timeout:  5,
		events:   events,
		dial:     DialESL,
		logger:   logger.With("component", "esl"),
	}
}

func (e *ESL) Name() string { return "esl" }

func (e *ESL) Connect(_ context.Context, sink Sink) (<-chan struct{}, error) {
	conn, err := e.dial(e.host, e.port, e.password, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing event socket %s:%d: %w", e.host, e.port, err)
	}
	if err := conn.Send(subscribeCommand(e.events)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to events: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	done := make(chan struct{})
	go e.read(conn, sink, done)
	return done, nil
}

func (e *ESL) read(conn ESLConn, sink Sink, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			e.logger.Warn("event socket read failed", "error", err)
			e.mu.Lock()
			if e.conn == conn {
				e.conn = nil
			}
			e.mu.Unlock()
			conn.Close()
			return
		}
		e.dispatch(msg, sink)
	}
}

func (e *ESL) dispatch(msg *goesl.Message, sink Sink) {
	switch lookup(msg.Headers, "Content-Type") {
	case "command/reply":
		// Accepted jobs answer later as BACKGROUND_JOB; only refusals matter here.
		if reply := lookup(msg.Headers, "Reply-Text"); strings.HasPrefix(reply, "-ERR") {
			if id := lookup(msg.Headers, "Job-UUID"); id != "" {
				sink.Reply(id, "", errors.New(reply))
			}
		}
	case "text/event-plain", "text/event-json":
		ev := fromHeaders(msg.Headers, string(msg.Body))
		if ev.Name == EventBackgroundJob {
			body := strings.TrimRight(ev.Body, "\n")
			var err error
			if strings.HasPrefix(body, "-ERR") {
				err = errors.New(strings.TrimSpace(strings.TrimPrefix(body, "-ERR")))
			}
			sink.Reply(ev.Header("Job-UUID"), body, err)
			return
		}
		sink.Event(ev)
	case "text/disconnect-notice":
		e.logger.Info("event socket disconnect notice")
	}
}

func (e *ESL) current() (ESLConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, ErrNotConnected
	}
	return e.conn, nil
}

// Command runs command as a background job. The event socket reaches one
// switch, so target is ignored.
func (e *ESL) Command(_ context.Context, _, id, command string) error {
	conn, err := e.current()
	if err != nil {
		return err
	}
	return conn.Send(fmt.Sprintf("bgapi %s\nJob-UUID: %s", command, id))
}

// Publish injects ev into the switch with sendevent.
func (e *ESL) Publish(_ context.Context, ev Event) error {
	conn, err := e.current()
	if err != nil {
		return err
	}
	return conn.Send(sendEventCommand(ev))
}

func (e *ESL) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// subscribeCommand builds the event subscription. Custom subclasses follow
// the CUSTOM keyword.
func subscribeCommand(events []string) string {
	names := []string{EventBackgroundJob}
	var custom []string
	for _, ev := range events {
		if strings.Contains(ev, "::") {
			custom = append(custom, ev)
		} else if ev != EventBackgroundJob {
			names = append(names, ev)
		}
	}
	if len(custom) > 0 {
		names = append(names, EventCustom)
		names = append(names, custom...)
	}
	return "event plain " + strings.Join(names, " ")
}

// sendEventCommand renders ev as a sendevent block with sorted headers.
func sendEventCommand(ev Event) string {
	var b strings.Builder
	b.WriteString("sendevent ")
	b.WriteString(ev.Name)
	if ev.Subclass != "" {
		fmt.Fprintf(&b, "\nEvent-Subclass: %s", ev.Subclass)
	}
	keys := make([]string, 0, len(ev.Headers))
	for k := range ev.Headers {
		if k == "Event-Name" || k == "Event-Subclass" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, ev.Headers[k])
	}
	return b.String()
}
