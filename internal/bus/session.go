package bus

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type request struct {
	id      string
	target  string
	command string
}

// Session is one caller's clear, send, process, get sequence. Responses come
// back in request order. A Session is not safe for concurrent use.
type Session struct {
	bus      *Bus
	requests []request
	got      map[string]Response
	replies  chan Response
}

// Clear drops outstanding requests and collected responses.
func (s *Session) Clear() {
	ids := make([]string, len(s.requests))
	for i, r := range s.requests {
		ids[i] = r.id
	}
	s.bus.forget(ids)
	s.requests = nil
	s.got = make(map[string]Response)
	for {
		select {
		case <-s.replies:
		default:
			return
		}
	}
}

// Send submits command to target. An empty target means the local switch.
func (s *Session) Send(ctx context.Context, command, target string) error {
	id := uuid.NewString()
	if !s.bus.register(id, s) {
		return ErrNotConnected
	}
	if err := s.bus.transport.Command(ctx, target, id, command); err != nil {
		s.bus.forget([]string{id})
		return fmt.Errorf("sending %q: %w", command, err)
	}
	s.requests = append(s.requests, request{id: id, target: target, command: command})
	return nil
}

// Process waits until every request has a reply or timeout elapses. A zero
// timeout uses the bus default. At the deadline the outstanding requests are
// abandoned and ErrTimeout is returned; what has arrived stays available.
func (s *Session) Process(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.bus.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(s.got) < len(s.requests) {
		select {
		case r := <-s.replies:
			if s.outstanding(r.ID) {
				s.got[r.ID] = r
			}
		case <-timer.C:
			s.abandon()
			return ErrTimeout
		case <-ctx.Done():
			s.abandon()
			return ctx.Err()
		}
	}
	return nil
}

// Responses returns the replies received so far in request order.
func (s *Session) Responses() []Response {
	out := make([]Response, 0, len(s.got))
	for _, req := range s.requests {
		r, ok := s.got[req.id]
		if !ok {
			continue
		}
		r.Target = req.target
		r.Command = req.command
		out = append(out, r)
	}
	return out
}

// outstanding reports whether id is a current request still awaiting its
// reply. Late replies to cleared requests do not count.
func (s *Session) outstanding(id string) bool {
	if _, ok := s.got[id]; ok {
		return false
	}
	return slices.ContainsFunc(s.requests, func(r request) bool { return r.id == id })
}

func (s *Session) abandon() {
	var ids []string
	for _, r := range s.requests {
		if _, ok := s.got[r.id]; !ok {
			ids = append(ids, r.id)
		}
	}
	s.bus.forget(ids)
}

// deliver is called from the transport's reader; it never blocks.
func (s *Session) deliver(r Response) {
	select {
	case s.replies <- r:
	default:
		go func() {
			select {
			case s.replies <- r:
			case <-time.After(s.bus.timeout):
			}
		}()
	}
}
