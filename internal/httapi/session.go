package httapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowpbx/switchyard/internal/cache"
)

const sessionPrefix = "httapi:session:"

// Session is the state the engine keeps for one call across requests.
// Handler state is stored per handler name so a call moving between
// handlers keeps each one's progress apart.
type Session struct {
	ID        string                     `json:"id"`
	Hostname  string                     `json:"hostname,omitempty"`
	Created   time.Time                  `json:"created"`
	LastSeen  time.Time                  `json:"last_seen"`
	Vars      map[string]string          `json:"vars,omitempty"`
	States    map[string]json.RawMessage `json:"states,omitempty"`
	TempFiles []string                   `json:"temp_files,omitempty"`
}

// Var returns a persisted call variable.
func (s *Session) Var(name string) string {
	return s.Vars[name]
}

// load decodes the handler's state into v. A handler without state leaves
// v untouched.
func (s *Session) load(handler string, v any) error {
	raw, ok := s.States[handler]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s state: %w", handler, err)
	}
	return nil
}

func (s *Session) save(handler string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", handler, err)
	}
	if s.States == nil {
		s.States = make(map[string]json.RawMessage)
	}
	s.States[handler] = raw
	return nil
}

func (s *Session) register(path string) {
	for _, p := range s.TempFiles {
		if p == path {
			return
		}
	}
	s.TempFiles = append(s.TempFiles, path)
}

func (s *Session) unregister(path string) {
	for i, p := range s.TempFiles {
		if p == path {
			s.TempFiles = append(s.TempFiles[:i], s.TempFiles[i+1:]...)
			return
		}
	}
}

// Sessions persists sessions in a cache. Records outlive the idle TTL so the
// sweeper can still find their temp files; this node's sessions are indexed
// in memory for sweeping and counting.
type Sessions struct {
	cache  cache.Cache
	temp   *TempFiles
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	index map[string]time.Time
}

// NewSessions creates a session store with the given idle TTL.
func NewSessions(c cache.Cache, temp *TempFiles, ttl time.Duration, logger *slog.Logger) *Sessions {
	return &Sessions{
		cache:  c,
		temp:   temp,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "httapi_sessions"),
		index:  make(map[string]time.Time),
	}
}

// Get returns a stored session or nil.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := s.cache.Get(ctx, sessionPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// GetOrCreate returns the stored session or a fresh one. created reports
// which.
func (s *Sessions) GetOrCreate(ctx context.Context, id, hostname string) (sess *Session, created bool, err error) {
	sess, err = s.Get(ctx, id)
	if err != nil || sess != nil {
		return sess, false, err
	}
	now := s.now()
	return &Session{
		ID:       id,
		Hostname: hostname,
		Created:  now,
		LastSeen: now,
		Vars:     make(map[string]string),
	}, true, nil
}

// Put stores sess and marks it active.
func (s *Sessions) Put(ctx context.Context, sess *Session) error {
	sess.LastSeen = s.now()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	if err := s.cache.Set(ctx, sessionPrefix+sess.ID, string(raw), 2*s.ttl); err != nil {
		return fmt.Errorf("storing session %s: %w", sess.ID, err)
	}
	s.mu.Lock()
	s.index[sess.ID] = sess.LastSeen
	s.mu.Unlock()
	return nil
}

// Destroy deletes the session's temp files and its record. It always
// attempts both.
func (s *Sessions) Destroy(ctx context.Context, sess *Session) error {
	fileErr := s.temp.RemoveAll(sess)
	s.mu.Lock()
	delete(s.index, sess.ID)
	s.mu.Unlock()
	if err := s.cache.Delete(ctx, sessionPrefix+sess.ID); err != nil {
		return fmt.Errorf("deleting session %s: %w", sess.ID, err)
	}
	return fileErr
}

// Sweep destroys this node's sessions idle longer than the TTL and returns
// how many it removed. A session touched on another node since is kept.
func (s *Sessions) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	var idle []string
	for id, seen := range s.index {
		if seen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, id := range idle {
		sess, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("sweeping session", "session_id", id, "error", err)
			continue
		}
		if sess == nil {
			sess = &Session{ID: id}
		} else if !sess.LastSeen.Before(cutoff) {
			s.mu.Lock()
			s.index[id] = sess.LastSeen
			s.mu.Unlock()
			continue
		}
		if err := s.Destroy(ctx, sess); err != nil {
			s.logger.Warn("destroying idle session", "session_id", id, "error", err)
		}
		removed++
	}
	return removed
}

// Count returns the number of sessions active on this node.
func (s *Sessions) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index), nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *Sessions) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(ctx); n > 0 {
					s.logger.Info("swept idle httapi sessions", "removed", n)
				}
			}
		}
	}()
}
