// Package switchsync writes configuration files that the switches read from
// disk instead of through xml_curl: gateway includes and local_stream.conf.
// Every file is pushed to every switch it applies to, then the switch is told
// to reload it.
package switchsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/config"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/fsxml"
)

// Status is the outcome of a write to one switch.
type Status int

const (
	StatusOK          Status = 1
	StatusBusError    Status = -1
	StatusNoDirectory Status = -2
	StatusWriteFailed Status = -3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusError:
		return "bus error"
	case StatusNoDirectory:
		return "directory missing"
	case StatusWriteFailed:
		return "write failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrNotFound is returned when the entity to sync does not exist.
var ErrNotFound = errors.New("not found")

const localStreamFile = "autoload_configs/local_stream.conf.xml"

// Files is a switch's configuration directory.
type Files interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
}

// Target is one switch. Dial opens its configuration directory; the returned
// closer ends the connection.
type Target struct {
	Name string
	Dial func(ctx context.Context) (Files, io.Closer, error)
}

// Commander sends commands to a named switch.
type Commander interface {
	Send(ctx context.Context, target, command string) error
}

// Syncer pushes configuration files to the switches.
type Syncer struct {
	store   *database.Store
	bus     Commander
	targets []Target
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Syncer over targets.
func New(store *database.Store, bus Commander, targets []Target, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, bus: bus, targets: targets, logger: logger, now: time.Now}
}

// Targets builds one SFTP target per configured switch rooted at the
// configuration directory. Without configured switches the local directory
// of this host's switch is used.
func Targets(cfg *config.Config) []Target {
	if len(cfg.Switches) == 0 {
		local := blob.NewLocal(cfg.ConfDir)
		return []Target{{
			Name: cfg.Hostname,
			Dial: func(context.Context) (Files, io.Closer, error) {
				return local, nopCloser{}, nil
			},
		}}
	}
	targets := make([]Target, 0, len(cfg.Switches))
	for _, sw := range cfg.Switches {
		targets = append(targets, Target{
			Name: sw.Name,
			Dial: func(context.Context) (Files, io.Closer, error) {
				s, err := blob.DialSFTP(blob.SFTPConfig{
					Host:     sw.Address,
					Port:     sw.SSHPort,
					User:     sw.SSHUser,
					Password: sw.Password,
					KeyFile:  sw.KeyFile,
					Root:     cfg.ConfDir,
				})
				if err != nil {
					return nil, nil, err
				}
				return s, s, nil
			},
		})
	}
	return targets
}

// write saves content as name on t after checking that dir exists, then
// runs the reload commands.
func (s *Syncer) write(ctx context.Context, t Target, dir, name, content string, remove bool, commands ...string) Status {
	files, closer, err := t.Dial(ctx)
	if err != nil {
		s.logger.Warn("connecting to switch", "switch", t.Name, "error", err)
		return StatusWriteFailed
	}
	defer closer.Close()

	ok, err := files.Exists(ctx, dir)
	if err != nil || !ok {
		s.logger.Warn("switch directory missing", "switch", t.Name, "dir", dir, "error", err)
		return StatusNoDirectory
	}
	if remove {
		err = files.Delete(ctx, name)
		if errors.Is(err, blob.ErrNotExist) {
			err = nil
		}
	} else {
		err = files.Save(ctx, name, strings.NewReader(content))
	}
	if err != nil {
		s.logger.Warn("writing switch file", "switch", t.Name, "name", name, "error", err)
		return StatusWriteFailed
	}
	for _, cmd := range commands {
		if err := s.bus.Send(ctx, t.Name, cmd); err != nil {
			s.logger.Warn("reloading switch", "switch", t.Name, "command", cmd, "error", err)
			return StatusBusError
		}
	}
	return StatusOK
}

// SyncGateway writes the gateway's include file under its profile on every
// switch it belongs to and rescans the profile. A disabled gateway's file is
// removed and the gateway killed. The gateway is marked synchronised when
// every switch succeeded.
func (s *Syncer) SyncGateway(ctx context.Context, id string) (map[string]Status, error) {
	g, err := s.store.Gateways.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("gateway %s: %w", id, ErrNotFound)
	}
	profile, err := s.store.SIPProfiles.GetByID(ctx, g.SIPProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("sip profile %s of gateway %s: %w", g.SIPProfileID, id, ErrNotFound)
	}
	content, err := fsxml.RenderGatewayInclude(*g)
	if err != nil {
		return nil, err
	}

	dir := path.Join("sip_profiles", profile.Name)
	name := path.Join(dir, g.ID+".xml")
	commands := []string{"sofia profile " + profile.Name + " rescan"}
	if !g.Enabled {
		commands = []string{"sofia profile " + profile.Name + " killgw " + g.ID}
	}

	out := make(map[string]Status)
	for _, t := range s.targets {
		if !applies(t.Name, g.Hostname) || !applies(t.Name, profile.Hostname) {
			continue
		}
		out[t.Name] = s.write(ctx, t, dir, name, content, !g.Enabled, commands...)
	}
	if allOK(out) {
		if err := s.store.Gateways.MarkSynchronised(ctx, g.ID, s.now()); err != nil {
			return out, err
		}
	}
	s.logger.Info("gateway synced", "gateway_id", g.ID, "profile", profile.Name, "statuses", out)
	return out, nil
}

// SyncLocalStream rewrites local_stream.conf on every switch and reloads
// mod_local_stream.
func (s *Syncer) SyncLocalStream(ctx context.Context) (map[string]Status, error) {
	streams, err := s.store.MusicOnHold.List(ctx)
	if err != nil {
		return nil, err
	}
	tenants, err := s.store.Tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	domains := make(map[string]string, len(tenants))
	for _, t := range tenants {
		domains[t.ID] = t.Name
	}
	content, err := fsxml.RenderLocalStreamFile(streams, domains)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Status)
	for _, t := range s.targets {
		out[t.Name] = s.write(ctx, t, path.Dir(localStreamFile), localStreamFile, content, false,
			"reload mod_local_stream")
	}
	s.logger.Info("local_stream synced", "streams", len(streams), "statuses", out)
	return out, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func applies(target string, hostname *string) bool {
	return hostname == nil || *hostname == "" || *hostname == target
}

func allOK(statuses map[string]Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if st != StatusOK {
			return false
		}
	}
	return true
}
