package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database"
)

// FlushSubclass is the custom event carrying invalidations between nodes.
const FlushSubclass = "switchyard::cache_flush"

// Headers of a flush event.
const (
	headerOrigin   = "Switchyard-Origin"
	headerKind     = "Switchyard-Kind"
	headerKeys     = "Switchyard-Keys"
	headerPrefixes = "Switchyard-Prefixes"
)

// Broadcaster is the part of the switch bus invalidation needs.
type Broadcaster interface {
	PublishEvent(ctx context.Context, ev bus.Event) error
	Send(ctx context.Context, target, command string) error
}

// Coherent applies store change notices to the local cache, broadcasts them
// to every other node and tells the switches to drop what they hold.
type Coherent struct {
	cache    Cache
	bus      Broadcaster
	switches []string
	origin   string
	logger   *slog.Logger
	onApply  func(database.Change)
}

// NewCoherent creates an invalidator for c. origin identifies this node so
// its own broadcasts are not applied twice.
func NewCoherent(c Cache, b Broadcaster, switches []string, origin string, logger *slog.Logger) *Coherent {
	return &Coherent{
		cache:    c,
		bus:      b,
		switches: switches,
		origin:   origin,
		logger:   logger.With("component", "cache"),
	}
}

// OnApply registers a hook run after every applied change.
func (c *Coherent) OnApply(fn func(database.Change)) {
	c.onApply = fn
}

// Notify implements database.ChangeNotifier.
func (c *Coherent) Notify(ctx context.Context, ch database.Change) {
	if ch.Empty() {
		return
	}
	if err := c.Apply(ctx, ch); err != nil {
		c.logger.Error("applying invalidation", "kind", ch.Kind, "key", ch.Key, "error", err)
	}
	if c.bus == nil {
		return
	}
	if err := c.bus.PublishEvent(ctx, c.flushEvent(ch)); err != nil {
		c.logger.Warn("broadcasting invalidation", "kind", ch.Kind, "error", err)
	}
	c.flushSwitches(ctx, ch)
}

// Apply drops the change's keys and prefixes from the local cache.
func (c *Coherent) Apply(ctx context.Context, ch database.Change) error {
	if len(ch.Keys) > 0 {
		if err := c.cache.Delete(ctx, ch.Keys...); err != nil {
			return err
		}
	}
	for _, p := range ch.Prefixes {
		if err := c.cache.DeletePrefix(ctx, p); err != nil {
			return err
		}
	}
	if c.onApply != nil {
		c.onApply(ch)
	}
	return nil
}

// Flush drops every key below prefix on every node. The empty prefix
// flushes everything.
func (c *Coherent) Flush(ctx context.Context, prefix string) {
	c.Notify(ctx, database.Change{Kind: "flush", Key: prefix, Prefixes: []string{prefix}})
}

// HandleEvent applies a flush broadcast from another node. It is a
// bus.EventHandler for FlushSubclass.
func (c *Coherent) HandleEvent(ctx context.Context, ev bus.Event) {
	if ev.Subclass != FlushSubclass || ev.Header(headerOrigin) == c.origin {
		return
	}
	ch := database.Change{
		Kind:     ev.Header(headerKind),
		Keys:     splitList(ev.Header(headerKeys)),
		Prefixes: splitList(ev.Header(headerPrefixes)),
	}
	// An empty prefix travels as a lone comma.
	if ev.Header(headerPrefixes) == "," {
		ch.Prefixes = []string{""}
	}
	if err := c.Apply(ctx, ch); err != nil {
		c.logger.Error("applying remote invalidation", "origin", ev.Header(headerOrigin), "error", err)
	}
}

func (c *Coherent) flushEvent(ch database.Change) bus.Event {
	prefixes := strings.Join(ch.Prefixes, ",")
	if len(ch.Prefixes) == 1 && ch.Prefixes[0] == "" {
		prefixes = ","
	}
	ev := bus.NewEvent(bus.EventCustom).
		Set(headerOrigin, c.origin).
		Set(headerKind, ch.Kind).
		Set(headerKeys, strings.Join(ch.Keys, ",")).
		Set(headerPrefixes, prefixes)
	ev.Subclass = FlushSubclass
	return ev
}

// flushSwitches drops the switches' own user cache entries and reloads
// their ACLs when network lists change.
func (c *Coherent) flushSwitches(ctx context.Context, ch database.Change) {
	var commands []string
	for _, k := range ch.Keys {
		if user, domain, ok := cachekey.User(k); ok {
			commands = append(commands, fmt.Sprintf("xml_flush_cache id %s %s", user, domain))
		}
	}
	if ch.Kind == database.KindACL {
		commands = append(commands, "reloadacl")
	}
	for _, target := range c.switches {
		for _, cmd := range commands {
			if err := c.bus.Send(ctx, target, cmd); err != nil {
				c.logger.Warn("flushing switch cache", "switch", target, "command", cmd, "error", err)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
