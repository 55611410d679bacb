package cache

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

	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database"
)

func TestLocalGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(time.Minute)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "directory:201@acme.example", "<user/>", NoExpiry))
	v, ok, err := c.Get(ctx, "directory:201@acme.example")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<user/>", v)

	require.NoError(t, c.Delete(ctx, "directory:201@acme.example"))
	_, ok, _ = c.Get(ctx, "directory:201@acme.example")
	assert.False(t, ok)
}

func TestLocalTTL(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(time.Minute)

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLocalDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(time.Minute)
	for _, k := range []string{
		cachekey.Dialplan("acme.example", ""),
		cachekey.Dialplan("acme.example", "fs1"),
		cachekey.Dialplan("other.example", ""),
		cachekey.Directory("201", "acme.example"),
	} {
		require.NoError(t, c.Set(ctx, k, "x", NoExpiry))
	}

	require.NoError(t, c.DeletePrefix(ctx, cachekey.DialplanHosts("acme.example")))
	_, ok, _ := c.Get(ctx, cachekey.Dialplan("acme.example", "fs1"))
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, cachekey.Dialplan("acme.example", ""))
	assert.True(t, ok, "context key survives its hostname prefix")

	require.NoError(t, c.DeletePrefix(ctx, cachekey.PrefixDialplan))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.DeletePrefix(ctx, ""))
	assert.Equal(t, 0, c.Len())
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(time.Minute)
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "rendered", nil
	}

	v, hit, err := Fetch(ctx, c, "k", NoExpiry, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "rendered", v)

	v, hit, err = Fetch(ctx, c, "k", NoExpiry, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "rendered", v)
	assert.Equal(t, 1, calls)

	_, _, err = Fetch(ctx, c, "other", NoExpiry, func(context.Context) (string, error) {
		return "", errors.New("store down")
	})
	assert.Error(t, err)
	_, ok, _ := c.Get(ctx, "other")
	assert.False(t, ok, "failed loads are not cached")
}

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, `sy:dialplan:a\*b\?c\[d\]`, globEscape("sy:dialplan:a*b?c[d]"))
}

// fakeBus records broadcasts and switch commands.
type fakeBus struct {
	mu       sync.Mutex
	events   []bus.Event
	commands []string
	err      error
}

func (f *fakeBus) PublishEvent(_ context.Context, ev bus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeBus) Send(_ context.Context, target, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, target+" "+command)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoherentNotify(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(time.Minute)
	fb := &fakeBus{}
	co := NewCoherent(local, fb, []string{"fs1", "fs2"}, "node1", discardLogger())

	userKey := cachekey.Directory("201", "acme.example")
	require.NoError(t, local.Set(ctx, userKey, "<user/>", NoExpiry))
	require.NoError(t, local.Set(ctx, cachekey.Groups("acme.example"), "<groups/>", NoExpiry))

	co.Notify(ctx, database.Change{
		Kind: database.KindExtension,
		Keys: []string{userKey, cachekey.Groups("acme.example")},
	})

	_, ok, _ := local.Get(ctx, userKey)
	assert.False(t, ok)
	assert.Equal(t, 0, local.Len())

	require.Len(t, fb.events, 1)
	ev := fb.events[0]
	assert.Equal(t, FlushSubclass, ev.Subclass)
	assert.Equal(t, "node1", ev.Header(headerOrigin))
	assert.Equal(t, userKey+","+cachekey.Groups("acme.example"), ev.Header(headerKeys))

	assert.Equal(t, []string{
		"fs1 xml_flush_cache id 201 acme.example",
		"fs2 xml_flush_cache id 201 acme.example",
	}, fb.commands)
}

func TestCoherentACLReload(t *testing.T) {
	fb := &fakeBus{}
	co := NewCoherent(NewLocal(time.Minute), fb, []string{"fs1"}, "node1", discardLogger())

	co.Notify(context.Background(), database.Change{
		Kind: database.KindACL,
		Keys: []string{cachekey.Configuration("acl.conf")},
	})
	assert.Equal(t, []string{"fs1 reloadacl"}, fb.commands)
}

func TestCoherentBusFailureStillAppliesLocally(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(time.Minute)
	co := NewCoherent(local, &fakeBus{err: bus.ErrNotConnected}, nil, "node1", discardLogger())

	require.NoError(t, local.Set(ctx, "languages:en:x", "v", NoExpiry))
	co.Notify(ctx, database.Change{Kind: database.KindPhrase, Keys: []string{"languages:en:x"}})
	_, ok, _ := local.Get(ctx, "languages:en:x")
	assert.False(t, ok)
}

func TestCoherentRemoteFlush(t *testing.T) {
	ctx := context.Background()
	sender := NewCoherent(NewLocal(time.Minute), &fakeBus{}, nil, "node1", discardLogger())

	remoteCache := NewLocal(time.Minute)
	receiver := NewCoherent(remoteCache, &fakeBus{}, nil, "node2", discardLogger())
	var applied []database.Change
	receiver.OnApply(func(c database.Change) { applied = append(applied, c) })

	require.NoError(t, remoteCache.Set(ctx, "dialplan:acme.example", "x", NoExpiry))
	require.NoError(t, remoteCache.Set(ctx, "dialplan:acme.example@fs1", "x", NoExpiry))
	require.NoError(t, remoteCache.Set(ctx, "directory:201@acme.example", "x", NoExpiry))

	ev := sender.flushEvent(database.Change{
		Kind:     database.KindDialplan,
		Keys:     []string{"dialplan:acme.example"},
		Prefixes: []string{"dialplan:acme.example@"},
	})
	receiver.HandleEvent(ctx, ev)
	assert.Equal(t, 1, remoteCache.Len())
	require.Len(t, applied, 1)
	assert.Equal(t, database.KindDialplan, applied[0].Kind)

	// Own broadcasts are ignored.
	sender.HandleEvent(ctx, ev)

	receiver.HandleEvent(ctx, sender.flushEvent(database.Change{Kind: "flush", Prefixes: []string{""}}))
	assert.Equal(t, 0, remoteCache.Len())
}
