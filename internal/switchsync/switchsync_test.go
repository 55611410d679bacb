package switchsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
)

type fakeBus struct {
	mu   sync.Mutex
	sent map[string][]string
	fail string
}

func (b *fakeBus) Send(_ context.Context, target, command string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target == b.fail {
		return errors.New("not connected")
	}
	if b.sent == nil {
		b.sent = make(map[string][]string)
	}
	b.sent[target] = append(b.sent[target], command)
	return nil
}

func localTarget(name, dir string) Target {
	files := blob.NewLocal(dir)
	return Target{Name: name, Dial: func(context.Context) (Files, io.Closer, error) {
		return files, nopCloser{}, nil
	}}
}

type fixture struct {
	store   *database.Store
	bus     *fakeBus
	dirs    map[string]string
	syncer  *Syncer
	gateway *models.Gateway
}

func newFixture(t *testing.T, switches ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "switchyard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	profile := &models.SIPProfile{Name: "external", Enabled: true}
	require.NoError(t, store.SIPProfiles.Upsert(ctx, profile))
	gw := &models.Gateway{SIPProfileID: profile.ID, Name: "carrier", Proxy: "sip.carrier.example", Register: true, Enabled: true}
	require.NoError(t, store.Gateways.Upsert(ctx, gw))

	f := &fixture{store: store, bus: &fakeBus{}, dirs: make(map[string]string), gateway: gw}
	var targets []Target
	for _, name := range switches {
		dir := t.TempDir()
		f.dirs[name] = dir
		targets = append(targets, localTarget(name, dir))
	}
	f.syncer = New(store, f.bus, targets, slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) mkdir(t *testing.T, sw, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.dirs[sw], dir), 0o750))
}

func TestSyncGateway(t *testing.T) {
	f := newFixture(t, "fs1", "fs2")
	ctx := context.Background()
	f.mkdir(t, "fs1", "sip_profiles/external")
	f.mkdir(t, "fs2", "sip_profiles/external")

	out, err := f.syncer.SyncGateway(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"fs1": StatusOK, "fs2": StatusOK}, out)

	for _, sw := range []string{"fs1", "fs2"} {
		data, err := os.ReadFile(filepath.Join(f.dirs[sw], "sip_profiles/external", f.gateway.ID+".xml"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `<gateway name="`+f.gateway.ID+`">`)
		assert.Contains(t, string(data), "sip.carrier.example")
		assert.Equal(t, []string{"sofia profile external rescan"}, f.bus.sent[sw])
	}

	gw, err := f.store.Gateways.GetByID(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.NotNil(t, gw.Synchronised)
}

func TestSyncGatewayStatuses(t *testing.T) {
	f := newFixture(t, "fs1", "fs2", "fs3")
	ctx := context.Background()
	f.mkdir(t, "fs1", "sip_profiles/external")
	f.mkdir(t, "fs3", "sip_profiles/external")
	f.bus.fail = "fs3"

	out, err := f.syncer.SyncGateway(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out["fs1"])
	assert.Equal(t, StatusNoDirectory, out["fs2"])
	assert.Equal(t, StatusBusError, out["fs3"])

	gw, err := f.store.Gateways.GetByID(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.Nil(t, gw.Synchronised)
}

func TestSyncDisabledGatewayRemovesFile(t *testing.T) {
	f := newFixture(t, "fs1")
	ctx := context.Background()
	f.mkdir(t, "fs1", "sip_profiles/external")

	_, err := f.syncer.SyncGateway(ctx, f.gateway.ID)
	require.NoError(t, err)

	f.gateway.Enabled = false
	require.NoError(t, f.store.Gateways.Upsert(ctx, f.gateway))
	out, err := f.syncer.SyncGateway(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out["fs1"])
	assert.NoFileExists(t, filepath.Join(f.dirs["fs1"], "sip_profiles/external", f.gateway.ID+".xml"))
	assert.Contains(t, f.bus.sent["fs1"], "sofia profile external killgw "+f.gateway.ID)
}

func TestSyncGatewayPinnedToSwitch(t *testing.T) {
	f := newFixture(t, "fs1", "fs2")
	ctx := context.Background()
	f.mkdir(t, "fs1", "sip_profiles/external")
	host := "fs1"
	f.gateway.Hostname = &host
	require.NoError(t, f.store.Gateways.Upsert(ctx, f.gateway))

	out, err := f.syncer.SyncGateway(ctx, f.gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"fs1": StatusOK}, out)
}

func TestSyncGatewayNotFound(t *testing.T) {
	f := newFixture(t, "fs1")
	_, err := f.syncer.SyncGateway(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncLocalStream(t *testing.T) {
	f := newFixture(t, "fs1")
	ctx := context.Background()
	f.mkdir(t, "fs1", "autoload_configs")

	tenant := &models.Tenant{Name: "acme.example", Enabled: true}
	require.NoError(t, f.store.Tenants.Upsert(ctx, tenant))
	require.NoError(t, f.store.MusicOnHold.Upsert(ctx, &models.MusicOnHold{
		TenantID: &tenant.ID, Name: "jazz", Path: "/var/lib/moh/jazz", Rate: 8000, Enabled: true,
	}))

	out, err := f.syncer.SyncLocalStream(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out["fs1"])

	data, err := os.ReadFile(filepath.Join(f.dirs["fs1"], localStreamFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="acme.example/jazz/8000"`)
	assert.Equal(t, []string{"reload mod_local_stream"}, f.bus.sent["fs1"])
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "directory missing", StatusNoDirectory.String())
	assert.Equal(t, "status(7)", Status(7).String())
}
