package httapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/email"
	"github.com/flowpbx/switchyard/internal/metrics"
	"github.com/flowpbx/switchyard/internal/recording"
)

type fakeBus struct {
	mu      sync.Mutex
	sent    []string
	events  []bus.Event
	replies map[string]string
}

func (b *fakeBus) Send(_ context.Context, _, command string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, command)
	return nil
}

func (b *fakeBus) Execute(_ context.Context, _, command string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, command)
	return b.replies[command], nil
}

func (b *fakeBus) PublishEvent(_ context.Context, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) commands(prefix string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeMailer struct {
	mu        sync.Mutex
	voicemail []email.VoicemailNotice
	missed    []string
}

func (m *fakeMailer) SendVoicemail(_ context.Context, _ email.Templates, n email.VoicemailNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voicemail = append(m.voicemail, n)
	return nil
}

func (m *fakeMailer) SendMissedCall(_ context.Context, _ email.Templates, to string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missed = append(m.missed, to)
	return nil
}

type fixture struct {
	store    *database.Store
	tenant   *models.Tenant
	ext      *models.Extension
	bus      *fakeBus
	mailer   *fakeMailer
	core     *Core
	engine   *Engine
	sessions *Sessions
	tempDir  string
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "switchyard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	tenant := &models.Tenant{Name: "acme.example", Enabled: true}
	require.NoError(t, store.Tenants.Upsert(ctx, tenant))
	ext := &models.Extension{
		TenantID: tenant.ID,
		Number:   "201",
		Enabled:  true,
		Voicemail: &models.Voicemail{
			Password:   "1234",
			MailTo:     "alex@acme.example",
			AttachFile: models.AttachLink,
			Enabled:    true,
		},
	}
	require.NoError(t, store.Extensions.Upsert(ctx, ext))

	logger := slog.New(slog.DiscardHandler)
	tempDir := t.TempDir()
	temp := NewTempFiles(tempDir)
	sessions := NewSessions(cache.NewLocal(time.Minute), temp, time.Hour, logger)
	fb := &fakeBus{replies: make(map[string]string)}
	mailer := &fakeMailer{}
	core := &Core{
		Store:      store,
		Bus:        fb,
		Mailer:     mailer,
		Voicemail:  blob.NewLocal(t.TempDir()),
		Recordings: blob.NewLocal(t.TempDir()),
		Flags:      recording.NewFlags(t.TempDir()),
		Link: func(id string) (string, error) {
			return "https://pbx.example/voicemail/messages/" + id, nil
		},
		Settings: Settings{VoicemailDir: "/var/lib/voicemail", RecordingsDir: "/var/lib/recordings", BaseURL: "http://switchyard:8080/httapi"},
		Logger:   logger,
	}
	engine := NewEngine(sessions, temp, metrics.New(nil), logger)
	RegisterDefaults(engine, core)
	srv := httptest.NewServer(engine.Routes())
	t.Cleanup(srv.Close)

	return &fixture{
		store: store, tenant: tenant, ext: ext, bus: fb, mailer: mailer,
		core: core, engine: engine, sessions: sessions, tempDir: tempDir, server: srv,
	}
}

// call is one switch session posting to a handler.
type call struct {
	f    *fixture
	path string
	id   string
	vars url.Values
}

func (f *fixture) call(path string, vars ...string) *call {
	v := url.Values{
		"domain_name":      {f.tenant.Name},
		"caller_id_number": {"5551234"},
		"caller_id_name":   {"Sam"},
		"hostname":         {"fs1"},
	}
	for i := 0; i+1 < len(vars); i += 2 {
		v.Set(vars[i], vars[i+1])
	}
	return &call{f: f, path: path, id: uuid.NewString(), vars: v}
}

func (c *call) form(extra ...string) url.Values {
	v := url.Values{"session_id": {c.id}}
	for k, vals := range c.vars {
		v[k] = vals
	}
	for i := 0; i+1 < len(extra); i += 2 {
		v.Set(extra[i], extra[i+1])
	}
	return v
}

func (c *call) post(t *testing.T, extra ...string) string {
	t.Helper()
	resp, err := http.PostForm(c.f.server.URL+c.path, c.form(extra...))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func (c *call) upload(t *testing.T, audio string, extra ...string) string {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vals := range c.form(extra...) {
		for _, v := range vals {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	fw, err := w.CreateFormFile(InputRecording, "recording.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte(audio))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(c.f.server.URL+c.path, w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func (c *call) exit(t *testing.T) string {
	t.Helper()
	return c.post(t, "exiting", "true")
}

func (c *call) sessionDir() string {
	return filepath.Join(c.f.tempDir, c.id)
}

func TestProgramDeterministic(t *testing.T) {
	build := func() *Program {
		return NewProgram().
			Var("call_timeout", "30").
			Collect("phrase:voicemail_enter_pass:#", digitsPound, "#").
			Record("/tmp/x.wav", 60).
			Pause(500).
			Hangup("NORMAL_CLEARING")
	}
	a, err := build().Bytes()
	require.NoError(t, err)
	b, err := build().Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	s := string(a)
	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, s, `<document type="xml/freeswitch-httapi">`)
	assert.Contains(t, s, `<variables><call_timeout>30</call_timeout></variables>`)
	assert.Contains(t, s, `<playback file="phrase:voicemail_enter_pass:#" name="pb_input" error-file="silence_stream://250" loops="1" digit-timeout="5000" input-timeout="5000"><bind strip="#">~\d+#</bind></playback>`)
	assert.Contains(t, s, `<record file="/tmp/x.wav" name="rd_input" beep-file="tone_stream://%(250,0,1000)" limit="60" terminators="#"></record>`)
	assert.Contains(t, s, `<pause milliseconds="500"></pause>`)
	assert.Contains(t, s, `<hangup cause="NORMAL_CLEARING"></hangup>`)
}

func TestEngineRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	resp, err := http.PostForm(f.server.URL+"/voicemail/check", url.Values{"domain_name": {"acme.example"}})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), soundCannotComplete)

	c := f.call("/nosuchhandler")
	assert.Contains(t, c.post(t), soundCannotComplete)
}

func TestExitDestroysSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.call("/recordings")
	assert.Contains(t, c.post(t), soundEnterID)
	assert.Contains(t, c.post(t, "pb_input", "42#"), `name="rd_input"`)
	assert.Contains(t, c.upload(t, "RIFFDATA"), "voicemail_record_file_check")
	assert.DirExists(t, c.sessionDir())

	assert.Equal(t, "Ok", c.exit(t))
	assert.NoDirExists(t, c.sessionDir())
	sess, err := f.sessions.Get(ctx, c.id)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idle := f.call("/recordings")
	idle.post(t)
	idle.post(t, "pb_input", "7#")
	idle.upload(t, "RIFF")
	active := f.call("/recordings")
	active.post(t)

	sess, err := f.sessions.Get(ctx, idle.id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, sess.TempFiles, 1)
	upload := sess.TempFiles[0]
	assert.FileExists(t, upload)

	// Age the idle session on this node only.
	sess.LastSeen = time.Now().Add(-2 * time.Hour)
	f.sessions.mu.Lock()
	f.sessions.index[idle.id] = sess.LastSeen
	f.sessions.mu.Unlock()
	raw := f.sessions.now
	f.sessions.now = func() time.Time { return sess.LastSeen }
	require.NoError(t, f.sessions.Put(ctx, sess))
	f.sessions.now = raw

	assert.Equal(t, 1, f.sessions.Sweep(ctx))
	_, err = os.Stat(upload)
	assert.True(t, os.IsNotExist(err))

	n, err := f.sessions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.sessions.Get(ctx, active.id)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTempFilesStayInSessionDir(t *testing.T) {
	temp := NewTempFiles("/tmp/httapi")
	assert.Equal(t, "/tmp/httapi/abc/name.wav", temp.Path("abc", "../../name.wav"))
}
