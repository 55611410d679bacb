package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/api/middleware"
	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/cdr"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/recording"
	"github.com/flowpbx/switchyard/internal/switchsync"
)

const testAPIKey = "test-key"

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeSyncer struct {
	gateways []string
}

func (f *fakeSyncer) SyncGateway(_ context.Context, id string) (map[string]switchsync.Status, error) {
	if id == "missing" {
		return nil, switchsync.ErrNotFound
	}
	f.gateways = append(f.gateways, id)
	return map[string]switchsync.Status{"fs1": switchsync.StatusOK, "fs2": switchsync.StatusNoDirectory}, nil
}

func (f *fakeSyncer) SyncLocalStream(context.Context) (map[string]switchsync.Status, error) {
	return map[string]switchsync.Status{"fs1": switchsync.StatusOK}, nil
}

type fakeFlusher struct {
	prefixes []string
}

func (f *fakeFlusher) Flush(_ context.Context, prefix string) {
	f.prefixes = append(f.prefixes, prefix)
}

type testServer struct {
	srv        *Server
	store      *database.Store
	tenant     *models.Tenant
	recordings *blob.Local
	voicemail  *blob.Local
	sync       *fakeSyncer
	flush      *fakeFlusher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "switchyard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	tenant := &models.Tenant{Name: "acme.example", Enabled: true}
	require.NoError(t, store.Tenants.Upsert(context.Background(), tenant))

	logger := slog.New(slog.DiscardHandler)
	ts := &testServer{
		store:      store,
		tenant:     tenant,
		recordings: blob.NewLocal(t.TempDir()),
		voicemail:  blob.NewLocal(t.TempDir()),
		sync:       &fakeSyncer{},
		flush:      &fakeFlusher{},
	}
	ts.srv = NewServer(Deps{
		Store:     store,
		XML:       http.NotFoundHandler(),
		HTTAPI:    http.NotFoundHandler(),
		CDRs:      cdr.NewIngestor(store, nil, cdr.Config{}, nil, logger),
		Importer:  recording.NewImporter(store.Tenants, ts.recordings, 1<<20, logger),
		Voicemail: ts.voicemail,
		Cache:     ts.flush,
		Sync:      ts.sync,
		Dialplans: func(_ context.Context, tenant *models.Tenant, f *models.CallFlow) (*models.Dialplan, error) {
			return &models.Dialplan{
				TenantID: &tenant.ID,
				AppID:    "call-flow",
				Context:  tenant.Name,
				Name:     f.Name,
				Number:   f.Extension,
				XML:      `<extension name="` + f.ID + `"/>`,
				Enabled:  true,
			}, nil
		},
		APIKey:    testAPIKey,
		JWTSecret: testJWTSecret,
		Logger:    logger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("X-API-Key", testAPIKey)
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Empty(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestAPIRequiresKey(t *testing.T) {
	ts := newTestServer(t)
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTenantLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/tenants/", map[string]any{"name": "globex.example", "enabled": true})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created models.Tenant
	decodeData(t, rr, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "api", created.UpdatedBy)

	rr = ts.do(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/", map[string]any{"name": "globex.example", "language": "fr"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Tenant
	decodeData(t, rr, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "fr", updated.Language)

	rr = ts.do(t, http.MethodGet, "/api/v1/tenants/?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pg struct {
		Items []models.Tenant `json:"items"`
		Total int             `json:"total"`
	}
	decodeData(t, rr, &pg)
	assert.Equal(t, 2, pg.Total)
	assert.Len(t, pg.Items, 1)

	rr = ts.do(t, http.MethodDelete, "/api/v1/tenants/"+created.ID+"/", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.do(t, http.MethodDelete, "/api/v1/tenants/"+created.ID+"/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTenantValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		want int
		msg  string
	}{
		{"missing name", map[string]any{"enabled": true}, http.StatusBadRequest, "name is required"},
		{"bad domain", map[string]any{"name": "not a domain"}, http.StatusBadRequest, "name is not a valid domain"},
		{"unknown field", map[string]any{"name": "x.example", "colour": "red"}, http.StatusBadRequest, `unknown field "colour"`},
		{"duplicate name", map[string]any{"name": "acme.example"}, http.StatusConflict, "a tenant with this name already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/v1/tenants/", tt.body)
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.msg, decodeError(t, rr))
		})
	}
}

func TestExtensionUpsert(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{"tenant_id": ts.tenant.ID, "number": "201", "password": "secret", "enabled": true}
	rr := ts.do(t, http.MethodPost, "/api/v1/extensions/", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ext models.Extension
	decodeData(t, rr, &ext)
	assert.Equal(t, "201", ext.Number)
	assert.Empty(t, ext.Password)

	stored, err := ts.store.Extensions.GetByID(context.Background(), ext.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)

	rr = ts.do(t, http.MethodPost, "/api/v1/extensions/", body)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/extensions/", map[string]any{"tenant_id": "nope", "number": "202"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "tenant_id does not exist", decodeError(t, rr))

	rr = ts.do(t, http.MethodGet, "/api/v1/tenants/"+ts.tenant.ID+"/extensions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"number":"201"`)
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestDialplanUpsert(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/dialplans/", map[string]any{
		"context": "public", "name": "did-5550100", "number": "5550100",
		"xml": `<extension name="did"/>`, "enabled": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var d models.Dialplan
	decodeData(t, rr, &d)
	assert.Nil(t, d.TenantID)

	rr = ts.do(t, http.MethodPost, "/api/v1/dialplans/", map[string]any{"context": "public", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "xml is required", decodeError(t, rr))

	rr = ts.do(t, http.MethodDelete, "/api/v1/dialplans/"+d.ID+"/", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCallFlowUpsertBuildsDialplan(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"tenant_id": ts.tenant.ID, "name": "Office hours", "extension": "30",
		"feature_code": "*30", "status": true, "day_app": "transfer", "day_data": "201",
		"night_app": "voicemail", "night_data": "201", "enabled": true,
	}
	rr := ts.do(t, http.MethodPost, "/api/v1/call-flows/", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var f models.CallFlow
	decodeData(t, rr, &f)
	require.NotNil(t, f.DialplanID)

	dp, err := ts.store.Dialplans.GetByID(context.Background(), *f.DialplanID)
	require.NoError(t, err)
	require.NotNil(t, dp)
	assert.Equal(t, `<extension name="`+f.ID+`"/>`, dp.XML)

	rr = ts.do(t, http.MethodPut, "/api/v1/call-flows/"+f.ID+"/", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var again models.CallFlow
	decodeData(t, rr, &again)
	assert.Equal(t, *f.DialplanID, *again.DialplanID)

	rr = ts.do(t, http.MethodPost, "/api/v1/call-flows/", body)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/v1/call-flows/"+f.ID+"/", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	dp, err = ts.store.Dialplans.GetByID(context.Background(), *f.DialplanID)
	require.NoError(t, err)
	assert.Nil(t, dp)
}

func TestGatewayUpsertAndSync(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	profile := &models.SIPProfile{Name: "external", Enabled: true}
	require.NoError(t, ts.store.SIPProfiles.Upsert(ctx, profile))

	rr := ts.do(t, http.MethodPost, "/api/v1/gateways/", map[string]any{
		"sip_profile_id": profile.ID, "name": "carrier", "proxy": "sip.carrier.example",
		"password": "hunter2", "register": true, "register_transport": "udp", "enabled": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var g models.Gateway
	decodeData(t, rr, &g)
	assert.Empty(t, g.Password)

	rr = ts.do(t, http.MethodPut, "/api/v1/gateways/"+g.ID+"/", map[string]any{
		"sip_profile_id": profile.ID, "name": "carrier", "proxy": "sip2.carrier.example", "enabled": true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stored, err := ts.store.Gateways.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored.Password)
	assert.Equal(t, "sip2.carrier.example", stored.Proxy)

	rr = ts.do(t, http.MethodPost, "/api/v1/gateways/"+g.ID+"/sync", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out syncResponse
	decodeData(t, rr, &out)
	assert.Equal(t, syncStatus{Code: 1, Status: "ok"}, out.Statuses["fs1"])
	assert.Equal(t, syncStatus{Code: -2, Status: "directory missing"}, out.Statuses["fs2"])
	assert.Equal(t, []string{g.ID}, ts.sync.gateways)

	rr = ts.do(t, http.MethodPost, "/api/v1/gateways/missing/sync", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/gateways/", map[string]any{
		"sip_profile_id": profile.ID, "name": "bad", "proxy": "x", "register_transport": "sctp",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "register_transport must be one of: udp tcp tls", decodeError(t, rr))
}

func TestLocalStreamSync(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/api/v1/local-stream/sync", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"fs1":{"code":1,"status":"ok"}`)
}

func TestCacheFlush(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/cache/flush", map[string]string{"prefix": "dialplan:"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(t, http.MethodPost, "/api/v1/cache/flush", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"dialplan:", ""}, ts.flush.prefixes)
}

const testCDR = `<?xml version="1.0"?>
<cdr core-uuid="core-1">
  <variables>
    <uuid>call-1</uuid>
    <direction>inbound</direction>
    <domain_name>acme.example</domain_name>
    <caller_id_number>%2B61255500100</caller_id_number>
    <start_epoch>1700000000</start_epoch>
    <end_epoch>1700000030</end_epoch>
    <hangup_cause>NORMAL_CLEARING</hangup_cause>
  </variables>
</cdr>`

func postCDR(ts *testServer, uuid, doc string) *httptest.ResponseRecorder {
	form := url.Values{"cdr": {doc}}
	req := httptest.NewRequest(http.MethodPost, "/xmlcdr/import?uuid="+uuid, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	return rr
}

func TestImportCDR(t *testing.T) {
	ts := newTestServer(t)

	rr := postCDR(ts, "a_call-1", testCDR)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"stored"`)

	c, err := ts.store.CDRs.Get(context.Background(), "core-1", "call-1", cdr.LegA)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ts.tenant.ID, *c.TenantID)
	assert.Equal(t, "+61255500100", c.CallerIDNumber)

	rr = postCDR(ts, "a_call-1", testCDR)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"duplicate"`)

	rr = postCDR(ts, "b_call-1", testCDR)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"skipped"`)

	rr = postCDR(ts, "a_call-2", "<cdr><variables>")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postCDR(ts, "a_call-2", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImportJSONCDR(t *testing.T) {
	ts := newTestServer(t)
	doc := `{"core-uuid":"core-1","variables":{"uuid":"call-9","direction":"outbound","domain_name":"acme.example","start_epoch":"1700000000"}}`

	req := httptest.NewRequest(http.MethodPost, "/xmlcdr/import?uuid=a_call-9", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	c, err := ts.store.CDRs.Get(context.Background(), "core-1", "call-9", cdr.LegA)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "outbound", c.Direction)
}

func TestCallTimeline(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for i, name := range []string{"CHANNEL_CREATE", "CHANNEL_ANSWER"} {
		require.NoError(t, ts.store.CDRs.AppendTimeline(ctx, &models.CallTimelineEvent{
			CoreUUID: "core-1", CallUUID: "call-1", EventName: name,
			EventEpoch: int64(1700000000000000 + i), EventSequence: int64(10 + i),
		}))
	}

	rr := ts.do(t, http.MethodGet, "/api/v1/calls/call-1/timeline", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var events []models.CallTimelineEvent
	decodeData(t, rr, &events)
	require.Len(t, events, 2)
	assert.Equal(t, "CHANNEL_CREATE", events[0].EventName)
	assert.Equal(t, "CHANNEL_ANSWER", events[1].EventName)
}

func TestImportRecordingPut(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/rec_import/acme.example/archive/2024/Jan/02/call-1.wav", strings.NewReader("RIFF"))
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	data, err := os.ReadFile(filepath.Join(ts.recordings.Root(), "acme.example/archive/2024/Jan/02/call-1.wav"))
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	req = httptest.NewRequest(http.MethodPut, "/rec_import/other.example/call-1.wav", strings.NewReader("RIFF"))
	rr = httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestImportRecordingMultipart(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", "call-2.mp3")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ID3"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/rec_import/acme.example/call-2.mp3", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	data, err := os.ReadFile(filepath.Join(ts.recordings.Root(), "acme.example/call-2.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))
}

func TestDownloadVoicemailMessage(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ext := &models.Extension{
		TenantID:  ts.tenant.ID,
		Number:    "201",
		Enabled:   true,
		Voicemail: &models.Voicemail{Password: "1234", Enabled: true},
	}
	require.NoError(t, ts.store.Extensions.Upsert(ctx, ext))
	file := "acme.example/201/msg_1.wav"
	require.NoError(t, ts.voicemail.Save(ctx, file, strings.NewReader("RIFF-audio")))
	msg := &models.VoicemailMessage{VoicemailID: ext.Voicemail.ID, Filename: file}
	require.NoError(t, ts.store.Voicemail.CreateMessage(ctx, msg))

	tok, err := middleware.IssueMessageToken(testJWTSecret, msg.ID, time.Hour, time.Now())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voicemail/messages/"+msg.ID+"?token="+tok, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "audio/wav", rr.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF-audio", rr.Body.String())

	rr = httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voicemail/messages/"+msg.ID+"?token=bogus", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tok, err = middleware.IssueMessageToken(testJWTSecret, "unknown", time.Hour, time.Now())
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voicemail/messages/unknown?token="+tok, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
