package cdr

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/metrics"
	"github.com/flowpbx/switchyard/internal/recording"
)

const sampleXML = `<?xml version="1.0"?>
<cdr core-uuid="core-1">
  <variables>
    <uuid>call-1</uuid>
    <domain_name>acme.example</domain_name>
    <dialed_user>201</dialed_user>
    <call_direction>inbound</call_direction>
    <caller_id_name>Sam%20Jones</caller_id_name>
    <caller_id_number>+15551234</caller_id_number>
    <start_stamp>2024-01-02%2003%3A04%3A05</start_stamp>
    <start_epoch>1704164645</start_epoch>
    <duration>42</duration>
    <billsec>40</billsec>
    <hangup_cause>NORMAL_CLEARING</hangup_cause>
  </variables>
  <callflow>
    <caller_profile>
      <context>acme.example</context>
      <destination_number>201</destination_number>
    </caller_profile>
  </callflow>
</cdr>`

type fixture struct {
	store      *database.Store
	tenant     *models.Tenant
	ext        *models.Extension
	recordings blob.Blob
	loc        *time.Location
	ingestor   *Ingestor
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
	ext := &models.Extension{TenantID: tenant.ID, Number: "201", Enabled: true}
	require.NoError(t, store.Extensions.Upsert(ctx, ext))

	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	recordings := blob.NewLocal(t.TempDir())
	ing := NewIngestor(store, recordings, Config{
		RecordingsDir: "/var/lib/recordings",
		KeepBLeg:      map[string]bool{"outbound": true},
		Location:      loc,
	}, metrics.New(nil), slog.New(slog.DiscardHandler))
	return &fixture{store: store, tenant: tenant, ext: ext, recordings: recordings, loc: loc, ingestor: ing}
}

func TestIngestXML(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := ParseXML([]byte(sampleXML), LegA)
	require.NoError(t, err)
	c, err := f.ingestor.Ingest(ctx, SourceXML, rec)
	require.NoError(t, err)

	assert.Equal(t, LegA, c.Leg)
	assert.Equal(t, 42, c.Duration)
	assert.Equal(t, "Sam Jones", c.CallerIDName)
	assert.Equal(t, "+15551234", c.CallerIDNumber)
	require.NotNil(t, c.TenantID)
	assert.Equal(t, f.tenant.ID, *c.TenantID)
	require.NotNil(t, c.ExtensionID)
	assert.Equal(t, f.ext.ID, *c.ExtensionID)
	require.NotNil(t, c.StartStamp)
	assert.Equal(t, f.loc, c.StartStamp.Location())
	assert.Equal(t, "2024-01-02 03:04:05", c.StartStamp.Format(stampLayout))

	got, err := f.store.CDRs.Get(ctx, "core-1", "call-1", LegA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.Duration)
	require.NotNil(t, got.StartStamp)
	assert.True(t, got.StartStamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, f.loc)))
}

func TestIngestIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := range 2 {
		rec, err := ParseXML([]byte(sampleXML), LegA)
		require.NoError(t, err)
		_, err = f.ingestor.Ingest(ctx, SourceXML, rec)
		if i == 0 {
			require.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrDuplicateCDR)
		}
	}
	got, err := f.store.CDRs.Get(ctx, "core-1", "call-1", LegA)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestIngestBLegPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inbound, err := ParseXML([]byte(sampleXML), LegB)
	require.NoError(t, err)
	_, err = f.ingestor.Ingest(ctx, SourceXML, inbound)
	assert.ErrorIs(t, err, ErrSkippedLeg)

	outbound, err := ParseXML([]byte(strings.Replace(sampleXML, ">inbound<", ">outbound<", 1)), LegB)
	require.NoError(t, err)
	c, err := f.ingestor.Ingest(ctx, SourceXML, outbound)
	require.NoError(t, err)
	assert.Equal(t, LegB, c.Leg)
}

func TestIngestRejectsMissingUUID(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingestor.Ingest(context.Background(), SourceXML, &Record{Leg: LegA, Vars: map[string]string{}})
	assert.ErrorIs(t, err, ErrInvalidCDRData)

	_, err = ParseXML([]byte("<cdr><variables>"), LegA)
	assert.ErrorIs(t, err, ErrInvalidCDRData)
}

func TestIngestProbesArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, f.loc)
	name := recording.ArchiveFile(f.tenant.Name, start, "call-1", ".mp3")
	require.NoError(t, f.recordings.Save(ctx, name, strings.NewReader("ID3")))

	rec, err := ParseXML([]byte(sampleXML), LegA)
	require.NoError(t, err)
	c, err := f.ingestor.Ingest(ctx, SourceXML, rec)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/recordings/acme.example/archive/2024/Jan/02/call-1.mp3", c.RecordingPath)

	recs, err := f.store.CDRs.Recordings(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, c.RecordingPath, recs[0].Path)
}

func TestIngestRecordingVariable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := strings.Replace(sampleXML, "<duration>",
		"<record_path>/var/lib/recordings/acme.example</record_path><record_name>call-1.wav</record_name><duration>", 1)
	rec, err := ParseXML([]byte(doc), LegA)
	require.NoError(t, err)
	c, err := f.ingestor.Ingest(ctx, SourceXML, rec)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/recordings/acme.example/call-1.wav", c.RecordingPath)
}

func TestParseJSON(t *testing.T) {
	doc := `{
  "core-uuid": "core-2",
  "variables": {"uuid": "call-2", "domain_name": "acme.example", "duration": "7", "caller_id_name": "Kim%20Lee"},
  "callflow": [{"caller_profile": {"context": "acme.example", "caller_id_number": "5550000", "originatee": {"x": 1}}}]
}`
	rec, err := ParseJSON([]byte(doc), LegA)
	require.NoError(t, err)
	assert.Equal(t, "core-2", rec.CoreUUID)
	assert.Equal(t, "call-2", rec.Var("uuid"))
	assert.Equal(t, "Kim Lee", rec.Var("caller_id_name"))
	assert.Equal(t, "5550000", rec.Profile["caller_id_number"])
	assert.NotContains(t, rec.Profile, "originatee")

	f := newFixture(t)
	c, err := f.ingestor.Ingest(context.Background(), SourceJSON, rec)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Duration)
	assert.Equal(t, "5550000", c.CallerIDNumber)
}

func TestLegFromUUID(t *testing.T) {
	tests := []struct {
		in, leg, uuid string
	}{
		{"a_abc", LegA, "abc"},
		{"b_abc", LegB, "abc"},
		{"abc", LegA, "abc"},
	}
	for _, tt := range tests {
		leg, id := LegFromUUID(tt.in)
		assert.Equal(t, tt.leg, leg, tt.in)
		assert.Equal(t, tt.uuid, id, tt.in)
	}
}

func channelEvent(name, seq, epoch string) bus.Event {
	return bus.NewEvent(name).
		Set("Core-UUID", "core-1").
		Set("Unique-ID", "call-1").
		Set("FreeSWITCH-Hostname", "fs1").
		Set("Event-Sequence", seq).
		Set("Event-Date-Timestamp", epoch).
		Set("Caller-Context", "acme.example").
		Set("Call-Direction", "inbound")
}

func TestTimelineOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events := []bus.Event{
		channelEvent(bus.EventChannelHangup, "30", "1704164690000000"),
		channelEvent(bus.EventChannelCreate, "10", "1704164645000000"),
		channelEvent(bus.EventChannelAnswer, "20", "1704164650000000"),
		channelEvent(bus.EventChannelAnswer, "20", "1704164650000000"),
	}
	for _, ev := range events {
		require.NoError(t, f.ingestor.Timeline(ctx, ev))
	}

	got, err := f.ingestor.CallTimeline(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, bus.EventChannelCreate, got[0].EventName)
	assert.Equal(t, bus.EventChannelAnswer, got[1].EventName)
	assert.Equal(t, bus.EventChannelHangup, got[2].EventName)
	require.NotNil(t, got[0].TenantID)
	assert.Equal(t, f.tenant.ID, *got[0].TenantID)
	assert.Equal(t, "fs1", got[0].Hostname)
}

func TestFromEvent(t *testing.T) {
	ev := channelEvent(bus.EventChannelHangupComplete, "40", "1704164690000000").
		Set("variable_domain_name", "acme.example").
		Set("variable_duration", "45").
		Set("variable_originating_leg_uuid", "call-0").
		Set("variable_call_direction", "outbound")

	rec := FromEvent(ev)
	assert.Equal(t, LegB, rec.Leg)
	assert.Equal(t, "call-1", rec.Var("uuid"))
	assert.Equal(t, "fs1", rec.Var("hostname"))
	assert.Equal(t, "acme.example", rec.Profile["context"])

	f := newFixture(t)
	c, err := f.ingestor.Ingest(context.Background(), SourceEvent, rec)
	require.NoError(t, err)
	assert.Equal(t, 45, c.Duration)
	assert.Equal(t, "fs1", c.Hostname)
}
