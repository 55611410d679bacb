package database

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// recordingNotifier captures change notices.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) Notify(_ context.Context, c Change) {
	n.mu.Lock()
	n.changes = append(n.changes, c)
	n.mu.Unlock()
}

func (n *recordingNotifier) last(t *testing.T) Change {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.changes) == 0 {
		t.Fatal("no change notices recorded")
	}
	return n.changes[len(n.changes)-1]
}

func openTestDB(t *testing.T) (*Store, *recordingNotifier) {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "switchyard.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	n := &recordingNotifier{}
	db.SetNotifier(n)
	return NewStore(db), n
}

func seedTenant(t *testing.T, s *Store, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name, Enabled: true, Language: "en"}
	if err := s.Tenants.Upsert(context.Background(), tenant); err != nil {
		t.Fatalf("Tenants.Upsert() error: %v", err)
	}
	return tenant
}

func seedExtension(t *testing.T, s *Store, tenantID, number string) *models.Extension {
	t.Helper()
	ext := &models.Extension{TenantID: tenantID, Number: number, Password: "secret", Enabled: true}
	if err := s.Extensions.Upsert(context.Background(), ext); err != nil {
		t.Fatalf("Extensions.Upsert() error: %v", err)
	}
	return ext
}

func TestOpenAndMigrate(t *testing.T) {
	s, _ := openTestDB(t)

	var journalMode string
	if err := s.DB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	tables := []string{
		"schema_migrations", "tenants", "tenant_settings", "extensions", "voicemails",
		"voicemail_messages", "dialplans", "dialplan_excludes", "gateways", "sip_profiles",
		"acl_lists", "phrases", "ivr_menus", "call_centre_queues", "conference_rooms",
		"call_flows", "call_blocks", "ring_groups", "speed_dials", "recordings",
		"cdrs", "call_recordings", "call_timelines",
	}
	for _, table := range tables {
		var count int
		err := s.DB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}

	var migrationCount int
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&migrationCount); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if migrationCount != 4 {
		t.Errorf("migration count = %d, want 4", migrationCount)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchyard.db")

	db1, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	db1.Close()

	db2, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db2.Close()
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("Open(mysql) succeeded, want error")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant, err := s.Tenants.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if tenant != nil {
		t.Errorf("GetByID(missing) = %+v, want nil", tenant)
	}

	if err := s.Tenants.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Gateways.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Gateways.Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestExtensionUpsertWithInlineChildren(t *testing.T) {
	s, n := openTestDB(t)
	ctx := WithActor(context.Background(), "admin")

	tenant := seedTenant(t, s, "acme.example")
	ext := &models.Extension{
		TenantID:    tenant.ID,
		Number:      "201",
		NumberAlias: "alice",
		Password:    "secret",
		Enabled:     true,
		Settings: []models.ExtensionSetting{
			{Category: models.SettingVariable, Name: "sip_secure_media", Value: "true", Enabled: true},
		},
		Voicemail: &models.Voicemail{Password: "1234", Enabled: true},
	}
	if err := s.Extensions.Upsert(ctx, ext); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got, err := s.Extensions.GetByNumber(ctx, tenant.ID, "alice")
	if err != nil {
		t.Fatalf("GetByNumber(alias) error: %v", err)
	}
	if got == nil || got.ID != ext.ID {
		t.Fatalf("GetByNumber(alias) = %+v, want extension %s", got, ext.ID)
	}
	if got.UpdatedBy != "admin" {
		t.Errorf("UpdatedBy = %q, want admin", got.UpdatedBy)
	}

	settings, err := s.Extensions.Settings(ctx, ext.ID)
	if err != nil {
		t.Fatalf("Settings() error: %v", err)
	}
	if len(settings) != 1 || settings[0].Name != "sip_secure_media" {
		t.Errorf("Settings() = %+v, want one sip_secure_media row", settings)
	}

	vm, err := s.Voicemail.GetByExtension(ctx, ext.ID)
	if err != nil {
		t.Fatalf("GetByExtension() error: %v", err)
	}
	if vm == nil || vm.Password != "1234" || vm.AttachFile != models.AttachNone {
		t.Errorf("voicemail = %+v, want password 1234 and attach none", vm)
	}

	c := n.last(t)
	if c.Kind != KindExtension || c.Tenant != "acme.example" {
		t.Errorf("change = %+v, want extension change for acme.example", c)
	}
	for _, key := range []string{
		cachekey.Directory("201", "acme.example"),
		cachekey.Directory("alice", "acme.example"),
		cachekey.ReverseAuth("201", "acme.example"),
		cachekey.Groups("acme.example"),
	} {
		if !slices.Contains(c.Keys, key) {
			t.Errorf("change keys %v missing %s", c.Keys, key)
		}
	}
}

func TestExtensionRenumberInvalidatesOldKey(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	ext := seedExtension(t, s, tenant.ID, "201")

	ext.Number = "202"
	if err := s.Extensions.Upsert(ctx, ext); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	c := n.last(t)
	for _, key := range []string{cachekey.Directory("201", "acme.example"), cachekey.Directory("202", "acme.example")} {
		if !slices.Contains(c.Keys, key) {
			t.Errorf("change keys %v missing %s", c.Keys, key)
		}
	}
}

func TestFollowMeInvalidatesDirectory(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	ext := seedExtension(t, s, tenant.ID, "201")

	dests := []models.FollowMeDestination{
		{Sequence: 2, Destination: "0400000002", Timeout: 20},
		{Sequence: 1, Destination: "202", Timeout: 15},
	}
	if err := s.Extensions.ReplaceFollowMe(ctx, ext.ID, dests); err != nil {
		t.Fatalf("ReplaceFollowMe() error: %v", err)
	}

	got, err := s.Extensions.FollowMe(ctx, ext.ID)
	if err != nil {
		t.Fatalf("FollowMe() error: %v", err)
	}
	if len(got) != 2 || got[0].Destination != "202" {
		t.Errorf("FollowMe() = %+v, want 202 first", got)
	}

	c := n.last(t)
	if c.Kind != KindFollowMe {
		t.Errorf("change kind = %q, want %q", c.Kind, KindFollowMe)
	}
	if !slices.Contains(c.Keys, cachekey.Directory("201", "acme.example")) {
		t.Errorf("change keys %v missing directory key", c.Keys)
	}
}

func TestDialplanOrderingAndHostname(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	other, blank := "fs2", ""
	rows := []models.Dialplan{
		{TenantID: &tenant.ID, Context: "acme.example", Name: "late", Sequence: 300, Enabled: true},
		{TenantID: &tenant.ID, Context: "acme.example", Name: "early", Sequence: 100, Enabled: true},
		{TenantID: &tenant.ID, Context: "acme.example", Name: "disabled", Sequence: 50},
		{TenantID: &tenant.ID, Context: "acme.example", Name: "pinned", Sequence: 200, Hostname: &other, Enabled: true},
		{TenantID: &tenant.ID, Context: "acme.example", Name: "unpinned", Sequence: 250, Hostname: &blank, Enabled: true},
		{Context: models.ContextGlobal, Name: "global", Sequence: 150, Enabled: true},
	}
	for i := range rows {
		if err := s.Dialplans.Upsert(ctx, &rows[i]); err != nil {
			t.Fatalf("Upsert(%s) error: %v", rows[i].Name, err)
		}
	}

	got, err := s.Dialplans.ListContext(ctx, "fs1", "acme.example", models.ContextGlobal)
	if err != nil {
		t.Fatalf("ListContext() error: %v", err)
	}
	var names []string
	for _, d := range got {
		names = append(names, d.Name)
	}
	want := []string{"early", "global", "unpinned", "late"}
	if !slices.Equal(names, want) {
		t.Errorf("ListContext(fs1) = %v, want %v", names, want)
	}

	got, err = s.Dialplans.ListContext(ctx, "fs2", "acme.example")
	if err != nil {
		t.Fatalf("ListContext() error: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("ListContext(fs2) returned %d rows, want 4", len(got))
	}
	if rows[4].Hostname != nil {
		t.Errorf("blank hostname stored as %q, want NULL", *rows[4].Hostname)
	}

	c := n.last(t)
	if !slices.Contains(c.Prefixes, cachekey.PrefixDialplan) {
		t.Errorf("global dialplan change prefixes = %v, want %s", c.Prefixes, cachekey.PrefixDialplan)
	}
}

func TestListInbound(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	rows := []models.Dialplan{
		{Context: models.ContextPublic, Name: "did-1", Number: "441234567890", Category: models.CategoryInbound, Sequence: 100, Enabled: true},
		{Context: models.ContextPublic, Name: "did-2", Number: "449999999999", Category: models.CategoryInbound, Sequence: 100, Enabled: true},
		{Context: models.ContextPublic, Name: "call-debug", Category: "Other", Sequence: 10, Enabled: true},
	}
	for i := range rows {
		if err := s.Dialplans.Upsert(ctx, &rows[i]); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}

	got, err := s.Dialplans.ListInbound(ctx, "fs1", "441234567890")
	if err != nil {
		t.Fatalf("ListInbound() error: %v", err)
	}
	var names []string
	for _, d := range got {
		names = append(names, d.Name)
	}
	if !slices.Equal(names, []string{"call-debug", "did-1"}) {
		t.Errorf("ListInbound() = %v, want [call-debug did-1]", names)
	}
}

func TestDialplanExcludes(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	ex := &models.DialplanExclude{TenantID: tenant.ID, AppID: "call-recording", Enabled: true}
	if err := s.Dialplans.UpsertExclude(ctx, ex); err != nil {
		t.Fatalf("UpsertExclude() error: %v", err)
	}
	got, err := s.Dialplans.Excludes(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("Excludes() error: %v", err)
	}
	if !slices.Equal(got, []string{"call-recording"}) {
		t.Errorf("Excludes() = %v", got)
	}
	c := n.last(t)
	if !slices.Contains(c.Keys, cachekey.DialplanExclude("acme.example")) ||
		!slices.Contains(c.Keys, cachekey.Dialplan("acme.example", "")) {
		t.Errorf("exclude change keys = %v", c.Keys)
	}
}

func TestVoicemailForwardRoundTrip(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	a := seedExtension(t, s, tenant.ID, "201")
	b := seedExtension(t, s, tenant.ID, "202")
	vmA := &models.Voicemail{ExtensionID: a.ID, Password: "1111", Enabled: true}
	vmB := &models.Voicemail{ExtensionID: b.ID, Password: "2222", Enabled: true}
	for _, vm := range []*models.Voicemail{vmA, vmB} {
		if err := s.Voicemail.Upsert(ctx, vm); err != nil {
			t.Fatalf("Voicemail.Upsert() error: %v", err)
		}
	}

	msg := &models.VoicemailMessage{VoicemailID: vmA.ID, CallerIDNumber: "0400000001", Duration: 12, Filename: "msg_1.wav"}
	if err := s.Voicemail.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage() error: %v", err)
	}
	if err := s.Voicemail.SetMessageStatus(ctx, msg.ID, models.MessageSaved); err != nil {
		t.Fatalf("SetMessageStatus() error: %v", err)
	}
	fwd := &models.VoicemailMessage{
		VoicemailID:    vmB.ID,
		CallerIDNumber: msg.CallerIDNumber,
		Duration:       msg.Duration,
		Filename:       msg.Filename,
	}
	if err := s.Voicemail.CreateMessage(ctx, fwd); err != nil {
		t.Fatalf("CreateMessage(forward) error: %v", err)
	}

	orig, err := s.Voicemail.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if orig.Status != models.MessageSaved || orig.ReadAt == nil {
		t.Errorf("original = %+v, want saved with read_at", orig)
	}

	inB, err := s.Voicemail.Messages(ctx, vmB.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(inB) != 1 || inB[0].Status != models.MessageNew || inB[0].Filename != "msg_1.wav" {
		t.Errorf("mailbox B = %+v, want one new message sharing the file", inB)
	}

	newCount, savedCount, err := s.Voicemail.CountMessages(ctx, vmA.ID)
	if err != nil {
		t.Fatalf("CountMessages() error: %v", err)
	}
	if newCount != 0 || savedCount != 1 {
		t.Errorf("CountMessages(A) = (%d, %d), want (0, 1)", newCount, savedCount)
	}
}

func TestVoicemailDestinationsSkipSelf(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	a := seedExtension(t, s, tenant.ID, "201")
	b := seedExtension(t, s, tenant.ID, "202")
	vmA := &models.Voicemail{ExtensionID: a.ID, Enabled: true}
	vmB := &models.Voicemail{ExtensionID: b.ID, Enabled: true}
	for _, vm := range []*models.Voicemail{vmA, vmB} {
		if err := s.Voicemail.Upsert(ctx, vm); err != nil {
			t.Fatalf("Voicemail.Upsert() error: %v", err)
		}
	}

	err := s.Voicemail.ReplaceDestinations(ctx, vmA.ID, []models.VoicemailDestination{
		{DestinationVoicemailID: vmA.ID},
		{DestinationVoicemailID: vmB.ID},
	})
	if err != nil {
		t.Fatalf("ReplaceDestinations() error: %v", err)
	}
	got, err := s.Voicemail.Destinations(ctx, vmA.ID)
	if err != nil {
		t.Fatalf("Destinations() error: %v", err)
	}
	if len(got) != 1 || got[0].DestinationVoicemailID != vmB.ID {
		t.Errorf("Destinations() = %+v, want only mailbox B", got)
	}
}

func TestCDRInsertIdempotent(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	c := &models.CDR{CoreUUID: "core-1", CallUUID: "call-1", Leg: "a", Duration: 42}
	inserted, err := s.CDRs.Insert(ctx, c)
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if !inserted {
		t.Fatal("first Insert() inserted = false")
	}

	again := &models.CDR{CoreUUID: "core-1", CallUUID: "call-1", Leg: "a", Duration: 42}
	inserted, err = s.CDRs.Insert(ctx, again)
	if err != nil {
		t.Fatalf("second Insert() error: %v", err)
	}
	if inserted {
		t.Error("second Insert() inserted = true, want false")
	}

	var count int
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM cdrs").Scan(&count); err != nil {
		t.Fatalf("counting cdrs: %v", err)
	}
	if count != 1 {
		t.Errorf("cdr rows = %d, want 1", count)
	}
}

func TestTimelineOrder(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	events := []models.CallTimelineEvent{
		{CoreUUID: "core", CallUUID: "call", EventName: "CHANNEL_HANGUP", EventEpoch: 3000, EventSequence: 30},
		{CoreUUID: "core", CallUUID: "call", EventName: "CHANNEL_CREATE", EventEpoch: 1000, EventSequence: 10},
		{CoreUUID: "core", CallUUID: "call", EventName: "CHANNEL_ANSWER", EventEpoch: 1000, EventSequence: 11},
		{CoreUUID: "core", CallUUID: "call", EventName: "CHANNEL_CREATE", EventEpoch: 1000, EventSequence: 10},
	}
	for i := range events {
		if err := s.CDRs.AppendTimeline(ctx, &events[i]); err != nil {
			t.Fatalf("AppendTimeline() error: %v", err)
		}
	}
	got, err := s.CDRs.Timeline(ctx, "call")
	if err != nil {
		t.Fatalf("Timeline() error: %v", err)
	}
	var names []string
	for _, e := range got {
		names = append(names, e.EventName)
	}
	want := []string{"CHANNEL_CREATE", "CHANNEL_ANSWER", "CHANNEL_HANGUP"}
	if !slices.Equal(names, want) {
		t.Errorf("Timeline() = %v, want %v", names, want)
	}
}

func TestSpeedDialPrefersPersonal(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	ext := seedExtension(t, s, tenant.ID, "201")

	shared := &models.SpeedDial{TenantID: tenant.ID, Code: "10", Destination: "0299990000"}
	personal := &models.SpeedDial{TenantID: tenant.ID, ExtensionID: &ext.ID, Code: "10", Destination: "0400000001"}
	for _, sd := range []*models.SpeedDial{shared, personal} {
		if err := s.SpeedDials.Upsert(ctx, sd); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}

	got, err := s.SpeedDials.Find(ctx, tenant.ID, ext.ID, "10")
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got == nil || got.Destination != "0400000001" {
		t.Errorf("Find(personal) = %+v, want personal entry", got)
	}

	got, err = s.SpeedDials.Find(ctx, tenant.ID, "someone-else", "10")
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got == nil || got.Destination != "0299990000" {
		t.Errorf("Find(other) = %+v, want shared entry", got)
	}
}

func TestCallFlowUpsertLinksDialplan(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	flow := &models.CallFlow{TenantID: tenant.ID, Name: "Office hours", Extension: "30", FeatureCode: "*30", Status: true, Enabled: true}
	dp := &models.Dialplan{TenantID: &tenant.ID, Context: "acme.example", Name: "Office hours", Category: models.CategoryCallFlow, Enabled: true}
	if err := s.CallFlows.Upsert(ctx, flow, dp); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if flow.DialplanID == nil || *flow.DialplanID != dp.ID {
		t.Fatalf("flow.DialplanID = %v, want %s", flow.DialplanID, dp.ID)
	}

	got, err := s.CallFlows.GetByFeatureCode(ctx, tenant.ID, "*30")
	if err != nil {
		t.Fatalf("GetByFeatureCode() error: %v", err)
	}
	if got == nil || got.ID != flow.ID {
		t.Fatalf("GetByFeatureCode() = %+v", got)
	}

	c := n.last(t)
	if c.Kind != KindCallFlow || !slices.Contains(c.Keys, cachekey.Dialplan("acme.example", "")) {
		t.Errorf("call flow change = %+v", c)
	}

	if err := s.CallFlows.Delete(ctx, flow.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	left, err := s.Dialplans.GetByID(ctx, dp.ID)
	if err != nil {
		t.Fatalf("Dialplans.GetByID() error: %v", err)
	}
	if left != nil {
		t.Error("call flow dialplan survived delete")
	}
}

func TestFindRoomByPIN(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	room := &models.ConferenceRoom{TenantID: tenant.ID, Name: "Center Room", Profile: "default",
		ModeratorPIN: "12345", ParticipantPIN: "54321", Enabled: true}
	if err := s.Conferences.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom() error: %v", err)
	}

	tests := []struct {
		pin       string
		wantFound bool
		wantMod   bool
	}{
		{"12345", true, true},
		{"54321", true, false},
		{"00000", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		got, mod, err := s.Conferences.FindRoomByPIN(ctx, tenant.ID, tt.pin)
		if err != nil {
			t.Fatalf("FindRoomByPIN(%q) error: %v", tt.pin, err)
		}
		if (got != nil) != tt.wantFound || mod != tt.wantMod {
			t.Errorf("FindRoomByPIN(%q) = (%v, %v), want found=%v moderator=%v", tt.pin, got != nil, mod, tt.wantFound, tt.wantMod)
		}
	}
}

func TestSettingXMLHandlerKey(t *testing.T) {
	s, n := openTestDB(t)
	ctx := context.Background()

	if err := s.Settings.Set(ctx, CategoryXMLHandler, "number_as_presence_id", "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Settings.Set(ctx, CategoryXMLHandler, "number_as_presence_id", "false"); err != nil {
		t.Fatalf("Set(update) error: %v", err)
	}
	val, ok, err := s.Settings.Get(ctx, CategoryXMLHandler, "number_as_presence_id")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || val != "false" {
		t.Errorf("Get() = (%q, %v), want (false, true)", val, ok)
	}
	c := n.last(t)
	if !slices.Equal(c.Keys, []string{cachekey.XMLHandler("number_as_presence_id")}) {
		t.Errorf("setting change keys = %v", c.Keys)
	}

	_, ok, err = s.Settings.Get(ctx, "switch", "missing")
	if err != nil || ok {
		t.Errorf("Get(missing) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestCallCentreQueueTiers(t *testing.T) {
	s, _ := openTestDB(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "acme.example")
	agent := &models.CallCentreAgent{TenantID: tenant.ID, Name: "agent-201", LoginCode: "201", Status: "Logged Out", Enabled: true}
	if err := s.CallCentre.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent() error: %v", err)
	}
	q := &models.CallCentreQueue{TenantID: tenant.ID, Name: "support", Strategy: "ring-all", Enabled: true,
		Tiers: []models.CallCentreTier{{AgentID: agent.ID, Level: 1, Position: 1}}}
	if err := s.CallCentre.UpsertQueue(ctx, q); err != nil {
		t.Fatalf("UpsertQueue() error: %v", err)
	}

	queues, err := s.CallCentre.Queues(ctx)
	if err != nil {
		t.Fatalf("Queues() error: %v", err)
	}
	if len(queues) != 1 || queues[0].Domain != "acme.example" || len(queues[0].Tiers) != 1 {
		t.Fatalf("Queues() = %+v", queues)
	}

	if err := s.CallCentre.SetAgentStatus(ctx, agent.ID, "Available"); err != nil {
		t.Fatalf("SetAgentStatus() error: %v", err)
	}
	got, err := s.CallCentre.GetAgentByLogin(ctx, tenant.ID, "201")
	if err != nil {
		t.Fatalf("GetAgentByLogin() error: %v", err)
	}
	if got == nil || got.Status != "Available" {
		t.Errorf("agent = %+v, want Available", got)
	}
}
