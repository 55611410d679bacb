package fsxml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
)

func render(t *testing.T, doc Document) string {
	t.Helper()
	s, err := Render(doc)
	require.NoError(t, err)
	return s
}

func TestNotFound(t *testing.T) {
	s := NotFound()
	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, `<document type="freeswitch/xml">`)
	assert.Contains(t, s, `<section name="result">`)
	assert.Contains(t, s, `<result status="not found"></result>`)
}

func testUser() User {
	return User{
		Tenant: models.Tenant{ID: "t-1", Name: "acme.example", HoldMusic: "local_stream://default"},
		Extension: models.Extension{
			ID:                 "e-1",
			Number:             "201",
			NumberAlias:        "8201",
			Password:           "s3cret",
			EffectiveCIDName:   "Alice",
			EffectiveCIDNumber: "201",
			CallTimeout:        30,
			CallGroup:          "sales",
			BypassMedia:        "proxy-media",
			ForwardBusyEnabled: true,
			Settings: []models.ExtensionSetting{
				{Category: models.SettingParam, Name: "dial-string", Value: "user/201", Enabled: true},
				{Category: models.SettingVariable, Name: "hold_music", Value: "silence", Enabled: true},
				{Category: models.SettingVariable, Name: "ignored", Value: "x", Enabled: false},
			},
		},
		Voicemail: &models.Voicemail{Password: "1234", MailTo: "a@acme.example", AttachFile: models.AttachBoth, Enabled: true},
		TenantSettings: []models.TenantSetting{
			{Category: models.SettingVariable, Name: "hold_music", Value: "tenant-moh", Enabled: true},
			{Category: models.SettingParam, Name: "sip-forbid-register", Value: "false", Enabled: true},
		},
	}
}

func TestUserDocument(t *testing.T) {
	s := render(t, UserDocument(testUser(), "201"))

	assert.Contains(t, s, `<domain name="acme.example">`)
	assert.Contains(t, s, `<user id="201" number-alias="8201">`)
	assert.Contains(t, s, `<param name="password" value="s3cret"></param>`)
	assert.Contains(t, s, `<param name="dial-string" value="user/201"></param>`, "extension override replaces the default")
	assert.Contains(t, s, `<param name="sip-forbid-register" value="false"></param>`)
	assert.Contains(t, s, `<param name="vm-attach-file" value="true"></param>`)
	assert.Contains(t, s, `<variable name="domain_uuid" value="t-1"></variable>`)
	assert.Contains(t, s, `<variable name="user_context" value="acme.example"></variable>`)
	assert.Contains(t, s, `<variable name="hold_music" value="silence"></variable>`, "extension setting wins over tenant")
	assert.Contains(t, s, `<variable name="proxy_media" value="true"></variable>`)
	assert.Contains(t, s, `<variable name="forward_busy_enabled" value="true"></variable>`)
	assert.NotContains(t, s, "ignored")
	assert.Equal(t, 1, strings.Count(s, `name="hold_music"`))

	assert.Equal(t, s, render(t, UserDocument(testUser(), "201")), "rendering is deterministic")
}

func TestUserDocumentByAlias(t *testing.T) {
	s := render(t, UserDocument(testUser(), "8201"))
	assert.Contains(t, s, `<user id="8201">`)
}

func TestPresenceID(t *testing.T) {
	u := testUser()
	assert.Equal(t, "201@acme.example", u.PresenceID())
	u.Tenant.NumberAsPresenceID = true
	assert.Equal(t, "8201@acme.example", u.PresenceID())
	u.Extension.NumberAlias = ""
	assert.Equal(t, "201@acme.example", u.PresenceID())
}

func TestGroupsDocument(t *testing.T) {
	s := render(t, GroupsDocument("acme.example", []models.Extension{
		{Number: "201", CallGroup: "sales, support"},
		{Number: "202", CallGroup: "sales"},
		{Number: "203"},
	}))
	sales := strings.Index(s, `<group name="sales">`)
	support := strings.Index(s, `<group name="support">`)
	require.True(t, sales >= 0 && support > sales, s)
	assert.Equal(t, 3, strings.Count(s, `type="pointer"`))
	assert.NotContains(t, s, `"203"`)
}

func TestNetworkListDocument(t *testing.T) {
	s := render(t, NetworkListDocument([]CIDRUser{
		{Domain: "acme.example", Number: "201", CIDR: "10.0.0.0/8"},
		{Domain: "other.example", Number: "301", CIDR: "192.0.2.1/32"},
	}))
	assert.Contains(t, s, `<user id="201" cidr="10.0.0.0/8"></user>`)
	assert.Contains(t, s, `<domain name="other.example">`)
	assert.NotContains(t, s, "<params>")
	assert.NotContains(t, s, "<variables>")
}

func TestReverseAuthDocument(t *testing.T) {
	s := render(t, ReverseAuthDocument("acme.example", models.Extension{Number: "201", Password: "pw"}))
	assert.Contains(t, s, `<param name="reverse-auth-user" value="201"></param>`)
	assert.Contains(t, s, `<param name="reverse-auth-pass" value="pw"></param>`)
}

func TestVoiceDirectoryDocument(t *testing.T) {
	s := render(t, VoiceDirectoryDocument("acme.example", []models.Extension{
		{Number: "201", Enabled: true, DirectoryVisible: true, DirectoryFirstName: "Alice", DirectoryLastName: "Smith"},
		{Number: "202", Enabled: true},
		{Number: "203", DirectoryVisible: true},
	}))
	assert.Contains(t, s, `<user id="201">`)
	assert.Contains(t, s, `value="Alice Smith"`)
	assert.NotContains(t, s, `"202"`)
	assert.NotContains(t, s, `"203"`)
}

func TestDialplanDocument(t *testing.T) {
	rows := []models.Dialplan{
		{AppID: "a", XML: `<extension name="first"/>`},
		{AppID: "excluded", XML: `<extension name="skipped"/>`},
		{XML: "  <extension name=\"last\"/>\n"},
	}
	s := render(t, DialplanDocument("acme.example", rows, []string{"excluded"}))
	assert.Contains(t, s, `<section name="dialplan">`)
	assert.Contains(t, s, `<context name="acme.example">`)
	assert.Contains(t, s, "<extension name=\"first\"/>\n<extension name=\"last\"/>\n")
	assert.NotContains(t, s, "skipped")
}

func TestPublicDocument(t *testing.T) {
	rows := []models.Dialplan{
		{Category: "", XML: `<extension name="call-debug"/>`},
	}
	s := render(t, PublicDocument(rows, "441234567890"))
	assert.Contains(t, s, `<extension name="not-found" continue="false">`)
	assert.Less(t, strings.Index(s, "call-debug"), strings.Index(s, "not-found"))

	rows = append(rows, models.Dialplan{Category: models.CategoryInbound, Number: "441234567890", XML: `<extension name="did"/>`})
	s = render(t, PublicDocument(rows, "441234567890"))
	assert.NotContains(t, s, "not-found")
	assert.Contains(t, s, `<extension name="did"/>`)
}

func TestLanguageDocument(t *testing.T) {
	v := Voice{SoundsDir: "/usr/share/freeswitch/sounds", Dialect: "us", Voice: "callie"}
	p := &models.Phrase{ID: "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", Details: []models.PhraseDetail{
		{Function: "play-file", Data: "ivr/ivr-welcome.wav"},
		{Function: "execute", Data: "sleep(500)"},
	}}
	s := render(t, LanguageDocument("en", v, p))
	assert.Contains(t, s, `<language name="en" say-module="en" sound-prefix="/usr/share/freeswitch/sounds/en/us/callie">`)
	assert.Contains(t, s, `<macro name="f81d4fae-7dec-11d0-a765-00a0c91e6bf6">`)
	assert.Less(t, strings.Index(s, "ivr-welcome"), strings.Index(s, "sleep(500)"))

	assert.Equal(t, "/sounds/en/gb/callie", Voice{SoundsDir: "/sounds", Dialect: "us", Voice: "callie"}.SoundPrefix("en-gb"))
}

func TestACLDocument(t *testing.T) {
	s := render(t, ACLDocument([]models.ACLList{{
		Name:          "lan",
		DefaultAction: "deny",
		Nodes: []models.ACLNode{
			{NodeType: "allow", CIDR: "10.0.0.0/8"},
			{NodeType: "allow", Domain: "acme.example"},
		},
	}}))
	assert.Contains(t, s, `<configuration name="acl.conf" description="Network Lists">`)
	assert.Contains(t, s, `<list name="lan" default="deny">`)
	assert.Contains(t, s, `<node type="allow" cidr="10.0.0.0/8"></node>`)
	assert.Contains(t, s, `<node type="allow" domain="acme.example"></node>`)
}

func TestSofiaDocument(t *testing.T) {
	profiles := []models.SIPProfile{{
		ID:       "p-1",
		Name:     "external",
		Domains:  []models.SIPProfileDomain{{Name: "all", Parse: true}},
		Settings: []models.SIPProfileSetting{{Name: "sip-port", Value: "5080", Enabled: true}},
	}}
	gateways := map[string][]models.Gateway{"p-1": {
		{ID: "g-1", Username: "trunk", Register: true, RegisterTransport: "tls", Enabled: true},
		{ID: "g-2", Enabled: false},
	}}
	s := render(t, SofiaDocument(nil, profiles, gateways))
	assert.Contains(t, s, `<profile name="external">`)
	assert.Contains(t, s, `<gateway name="g-1">`)
	assert.Contains(t, s, `<param name="register-transport" value="tls"></param>`)
	assert.Contains(t, s, `<param name="context" value="public"></param>`)
	assert.NotContains(t, s, "g-2")
	assert.Contains(t, s, `<domain name="all" alias="false" parse="true"></domain>`)
	assert.Contains(t, s, `<param name="sip-port" value="5080"></param>`)
}

func TestRenderGatewayInclude(t *testing.T) {
	s, err := RenderGatewayInclude(models.Gateway{ID: "g-1", Proxy: "sip.carrier.example", Register: false})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "<include>"))
	assert.Contains(t, s, `<gateway name="g-1">`)
	assert.Contains(t, s, `<param name="register" value="false"></param>`)
}

func TestLocalStream(t *testing.T) {
	tenant := "t-1"
	streams := []models.MusicOnHold{
		{Name: "default", Path: "/moh/8000", Rate: 8000, Shuffle: true, Enabled: true},
		{TenantID: &tenant, Name: "jazz", Path: "/moh/jazz", Enabled: true},
		{Name: "off", Enabled: false},
	}
	domains := map[string]string{"t-1": "acme.example"}
	s := render(t, LocalStreamDocument(streams, domains))
	assert.Contains(t, s, `<directory name="default/8000" path="/moh/8000">`)
	assert.Contains(t, s, `<directory name="acme.example/jazz" path="/moh/jazz">`)
	assert.NotContains(t, s, `"off"`)

	file, err := RenderLocalStreamFile(streams, domains)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(file, `<configuration name="local_stream.conf"`))
}

func TestIVRDocument(t *testing.T) {
	menu := models.IVRMenu{
		ID:         "m-1",
		GreetLong:  "ivr/welcome.wav",
		DirectDial: true,
		Options: []models.IVRMenuOption{
			{Digits: "1", Action: "menu-exec-app", Param: "transfer 201 XML acme.example"},
			{Digits: "2", Action: "menu-sub", Param: "m-2"},
		},
	}
	assert.Equal(t, []string{"m-2"}, SubMenuIDs(menu))

	s := render(t, IVRDocument([]models.IVRMenu{menu, {ID: "m-2"}}, "acme.example"))
	assert.Contains(t, s, `<menu name="m-1" greet-long="ivr/welcome.wav"`)
	assert.Contains(t, s, `<entry action="menu-exec-app" digits="1" param="transfer 201 XML acme.example"></entry>`)
	assert.Contains(t, s, `digits="/^(\d{2,5})$/" param="transfer $1 XML acme.example"`)
	assert.Contains(t, s, `<menu name="m-2"`)
}

func TestConferenceDocument(t *testing.T) {
	s := render(t, ConferenceDocument(
		[]models.ConferenceControl{{Name: "default", Enabled: true, Details: []models.ConferenceControlDetail{
			{Digits: "0", Action: "mute", Enabled: true},
		}}},
		[]models.ConferenceProfile{{Name: "default", Enabled: true, Params: []models.ConferenceProfileParam{
			{Name: "rate", Value: "16000", Enabled: true},
		}}},
	))
	assert.Contains(t, s, `<control action="mute" digits="0"></control>`)
	assert.Contains(t, s, `<param name="rate" value="16000"></param>`)
}

func TestAgentContact(t *testing.T) {
	a := database.CallCentreAgent{Domain: "acme.example"}
	a.TenantID = "t-1"
	a.CallTimeout = 20
	a.Contact = "user/201"
	assert.Equal(t,
		"{call_timeout=20,domain_name=acme.example,domain_uuid=t-1,sip_h_caller_destination=${caller_destination}}user/201@acme.example",
		AgentContact(a))

	a.Contact = "{ignore_early_media=true}sofia/gateway/g-1/15551234"
	assert.Equal(t,
		"{call_timeout=20,domain_name=acme.example,domain_uuid=t-1,sip_h_caller_destination=${caller_destination},ignore_early_media=true}sofia/gateway/g-1/15551234",
		AgentContact(a))
}

func TestCallcenterDocument(t *testing.T) {
	q := database.CallCentreQueue{Domain: "acme.example"}
	q.Name = "support"
	q.Strategy = "longest-idle-agent"
	q.Tiers = []models.CallCentreTier{{AgentID: "a-1", Level: 1, Position: 1}}

	a := database.CallCentreAgent{Domain: "acme.example"}
	a.ID = "a-1"
	a.Contact = "user/201"
	a.Status = "Available"
	a.Enabled = true

	s := render(t, CallcenterDocument(nil, []database.CallCentreQueue{q}, []database.CallCentreAgent{a}))
	assert.Contains(t, s, `<queue name="support@acme.example">`)
	assert.Contains(t, s, `<param name="strategy" value="longest-idle-agent"></param>`)
	assert.Contains(t, s, `<agent name="a-1" type="callback"`)
	assert.Contains(t, s, `<tier agent="a-1" queue="support@acme.example" level="1" position="1"></tier>`)
}
