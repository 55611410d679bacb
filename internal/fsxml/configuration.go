package fsxml

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// Configuration names served over xml_curl.
const (
	ConfACL         = "acl.conf"
	ConfSofia       = "sofia.conf"
	ConfLocalStream = "local_stream.conf"
	ConfTranslate   = "translate.conf"
	ConfIVR         = "ivr.conf"
	ConfConference  = "conference.conf"
	ConfCallcenter  = "callcenter.conf"
)

func configurationDocument(body any) Document {
	return newDocument("configuration", "", body)
}

// ACLConfig is acl.conf.
type ACLConfig struct {
	XMLName     xml.Name      `xml:"configuration"`
	Name        string        `xml:"name,attr"`
	Description string        `xml:"description,attr"`
	Lists       []ACLListNode `xml:"network-lists>list"`
}

// ACLListNode is one named network list.
type ACLListNode struct {
	Name    string         `xml:"name,attr"`
	Default string         `xml:"default,attr"`
	Nodes   []ACLEntryNode `xml:"node"`
}

// ACLEntryNode is one allow or deny rule.
type ACLEntryNode struct {
	Type   string `xml:"type,attr"`
	CIDR   string `xml:"cidr,attr,omitempty"`
	Domain string `xml:"domain,attr,omitempty"`
}

// ACLDocument renders every network list with its nodes in sequence.
func ACLDocument(lists []models.ACLList) Document {
	out := make([]ACLListNode, 0, len(lists))
	for _, l := range lists {
		n := ACLListNode{Name: l.Name, Default: l.DefaultAction}
		for _, node := range l.Nodes {
			n.Nodes = append(n.Nodes, ACLEntryNode{Type: node.NodeType, CIDR: node.CIDR, Domain: node.Domain})
		}
		out = append(out, n)
	}
	return configurationDocument(ACLConfig{Name: ConfACL, Description: "Network Lists", Lists: out})
}

// SofiaConfig is sofia.conf.
type SofiaConfig struct {
	XMLName        xml.Name           `xml:"configuration"`
	Name           string             `xml:"name,attr"`
	Description    string             `xml:"description,attr"`
	GlobalSettings []Param            `xml:"global_settings>param"`
	Profiles       []SofiaProfileNode `xml:"profiles>profile"`
}

// SofiaProfileNode is one listening profile.
type SofiaProfileNode struct {
	Name     string            `xml:"name,attr"`
	Gateways []GatewayNode     `xml:"gateways>gateway"`
	Domains  []SofiaDomainNode `xml:"domains>domain"`
	Settings []Param           `xml:"settings>param"`
}

// SofiaDomainNode attaches a domain to a profile.
type SofiaDomainNode struct {
	Name  string `xml:"name,attr"`
	Alias bool   `xml:"alias,attr"`
	Parse bool   `xml:"parse,attr"`
}

// GatewayNode is one SIP trunk.
type GatewayNode struct {
	XMLName xml.Name `xml:"gateway"`
	Name    string   `xml:"name,attr"`
	Params  []Param  `xml:"param"`
}

// GatewayInclude is the on-disk file under sip_profiles/<profile>/.
type GatewayInclude struct {
	XMLName xml.Name    `xml:"include"`
	Gateway GatewayNode `xml:"gateway"`
}

// Gateway renders g as a <gateway> named by its id.
func Gateway(g models.Gateway) GatewayNode {
	context := g.Context
	if context == "" {
		context = models.ContextPublic
	}
	return GatewayNode{
		Name: g.ID,
		Params: params(
			"username", g.Username,
			"password", g.Password,
			"realm", g.Realm,
			"from-user", g.FromUser,
			"from-domain", g.FromDomain,
			"proxy", g.Proxy,
			"register-proxy", g.RegisterProxy,
			"outbound-proxy", g.OutboundProxy,
			"expire-seconds", positive(g.ExpireSeconds),
			"register", boolString(g.Register),
			"register-transport", g.RegisterTransport,
			"retry-seconds", positive(g.RetrySeconds),
			"extension", g.Extension,
			"ping", positive(g.Ping),
			"caller-id-in-from", boolString(g.CallerIDInFrom),
			"context", context,
		),
	}
}

// RenderGatewayInclude renders the standalone gateway file.
func RenderGatewayInclude(g models.Gateway) (string, error) {
	out, err := xml.MarshalIndent(GatewayInclude{Gateway: Gateway(g)}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling gateway %s: %w", g.ID, err)
	}
	return string(out) + "\n", nil
}

// SofiaDocument renders profiles with their gateways keyed by profile id.
func SofiaDocument(globals []models.Setting, profiles []models.SIPProfile, gateways map[string][]models.Gateway) Document {
	cfg := SofiaConfig{Name: ConfSofia, Description: "sofia Endpoint"}
	for _, s := range globals {
		if s.Enabled {
			cfg.GlobalSettings = append(cfg.GlobalSettings, Param{Name: s.Name, Value: s.Value})
		}
	}
	for _, p := range profiles {
		node := SofiaProfileNode{Name: p.Name}
		for _, g := range gateways[p.ID] {
			if g.Enabled {
				node.Gateways = append(node.Gateways, Gateway(g))
			}
		}
		for _, d := range p.Domains {
			node.Domains = append(node.Domains, SofiaDomainNode{Name: d.Name, Alias: d.Alias, Parse: d.Parse})
		}
		for _, s := range p.Settings {
			if s.Enabled {
				node.Settings = append(node.Settings, Param{Name: s.Name, Value: s.Value})
			}
		}
		cfg.Profiles = append(cfg.Profiles, node)
	}
	return configurationDocument(cfg)
}

// LocalStreamConfig is local_stream.conf.
type LocalStreamConfig struct {
	XMLName     xml.Name              `xml:"configuration"`
	Name        string                `xml:"name,attr"`
	Description string                `xml:"description,attr"`
	Directories []StreamDirectoryNode `xml:"directory"`
}

// StreamDirectoryNode is one music-on-hold stream.
type StreamDirectoryNode struct {
	Name   string  `xml:"name,attr"`
	Path   string  `xml:"path,attr"`
	Params []Param `xml:"param"`
}

// StreamName is the local_stream name of m. Tenant streams are prefixed by
// the domain and rate-specific streams suffixed by the rate.
func StreamName(m models.MusicOnHold, domain string) string {
	name := m.Name
	if domain != "" {
		name = domain + "/" + name
	}
	if m.Rate > 0 {
		name += "/" + itoa(m.Rate)
	}
	return name
}

// LocalStreamConfiguration builds the configuration element shared by the
// xml_curl answer and the on-disk file. domains maps tenant id to domain.
func LocalStreamConfiguration(streams []models.MusicOnHold, domains map[string]string) LocalStreamConfig {
	cfg := LocalStreamConfig{Name: ConfLocalStream, Description: "stream files from local dir"}
	for _, m := range streams {
		if !m.Enabled {
			continue
		}
		var domain string
		if m.TenantID != nil {
			domain = domains[*m.TenantID]
		}
		cfg.Directories = append(cfg.Directories, StreamDirectoryNode{
			Name: StreamName(m, domain),
			Path: m.Path,
			Params: params(
				"rate", positive(m.Rate),
				"shuffle", boolString(m.Shuffle),
				"channels", positive(m.Channels),
				"interval", positive(m.IntervalMS),
				"timer-name", m.TimerName,
				"chime-list", m.ChimeList,
				"chime-freq", positive(m.ChimeFreq),
				"chime-max", positive(m.ChimeMax),
			),
		})
	}
	return cfg
}

// LocalStreamDocument wraps LocalStreamConfiguration for xml_curl.
func LocalStreamDocument(streams []models.MusicOnHold, domains map[string]string) Document {
	return configurationDocument(LocalStreamConfiguration(streams, domains))
}

// RenderLocalStreamFile renders local_stream.conf.xml for autoload_configs.
func RenderLocalStreamFile(streams []models.MusicOnHold, domains map[string]string) (string, error) {
	out, err := xml.MarshalIndent(LocalStreamConfiguration(streams, domains), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling local_stream.conf: %w", err)
	}
	return string(out) + "\n", nil
}

// TranslateConfig is translate.conf.
type TranslateConfig struct {
	XMLName     xml.Name               `xml:"configuration"`
	Name        string                 `xml:"name,attr"`
	Description string                 `xml:"description,attr"`
	Profiles    []TranslateProfileNode `xml:"profiles>profile"`
}

// TranslateProfileNode is one named rule set.
type TranslateProfileNode struct {
	Name  string              `xml:"name,attr"`
	Rules []TranslateRuleNode `xml:"rule"`
}

// TranslateRuleNode rewrites numbers matching Regex.
type TranslateRuleNode struct {
	Regex   string `xml:"regex,attr"`
	Replace string `xml:"replace,attr"`
}

// TranslateDocument renders enabled translation profiles.
func TranslateDocument(profiles []models.NumberTranslation) Document {
	cfg := TranslateConfig{Name: ConfTranslate, Description: "Number Translation Rules"}
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		node := TranslateProfileNode{Name: p.Name}
		for _, d := range p.Details {
			node.Rules = append(node.Rules, TranslateRuleNode{Regex: d.Regex, Replace: d.Replacement})
		}
		cfg.Profiles = append(cfg.Profiles, node)
	}
	return configurationDocument(cfg)
}

// IVRConfig is ivr.conf.
type IVRConfig struct {
	XMLName     xml.Name      `xml:"configuration"`
	Name        string        `xml:"name,attr"`
	Description string        `xml:"description,attr"`
	Menus       []IVRMenuNode `xml:"menus>menu"`
}

// IVRMenuNode is one menu.
type IVRMenuNode struct {
	Name              string         `xml:"name,attr"`
	GreetLong         string         `xml:"greet-long,attr"`
	GreetShort        string         `xml:"greet-short,attr"`
	InvalidSound      string         `xml:"invalid-sound,attr"`
	ExitSound         string         `xml:"exit-sound,attr"`
	ConfirmMacro      string         `xml:"confirm-macro,attr,omitempty"`
	ConfirmKey        string         `xml:"confirm-key,attr,omitempty"`
	TTSEngine         string         `xml:"tts-engine,attr,omitempty"`
	TTSVoice          string         `xml:"tts-voice,attr,omitempty"`
	ConfirmAttempts   int            `xml:"confirm-attempts,attr"`
	Timeout           int            `xml:"timeout,attr"`
	InterDigitTimeout int            `xml:"inter-digit-timeout,attr"`
	MaxFailures       int            `xml:"max-failures,attr"`
	MaxTimeouts       int            `xml:"max-timeouts,attr"`
	DigitLen          int            `xml:"digit-len,attr"`
	Entries           []IVREntryNode `xml:"entry"`
}

// IVREntryNode maps digits to an action.
type IVREntryNode struct {
	Action string `xml:"action,attr"`
	Digits string `xml:"digits,attr"`
	Param  string `xml:"param,attr,omitempty"`
}

// directDialDigits matches the extensions a caller may dial from a menu.
const directDialDigits = `/^(\d{2,5})$/`

// IVRDocument renders menus, the requested one first. Direct-dial menus
// transfer any 2-5 digit entry into the tenant's context.
func IVRDocument(menus []models.IVRMenu, domain string) Document {
	cfg := IVRConfig{Name: ConfIVR, Description: "IVR menus"}
	for _, m := range menus {
		node := IVRMenuNode{
			Name:              m.ID,
			GreetLong:         m.GreetLong,
			GreetShort:        m.GreetShort,
			InvalidSound:      m.InvalidSound,
			ExitSound:         m.ExitSound,
			ConfirmMacro:      m.ConfirmMacro,
			ConfirmKey:        m.ConfirmKey,
			TTSEngine:         m.TTSEngine,
			TTSVoice:          m.TTSVoice,
			ConfirmAttempts:   m.ConfirmAttempts,
			Timeout:           m.Timeout,
			InterDigitTimeout: m.InterDigitTimeout,
			MaxFailures:       m.MaxFailures,
			MaxTimeouts:       m.MaxTimeouts,
			DigitLen:          m.DigitLen,
		}
		for _, o := range m.Options {
			node.Entries = append(node.Entries, IVREntryNode{Action: o.Action, Digits: o.Digits, Param: o.Param})
		}
		if m.DirectDial {
			node.Entries = append(node.Entries, IVREntryNode{
				Action: "menu-exec-app",
				Digits: directDialDigits,
				Param:  "transfer $1 XML " + domain,
			})
		}
		cfg.Menus = append(cfg.Menus, node)
	}
	return configurationDocument(cfg)
}

// SubMenuIDs returns the ids of menus m opens with menu-sub.
func SubMenuIDs(m models.IVRMenu) []string {
	var ids []string
	for _, o := range m.Options {
		if o.Action == "menu-sub" && o.Param != "" {
			ids = append(ids, o.Param)
		}
	}
	return ids
}

// ConferenceConfig is conference.conf.
type ConferenceConfig struct {
	XMLName        xml.Name                `xml:"configuration"`
	Name           string                  `xml:"name,attr"`
	Description    string                  `xml:"description,attr"`
	CallerControls []ControlGroupNode      `xml:"caller-controls>group"`
	Profiles       []ConferenceProfileNode `xml:"profiles>profile"`
}

// ControlGroupNode is a caller-controls group.
type ControlGroupNode struct {
	Name     string        `xml:"name,attr"`
	Controls []ControlNode `xml:"control"`
}

// ControlNode binds digits to a conference action.
type ControlNode struct {
	Action string `xml:"action,attr"`
	Digits string `xml:"digits,attr"`
	Data   string `xml:"data,attr,omitempty"`
}

// ConferenceProfileNode is one profile.
type ConferenceProfileNode struct {
	Name   string  `xml:"name,attr"`
	Params []Param `xml:"param"`
}

// ConferenceDocument renders enabled control groups and profiles.
func ConferenceDocument(controls []models.ConferenceControl, profiles []models.ConferenceProfile) Document {
	cfg := ConferenceConfig{Name: ConfConference, Description: "Audio Conference"}
	for _, c := range controls {
		if !c.Enabled {
			continue
		}
		g := ControlGroupNode{Name: c.Name}
		for _, d := range c.Details {
			if d.Enabled {
				g.Controls = append(g.Controls, ControlNode{Action: d.Action, Digits: d.Digits, Data: d.Data})
			}
		}
		cfg.CallerControls = append(cfg.CallerControls, g)
	}
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		node := ConferenceProfileNode{Name: p.Name}
		for _, param := range p.Params {
			if param.Enabled {
				node.Params = append(node.Params, Param{Name: param.Name, Value: param.Value})
			}
		}
		cfg.Profiles = append(cfg.Profiles, node)
	}
	return configurationDocument(cfg)
}

// CallcenterConfig is callcenter.conf.
type CallcenterConfig struct {
	XMLName     xml.Name    `xml:"configuration"`
	Name        string      `xml:"name,attr"`
	Description string      `xml:"description,attr"`
	Settings    []Param     `xml:"settings>param,omitempty"`
	Queues      []QueueNode `xml:"queues>queue"`
	Agents      []AgentNode `xml:"agents>agent"`
	Tiers       []TierNode  `xml:"tiers>tier"`
}

// QueueNode is one ACD queue.
type QueueNode struct {
	Name   string  `xml:"name,attr"`
	Params []Param `xml:"param"`
}

// AgentNode is one agent.
type AgentNode struct {
	Name              string `xml:"name,attr"`
	Type              string `xml:"type,attr"`
	Contact           string `xml:"contact,attr"`
	Status            string `xml:"status,attr"`
	MaxNoAnswer       int    `xml:"max-no-answer,attr"`
	WrapUpTime        int    `xml:"wrap-up-time,attr"`
	RejectDelayTime   int    `xml:"reject-delay-time,attr"`
	BusyDelayTime     int    `xml:"busy-delay-time,attr"`
	NoAnswerDelayTime int    `xml:"no-answer-delay-time,attr"`
}

// TierNode binds an agent to a queue.
type TierNode struct {
	Agent    string `xml:"agent,attr"`
	Queue    string `xml:"queue,attr"`
	Level    int    `xml:"level,attr"`
	Position int    `xml:"position,attr"`
}

// QueueName is the callcenter name of q.
func QueueName(q database.CallCentreQueue) string {
	return q.Name + "@" + q.Domain
}

// AgentContact prefixes the agent's dial string with its call timeout and
// domain. A bare user/<ext> contact is qualified with the domain.
func AgentContact(a database.CallCentreAgent) string {
	contact := a.Contact
	if strings.HasPrefix(contact, "user/") && !strings.Contains(contact, "@") {
		contact += "@" + a.Domain
	}
	vars := fmt.Sprintf("call_timeout=%d,domain_name=%s,domain_uuid=%s,sip_h_caller_destination=${caller_destination}",
		a.CallTimeout, a.Domain, a.TenantID)
	if strings.HasPrefix(contact, "{") {
		return "{" + vars + "," + contact[1:]
	}
	return "{" + vars + "}" + contact
}

// CallcenterDocument renders queues, agents and tiers. Agents are named by
// id since names are only unique within a tenant.
func CallcenterDocument(globals []models.Setting, queues []database.CallCentreQueue, agents []database.CallCentreAgent) Document {
	cfg := CallcenterConfig{Name: ConfCallcenter, Description: "CallCenter"}
	for _, s := range globals {
		if s.Enabled {
			cfg.Settings = append(cfg.Settings, Param{Name: s.Name, Value: s.Value})
		}
	}
	for _, q := range queues {
		name := QueueName(q)
		cfg.Queues = append(cfg.Queues, QueueNode{
			Name: name,
			Params: params(
				"strategy", q.Strategy,
				"moh-sound", q.MOHSound,
				"record-template", q.RecordTemplate,
				"time-base-score", q.TimeBaseScore,
				"max-wait-time", itoa(q.MaxWaitTime),
				"max-wait-time-with-no-agent", itoa(q.MaxWaitTimeWithNoAgent),
				"max-wait-time-with-no-agent-time-reached", itoa(q.MaxWaitTimeWithNoAgentTimeReached),
				"tier-rules-apply", boolString(q.TierRulesApply),
				"tier-rule-wait-second", itoa(q.TierRuleWaitSecond),
				"tier-rule-wait-multiply-level", boolString(q.TierRuleWaitMultiplyLevel),
				"tier-rule-no-agent-no-wait", boolString(q.TierRuleNoAgentNoWait),
				"discard-abandoned-after", itoa(q.DiscardAbandonedAfter),
				"abandoned-resume-allowed", boolString(q.AbandonedResumeAllowed),
				"announce-sound", q.AnnounceSound,
				"announce-frequency", positive(q.AnnounceFrequency),
				"cid-name-prefix", q.CIDNamePrefix,
			),
		})
		for _, t := range q.Tiers {
			cfg.Tiers = append(cfg.Tiers, TierNode{Agent: t.AgentID, Queue: name, Level: t.Level, Position: t.Position})
		}
	}
	for _, a := range agents {
		if !a.Enabled {
			continue
		}
		agentType := a.AgentType
		if agentType == "" {
			agentType = "callback"
		}
		cfg.Agents = append(cfg.Agents, AgentNode{
			Name:              a.ID,
			Type:              agentType,
			Contact:           AgentContact(a),
			Status:            a.Status,
			MaxNoAnswer:       a.MaxNoAnswer,
			WrapUpTime:        a.WrapUpTime,
			RejectDelayTime:   a.RejectDelayTime,
			BusyDelayTime:     a.BusyDelayTime,
			NoAnswerDelayTime: a.NoAnswerDelayTime,
		})
	}
	return configurationDocument(cfg)
}
