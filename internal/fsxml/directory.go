package fsxml

import (
	"encoding/xml"
	"sort"
	"strings"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// DefaultDialString reaches every registered contact of the dialled user.
const DefaultDialString = "{sip_invite_domain=${domain_name},presence_id=${dialed_user}@${dialed_domain}}${sofia_contact(*/${dialed_user}@${dialed_domain})}"

// DomainNode is a <domain> in the directory section.
type DomainNode struct {
	XMLName   xml.Name    `xml:"domain"`
	Name      string      `xml:"name,attr"`
	Params    *ParamList    `xml:"params,omitempty"`
	Variables *VariableList `xml:"variables,omitempty"`
	Groups    *GroupList    `xml:"groups,omitempty"`
	Users     []UserNode    `xml:"user,omitempty"`
}

// ParamList is a <params> container. A nil list is not rendered.
type ParamList struct {
	Items []Param `xml:"param"`
}

// VariableList is a <variables> container. A nil list is not rendered.
type VariableList struct {
	Items []Variable `xml:"variable"`
}

// GroupList is a <groups> container. A nil list is not rendered.
type GroupList struct {
	Items []GroupNode `xml:"group"`
}

func paramList(p []Param) *ParamList {
	if len(p) == 0 {
		return nil
	}
	return &ParamList{Items: p}
}

func variableList(v []Variable) *VariableList {
	if len(v) == 0 {
		return nil
	}
	return &VariableList{Items: v}
}

func groupList(g []GroupNode) *GroupList {
	if len(g) == 0 {
		return nil
	}
	return &GroupList{Items: g}
}

// GroupNode is one call group or the default group of a network list.
type GroupNode struct {
	Name  string     `xml:"name,attr"`
	Users []UserNode `xml:"users>user"`
}

// UserNode is a <user>.
type UserNode struct {
	ID          string        `xml:"id,attr"`
	Type        string        `xml:"type,attr,omitempty"`
	CIDR        string        `xml:"cidr,attr,omitempty"`
	NumberAlias string        `xml:"number-alias,attr,omitempty"`
	Params      *ParamList    `xml:"params,omitempty"`
	Variables   *VariableList `xml:"variables,omitempty"`
}

// User is everything needed to render one directory user.
type User struct {
	Extension      models.Extension
	Tenant         models.Tenant
	Voicemail      *models.Voicemail
	TenantSettings []models.TenantSetting
}

// PresenceID returns the identifier used for presence. Tenants with
// number-as-presence-id publish the alias when one is set.
func (u User) PresenceID() string {
	id := u.Extension.Number
	if u.Tenant.NumberAsPresenceID && u.Extension.NumberAlias != "" {
		id = u.Extension.NumberAlias
	}
	return id + "@" + u.Tenant.Name
}

// UserDocument renders the record FreeSWITCH needs to authenticate and
// route to the user. id is the id the switch asked for, which may be the
// alias.
func UserDocument(u User, id string) Document {
	ext := u.Extension
	node := UserNode{
		ID:        id,
		CIDR:      ext.CIDR,
		Params:    paramList(userParams(u)),
		Variables: variableList(userVariables(u)),
	}
	if ext.NumberAlias != "" && id == ext.Number {
		node.NumberAlias = ext.NumberAlias
	}
	return newDocument("directory", "", DomainNode{
		Name:  u.Tenant.Name,
		Users: []UserNode{node},
	})
}

func userParams(u User) []Param {
	ext := u.Extension
	p := params(
		"password", ext.Password,
		"dial-string", DefaultDialString,
	)
	if vm := u.Voicemail; vm != nil {
		p = append(p, params(
			"vm-enabled", boolString(vm.Enabled),
			"vm-password", vm.Password,
			"vm-mailto", vm.MailTo,
			"vm-attach-file", boolString(vm.AttachFile == models.AttachFile || vm.AttachFile == models.AttachBoth),
			"vm-keep-local-after-email", boolString(vm.LocalAfterEmail),
		)...)
	} else {
		p = append(p, Param{Name: "vm-enabled", Value: "false"})
	}
	if ext.SIPForceExpires > 0 {
		p = append(p, Param{Name: "sip-force-expires", Value: itoa(ext.SIPForceExpires)})
	}
	if ext.MWIAccount != "" {
		p = append(p, Param{Name: "MWI-Account", Value: ext.MWIAccount})
	}
	return mergeParams(p, settings(u, models.SettingParam))
}

func userVariables(u User) []Variable {
	ext := u.Extension
	t := u.Tenant
	holdMusic := ext.HoldMusic
	if holdMusic == "" {
		holdMusic = t.HoldMusic
	}
	userContext := ext.UserContext
	if userContext == "" {
		userContext = t.Name
	}
	v := variables(
		"domain_uuid", t.ID,
		"domain_name", t.Name,
		"extension_uuid", ext.ID,
		"user_context", userContext,
		"presence_id", u.PresenceID(),
		"call_timeout", positive(ext.CallTimeout),
		"caller_id_name", ext.EffectiveCIDName,
		"caller_id_number", ext.EffectiveCIDNumber,
		"effective_caller_id_name", ext.EffectiveCIDName,
		"effective_caller_id_number", ext.EffectiveCIDNumber,
		"outbound_caller_id_name", ext.OutboundCIDName,
		"outbound_caller_id_number", ext.OutboundCIDNumber,
		"emergency_caller_id_name", ext.EmergencyCIDName,
		"emergency_caller_id_number", ext.EmergencyCIDNumber,
		"directory_full_name", strings.TrimSpace(ext.DirectoryFirstName+" "+ext.DirectoryLastName),
		"directory-visible", boolString(ext.DirectoryVisible),
		"directory-exten-visible", boolString(ext.DirectoryExtenVisible),
		"limit_max", positive(ext.LimitMax),
		"limit_destination", ext.LimitDestination,
		"hold_music", holdMusic,
		"toll_allow", ext.TollAllow,
		"accountcode", ext.AccountCode,
		"call_group", ext.CallGroup,
		"default_language", t.Language,
		"sip-force-contact", ext.SIPForceContact,
		"absolute_codec_string", ext.AbsoluteCodecString,
		"forward_all_enabled", boolString(ext.ForwardAllEnabled),
		"forward_all_destination", ext.ForwardAllDestination,
		"forward_busy_enabled", boolString(ext.ForwardBusyEnabled),
		"forward_busy_destination", ext.ForwardBusyDestination,
		"forward_no_answer_enabled", boolString(ext.ForwardNoAnswerEnabled),
		"forward_no_answer_destination", ext.ForwardNoAnswerDestination,
		"forward_user_not_registered_enabled", boolString(ext.ForwardNotRegisteredEnabled),
		"forward_user_not_registered_destination", ext.ForwardNotRegisteredDestination,
		"follow_me_enabled", boolString(ext.FollowMeEnabled),
		"do_not_disturb", boolString(ext.DoNotDisturb),
		"missed_call_app", ext.MissedCallApp,
		"missed_call_data", ext.MissedCallData,
	)
	switch ext.BypassMedia {
	case "bypass-media":
		v = append(v, Variable{Name: "bypass_media", Value: "true"})
	case "bypass-media-after-bridge":
		v = append(v, Variable{Name: "bypass_media_after_bridge", Value: "true"})
	case "proxy-media":
		v = append(v, Variable{Name: "proxy_media", Value: "true"})
	}
	return mergeVariables(v, settings(u, models.SettingVariable))
}

func positive(i int) string {
	if i <= 0 {
		return ""
	}
	return itoa(i)
}

// settings collects enabled overrides of one category. Extension overrides
// follow tenant ones so they win on merge.
func settings(u User, category string) []Param {
	var out []Param
	for _, s := range u.TenantSettings {
		if s.Enabled && s.Category == category {
			out = append(out, Param{Name: s.Name, Value: s.Value})
		}
	}
	for _, s := range u.Extension.Settings {
		if s.Enabled && s.Category == category {
			out = append(out, Param{Name: s.Name, Value: s.Value})
		}
	}
	return out
}

// mergeParams replaces params by name in place and appends new names.
func mergeParams(base, overrides []Param) []Param {
	idx := make(map[string]int, len(base))
	for i, p := range base {
		idx[p.Name] = i
	}
	for _, o := range overrides {
		if i, ok := idx[o.Name]; ok {
			base[i].Value = o.Value
			continue
		}
		idx[o.Name] = len(base)
		base = append(base, o)
	}
	return base
}

func mergeVariables(base []Variable, overrides []Param) []Variable {
	idx := make(map[string]int, len(base))
	for i, v := range base {
		idx[v.Name] = i
	}
	for _, o := range overrides {
		if i, ok := idx[o.Name]; ok {
			base[i].Value = o.Value
			continue
		}
		idx[o.Name] = len(base)
		base = append(base, Variable(o))
	}
	return base
}

// DomainDocument tells the switch the realm exists.
func DomainDocument(domain string) Document {
	return newDocument("directory", "", DomainNode{Name: domain})
}

// GroupsDocument lists every extension of every call group as pointers.
// An extension may belong to several comma-separated groups.
func GroupsDocument(domain string, exts []models.Extension) Document {
	members := make(map[string][]UserNode)
	for _, ext := range exts {
		for _, g := range strings.Split(ext.CallGroup, ",") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			members[g] = append(members[g], UserNode{ID: ext.Number, Type: "pointer"})
		}
	}
	names := make([]string, 0, len(members))
	for g := range members {
		names = append(names, g)
	}
	sort.Strings(names)
	groups := make([]GroupNode, 0, len(names))
	for _, g := range names {
		groups = append(groups, GroupNode{Name: g, Users: members[g]})
	}
	return newDocument("directory", "", DomainNode{Name: domain, Groups: groupList(groups)})
}

// NetworkListDocument lists CIDR-constrained users by domain so the switch
// can build its "domains" ACL.
func NetworkListDocument(users []CIDRUser) Document {
	byDomain := make(map[string][]UserNode)
	var order []string
	for _, u := range users {
		if _, ok := byDomain[u.Domain]; !ok {
			order = append(order, u.Domain)
		}
		byDomain[u.Domain] = append(byDomain[u.Domain], UserNode{ID: u.Number, CIDR: u.CIDR})
	}
	domains := make([]DomainNode, 0, len(order))
	for _, d := range order {
		domains = append(domains, DomainNode{
			Name:   d,
			Groups: groupList([]GroupNode{{Name: "default", Users: byDomain[d]}}),
		})
	}
	return newDocument("directory", "", domains)
}

// CIDRUser is a user that may only register from a network.
type CIDRUser struct {
	Domain string
	Number string
	CIDR   string
}

// ReverseAuthDocument hands out the credentials the switch uses when it
// challenges the user's device.
func ReverseAuthDocument(domain string, ext models.Extension) Document {
	return newDocument("directory", "", DomainNode{
		Name: domain,
		Users: []UserNode{{
			ID: ext.Number,
			Params: paramList(params(
				"reverse-auth-user", ext.Number,
				"reverse-auth-pass", ext.Password,
			)),
		}},
	})
}

// VoiceDirectoryDocument lists the directory-visible extensions for
// mod_directory's name lookup.
func VoiceDirectoryDocument(domain string, exts []models.Extension) Document {
	var users []UserNode
	for _, ext := range exts {
		if !ext.Enabled || !ext.DirectoryVisible {
			continue
		}
		users = append(users, UserNode{
			ID: ext.Number,
			Params: paramList(params(
				"directory-visible", "true",
				"directory-exten-visible", boolString(ext.DirectoryExtenVisible),
			)),
			Variables: variableList(variables(
				"effective_caller_id_name", ext.EffectiveCIDName,
				"directory_full_name", strings.TrimSpace(ext.DirectoryFirstName+" "+ext.DirectoryLastName),
			)),
		})
	}
	return newDocument("directory", "", DomainNode{
		Name:   domain,
		Groups: groupList([]GroupNode{{Name: "default", Users: users}}),
	})
}
