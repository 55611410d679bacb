package models

import "time"

// Meta carries the audit columns shared by every entity.
type Meta struct {
	Created      time.Time  `db:"created" json:"created"`
	Updated      time.Time  `db:"updated" json:"updated"`
	UpdatedBy    string     `db:"updated_by" json:"updated_by"`
	Synchronised *time.Time `db:"synchronised" json:"synchronised,omitempty"`
}

// Tenant is a SIP realm. Name is the domain.
type Tenant struct {
	ID                 string `db:"id" json:"id"`
	Name               string `db:"name" json:"name"`
	Description        string `db:"description" json:"description"`
	Enabled            bool   `db:"enabled" json:"enabled"`
	HomeSwitch         string `db:"home_switch" json:"home_switch"`
	NumberAsPresenceID bool   `db:"number_as_presence_id" json:"number_as_presence_id"`
	Language           string `db:"language" json:"language"`
	HoldMusic          string `db:"hold_music" json:"hold_music"`
	Meta
}

// Setting categories for tenant and extension level overrides.
const (
	SettingParam    = "param"
	SettingVariable = "variable"
)

// TenantSetting is a SIP force-setting applied to every user in the tenant.
type TenantSetting struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Category string `db:"category" json:"category"`
	Name     string `db:"name" json:"name"`
	Value    string `db:"value" json:"value"`
	Enabled  bool   `db:"enabled" json:"enabled"`
	Meta
}

// Extension is a SIP user within a tenant.
type Extension struct {
	ID                               string `db:"id" json:"id"`
	TenantID                         string `db:"tenant_id" json:"tenant_id"`
	Number                           string `db:"number" json:"number"`
	NumberAlias                      string `db:"number_alias" json:"number_alias"`
	Password                         string `db:"password" json:"password"`
	AccountCode                      string `db:"accountcode" json:"accountcode"`
	EffectiveCIDName                 string `db:"effective_cid_name" json:"effective_cid_name"`
	EffectiveCIDNumber               string `db:"effective_cid_number" json:"effective_cid_number"`
	OutboundCIDName                  string `db:"outbound_cid_name" json:"outbound_cid_name"`
	OutboundCIDNumber                string `db:"outbound_cid_number" json:"outbound_cid_number"`
	EmergencyCIDName                 string `db:"emergency_cid_name" json:"emergency_cid_name"`
	EmergencyCIDNumber               string `db:"emergency_cid_number" json:"emergency_cid_number"`
	DirectoryFirstName               string `db:"directory_first_name" json:"directory_first_name"`
	DirectoryLastName                string `db:"directory_last_name" json:"directory_last_name"`
	DirectoryVisible                 bool   `db:"directory_visible" json:"directory_visible"`
	DirectoryExtenVisible            bool   `db:"directory_exten_visible" json:"directory_exten_visible"`
	CallGroup                        string `db:"call_group" json:"call_group"`
	UserContext                      string `db:"user_context" json:"user_context"`
	LimitMax                         int    `db:"limit_max" json:"limit_max"`
	LimitDestination                 string `db:"limit_destination" json:"limit_destination"`
	HoldMusic                        string `db:"hold_music" json:"hold_music"`
	TollAllow                        string `db:"toll_allow" json:"toll_allow"`
	CallTimeout                      int    `db:"call_timeout" json:"call_timeout"`
	BypassMedia                      string `db:"bypass_media" json:"bypass_media"` // "", bypass-media, bypass-media-after-bridge, proxy-media
	CIDR                             string `db:"cidr" json:"cidr"`
	SIPForceContact                  string `db:"sip_force_contact" json:"sip_force_contact"`
	SIPForceExpires                  int    `db:"sip_force_expires" json:"sip_force_expires"`
	MWIAccount                       string `db:"mwi_account" json:"mwi_account"`
	AbsoluteCodecString              string `db:"absolute_codec_string" json:"absolute_codec_string"`
	ForwardAllEnabled                bool   `db:"forward_all_enabled" json:"forward_all_enabled"`
	ForwardAllDestination            string `db:"forward_all_destination" json:"forward_all_destination"`
	ForwardBusyEnabled               bool   `db:"forward_busy_enabled" json:"forward_busy_enabled"`
	ForwardBusyDestination           string `db:"forward_busy_destination" json:"forward_busy_destination"`
	ForwardNoAnswerEnabled           bool   `db:"forward_no_answer_enabled" json:"forward_no_answer_enabled"`
	ForwardNoAnswerDestination       string `db:"forward_no_answer_destination" json:"forward_no_answer_destination"`
	ForwardNotRegisteredEnabled      bool   `db:"forward_not_registered_enabled" json:"forward_not_registered_enabled"`
	ForwardNotRegisteredDestination  string `db:"forward_not_registered_destination" json:"forward_not_registered_destination"`
	FollowMeEnabled                  bool   `db:"follow_me_enabled" json:"follow_me_enabled"`
	DoNotDisturb                     bool   `db:"do_not_disturb" json:"do_not_disturb"`
	MissedCallApp                    string `db:"missed_call_app" json:"missed_call_app"`
	MissedCallData                   string `db:"missed_call_data" json:"missed_call_data"`
	Enabled                          bool   `db:"enabled" json:"enabled"`
	Description                      string `db:"description" json:"description"`
	Meta

	// Inline children written in the same transaction as the extension.
	Settings []ExtensionSetting `db:"-" json:"settings,omitempty"`
	Voicemail *Voicemail        `db:"-" json:"voicemail,omitempty"`
}

// ExtensionSetting is a per-user param or variable override.
type ExtensionSetting struct {
	ID          string `db:"id" json:"id"`
	ExtensionID string `db:"extension_id" json:"extension_id"`
	Category    string `db:"category" json:"category"`
	Name        string `db:"name" json:"name"`
	Value       string `db:"value" json:"value"`
	Enabled     bool   `db:"enabled" json:"enabled"`
	Meta
}

// FollowMeDestination is one leg of an extension's follow-me list.
type FollowMeDestination struct {
	ID          string `db:"id" json:"id"`
	ExtensionID string `db:"extension_id" json:"extension_id"`
	Sequence    int    `db:"sequence" json:"sequence"`
	Destination string `db:"destination" json:"destination"`
	Delay       int    `db:"delay" json:"delay"`
	Timeout     int    `db:"timeout" json:"timeout"`
	Prompt      bool   `db:"prompt" json:"prompt"`
	Meta
}

// Voicemail email delivery policies.
const (
	AttachNone = "none"
	AttachFile = "attach"
	AttachLink = "link"
	AttachBoth = "both"
)

// Voicemail is the mailbox of one extension.
type Voicemail struct {
	ID              string `db:"id" json:"id"`
	ExtensionID     string `db:"extension_id" json:"extension_id"`
	Password        string `db:"password" json:"password"`
	GreetingID      int    `db:"greeting_id" json:"greeting_id"`
	MailTo          string `db:"mail_to" json:"mail_to"`
	AttachFile      string `db:"attach_file" json:"attach_file"`
	LocalAfterEmail bool   `db:"local_after_email" json:"local_after_email"`
	Enabled         bool   `db:"enabled" json:"enabled"`
	Description     string `db:"description" json:"description"`
	Meta
}

// VoicemailGreeting is a recorded greeting. GreetingNumber is the index the
// mailbox's GreetingID selects.
type VoicemailGreeting struct {
	ID             string `db:"id" json:"id"`
	VoicemailID    string `db:"voicemail_id" json:"voicemail_id"`
	GreetingNumber int    `db:"greeting_number" json:"greeting_number"`
	Filename       string `db:"filename" json:"filename"`
	Description    string `db:"description" json:"description"`
	Meta
}

// Voicemail message states.
const (
	MessageNew     = "new"
	MessageSaved   = "saved"
	MessageDeleted = "deleted"
)

// VoicemailMessage is one left message.
type VoicemailMessage struct {
	ID             string     `db:"id" json:"id"`
	VoicemailID    string     `db:"voicemail_id" json:"voicemail_id"`
	CallerIDName   string     `db:"caller_id_name" json:"caller_id_name"`
	CallerIDNumber string     `db:"caller_id_number" json:"caller_id_number"`
	Duration       int        `db:"duration" json:"duration"`
	Filename       string     `db:"filename" json:"filename"`
	Status         string     `db:"status" json:"status"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	Meta
}

// VoicemailOption maps a DTMF digit during greeting playback to an action.
type VoicemailOption struct {
	ID          string `db:"id" json:"id"`
	VoicemailID string `db:"voicemail_id" json:"voicemail_id"`
	Digits      string `db:"digits" json:"digits"`
	Action      string `db:"action" json:"action"`
	Param       string `db:"param" json:"param"`
	Sequence    int    `db:"sequence" json:"sequence"`
	Description string `db:"description" json:"description"`
	Meta
}

// VoicemailDestination fans a new message out to another mailbox.
type VoicemailDestination struct {
	ID                     string `db:"id" json:"id"`
	VoicemailID            string `db:"voicemail_id" json:"voicemail_id"`
	DestinationVoicemailID string `db:"destination_voicemail_id" json:"destination_voicemail_id"`
	Meta
}

// Dialplan contexts and categories with routing meaning.
const (
	ContextPublic    = "public"
	ContextGlobal    = "global"
	CategoryInbound  = "Inbound route"
	CategoryCallFlow = "Call flow"
)

// Dialplan is an ordered XML fragment within a context.
type Dialplan struct {
	ID          string  `db:"id" json:"id"`
	TenantID    *string `db:"tenant_id" json:"tenant_id,omitempty"`
	AppID       string  `db:"app_id" json:"app_id"`
	Context     string  `db:"context" json:"context"`
	Name        string  `db:"name" json:"name"`
	Number      string  `db:"number" json:"number"`
	Hostname    *string `db:"hostname" json:"hostname,omitempty"`
	Sequence    int     `db:"sequence" json:"sequence"`
	Category    string  `db:"category" json:"category"`
	XML         string  `db:"xml" json:"xml"`
	Enabled     bool    `db:"enabled" json:"enabled"`
	Description string  `db:"description" json:"description"`
	Meta
}

// DialplanExclude suppresses one application kind in a tenant's context.
type DialplanExclude struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	AppID    string `db:"app_id" json:"app_id"`
	Enabled  bool   `db:"enabled" json:"enabled"`
	Meta
}

// SIPProfile is a switch-side listening profile.
type SIPProfile struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Hostname    *string `db:"hostname" json:"hostname,omitempty"`
	Enabled     bool    `db:"enabled" json:"enabled"`
	Description string  `db:"description" json:"description"`
	Meta

	Domains  []SIPProfileDomain  `db:"-" json:"domains,omitempty"`
	Settings []SIPProfileSetting `db:"-" json:"settings,omitempty"`
}

// SIPProfileDomain attaches a domain to a profile.
type SIPProfileDomain struct {
	ID           string `db:"id" json:"id"`
	SIPProfileID string `db:"sip_profile_id" json:"sip_profile_id"`
	Name         string `db:"name" json:"name"`
	Alias        bool   `db:"alias" json:"alias"`
	Parse        bool   `db:"parse" json:"parse"`
	Meta
}

// SIPProfileSetting is one profile param.
type SIPProfileSetting struct {
	ID           string `db:"id" json:"id"`
	SIPProfileID string `db:"sip_profile_id" json:"sip_profile_id"`
	Name         string `db:"name" json:"name"`
	Value        string `db:"value" json:"value"`
	Enabled      bool   `db:"enabled" json:"enabled"`
	Description  string `db:"description" json:"description"`
	Meta
}

// Gateway is a SIP trunk to an upstream carrier.
type Gateway struct {
	ID                string  `db:"id" json:"id"`
	TenantID          *string `db:"tenant_id" json:"tenant_id,omitempty"`
	SIPProfileID      string  `db:"sip_profile_id" json:"sip_profile_id"`
	Name              string  `db:"name" json:"name"`
	Username          string  `db:"username" json:"username"`
	Password          string  `db:"password" json:"password"`
	Realm             string  `db:"realm" json:"realm"`
	FromUser          string  `db:"from_user" json:"from_user"`
	FromDomain        string  `db:"from_domain" json:"from_domain"`
	Proxy             string  `db:"proxy" json:"proxy"`
	RegisterProxy     string  `db:"register_proxy" json:"register_proxy"`
	OutboundProxy     string  `db:"outbound_proxy" json:"outbound_proxy"`
	ExpireSeconds     int     `db:"expire_seconds" json:"expire_seconds"`
	Register          bool    `db:"register" json:"register"`
	RegisterTransport string  `db:"register_transport" json:"register_transport"`
	RetrySeconds      int     `db:"retry_seconds" json:"retry_seconds"`
	Extension         string  `db:"extension" json:"extension"`
	Ping              int     `db:"ping" json:"ping"`
	CallerIDInFrom    bool    `db:"caller_id_in_from" json:"caller_id_in_from"`
	Context           string  `db:"context" json:"context"`
	Hostname          *string `db:"hostname" json:"hostname,omitempty"`
	Enabled           bool    `db:"enabled" json:"enabled"`
	Description       string  `db:"description" json:"description"`
	Meta
}

// ACLList is a named network list.
type ACLList struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	DefaultAction string `db:"default_action" json:"default_action"`
	Description   string `db:"description" json:"description"`
	Meta

	Nodes []ACLNode `db:"-" json:"nodes,omitempty"`
}

// ACLNode is one allow or deny rule, by CIDR or domain.
type ACLNode struct {
	ID          string `db:"id" json:"id"`
	ACLListID   string `db:"acl_list_id" json:"acl_list_id"`
	NodeType    string `db:"node_type" json:"node_type"`
	CIDR        string `db:"cidr" json:"cidr"`
	Domain      string `db:"domain" json:"domain"`
	Sequence    int    `db:"sequence" json:"sequence"`
	Description string `db:"description" json:"description"`
	Meta
}

// MusicOnHold is one local_stream directory.
type MusicOnHold struct {
	ID         string  `db:"id" json:"id"`
	TenantID   *string `db:"tenant_id" json:"tenant_id,omitempty"`
	Name       string  `db:"name" json:"name"`
	Path       string  `db:"path" json:"path"`
	Rate       int     `db:"rate" json:"rate"`
	Shuffle    bool    `db:"shuffle" json:"shuffle"`
	Channels   int     `db:"channels" json:"channels"`
	IntervalMS int     `db:"interval_ms" json:"interval_ms"`
	TimerName  string  `db:"timer_name" json:"timer_name"`
	ChimeList  string  `db:"chime_list" json:"chime_list"`
	ChimeFreq  int     `db:"chime_freq" json:"chime_freq"`
	ChimeMax   int     `db:"chime_max" json:"chime_max"`
	Enabled    bool    `db:"enabled" json:"enabled"`
	Meta
}

// NumberTranslation is a named translate.conf profile.
type NumberTranslation struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Enabled     bool   `db:"enabled" json:"enabled"`
	Description string `db:"description" json:"description"`
	Meta

	Details []NumberTranslationDetail `db:"-" json:"details,omitempty"`
}

// NumberTranslationDetail is one regex rule in a translation profile.
type NumberTranslationDetail struct {
	ID                  string `db:"id" json:"id"`
	NumberTranslationID string `db:"number_translation_id" json:"number_translation_id"`
	Regex               string `db:"regex" json:"regex"`
	Replacement         string `db:"replacement" json:"replacement"`
	Sequence            int    `db:"sequence" json:"sequence"`
	Meta
}

// Setting is a runtime tunable addressed by (category, name).
type Setting struct {
	ID          string `db:"id" json:"id"`
	Category    string `db:"category" json:"category"`
	Name        string `db:"name" json:"name"`
	Value       string `db:"value" json:"value"`
	Enabled     bool   `db:"enabled" json:"enabled"`
	Description string `db:"description" json:"description"`
	Meta
}

// Phrase is a say macro for one language.
type Phrase struct {
	ID          string  `db:"id" json:"id"`
	TenantID    *string `db:"tenant_id" json:"tenant_id,omitempty"`
	Name        string  `db:"name" json:"name"`
	Language    string  `db:"language" json:"language"`
	Enabled     bool    `db:"enabled" json:"enabled"`
	Description string  `db:"description" json:"description"`
	Meta

	Details []PhraseDetail `db:"-" json:"details,omitempty"`
}

// PhraseDetail is one (function, data) step of a phrase macro.
type PhraseDetail struct {
	ID       string `db:"id" json:"id"`
	PhraseID string `db:"phrase_id" json:"phrase_id"`
	Sequence int    `db:"sequence" json:"sequence"`
	Function string `db:"function" json:"function"`
	Data     string `db:"data" json:"data"`
	Meta
}

// IVRMenu is a DTMF menu served from ivr.conf.
type IVRMenu struct {
	ID                string `db:"id" json:"id"`
	TenantID          string `db:"tenant_id" json:"tenant_id"`
	Name              string `db:"name" json:"name"`
	Extension         string `db:"extension" json:"extension"`
	GreetLong         string `db:"greet_long" json:"greet_long"`
	GreetShort        string `db:"greet_short" json:"greet_short"`
	InvalidSound      string `db:"invalid_sound" json:"invalid_sound"`
	ExitSound         string `db:"exit_sound" json:"exit_sound"`
	ConfirmMacro      string `db:"confirm_macro" json:"confirm_macro"`
	ConfirmKey        string `db:"confirm_key" json:"confirm_key"`
	TTSEngine         string `db:"tts_engine" json:"tts_engine"`
	TTSVoice          string `db:"tts_voice" json:"tts_voice"`
	ConfirmAttempts   int    `db:"confirm_attempts" json:"confirm_attempts"`
	Timeout           int    `db:"timeout" json:"timeout"`
	InterDigitTimeout int    `db:"inter_digit_timeout" json:"inter_digit_timeout"`
	MaxFailures       int    `db:"max_failures" json:"max_failures"`
	MaxTimeouts       int    `db:"max_timeouts" json:"max_timeouts"`
	DigitLen          int    `db:"digit_len" json:"digit_len"`
	DirectDial        bool   `db:"direct_dial" json:"direct_dial"`
	Ringback          string `db:"ringback" json:"ringback"`
	CIDPrefix         string `db:"cid_prefix" json:"cid_prefix"`
	ExitApp           string `db:"exit_app" json:"exit_app"`
	ExitData          string `db:"exit_data" json:"exit_data"`
	Enabled           bool   `db:"enabled" json:"enabled"`
	Description       string `db:"description" json:"description"`
	Meta

	Options []IVRMenuOption `db:"-" json:"options,omitempty"`
}

// IVRMenuOption maps digits to an action within a menu.
type IVRMenuOption struct {
	ID          string `db:"id" json:"id"`
	IVRMenuID   string `db:"ivr_menu_id" json:"ivr_menu_id"`
	Digits      string `db:"digits" json:"digits"`
	Action      string `db:"action" json:"action"`
	Param       string `db:"param" json:"param"`
	Sequence    int    `db:"sequence" json:"sequence"`
	Description string `db:"description" json:"description"`
	Meta
}

// CallCentreQueue is an ACD queue in callcenter.conf.
type CallCentreQueue struct {
	ID                                 string `db:"id" json:"id"`
	TenantID                           string `db:"tenant_id" json:"tenant_id"`
	Name                               string `db:"name" json:"name"`
	Extension                          string `db:"extension" json:"extension"`
	Strategy                           string `db:"strategy" json:"strategy"`
	MOHSound                           string `db:"moh_sound" json:"moh_sound"`
	RecordTemplate                     string `db:"record_template" json:"record_template"`
	TimeBaseScore                      string `db:"time_base_score" json:"time_base_score"`
	MaxWaitTime                        int    `db:"max_wait_time" json:"max_wait_time"`
	MaxWaitTimeWithNoAgent             int    `db:"max_wait_time_with_no_agent" json:"max_wait_time_with_no_agent"`
	MaxWaitTimeWithNoAgentTimeReached  int    `db:"max_wait_time_with_no_agent_time_reached" json:"max_wait_time_with_no_agent_time_reached"`
	TierRulesApply                     bool   `db:"tier_rules_apply" json:"tier_rules_apply"`
	TierRuleWaitSecond                 int    `db:"tier_rule_wait_second" json:"tier_rule_wait_second"`
	TierRuleWaitMultiplyLevel          bool   `db:"tier_rule_wait_multiply_level" json:"tier_rule_wait_multiply_level"`
	TierRuleNoAgentNoWait              bool   `db:"tier_rule_no_agent_no_wait" json:"tier_rule_no_agent_no_wait"`
	DiscardAbandonedAfter              int    `db:"discard_abandoned_after" json:"discard_abandoned_after"`
	AbandonedResumeAllowed             bool   `db:"abandoned_resume_allowed" json:"abandoned_resume_allowed"`
	AnnounceSound                      string `db:"announce_sound" json:"announce_sound"`
	AnnounceFrequency                  int    `db:"announce_frequency" json:"announce_frequency"`
	CIDNamePrefix                      string `db:"cid_name_prefix" json:"cid_name_prefix"`
	Enabled                            bool   `db:"enabled" json:"enabled"`
	Description                        string `db:"description" json:"description"`
	Meta

	Tiers []CallCentreTier `db:"-" json:"tiers,omitempty"`
}

// CallCentreAgent is an agent with a contact template.
type CallCentreAgent struct {
	ID                string  `db:"id" json:"id"`
	TenantID          string  `db:"tenant_id" json:"tenant_id"`
	ExtensionID       *string `db:"extension_id" json:"extension_id,omitempty"`
	Name              string  `db:"name" json:"name"`
	LoginCode         string  `db:"login_code" json:"login_code"`
	PIN               string  `db:"pin" json:"pin"`
	AgentType         string  `db:"agent_type" json:"agent_type"`
	CallTimeout       int     `db:"call_timeout" json:"call_timeout"`
	Contact           string  `db:"contact" json:"contact"`
	Status            string  `db:"status" json:"status"`
	MaxNoAnswer       int     `db:"max_no_answer" json:"max_no_answer"`
	WrapUpTime        int     `db:"wrap_up_time" json:"wrap_up_time"`
	RejectDelayTime   int     `db:"reject_delay_time" json:"reject_delay_time"`
	BusyDelayTime     int     `db:"busy_delay_time" json:"busy_delay_time"`
	NoAnswerDelayTime int     `db:"no_answer_delay_time" json:"no_answer_delay_time"`
	Enabled           bool    `db:"enabled" json:"enabled"`
	Meta
}

// CallCentreTier binds an agent to a queue.
type CallCentreTier struct {
	ID       string `db:"id" json:"id"`
	QueueID  string `db:"queue_id" json:"queue_id"`
	AgentID  string `db:"agent_id" json:"agent_id"`
	Level    int    `db:"level" json:"level"`
	Position int    `db:"position" json:"position"`
	Meta
}

// AgentStatusLog is one entry of agent status history.
type AgentStatusLog struct {
	ID        string  `db:"id" json:"id"`
	TenantID  *string `db:"tenant_id" json:"tenant_id,omitempty"`
	AgentName string  `db:"agent_name" json:"agent_name"`
	QueueName string  `db:"queue_name" json:"queue_name"`
	Action    string  `db:"action" json:"action"`
	Status    string  `db:"status" json:"status"`
	State     string  `db:"state" json:"state"`
	CallUUID  string  `db:"call_uuid" json:"call_uuid"`
	Meta
}

// ConferenceProfile is a conference.conf profile.
type ConferenceProfile struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Enabled     bool   `db:"enabled" json:"enabled"`
	Description string `db:"description" json:"description"`
	Meta

	Params []ConferenceProfileParam `db:"-" json:"params,omitempty"`
}

// ConferenceProfileParam is one profile param.
type ConferenceProfileParam struct {
	ID                  string `db:"id" json:"id"`
	ConferenceProfileID string `db:"conference_profile_id" json:"conference_profile_id"`
	Name                string `db:"name" json:"name"`
	Value               string `db:"value" json:"value"`
	Enabled             bool   `db:"enabled" json:"enabled"`
	Meta
}

// ConferenceControl is a caller-controls group.
type ConferenceControl struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Enabled bool   `db:"enabled" json:"enabled"`
	Meta

	Details []ConferenceControlDetail `db:"-" json:"details,omitempty"`
}

// ConferenceControlDetail maps digits to a conference action.
type ConferenceControlDetail struct {
	ID                  string `db:"id" json:"id"`
	ConferenceControlID string `db:"conference_control_id" json:"conference_control_id"`
	Digits              string `db:"digits" json:"digits"`
	Action              string `db:"action" json:"action"`
	Data                string `db:"data" json:"data"`
	Enabled             bool   `db:"enabled" json:"enabled"`
	Meta
}

// ConferenceRoom is a PIN-protected conference room.
type ConferenceRoom struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	Name           string     `db:"name" json:"name"`
	Profile        string     `db:"profile" json:"profile"`
	ModeratorPIN   string     `db:"moderator_pin" json:"moderator_pin"`
	ParticipantPIN string     `db:"participant_pin" json:"participant_pin"`
	MaxMembers     int        `db:"max_members" json:"max_members"`
	StartTime      *time.Time `db:"start_time" json:"start_time,omitempty"`
	StopTime       *time.Time `db:"stop_time" json:"stop_time,omitempty"`
	Record         bool       `db:"record" json:"record"`
	WaitMod        bool       `db:"wait_mod" json:"wait_mod"`
	AnnounceName   bool       `db:"announce_name" json:"announce_name"`
	Mute           bool       `db:"mute" json:"mute"`
	Sounds         bool       `db:"sounds" json:"sounds"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	Description    string     `db:"description" json:"description"`
	Meta
}

// CallFlow is a day/night toggle for a feature code.
type CallFlow struct {
	ID          string  `db:"id" json:"id"`
	TenantID    string  `db:"tenant_id" json:"tenant_id"`
	DialplanID  *string `db:"dialplan_id" json:"dialplan_id,omitempty"`
	Name        string  `db:"name" json:"name"`
	Extension   string  `db:"extension" json:"extension"`
	FeatureCode string  `db:"feature_code" json:"feature_code"`
	Status      bool    `db:"status" json:"status"` // true is day
	PIN         string  `db:"pin" json:"pin"`
	DayLabel    string  `db:"day_label" json:"day_label"`
	DayApp      string  `db:"day_app" json:"day_app"`
	DayData     string  `db:"day_data" json:"day_data"`
	NightLabel  string  `db:"night_label" json:"night_label"`
	NightApp    string  `db:"night_app" json:"night_app"`
	NightData   string  `db:"night_data" json:"night_data"`
	Enabled     bool    `db:"enabled" json:"enabled"`
	Description string  `db:"description" json:"description"`
	Meta
}

// CallBlock matches caller-ID name and/or number to an action.
type CallBlock struct {
	ID          string `db:"id" json:"id"`
	TenantID    string `db:"tenant_id" json:"tenant_id"`
	Name        string `db:"name" json:"name"`
	Number      string `db:"number" json:"number"`
	App         string `db:"app" json:"app"`
	Data        string `db:"data" json:"data"`
	BlockCount  int    `db:"block_count" json:"block_count"`
	Enabled     bool   `db:"enabled" json:"enabled"`
	Description string `db:"description" json:"description"`
	Meta
}

// RingGroup rings a list of destinations by strategy.
type RingGroup struct {
	ID            string `db:"id" json:"id"`
	TenantID      string `db:"tenant_id" json:"tenant_id"`
	Name          string `db:"name" json:"name"`
	Extension     string `db:"extension" json:"extension"`
	Strategy      string `db:"strategy" json:"strategy"`
	CallTimeout   int    `db:"call_timeout" json:"call_timeout"`
	TimeoutApp    string `db:"timeout_app" json:"timeout_app"`
	TimeoutData   string `db:"timeout_data" json:"timeout_data"`
	CIDNamePrefix string `db:"cid_name_prefix" json:"cid_name_prefix"`
	Ringback      string `db:"ringback" json:"ringback"`
	Enabled       bool   `db:"enabled" json:"enabled"`
	Description   string `db:"description" json:"description"`
	Meta

	Destinations []RingGroupDestination `db:"-" json:"destinations,omitempty"`
}

// RingGroupDestination is one member of a ring group.
type RingGroupDestination struct {
	ID          string `db:"id" json:"id"`
	RingGroupID string `db:"ring_group_id" json:"ring_group_id"`
	Destination string `db:"destination" json:"destination"`
	Delay       int    `db:"delay" json:"delay"`
	Timeout     int    `db:"timeout" json:"timeout"`
	Prompt      bool   `db:"prompt" json:"prompt"`
	Sequence    int    `db:"sequence" json:"sequence"`
	Meta
}

// SpeedDial maps a short code to a destination, tenant-wide or per extension.
type SpeedDial struct {
	ID          string  `db:"id" json:"id"`
	TenantID    string  `db:"tenant_id" json:"tenant_id"`
	ExtensionID *string `db:"extension_id" json:"extension_id,omitempty"`
	Code        string  `db:"code" json:"code"`
	Destination string  `db:"destination" json:"destination"`
	Description string  `db:"description" json:"description"`
	Meta
}

// Recording is tenant audio stored under the recordings root.
type Recording struct {
	ID          string `db:"id" json:"id"`
	TenantID    string `db:"tenant_id" json:"tenant_id"`
	Filename    string `db:"filename" json:"filename"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Meta
}

// CDR is a per-leg call detail record.
type CDR struct {
	ID                   string     `db:"id" json:"id"`
	TenantID             *string    `db:"tenant_id" json:"tenant_id,omitempty"`
	ExtensionID          *string    `db:"extension_id" json:"extension_id,omitempty"`
	CoreUUID             string     `db:"core_uuid" json:"core_uuid"`
	CallUUID             string     `db:"call_uuid" json:"call_uuid"`
	Leg                  string     `db:"leg" json:"leg"`
	Direction            string     `db:"direction" json:"direction"`
	Hostname             string     `db:"hostname" json:"hostname"`
	Context              string     `db:"context" json:"context"`
	CallerIDName         string     `db:"caller_id_name" json:"caller_id_name"`
	CallerIDNumber       string     `db:"caller_id_number" json:"caller_id_number"`
	CallerDestination    string     `db:"caller_destination" json:"caller_destination"`
	DestinationNumber    string     `db:"destination_number" json:"destination_number"`
	StartEpoch           int64      `db:"start_epoch" json:"start_epoch"`
	AnswerEpoch          int64      `db:"answer_epoch" json:"answer_epoch"`
	EndEpoch             int64      `db:"end_epoch" json:"end_epoch"`
	StartStamp           *time.Time `db:"start_stamp" json:"start_stamp,omitempty"`
	AnswerStamp          *time.Time `db:"answer_stamp" json:"answer_stamp,omitempty"`
	EndStamp             *time.Time `db:"end_stamp" json:"end_stamp,omitempty"`
	Duration             int        `db:"duration" json:"duration"`
	Billsec              int        `db:"billsec" json:"billsec"`
	BridgeUUID           string     `db:"bridge_uuid" json:"bridge_uuid"`
	HangupCause          string     `db:"hangup_cause" json:"hangup_cause"`
	HangupCauseQ850      int        `db:"hangup_cause_q850" json:"hangup_cause_q850"`
	SIPHangupDisposition string     `db:"sip_hangup_disposition" json:"sip_hangup_disposition"`
	CCSide               string     `db:"cc_side" json:"cc_side"`
	CCQueue              string     `db:"cc_queue" json:"cc_queue"`
	CCMemberUUID         string     `db:"cc_member_uuid" json:"cc_member_uuid"`
	CCAgent              string     `db:"cc_agent" json:"cc_agent"`
	CCCause              string     `db:"cc_cause" json:"cc_cause"`
	RecordingPath        string     `db:"recording_path" json:"recording_path"`
	MissedCall           bool       `db:"missed_call" json:"missed_call"`
	Meta
}

// CallRecording points at a recording file of a call.
type CallRecording struct {
	ID       string  `db:"id" json:"id"`
	TenantID *string `db:"tenant_id" json:"tenant_id,omitempty"`
	CallUUID string  `db:"call_uuid" json:"call_uuid"`
	Path     string  `db:"path" json:"path"`
	Meta
}

// CallTimelineEvent is one channel event of a call.
type CallTimelineEvent struct {
	ID                string  `db:"id" json:"id"`
	TenantID          *string `db:"tenant_id" json:"tenant_id,omitempty"`
	CoreUUID          string  `db:"core_uuid" json:"core_uuid"`
	CallUUID          string  `db:"call_uuid" json:"call_uuid"`
	Hostname          string  `db:"hostname" json:"hostname"`
	EventName         string  `db:"event_name" json:"event_name"`
	EventSubclass     string  `db:"event_subclass" json:"event_subclass"`
	EventEpoch        int64   `db:"event_epoch" json:"event_epoch"` // microseconds
	EventSequence     int64   `db:"event_sequence" json:"event_sequence"`
	ChannelState      string  `db:"channel_state" json:"channel_state"`
	CallState         string  `db:"call_state" json:"call_state"`
	Direction         string  `db:"direction" json:"direction"`
	CallerIDName      string  `db:"caller_id_name" json:"caller_id_name"`
	CallerIDNumber    string  `db:"caller_id_number" json:"caller_id_number"`
	DestinationNumber string  `db:"destination_number" json:"destination_number"`
	Context           string  `db:"context" json:"context"`
	Application       string  `db:"application" json:"application"`
	ApplicationData   string  `db:"application_data" json:"application_data"`
	OtherLegUUID      string  `db:"other_leg_uuid" json:"other_leg_uuid"`
	HangupCause       string  `db:"hangup_cause" json:"hangup_cause"`
	Meta
}
