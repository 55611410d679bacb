package database

import (
	"context"
	"time"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// TenantRepository manages tenants and their SIP force-settings.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetByName(ctx context.Context, name string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	Upsert(ctx context.Context, t *models.Tenant) error
	Delete(ctx context.Context, id string) error
	Settings(ctx context.Context, tenantID string) ([]models.TenantSetting, error)
	UpsertSetting(ctx context.Context, s *models.TenantSetting) error
	DeleteSetting(ctx context.Context, id string) error
}

// DirectoryUser is an extension joined with its tenant domain.
type DirectoryUser struct {
	models.Extension
	Domain string `db:"domain"`
}

// ExtensionRepository manages SIP users, their overrides and follow-me lists.
type ExtensionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Extension, error)
	// GetByNumber matches number or number_alias within the tenant.
	GetByNumber(ctx context.Context, tenantID, number string) (*models.Extension, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Extension, error)
	ListCallGroups(ctx context.Context, tenantID string) ([]models.Extension, error)
	ListWithCIDR(ctx context.Context) ([]DirectoryUser, error)
	Settings(ctx context.Context, extensionID string) ([]models.ExtensionSetting, error)
	// Upsert writes the extension. Non-nil Settings replace the stored
	// overrides and a non-nil Voicemail is written, all in one transaction.
	Upsert(ctx context.Context, ext *models.Extension) error
	Delete(ctx context.Context, id string) error
	FollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error)
	ReplaceFollowMe(ctx context.Context, extensionID string, dests []models.FollowMeDestination) error
}

// VoicemailRepository manages mailboxes and their child records.
type VoicemailRepository interface {
	GetByID(ctx context.Context, id string) (*models.Voicemail, error)
	GetByExtension(ctx context.Context, extensionID string) (*models.Voicemail, error)
	Upsert(ctx context.Context, vm *models.Voicemail) error
	Greetings(ctx context.Context, voicemailID string) ([]models.VoicemailGreeting, error)
	UpsertGreeting(ctx context.Context, g *models.VoicemailGreeting) error
	DeleteGreeting(ctx context.Context, id string) error
	// Messages lists messages in the given states, oldest first.
	Messages(ctx context.Context, voicemailID string, statuses ...string) ([]models.VoicemailMessage, error)
	GetMessage(ctx context.Context, id string) (*models.VoicemailMessage, error)
	CreateMessage(ctx context.Context, msg *models.VoicemailMessage) error
	SetMessageStatus(ctx context.Context, id, status string) error
	// CountMessages returns (new, saved) counts.
	CountMessages(ctx context.Context, voicemailID string) (int, int, error)
	// PurgeDeleted hard-deletes soft-deleted messages older than before and
	// returns the removed rows.
	PurgeDeleted(ctx context.Context, before time.Time) ([]models.VoicemailMessage, error)
	FileReferenced(ctx context.Context, filename string) (bool, error)
	Options(ctx context.Context, voicemailID string) ([]models.VoicemailOption, error)
	ReplaceOptions(ctx context.Context, voicemailID string, opts []models.VoicemailOption) error
	Destinations(ctx context.Context, voicemailID string) ([]models.VoicemailDestination, error)
	ReplaceDestinations(ctx context.Context, voicemailID string, dests []models.VoicemailDestination) error
	// Mailbox resolves a voicemail ID to its owner for notifications.
	Mailbox(ctx context.Context, voicemailID string) (*DirectoryUser, error)
}

// DialplanRepository manages dialplan rows and per-tenant exclusions.
type DialplanRepository interface {
	GetByID(ctx context.Context, id string) (*models.Dialplan, error)
	// ListContext returns enabled rows of the given contexts matching hostname
	// or unpinned, in ascending sequence.
	ListContext(ctx context.Context, hostname string, contexts ...string) ([]models.Dialplan, error)
	// ListInbound returns enabled public rows that are inbound routes for the
	// destination, or public rows that are not inbound routes at all.
	ListInbound(ctx context.Context, hostname, destination string) ([]models.Dialplan, error)
	Upsert(ctx context.Context, d *models.Dialplan) error
	Delete(ctx context.Context, id string) error
	Excludes(ctx context.Context, tenantID string) ([]string, error)
	UpsertExclude(ctx context.Context, e *models.DialplanExclude) error
	DeleteExclude(ctx context.Context, id string) error
}

// SIPProfileRepository manages SIP profiles with their domains and settings.
type SIPProfileRepository interface {
	GetByID(ctx context.Context, id string) (*models.SIPProfile, error)
	// List returns enabled profiles for hostname with children loaded.
	List(ctx context.Context, hostname string) ([]models.SIPProfile, error)
	Upsert(ctx context.Context, p *models.SIPProfile) error
	Delete(ctx context.Context, id string) error
}

// GatewayRepository manages SIP trunks.
type GatewayRepository interface {
	GetByID(ctx context.Context, id string) (*models.Gateway, error)
	ListByProfile(ctx context.Context, profileID, hostname string) ([]models.Gateway, error)
	List(ctx context.Context) ([]models.Gateway, error)
	Upsert(ctx context.Context, g *models.Gateway) error
	Delete(ctx context.Context, id string) error
	MarkSynchronised(ctx context.Context, id string, at time.Time) error
}

// ACLRepository manages network lists.
type ACLRepository interface {
	List(ctx context.Context) ([]models.ACLList, error)
	Upsert(ctx context.Context, l *models.ACLList) error
	Delete(ctx context.Context, id string) error
}

// MusicOnHoldRepository manages local_stream directories.
type MusicOnHoldRepository interface {
	List(ctx context.Context) ([]models.MusicOnHold, error)
	Upsert(ctx context.Context, m *models.MusicOnHold) error
	Delete(ctx context.Context, id string) error
}

// TranslationRepository manages translate.conf profiles.
type TranslationRepository interface {
	List(ctx context.Context) ([]models.NumberTranslation, error)
	Upsert(ctx context.Context, t *models.NumberTranslation) error
	Delete(ctx context.Context, id string) error
}

// SettingRepository manages runtime tunables.
type SettingRepository interface {
	// Get returns the value of an enabled setting; ok is false when absent.
	Get(ctx context.Context, category, name string) (string, bool, error)
	List(ctx context.Context, category string) ([]models.Setting, error)
	Set(ctx context.Context, category, name, value string) error
	Delete(ctx context.Context, category, name string) error
}

// PhraseRepository manages say macros.
type PhraseRepository interface {
	// GetByID returns the phrase with its details in sequence order.
	GetByID(ctx context.Context, id string) (*models.Phrase, error)
	Upsert(ctx context.Context, p *models.Phrase) error
	Delete(ctx context.Context, id string) error
}

// IVRMenuRepository manages IVR menus.
type IVRMenuRepository interface {
	// GetByID returns the menu with its options in sequence order.
	GetByID(ctx context.Context, id string) (*models.IVRMenu, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.IVRMenu, error)
	Upsert(ctx context.Context, m *models.IVRMenu) error
	Delete(ctx context.Context, id string) error
}

// CallCentreRepository manages queues, agents, tiers and agent history.
type CallCentreRepository interface {
	// Queues returns enabled queues with tiers, joined with tenant domains.
	Queues(ctx context.Context) ([]CallCentreQueue, error)
	Agents(ctx context.Context) ([]CallCentreAgent, error)
	GetQueue(ctx context.Context, id string) (*models.CallCentreQueue, error)
	GetAgent(ctx context.Context, id string) (*models.CallCentreAgent, error)
	GetAgentByExtension(ctx context.Context, extensionID string) (*models.CallCentreAgent, error)
	GetAgentByLogin(ctx context.Context, tenantID, loginCode string) (*models.CallCentreAgent, error)
	SetAgentStatus(ctx context.Context, id, status string) error
	// UpsertQueue writes the queue; non-nil Tiers replace the stored tiers.
	UpsertQueue(ctx context.Context, q *models.CallCentreQueue) error
	DeleteQueue(ctx context.Context, id string) error
	UpsertAgent(ctx context.Context, a *models.CallCentreAgent) error
	DeleteAgent(ctx context.Context, id string) error
	LogStatus(ctx context.Context, entry *models.AgentStatusLog) error
	StatusLog(ctx context.Context, agentName string, limit int) ([]models.AgentStatusLog, error)
}

// CallCentreQueue is a queue joined with its tenant domain.
type CallCentreQueue struct {
	models.CallCentreQueue
	Domain string `db:"domain"`
}

// CallCentreAgent is an agent joined with its tenant domain.
type CallCentreAgent struct {
	models.CallCentreAgent
	Domain string `db:"domain"`
}

// ConferenceRepository manages conference profiles, controls and rooms.
type ConferenceRepository interface {
	Profiles(ctx context.Context) ([]models.ConferenceProfile, error)
	Controls(ctx context.Context) ([]models.ConferenceControl, error)
	GetRoom(ctx context.Context, id string) (*models.ConferenceRoom, error)
	// FindRoomByPIN returns the enabled tenant room whose moderator or
	// participant PIN equals pin, and whether the moderator PIN matched.
	FindRoomByPIN(ctx context.Context, tenantID, pin string) (*models.ConferenceRoom, bool, error)
	UpsertProfile(ctx context.Context, p *models.ConferenceProfile) error
	UpsertControl(ctx context.Context, c *models.ConferenceControl) error
	UpsertRoom(ctx context.Context, r *models.ConferenceRoom) error
	DeleteRoom(ctx context.Context, id string) error
}

// CallFlowRepository manages day/night call flows.
type CallFlowRepository interface {
	GetByID(ctx context.Context, id string) (*models.CallFlow, error)
	GetByFeatureCode(ctx context.Context, tenantID, code string) (*models.CallFlow, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.CallFlow, error)
	// Upsert writes the flow and, when dp is non-nil, its generated dialplan
	// in the same transaction.
	Upsert(ctx context.Context, f *models.CallFlow, dp *models.Dialplan) error
	Delete(ctx context.Context, id string) error
}

// CallBlockRepository manages caller-ID block rules.
type CallBlockRepository interface {
	ListEnabled(ctx context.Context, tenantID string) ([]models.CallBlock, error)
	Upsert(ctx context.Context, b *models.CallBlock) error
	Delete(ctx context.Context, id string) error
	IncrementCount(ctx context.Context, id string) error
}

// RingGroupRepository manages ring groups.
type RingGroupRepository interface {
	// GetByID returns the group with its destinations in sequence order.
	GetByID(ctx context.Context, id string) (*models.RingGroup, error)
	GetByExtension(ctx context.Context, tenantID, extension string) (*models.RingGroup, error)
	Upsert(ctx context.Context, g *models.RingGroup) error
	Delete(ctx context.Context, id string) error
}

// SpeedDialRepository manages speed dial codes.
type SpeedDialRepository interface {
	// Find prefers a personal entry for extensionID over a tenant-wide one.
	Find(ctx context.Context, tenantID, extensionID, code string) (*models.SpeedDial, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.SpeedDial, error)
	Upsert(ctx context.Context, s *models.SpeedDial) error
	Delete(ctx context.Context, id string) error
}

// RecordingRepository manages tenant recording metadata.
type RecordingRepository interface {
	GetByFilename(ctx context.Context, tenantID, filename string) (*models.Recording, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Recording, error)
	Upsert(ctx context.Context, r *models.Recording) error
	Delete(ctx context.Context, id string) error
}

// CDRRepository stores call detail records, recordings and timelines.
type CDRRepository interface {
	// Insert stores the record. inserted is false when a record with the
	// same (core_uuid, call_uuid, leg) already exists.
	Insert(ctx context.Context, c *models.CDR) (inserted bool, err error)
	Get(ctx context.Context, coreUUID, callUUID, leg string) (*models.CDR, error)
	AddRecording(ctx context.Context, r *models.CallRecording) error
	Recordings(ctx context.Context, callUUID string) ([]models.CallRecording, error)
	// AppendTimeline stores the event unless it was already recorded.
	AppendTimeline(ctx context.Context, e *models.CallTimelineEvent) error
	// Timeline returns a call's events by (event_epoch, event_sequence).
	Timeline(ctx context.Context, callUUID string) ([]models.CallTimelineEvent, error)
}

// Store bundles every repository over one database.
type Store struct {
	DB           *DB
	Tenants      TenantRepository
	Extensions   ExtensionRepository
	Voicemail    VoicemailRepository
	Dialplans    DialplanRepository
	SIPProfiles  SIPProfileRepository
	Gateways     GatewayRepository
	ACLs         ACLRepository
	MusicOnHold  MusicOnHoldRepository
	Translations TranslationRepository
	Settings     SettingRepository
	Phrases      PhraseRepository
	IVRMenus     IVRMenuRepository
	CallCentre   CallCentreRepository
	Conferences  ConferenceRepository
	CallFlows    CallFlowRepository
	CallBlocks   CallBlockRepository
	RingGroups   RingGroupRepository
	SpeedDials   SpeedDialRepository
	Recordings   RecordingRepository
	CDRs         CDRRepository
}

// NewStore builds every repository over db.
func NewStore(db *DB) *Store {
	return &Store{
		DB:           db,
		Tenants:      NewTenantRepository(db),
		Extensions:   NewExtensionRepository(db),
		Voicemail:    NewVoicemailRepository(db),
		Dialplans:    NewDialplanRepository(db),
		SIPProfiles:  NewSIPProfileRepository(db),
		Gateways:     NewGatewayRepository(db),
		ACLs:         NewACLRepository(db),
		MusicOnHold:  NewMusicOnHoldRepository(db),
		Translations: NewTranslationRepository(db),
		Settings:     NewSettingRepository(db),
		Phrases:      NewPhraseRepository(db),
		IVRMenus:     NewIVRMenuRepository(db),
		CallCentre:   NewCallCentreRepository(db),
		Conferences:  NewConferenceRepository(db),
		CallFlows:    NewCallFlowRepository(db),
		CallBlocks:   NewCallBlockRepository(db),
		RingGroups:   NewRingGroupRepository(db),
		SpeedDials:   NewSpeedDialRepository(db),
		Recordings:   NewRecordingRepository(db),
		CDRs:         NewCDRRepository(db),
	}
}
